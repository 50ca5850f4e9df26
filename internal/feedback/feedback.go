// Package feedback relays user feedback to the team by email.
package feedback

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/justestif/coretet/internal/apperr"
	"github.com/justestif/coretet/internal/auth"
)

// MaxMessageLength is the longest accepted message, in characters.
const MaxMessageLength = 5000

// Categories lists accepted feedback categories. An empty category is
// recorded as "general".
var Categories = map[string]bool{
	"bug":     true,
	"feature": true,
	"general": true,
	"other":   true,
}

// Feedback is one submission.
type Feedback struct {
	Category string
	Message  string
	PageURL  string
}

// Service validates feedback and hands it to a Sender.
type Service struct {
	sender Sender
	to     string
	logger *log.Logger
}

// NewService creates a Service that mails feedback to the given address.
func NewService(sender Sender, to string, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{sender: sender, to: to, logger: logger}
}

// Submit relays fb from caller.
func (s *Service) Submit(ctx context.Context, caller auth.Identity, fb Feedback) error {
	if caller.ID == "" {
		return apperr.ErrUnauthorized
	}

	msg := strings.TrimSpace(fb.Message)
	if msg == "" {
		return fmt.Errorf("%w: message is required", apperr.ErrValidation)
	}
	if utf8.RuneCountInString(msg) > MaxMessageLength {
		return fmt.Errorf("%w: message exceeds %d characters", apperr.ErrValidation, MaxMessageLength)
	}

	category := strings.ToLower(strings.TrimSpace(fb.Category))
	if category == "" {
		category = "general"
	}
	if !Categories[category] {
		return fmt.Errorf("%w: unknown category %q", apperr.ErrValidation, fb.Category)
	}

	if s.to == "" {
		return fmt.Errorf("%w: no feedback recipient configured", apperr.ErrUpstream)
	}

	subject := fmt.Sprintf("[CoreTet feedback] %s from %s", category, caller.Email)
	body := fmt.Sprintf("From: %s (%s)\nCategory: %s\nPage: %s\n\n%s\n",
		caller.Email, caller.ID, category, fb.PageURL, msg)

	if err := s.sender.Send(ctx, s.to, subject, body); err != nil {
		s.logger.Error("sending feedback", "user", caller.ID, "err", err)
		return fmt.Errorf("%w: sending feedback: %v", apperr.ErrUpstream, err)
	}
	return nil
}
