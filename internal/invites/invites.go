// Package invites generates admin-issued invite codes.
package invites

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/justestif/coretet/internal/apperr"
	"github.com/justestif/coretet/internal/auth"
	"github.com/justestif/coretet/internal/db"
)

const (
	// CodeLength is the number of characters in a code.
	CodeLength = 8
	// MaxAttempts bounds collision retries.
	MaxAttempts = 10
	// MaxExpiryDays bounds a requested expiry.
	MaxExpiryDays = 365

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// ErrCodeSpaceExhausted is returned when MaxAttempts generated codes all
// collided with existing ones.
var ErrCodeSpaceExhausted = errors.New("could not generate a unique invite code")

// Store persists invites.
type Store interface {
	CodeExists(ctx context.Context, code string) (bool, error)
	// Create returns db.ErrDuplicate if the code was taken concurrently.
	Create(ctx context.Context, inv *db.Invite) error
}

var _ Store = (*db.InviteRepository)(nil)

// Request describes an invite to create.
type Request struct {
	Email         string
	ExpiresInDays int
}

// Service creates invites.
type Service struct {
	store         Store
	logger        *log.Logger
	defaultExpiry time.Duration
	random        io.Reader
	now           func() time.Time
}

// NewService creates an invite Service. A zero defaultExpiry means 7 days.
func NewService(store Store, defaultExpiry time.Duration, logger *log.Logger) *Service {
	if defaultExpiry <= 0 {
		defaultExpiry = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:         store,
		logger:        logger,
		defaultExpiry: defaultExpiry,
		random:        rand.Reader,
		now:           time.Now,
	}
}

// Generate creates an invite on behalf of an admin caller.
func (s *Service) Generate(ctx context.Context, caller auth.Identity, req Request) (*db.Invite, error) {
	if caller.ID == "" {
		return nil, apperr.ErrUnauthorized
	}
	if !caller.Admin {
		return nil, apperr.ErrForbidden
	}

	expiry := s.defaultExpiry
	switch {
	case req.ExpiresInDays < 0 || req.ExpiresInDays > MaxExpiryDays:
		return nil, fmt.Errorf("%w: expiresInDays must be between 1 and %d", apperr.ErrValidation, MaxExpiryDays)
	case req.ExpiresInDays > 0:
		expiry = time.Duration(req.ExpiresInDays) * 24 * time.Hour
	}

	var email *string
	if e := strings.TrimSpace(req.Email); e != "" {
		addr, err := mail.ParseAddress(e)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid email", apperr.ErrValidation)
		}
		normalized := db.NormalizeEmail(addr.Address)
		email = &normalized
	}

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		code, err := GenerateCode(s.random)
		if err != nil {
			return nil, fmt.Errorf("%w: generating code: %v", apperr.ErrUpstream, err)
		}

		exists, err := s.store.CodeExists(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("%w: checking code: %v", apperr.ErrUpstream, err)
		}
		if exists {
			s.logger.Debug("invite code collision", "attempt", attempt)
			continue
		}

		inv := &db.Invite{
			Code:      code,
			Email:     email,
			CreatedBy: caller.ID,
			ExpiresAt: s.now().Add(expiry).UTC(),
		}
		err = s.store.Create(ctx, inv)
		if errors.Is(err, db.ErrDuplicate) {
			s.logger.Debug("invite code taken on insert", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: creating invite: %v", apperr.ErrUpstream, err)
		}
		return inv, nil
	}

	s.logger.Error("invite code space exhausted", "attempts", MaxAttempts)
	return nil, ErrCodeSpaceExhausted
}

// GenerateCode returns CodeLength characters drawn uniformly from [A-Z0-9].
func GenerateCode(r io.Reader) (string, error) {
	// 252 is the largest multiple of 36 below 256; higher bytes are
	// rejected so every character is equally likely.
	const limit = 252

	out := make([]byte, 0, CodeLength)
	buf := make([]byte, CodeLength*2)
	for len(out) < CodeLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == CodeLength {
				break
			}
		}
	}
	return string(out), nil
}
