package providers

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultSessionTTL is how long an idle user's registry is kept in memory.
const DefaultSessionTTL = 24 * time.Hour

// Factory builds the provider set for one user.
type Factory func(userID string) []Provider

// Sessions holds one Registry per user, created on first use and dropped
// after a period of inactivity.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*session
	factory  Factory
	logger   *log.Logger
	ttl      time.Duration
	now      func() time.Time
}

type session struct {
	registry *Registry
	lastUsed time.Time
}

// NewSessions creates an in-memory registry store.
func NewSessions(factory Factory, logger *log.Logger, ttl time.Duration) *Sessions {
	if logger == nil {
		logger = log.Default()
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{
		sessions: make(map[string]*session),
		factory:  factory,
		logger:   logger,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the user's registry, creating it if needed.
func (s *Sessions) Get(userID string) *Registry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if sess, ok := s.sessions[userID]; ok && now.Sub(sess.lastUsed) <= s.ttl {
		sess.lastUsed = now
		return sess.registry
	}

	s.evictLocked(now)
	reg := NewRegistry(s.logger.With("user", userID), s.factory(userID)...)
	s.sessions[userID] = &session{registry: reg, lastUsed: now}
	return reg
}

func (s *Sessions) evictLocked(now time.Time) {
	for id, sess := range s.sessions {
		if now.Sub(sess.lastUsed) > s.ttl {
			delete(s.sessions, id)
		}
	}
}
