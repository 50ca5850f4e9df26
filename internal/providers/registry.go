package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/justestif/coretet/internal/apperr"
)

// Status is a provider's connection state.
type Status string

// Connection states.
const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// State is a snapshot of one provider's connection state.
type State struct {
	Name     Name       `json:"name"`
	Status   Status     `json:"status"`
	Error    string     `json:"error,omitempty"`
	Quota    *Quota     `json:"quota,omitempty"`
	LastSync *time.Time `json:"lastSync,omitempty"`
	Active   bool       `json:"active"`
}

type entry struct {
	provider Provider
	status   Status
	errMsg   string
	quota    *Quota
	lastSync *time.Time
}

// Registry tracks the connection state of one user's providers. At most one
// provider is active, and the active provider is always connected.
// A Registry is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	order   []Name
	entries map[Name]*entry
	active  Name // empty when none
	logger  *log.Logger
	now     func() time.Time
}

// NewRegistry creates a Registry over the given providers, all disconnected.
func NewRegistry(logger *log.Logger, providers ...Provider) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	r := &Registry{
		entries: make(map[Name]*entry, len(providers)),
		logger:  logger,
		now:     time.Now,
	}
	for _, p := range providers {
		if _, dup := r.entries[p.Name()]; !dup {
			r.order = append(r.order, p.Name())
		}
		r.entries[p.Name()] = &entry{provider: p, status: StatusDisconnected}
	}
	return r
}

func (r *Registry) lookup(name Name) (*entry, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: provider %q is not registered", apperr.ErrNotFound, name)
	}
	return e, nil
}

// Connect connects the named provider. On success it becomes the active
// provider. On failure it moves to the error state; other providers are
// left as they were.
func (r *Registry) Connect(ctx context.Context, name Name) error {
	r.mu.Lock()
	e, err := r.lookup(name)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	e.status = StatusConnecting
	e.errMsg = ""
	if r.active == name {
		r.active = ""
	}
	p := e.provider
	r.mu.Unlock()

	err = p.Connect(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		e.status = StatusError
		e.errMsg = err.Error()
		r.logger.Warn("provider connect failed", "provider", name, "err", err)
		return err
	}

	e.status = StatusConnected
	r.active = name
	r.logger.Info("provider connected", "provider", name)
	return nil
}

// Disconnect tears the named provider down. It always ends disconnected;
// a teardown error is still returned to the caller.
func (r *Registry) Disconnect(ctx context.Context, name Name) error {
	r.mu.Lock()
	e, err := r.lookup(name)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	p := e.provider
	r.mu.Unlock()

	err = p.Disconnect(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	e.status = StatusDisconnected
	e.errMsg = ""
	e.quota = nil
	e.lastSync = nil
	if r.active == name {
		r.active = ""
	}
	if err != nil {
		r.logger.Warn("provider disconnect failed", "provider", name, "err", err)
	}
	return err
}

// SwitchActive makes the named provider active if it is connected.
// Otherwise nothing changes.
func (r *Registry) SwitchActive(name Name) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(name)
	if err != nil {
		return err
	}
	if e.status == StatusConnected {
		r.active = name
	}
	return nil
}

// Active returns the active provider, if any.
func (r *Registry) Active() (Name, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active, r.active != ""
}

// Quota returns the named provider's usage, or nil when it is not connected
// or the lookup fails. Failures are logged, never returned.
func (r *Registry) Quota(ctx context.Context, name Name) *Quota {
	r.mu.Lock()
	e, err := r.lookup(name)
	if err != nil || e.status != StatusConnected {
		r.mu.Unlock()
		return nil
	}
	p := e.provider
	r.mu.Unlock()

	if !p.IsConnected() {
		return nil
	}

	q, err := p.Quota(ctx)
	if err != nil {
		r.logger.Warn("provider quota failed", "provider", name, "err", err)
		return nil
	}
	if q == nil {
		return nil
	}

	r.mu.Lock()
	now := r.now()
	cached := *q
	e.quota = &cached
	e.lastSync = &now
	r.mu.Unlock()
	return q
}

// List returns the audio files held by the named provider.
func (r *Registry) List(ctx context.Context, name Name) ([]File, error) {
	r.mu.Lock()
	e, err := r.lookup(name)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	connected := e.status == StatusConnected
	p := e.provider
	r.mu.Unlock()

	if !connected {
		return nil, fmt.Errorf("%s: %w", name, ErrNotConnected)
	}
	files, err := p.List(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	now := r.now()
	e.lastSync = &now
	r.mu.Unlock()
	return files, nil
}

// State returns a snapshot of one provider.
func (r *Registry) State(name Name) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookup(name)
	if err != nil {
		return State{}, err
	}
	return r.snapshot(name, e), nil
}

// States returns a snapshot of every provider in registration order.
func (r *Registry) States() []State {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make([]State, 0, len(r.order))
	for _, name := range r.order {
		states = append(states, r.snapshot(name, r.entries[name]))
	}
	return states
}

func (r *Registry) snapshot(name Name, e *entry) State {
	s := State{
		Name:   name,
		Status: e.status,
		Error:  e.errMsg,
		Active: r.active == name,
	}
	if e.quota != nil {
		q := *e.quota
		s.Quota = &q
	}
	if e.lastSync != nil {
		t := *e.lastSync
		s.LastSync = &t
	}
	return s
}

// IsAuthorizationRequired reports whether err asks the user to grant access.
func IsAuthorizationRequired(err error) bool {
	return errors.Is(err, ErrAuthorizationRequired)
}
