package providers

import (
	"context"
	"fmt"

	"github.com/justestif/coretet/internal/apperr"
)

// Unimplemented is a declared provider with no backing integration.
// Every capability fails with apperr.ErrNotImplemented.
type Unimplemented struct {
	name Name
}

var _ Provider = Unimplemented{}

// NewDropbox returns the Dropbox provider.
func NewDropbox() Unimplemented { return Unimplemented{name: Dropbox} }

// NewOneDrive returns the OneDrive provider.
func NewOneDrive() Unimplemented { return Unimplemented{name: OneDrive} }

func (u Unimplemented) Name() Name { return u.name }

func (u Unimplemented) err() error {
	return fmt.Errorf("%s: %w", u.name, apperr.ErrNotImplemented)
}

func (u Unimplemented) Connect(context.Context) error    { return u.err() }
func (u Unimplemented) Disconnect(context.Context) error { return u.err() }
func (u Unimplemented) IsConnected() bool                { return false }

func (u Unimplemented) Quota(context.Context) (*Quota, error) { return nil, u.err() }
func (u Unimplemented) List(context.Context) ([]File, error)  { return nil, u.err() }
