// Package store persists the locker state as one unit.
package store

import (
	"context"
	"errors"

	"laundry-locker/internal/model"
)

// ErrNoState is returned by Load when nothing has been persisted yet.
var ErrNoState = errors.New("no persisted locker state")

// ErrCorruptState is returned by Load when the persisted state cannot be
// decoded.
var ErrCorruptState = errors.New("persisted locker state is unreadable")

// Store defines the persistence operations for the locker state.
type Store interface {
	// Load returns the last saved state, or ErrNoState.
	Load(ctx context.Context) (*model.State, error)
	// Save replaces the persisted state with s. Either the whole state is
	// written or none of it is.
	Save(ctx context.Context, s *model.State) error
}
