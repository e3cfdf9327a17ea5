// ABOUTME: Session state type and the store contract for per-user dialogue progress.
// ABOUTME: Defines the safe default state substituted when a read fails.

package session

import (
	"context"
	"errors"

	"github.com/OGJRx/intake-gateway/internal/flow"
)

// ErrNotFound is returned when no session exists for a user. Callers treat it
// the same as a fresh session.
var ErrNotFound = errors.New("session not found")

// State is the per-user dialogue progress record. It is owned exclusively by
// the store; the intake service re-reads and re-writes it on every turn and
// never caches it across calls.
type State struct {
	Step flow.Step         `json:"step"`
	Data map[string]string `json:"data,omitempty"`
}

// Fresh returns the safe default state: idle with no accumulated data. It is
// substituted on any read failure so a broken store can never block a user
// from interacting, at the cost of losing in-flight progress.
func Fresh() State {
	return State{Step: flow.StepIdle, Data: map[string]string{}}
}

// Clone returns a deep copy of the state so callers can patch Data without
// aliasing the snapshot they read.
func (s State) Clone() State {
	data := make(map[string]string, len(s.Data))
	for k, v := range s.Data {
		data[k] = v
	}
	return State{Step: s.Step, Data: data}
}

// Store is the durable mapping from user identity to dialogue state.
type Store interface {
	// Read returns the stored state, or ErrNotFound when the user has none.
	Read(ctx context.Context, userID string) (State, error)

	// Write persists the state, overwriting any previous value.
	Write(ctx context.Context, userID string, state State) error

	// Clear resets the user to the fresh state. Equivalent to writing
	// Fresh(), but implementations may delete the row instead.
	Clear(ctx context.Context, userID string) error

	// Close releases any resources held by the store.
	Close() error
}
