// Package guardstore holds the per-fingerprint state the submission guard
// consults: when the fingerprint last had a submission accepted and which
// content hashes it submitted recently.
package guardstore

import (
	"context"
	"time"
)

// State is what a store knows about one fingerprint.
type State struct {
	LastAccepted time.Time
	Hashes       []string
}

// Store keeps guard state. Implementations prune expired hashes lazily in
// Recent; there is no background sweep of the hash window.
type Store interface {
	// Recent drops hashes recorded before since and returns the rest.
	Recent(ctx context.Context, fingerprint string, since time.Time) (State, error)
	// Record stores an accepted submission.
	Record(ctx context.Context, fingerprint, hash string, at time.Time) error
}
