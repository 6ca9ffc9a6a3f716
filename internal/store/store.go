// Package store provides local persistence for the companion: the cached
// identity hint and a mirror of the conversation transcript.
package store

import (
	"context"

	"github.com/asthmacare/companion/internal/domain"
)

// Repository defines the interface for the local companion cache.
type Repository interface {
	// IdentityHint returns the cached username hint, or "" when absent.
	IdentityHint(ctx context.Context) (string, error)

	// SaveIdentityHint stores the username hint after a successful login.
	SaveIdentityHint(ctx context.Context, username string) error

	// ClearIdentityHint removes the cached hint on logout or when the
	// server disowns the session.
	ClearIdentityHint(ctx context.Context) error

	// AppendMessage mirrors one conversation message into the local
	// transcript table.
	AppendMessage(ctx context.Context, msg domain.Message) error

	// RecentMessages returns up to limit mirrored messages in append
	// order (oldest first).
	RecentMessages(ctx context.Context, limit int) ([]domain.Message, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
