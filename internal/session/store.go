// Package session owns voice session lifecycle: storage, per-session
// command serialization, inactivity expiry, and archival.
package session

import (
	"context"
	"errors"

	"github.com/fieldvoice/fieldvoice/internal/models"
)

// Store errors.
var (
	ErrInvalidDriver = errors.New("invalid session store driver")
)

// Store persists live sessions. Implementations must be safe for
// concurrent use; the manager above them guarantees that no two commands
// for the same session run at once.
type Store interface {
	// Put creates or replaces a session.
	Put(ctx context.Context, sess *models.Session) error

	// Get retrieves a session by ID.
	// Returns nil if the session is not found (not an error).
	Get(ctx context.Context, id string) (*models.Session, error)

	// Delete removes a session by ID.
	Delete(ctx context.Context, id string) error

	// List returns all live sessions, for the expiry sweep.
	List(ctx context.Context) ([]*models.Session, error)

	// Close releases any resources held by the store.
	Close() error
}
