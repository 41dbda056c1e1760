// Package store persists chat sessions. Implementations hand out deep copies
// so that a caller only ever publishes a turn through Update.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/darktomcat119/Health-AI-MVP/internal/domain"
)

// ErrDuplicate is returned by Create when the id is already taken.
var ErrDuplicate = errors.New("session already exists")

// Clock returns the current time. Stores take one so expiry can be tested
// without sleeping.
type Clock func() time.Time

// Store defines the session persistence operations.
type Store interface {
	// Get returns a copy of the session. Unknown ids yield
	// domain.ErrSessionNotFound. Expired sessions are deleted and yield
	// domain.ErrSessionExpired.
	Get(ctx context.Context, id string) (*domain.Session, error)

	// Create inserts a new session.
	Create(ctx context.Context, s *domain.Session) error

	// Update replaces the stored session with s.
	Update(ctx context.Context, s *domain.Session) error

	// Delete removes a session and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// CountActive returns the number of sessions that have not expired.
	CountActive(ctx context.Context) (int, error)

	// SweepExpired removes every expired session and returns how many.
	SweepExpired(ctx context.Context) (int, error)

	// Close releases the underlying resources.
	Close() error
}

// Options configure either implementation.
type Options struct {
	MaxAge time.Duration
	Clock  Clock
}

func (o Options) clock() Clock {
	if o.Clock == nil {
		return time.Now
	}
	return o.Clock
}

// New returns the implementation named by driver ("memory" or "sqlite").
func New(driver, dbPath string, opts Options) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemory(opts), nil
	case "sqlite":
		return NewSQLite(dbPath, opts)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
