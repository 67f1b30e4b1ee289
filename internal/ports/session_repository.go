package ports

import (
	"context"

	"github.com/bft-labs/voltship/internal/domain"
)

// SessionRepository persists acquisition session bookkeeping.
type SessionRepository interface {
	// Load retrieves the last saved session.
	// Returns an empty session and nil error if none exists.
	Load(ctx context.Context) (domain.Session, error)

	// Save persists the session atomically.
	Save(ctx context.Context, s domain.Session) error
}
