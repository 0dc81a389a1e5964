package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/medinor/dashboard/model"
)

// Store persists migration session snapshots between requests.
type Store interface {
	// Create persists a new session. Returns CONFLICT if the ID exists.
	Create(ctx context.Context, snap model.MigrationSnapshot) error

	// Get retrieves a session by ID, scoped to its owner. Returns NOT_FOUND
	// if the session doesn't exist or belongs to another subject.
	Get(ctx context.Context, subjectID, id string) (model.MigrationSnapshot, error)

	// Update persists snap with optimistic locking. snap.Version must match
	// the stored version, which is then incremented. Returns CONFLICT if
	// the version has moved.
	Update(ctx context.Context, snap model.MigrationSnapshot) error

	// Delete removes a session.
	Delete(ctx context.Context, subjectID, id string) error

	// FindExpired returns sessions whose expires_at is before cutoff.
	FindExpired(ctx context.Context, cutoff time.Time) ([]model.MigrationSnapshot, error)

	// Count returns the number of stored sessions.
	Count(ctx context.Context) (int, error)

	// HealthCheck reports whether the store is reachable.
	HealthCheck(ctx context.Context) error
}

func notFound(id string) error {
	return model.NewNotFoundError(fmt.Sprintf("migration session %q not found", id))
}

func versionConflict(id string, version int) error {
	return model.NewConflictError(fmt.Sprintf("migration session %q version conflict (expected %d)", id, version))
}
