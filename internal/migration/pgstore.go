package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medinor/dashboard/model"
)

// Schema creates the table used by PgStore.
const Schema = `
CREATE TABLE IF NOT EXISTS migration_sessions (
	id          TEXT PRIMARY KEY,
	subject_id  TEXT NOT NULL,
	entity      TEXT NOT NULL,
	state       TEXT NOT NULL,
	snapshot    JSONB NOT NULL,
	version     INTEGER NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS migration_sessions_expires_at ON migration_sessions (expires_at);
`

// PgStore is a PostgreSQL-backed Store using pgx/v5. The snapshot is kept
// as JSONB; the scalar columns exist for ownership checks, optimistic
// locking and expiry scans.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PostgreSQL session store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureSchema creates the sessions table if it is missing.
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create migration_sessions: %w", err)
	}
	return nil
}

func (s *PgStore) Create(ctx context.Context, snap model.MigrationSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO migration_sessions (
			id, subject_id, entity, state, snapshot, version,
			created_at, updated_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		snap.ID, snap.SubjectID, snap.Entity, snap.State, data, snap.Version,
		snap.CreatedAt, snap.UpdatedAt, snap.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert migration session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(fmt.Sprintf("migration session %q already exists", snap.ID))
	}
	return nil
}

func (s *PgStore) Get(ctx context.Context, subjectID, id string) (model.MigrationSnapshot, error) {
	var data []byte
	var version int
	err := s.pool.QueryRow(ctx, `
		SELECT snapshot, version
		FROM migration_sessions
		WHERE id = $1 AND subject_id = $2`,
		id, subjectID,
	).Scan(&data, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.MigrationSnapshot{}, notFound(id)
	}
	if err != nil {
		return model.MigrationSnapshot{}, fmt.Errorf("query migration session: %w", err)
	}
	return decodeRow(data, version)
}

func (s *PgStore) Update(ctx context.Context, snap model.MigrationSnapshot) error {
	expected := snap.Version
	snap.Version++
	snap.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE migration_sessions SET
			state = $1,
			snapshot = $2,
			version = $3,
			updated_at = $4,
			expires_at = $5
		WHERE id = $6 AND subject_id = $7 AND version = $8`,
		snap.State, data, snap.Version, snap.UpdatedAt, snap.ExpiresAt,
		snap.ID, snap.SubjectID, expected,
	)
	if err != nil {
		return fmt.Errorf("update migration session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return versionConflict(snap.ID, expected)
	}
	return nil
}

func (s *PgStore) Delete(ctx context.Context, subjectID, id string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM migration_sessions
		WHERE id = $1 AND subject_id = $2`,
		id, subjectID,
	)
	if err != nil {
		return fmt.Errorf("delete migration session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

func (s *PgStore) FindExpired(ctx context.Context, cutoff time.Time) ([]model.MigrationSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT snapshot, version
		FROM migration_sessions
		WHERE expires_at IS NOT NULL AND expires_at < $1
		ORDER BY expires_at ASC`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("query expired sessions: %w", err)
	}
	defer rows.Close()

	var snaps []model.MigrationSnapshot
	for rows.Next() {
		var data []byte
		var version int
		if err := rows.Scan(&data, &version); err != nil {
			return nil, fmt.Errorf("scan migration session: %w", err)
		}
		snap, err := decodeRow(data, version)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *PgStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM migration_sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count migration sessions: %w", err)
	}
	return n, nil
}

func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// decodeRow trusts the version column over the one inside the JSON.
func decodeRow(data []byte, version int) (model.MigrationSnapshot, error) {
	var snap model.MigrationSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.MigrationSnapshot{}, fmt.Errorf("unmarshal session: %w", err)
	}
	snap.Version = version
	return snap, nil
}
