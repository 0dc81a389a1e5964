package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medinor/dashboard/model"
)

// RedisStore keeps each session as a JSON value under prefix+id. Keys
// carry the session's expires_at as their TTL, so Redis expires idle
// sessions by itself and FindExpired has nothing to return.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a store on client. prefix namespaces the keys.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) ttl(snap model.MigrationSnapshot) time.Duration {
	if snap.ExpiresAt == nil {
		return 0
	}
	d := snap.ExpiresAt.Sub(s.now())
	if d < time.Second {
		d = time.Second
	}
	return d
}

func (s *RedisStore) Create(ctx context.Context, snap model.MigrationSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(snap.ID), data, s.ttl(snap)).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return model.NewConflictError(fmt.Sprintf("migration session %q already exists", snap.ID))
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, subjectID, id string) (model.MigrationSnapshot, error) {
	snap, err := s.read(ctx, s.client, id)
	if err != nil {
		return model.MigrationSnapshot{}, err
	}
	if snap.SubjectID != subjectID {
		return model.MigrationSnapshot{}, notFound(id)
	}
	return snap, nil
}

// getter is the subset of *redis.Client and *redis.Tx used by read.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) read(ctx context.Context, c getter, id string) (model.MigrationSnapshot, error) {
	data, err := c.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.MigrationSnapshot{}, notFound(id)
	}
	if err != nil {
		return model.MigrationSnapshot{}, fmt.Errorf("get session: %w", err)
	}
	var snap model.MigrationSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.MigrationSnapshot{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return snap, nil
}

// Update compares versions inside a WATCH transaction, so a concurrent
// writer makes the EXEC fail and surfaces as CONFLICT.
func (s *RedisStore) Update(ctx context.Context, snap model.MigrationSnapshot) error {
	key := s.key(snap.ID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		existing, err := s.read(ctx, tx, snap.ID)
		if err != nil {
			return err
		}
		if existing.SubjectID != snap.SubjectID {
			return notFound(snap.ID)
		}
		if existing.Version != snap.Version {
			return versionConflict(snap.ID, snap.Version)
		}

		snap.Version++
		snap.UpdatedAt = s.now().UTC()
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, s.ttl(snap))
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return versionConflict(snap.ID, snap.Version)
	}
	return err
}

func (s *RedisStore) Delete(ctx context.Context, subjectID, id string) error {
	if _, err := s.Get(ctx, subjectID, id); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *RedisStore) FindExpired(context.Context, time.Time) ([]model.MigrationSnapshot, error) {
	return nil, nil
}

// Count scans the key prefix.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan sessions: %w", err)
	}
	return n, nil
}

func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
