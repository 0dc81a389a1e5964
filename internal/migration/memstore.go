package migration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/medinor/dashboard/model"
)

// MemoryStore keeps sessions in process memory. Sessions are lost on
// restart and are not shared between replicas.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]model.MigrationSnapshot
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]model.MigrationSnapshot),
		now:      time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, snap model.MigrationSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[snap.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("migration session %q already exists", snap.ID))
	}
	s.sessions[snap.ID] = snap
	return nil
}

func (s *MemoryStore) Get(_ context.Context, subjectID, id string) (model.MigrationSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, exists := s.sessions[id]
	if !exists || snap.SubjectID != subjectID {
		return model.MigrationSnapshot{}, notFound(id)
	}
	return snap, nil
}

func (s *MemoryStore) Update(_ context.Context, snap model.MigrationSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.sessions[snap.ID]
	if !exists || existing.SubjectID != snap.SubjectID {
		return notFound(snap.ID)
	}
	if existing.Version != snap.Version {
		return versionConflict(snap.ID, snap.Version)
	}

	snap.Version++
	snap.UpdatedAt = s.now().UTC()
	s.sessions[snap.ID] = snap
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, subjectID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, exists := s.sessions[id]
	if !exists || snap.SubjectID != subjectID {
		return notFound(id)
	}
	delete(s.sessions, id)
	return nil
}

// FindExpired returns expired sessions ordered by expires_at.
func (s *MemoryStore) FindExpired(_ context.Context, cutoff time.Time) ([]model.MigrationSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.MigrationSnapshot
	for _, snap := range s.sessions {
		if snap.ExpiresAt == nil || !snap.ExpiresAt.Before(cutoff) {
			continue
		}
		result = append(result, snap)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ExpiresAt.Before(*result[j].ExpiresAt)
	})
	return result, nil
}

func (s *MemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}

func (s *MemoryStore) HealthCheck(context.Context) error { return nil }
