package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medinor/dashboard/internal/ingest"
	"github.com/medinor/dashboard/model"
)

// Manager keeps migration sessions in a Store so a session can span
// several BFF requests and replicas. Every transition loads the session,
// persists the raised busy flag, runs, and saves the result.
type Manager struct {
	store Store
	ttl   time.Duration
	deps  Deps
}

// NewManager creates a manager. Sessions expire ttl after their last change.
func NewManager(store Store, ttl time.Duration, deps Deps) *Manager {
	return &Manager{store: store, ttl: ttl, deps: deps.withDefaults()}
}

// Store returns the underlying session store.
func (m *Manager) Store() Store { return m.store }

func (m *Manager) touch(snap model.MigrationSnapshot) model.MigrationSnapshot {
	now := m.deps.Now().UTC()
	snap.UpdatedAt = now
	if m.ttl > 0 {
		exp := now.Add(m.ttl)
		snap.ExpiresAt = &exp
	}
	return snap
}

// Create starts an idle session for entity owned by subjectID.
func (m *Manager) Create(ctx context.Context, subjectID, entity string) (model.MigrationSnapshot, error) {
	sess, err := NewSession(uuid.NewString(), subjectID, entity, m.deps)
	if err != nil {
		return model.MigrationSnapshot{}, err
	}
	snap := m.touch(sess.Snapshot())
	if err := m.store.Create(ctx, snap); err != nil {
		return model.MigrationSnapshot{}, err
	}
	m.deps.Logger.Info("migration: session created",
		zap.String("session_id", snap.ID),
		zap.String("entity", entity),
		zap.String("subject_id", subjectID),
	)
	m.refreshGauge(ctx)
	return snap, nil
}

// Get returns the session snapshot.
func (m *Manager) Get(ctx context.Context, subjectID, id string) (model.MigrationSnapshot, error) {
	return m.store.Get(ctx, subjectID, id)
}

// Accept ingests f into the session.
func (m *Manager) Accept(ctx context.Context, subjectID, id string, f ingest.File) (model.MigrationSnapshot, error) {
	return m.transition(ctx, subjectID, id, TransitionFileAccepted, func(ctx context.Context, s *Session) error {
		return s.HandleFileAccepted(ctx, f)
	})
}

// Process runs the analysis.
func (m *Manager) Process(ctx context.Context, subjectID, id string) (model.MigrationSnapshot, error) {
	return m.transition(ctx, subjectID, id, TransitionProcess, func(ctx context.Context, s *Session) error {
		return s.HandleProcess(ctx)
	})
}

// Execute commits the analyzed batch.
func (m *Manager) Execute(ctx context.Context, subjectID, id string) (model.MigrationSnapshot, error) {
	return m.transition(ctx, subjectID, id, TransitionExecute, func(ctx context.Context, s *Session) error {
		return s.ExecuteMigration(ctx)
	})
}

// Clear resets the session to idle. It is the only operation allowed
// while a transition is in flight; that transition's result is discarded.
func (m *Manager) Clear(ctx context.Context, subjectID, id string) (model.MigrationSnapshot, error) {
	return m.edit(ctx, subjectID, id, func(s *Session) bool {
		s.HandleClear()
		return true
	})
}

// ClearError dismisses the session error. While a transition is in flight
// there is no error to dismiss and the session is left untouched.
func (m *Manager) ClearError(ctx context.Context, subjectID, id string) (model.MigrationSnapshot, error) {
	return m.edit(ctx, subjectID, id, func(s *Session) bool {
		if busy(s.Snapshot()) {
			return false
		}
		s.ClearError()
		return true
	})
}

// Delete removes the session.
func (m *Manager) Delete(ctx context.Context, subjectID, id string) error {
	if err := m.store.Delete(ctx, subjectID, id); err != nil {
		return err
	}
	m.refreshGauge(ctx)
	return nil
}

func busy(snap model.MigrationSnapshot) bool {
	return snap.Parsing || snap.Processing || snap.Migrating
}

func (m *Manager) load(ctx context.Context, subjectID, id string) (model.MigrationSnapshot, *Session, error) {
	snap, err := m.store.Get(ctx, subjectID, id)
	if err != nil {
		return model.MigrationSnapshot{}, nil, err
	}
	sess, err := restore(snap, m.deps)
	if err != nil {
		return model.MigrationSnapshot{}, nil, err
	}
	return snap, sess, nil
}

// edit applies a synchronous change and saves it, reloading and retrying
// when another request moved the version first. fn reports whether it
// changed anything.
func (m *Manager) edit(ctx context.Context, subjectID, id string, fn func(*Session) bool) (model.MigrationSnapshot, error) {
	var err error
	for range maxSaveAttempts {
		var snap model.MigrationSnapshot
		var sess *Session
		snap, sess, err = m.load(ctx, subjectID, id)
		if err != nil {
			return model.MigrationSnapshot{}, err
		}
		if !fn(sess) {
			return snap, nil
		}
		final := m.touch(sess.Snapshot())
		if err = m.store.Update(ctx, final); err == nil {
			final.Version++
			return final, nil
		}
		if model.CodeOf(err) != model.ErrConflict {
			break
		}
	}
	m.deps.Logger.Warn("migration: save session", zap.String("session_id", id), zap.Error(err))
	return model.MigrationSnapshot{}, err
}

const maxSaveAttempts = 3

// transition runs fn on the restored session and saves the outcome. While
// any busy flag is raised in the stored session it is refused with BUSY
// and nothing is written. A *Failure is returned together with the saved
// snapshot that records it. The final save ignores caller cancellation so
// a raised busy flag is always lowered in the store.
func (m *Manager) transition(ctx context.Context, subjectID, id, name string, fn func(context.Context, *Session) error) (model.MigrationSnapshot, error) {
	snap, sess, err := m.load(ctx, subjectID, id)
	if err != nil {
		return model.MigrationSnapshot{}, err
	}
	if busy(snap) {
		m.deps.Metrics.RecordMigrationTransition(snap.Entity, name, "busy")
		return snap, model.NewBusyError(name)
	}
	sess.checkpoint = func(ctx context.Context, pending model.MigrationSnapshot) error {
		return m.store.Update(ctx, m.touch(pending))
	}

	opErr := fn(ctx, sess)
	if model.CodeOf(opErr) == model.ErrBusy {
		return snap, opErr
	}

	final, err := m.save(context.WithoutCancel(ctx), subjectID, sess)
	if err != nil {
		m.deps.Logger.Warn("migration: save session",
			zap.String("session_id", id),
			zap.String("transition", name),
			zap.Error(err),
		)
		return final, err
	}
	return final, opErr
}

// save writes the session's final snapshot. On a version conflict the
// stored session is reloaded: if this transition still holds its busy
// flag the result is written over the newer version, otherwise the session
// was cleared meanwhile and the result is discarded with CONFLICT.
func (m *Manager) save(ctx context.Context, subjectID string, sess *Session) (model.MigrationSnapshot, error) {
	final := m.touch(sess.Snapshot())
	for attempt := 1; ; attempt++ {
		err := m.store.Update(ctx, final)
		if err == nil {
			final.Version++
			return final, nil
		}
		if model.CodeOf(err) != model.ErrConflict || attempt == maxSaveAttempts {
			return model.MigrationSnapshot{}, err
		}
		stored, gerr := m.store.Get(ctx, subjectID, final.ID)
		if gerr != nil {
			return model.MigrationSnapshot{}, gerr
		}
		if sess.run == "" || stored.RunID != sess.run {
			return stored, model.NewConflictError(fmt.Sprintf("migration session %q was cleared while the operation was running", final.ID))
		}
		final.Version = stored.Version
	}
}

// Sweep deletes expired sessions and returns how many were removed.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	expired, err := m.store.FindExpired(ctx, m.deps.Now())
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, snap := range expired {
		err := m.store.Delete(ctx, snap.SubjectID, snap.ID)
		if err != nil && model.CodeOf(err) != model.ErrNotFound {
			return removed, err
		}
		if err == nil {
			removed++
		}
	}
	if removed > 0 {
		m.deps.Logger.Info("migration: expired sessions removed", zap.Int("count", removed))
	}
	m.refreshGauge(ctx)
	return removed, nil
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.deps.Logger.Warn("migration: sweep failed", zap.Error(err))
			}
		}
	}
}

func (m *Manager) refreshGauge(ctx context.Context) {
	if m.deps.Metrics == nil {
		return
	}
	n, err := m.store.Count(ctx)
	if err != nil {
		m.deps.Logger.Debug("migration: count sessions", zap.Error(err))
		return
	}
	m.deps.Metrics.SetMigrationActiveSessions(n)
}
