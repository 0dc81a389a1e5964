// Package migration drives the two-phase bulk import of clients and
// products: a spreadsheet is ingested locally, analyzed by the backend,
// and committed once the user confirms the classification.
package migration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/medinor/dashboard/internal/ingest"
	"github.com/medinor/dashboard/internal/observability"
	"github.com/medinor/dashboard/model"
)

// Transition names used in logs and metrics.
const (
	TransitionFileAccepted = "file_accepted"
	TransitionProcess      = "process"
	TransitionExecute      = "execute"
	TransitionClear        = "clear"
)

// Failure is a transition error the session recorded as its banner
// message. The session keeps its previous state and data.
type Failure struct {
	Transition string
	Message    string
	Err        error
}

func (f *Failure) Error() string { return f.Message }

func (f *Failure) Unwrap() error { return f.Err }

// Deps are the collaborators of a session.
type Deps struct {
	Ingester *ingest.Ingester
	Backend  Backend
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Now      func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Ingester == nil {
		d.Ingester = ingest.New(d.Logger, d.Metrics)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// busyFlag selects one of the snapshot's busy flags.
type busyFlag func(*model.MigrationSnapshot) *bool

var (
	parsingFlag    busyFlag = func(s *model.MigrationSnapshot) *bool { return &s.Parsing }
	processingFlag busyFlag = func(s *model.MigrationSnapshot) *bool { return &s.Processing }
	migratingFlag  busyFlag = func(s *model.MigrationSnapshot) *bool { return &s.Migrating }
)

// Session is one migration screen. Transitions are safe to call
// concurrently: a transition whose busy flag is already raised returns a
// BUSY error and changes nothing, and a result arriving after HandleClear
// is discarded.
type Session struct {
	id      string
	entity  string
	variant variant
	deps    Deps
	logger  *zap.Logger

	// checkpoint persists the snapshot right after a busy flag is raised.
	// A CONFLICT means another request holds the session.
	checkpoint func(context.Context, model.MigrationSnapshot) error

	mu   sync.Mutex
	snap model.MigrationSnapshot
	gen  uint64
	run  string
}

// NewSession starts an idle session for entity.
func NewSession(id, subjectID, entity string, deps Deps) (*Session, error) {
	deps = deps.withDefaults()
	now := deps.Now().UTC()
	return restore(model.MigrationSnapshot{
		ID:        id,
		Entity:    entity,
		SubjectID: subjectID,
		State:     model.MigrationIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}, deps)
}

func restore(snap model.MigrationSnapshot, deps Deps) (*Session, error) {
	v, err := variantFor(snap.Entity)
	if err != nil {
		return nil, err
	}
	deps = deps.withDefaults()
	return &Session{
		id:      snap.ID,
		entity:  snap.Entity,
		variant: v,
		deps:    deps,
		logger: deps.Logger.With(
			zap.String("session_id", snap.ID),
			zap.String("entity", snap.Entity),
		),
		snap: snap,
	}, nil
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() model.MigrationSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySnapshot(s.snap)
}

func copySnapshot(snap model.MigrationSnapshot) model.MigrationSnapshot {
	snap.ParsedData = bytes.Clone(snap.ParsedData)
	snap.ProcessedData = bytes.Clone(snap.ProcessedData)
	if snap.ExpiresAt != nil {
		t := *snap.ExpiresAt
		snap.ExpiresAt = &t
	}
	return snap
}

// HandleFileAccepted ingests f. On success the session holds the parsed
// records; on failure it stays idle with the ingestion message as error.
func (s *Session) HandleFileAccepted(ctx context.Context, f ingest.File) (err error) {
	ctx, span := s.startSpan(ctx, TransitionFileAccepted, observability.AttrFileName.String(f.Name))
	defer func() { observability.EndSpanWithError(span, err) }()

	gen, err := s.begin(ctx, TransitionFileAccepted, parsingFlag, func(snap *model.MigrationSnapshot) string {
		if snap.State != model.MigrationIdle {
			return "Clear the current file before uploading another"
		}
		return ""
	})
	if err != nil {
		return err
	}

	records, count, err := s.variant.ingest(ctx, s.deps.Ingester, f)
	if err != nil {
		return s.fail(ctx, gen, TransitionFileAccepted, parsingFlag, err, "The file could not be read")
	}

	s.complete(gen, TransitionFileAccepted, func(snap *model.MigrationSnapshot) {
		snap.Parsing = false
		snap.State = model.MigrationParsed
		snap.FileName = f.Name
		snap.ParsedData = records
		snap.ParsedCount = count
	}, zap.String("file", f.Name), zap.Int("records", count))
	return nil
}

// HandleProcess sends the parsed records for analysis and stores the
// response verbatim.
func (s *Session) HandleProcess(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, TransitionProcess)
	defer func() { observability.EndSpanWithError(span, err) }()

	gen, err := s.begin(ctx, TransitionProcess, processingFlag, func(snap *model.MigrationSnapshot) string {
		switch snap.State {
		case model.MigrationIdle:
			return "Upload a file before processing it"
		case model.MigrationParsed:
			return ""
		}
		return "The file has already been analyzed"
	})
	if err != nil {
		return err
	}

	parsed := s.Snapshot().ParsedData
	processed, err := s.variant.analyze(ctx, s.deps.Backend, parsed)
	if err != nil {
		return s.fail(ctx, gen, TransitionProcess, processingFlag, err, "The file could not be analyzed. Try again.")
	}

	s.complete(gen, TransitionProcess, func(snap *model.MigrationSnapshot) {
		snap.Processing = false
		snap.State = model.MigrationAnalyzed
		snap.ProcessedData = processed
	})
	return nil
}

// ExecuteMigration commits the analyzed batch. Without analyzed data or
// eligible records it records an error and makes no backend call.
func (s *Session) ExecuteMigration(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, TransitionExecute)
	defer func() { observability.EndSpanWithError(span, err) }()

	var classification model.Classification
	gen, err := s.begin(ctx, TransitionExecute, migratingFlag, func(snap *model.MigrationSnapshot) string {
		if snap.MigrationComplete {
			return "The migration has already been completed"
		}
		if len(snap.ProcessedData) == 0 {
			return "There is no analyzed data to migrate"
		}
		if json.Unmarshal(snap.ProcessedData, &classification) != nil {
			return "The analysis result could not be read"
		}
		if s.variant.eligible(classification) == 0 {
			return "There are no new records to migrate"
		}
		return ""
	})
	if err != nil {
		return err
	}

	processed := s.Snapshot().ProcessedData
	resp, err := s.variant.commit(ctx, s.deps.Backend, processed, classification)
	if err != nil {
		return s.fail(ctx, gen, TransitionExecute, migratingFlag, err, "The migration could not be completed. Try again.")
	}

	created := s.variant.eligible(classification)
	if resp.Data.CreatedCount != nil {
		created = *resp.Data.CreatedCount
	}
	if s.complete(gen, TransitionExecute, func(snap *model.MigrationSnapshot) {
		snap.Migrating = false
		snap.State = model.MigrationCommitted
		snap.MigrationComplete = true
		snap.CreatedCount = created
	}, zap.Int("created", created)) {
		s.deps.Metrics.RecordMigrationCreated(s.entity, created)
	}
	return nil
}

// HandleClear resets the session to idle from any state. Results of
// transitions still in flight are discarded.
func (s *Session) HandleClear() {
	s.mu.Lock()
	s.gen++
	s.snap = model.MigrationSnapshot{
		ID:        s.snap.ID,
		Entity:    s.snap.Entity,
		SubjectID: s.snap.SubjectID,
		State:     model.MigrationIdle,
		Version:   s.snap.Version,
		CreatedAt: s.snap.CreatedAt,
		UpdatedAt: s.snap.UpdatedAt,
		ExpiresAt: s.snap.ExpiresAt,
	}
	s.mu.Unlock()

	s.logger.Info("migration: cleared")
	s.deps.Metrics.RecordMigrationTransition(s.entity, TransitionClear, "ok")
}

// ClearError dismisses the error message.
func (s *Session) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Error = ""
}

func (s *Session) startSpan(ctx context.Context, transition string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		observability.AttrSessionID.String(s.id),
		observability.AttrEntity.String(s.entity),
		observability.AttrTransition.String(transition),
	)
	return observability.StartSpan(ctx, "migration."+transition, attrs...)
}

// begin raises flag after checking it is not already raised and that the
// precondition holds. A failed precondition is recorded as the session
// error. The returned generation identifies this attempt.
func (s *Session) begin(ctx context.Context, transition string, flag busyFlag, precondition func(*model.MigrationSnapshot) string) (uint64, error) {
	s.mu.Lock()
	if *flag(&s.snap) {
		s.mu.Unlock()
		s.logger.Debug("migration: transition refused while busy", zap.String("transition", transition))
		s.deps.Metrics.RecordMigrationTransition(s.entity, transition, "busy")
		return 0, model.NewBusyError(transition)
	}
	if msg := precondition(&s.snap); msg != "" {
		s.snap.Error = msg
		s.mu.Unlock()
		s.logger.Info("migration: transition not possible", zap.String("transition", transition), zap.String("reason", msg))
		s.deps.Metrics.RecordMigrationTransition(s.entity, transition, "error")
		return 0, &Failure{Transition: transition, Message: msg, Err: model.NewInvalidTransitionError(msg)}
	}
	*flag(&s.snap) = true
	s.snap.Error = ""
	s.run = uuid.NewString()
	s.snap.RunID = s.run
	gen := s.gen
	pending := copySnapshot(s.snap)
	s.mu.Unlock()

	if s.checkpoint == nil {
		return gen, nil
	}
	if err := s.checkpoint(ctx, pending); err != nil {
		s.mu.Lock()
		*flag(&s.snap) = false
		s.snap.RunID = ""
		s.mu.Unlock()
		if model.CodeOf(err) == model.ErrConflict {
			s.deps.Metrics.RecordMigrationTransition(s.entity, transition, "busy")
			return 0, model.NewBusyError(transition)
		}
		return 0, err
	}
	s.mu.Lock()
	s.snap.Version++
	s.mu.Unlock()
	return gen, nil
}

// complete applies a successful result unless the session was cleared
// meanwhile. It reports whether the result was applied.
func (s *Session) complete(gen uint64, transition string, apply func(*model.MigrationSnapshot), fields ...zap.Field) bool {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.logger.Debug("migration: discarded result after clear", zap.String("transition", transition))
		return false
	}
	apply(&s.snap)
	s.snap.RunID = ""
	s.mu.Unlock()

	s.logger.Info("migration: "+transition, fields...)
	s.deps.Metrics.RecordMigrationTransition(s.entity, transition, "ok")
	return true
}

// fail lowers flag and records a user-facing message. Caller cancellation
// only lowers the flag.
func (s *Session) fail(ctx context.Context, gen uint64, transition string, flag busyFlag, err error, fallback string) error {
	cancelled := errors.Is(ctx.Err(), context.Canceled)
	msg := failureMessage(err, fallback)

	s.mu.Lock()
	if s.gen == gen {
		*flag(&s.snap) = false
		s.snap.RunID = ""
		if !cancelled {
			s.snap.Error = msg
		}
	}
	s.mu.Unlock()

	s.deps.Metrics.RecordMigrationTransition(s.entity, transition, "error")
	if cancelled {
		s.logger.Info("migration: cancelled", zap.String("transition", transition))
		return ctx.Err()
	}
	s.logger.Warn("migration: "+transition+" failed", zap.String("message", msg), zap.Error(err))
	return &Failure{Transition: transition, Message: msg, Err: err}
}

// failureMessage prefers the ingestion or server message over fallback.
func failureMessage(err error, fallback string) string {
	var ie *ingest.Error
	if errors.As(err, &ie) {
		return ie.Error()
	}
	var env *model.ErrorEnvelope
	if errors.As(err, &env) && env.Message != "" {
		return env.Message
	}
	return fallback
}
