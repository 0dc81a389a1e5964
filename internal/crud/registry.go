package crud

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/medinor/dashboard/internal/observability"
	"github.com/medinor/dashboard/model"
)

// Factory builds the screen for an entity on behalf of a subject.
type Factory func(rctx *model.RequestContext) Handle

type registryKey struct {
	subject string
	entity  string
}

type registryEntry struct {
	handle   Handle
	lastUsed time.Time
}

// Registry owns one Handle per (subject, entity). Nothing is shared
// between subjects or between screens.
type Registry struct {
	factories map[string]Factory
	idleTTL   time.Duration
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time

	mu      sync.Mutex
	entries map[registryKey]*registryEntry
}

// NewRegistry creates a registry. An idleTTL of zero disables expiry.
func NewRegistry(idleTTL time.Duration, logger *zap.Logger, metrics *observability.Metrics) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		factories: make(map[string]Factory),
		idleTTL:   idleTTL,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
		entries:   make(map[registryKey]*registryEntry),
	}
}

// Register installs the factory for an entity.
func (r *Registry) Register(entity string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[entity] = f
}

// Has reports whether entity has a registered factory.
func (r *Registry) Has(entity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.factories[entity]
	return ok
}

// Get returns the subject's handle for entity, creating it on first use.
func (r *Registry) Get(rctx *model.RequestContext, entity string) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.factories[entity]
	if !ok {
		return nil, model.NewNotFoundError("unknown list " + entity)
	}
	key := registryKey{subject: rctx.SubjectID, entity: entity}
	e, ok := r.entries[key]
	if !ok {
		e = &registryEntry{handle: f(rctx)}
		r.entries[key] = e
		r.metrics.SetListCachesActive(len(r.entries))
		r.logger.Debug("crud: list cache created",
			zap.String("subject_id", rctx.SubjectID),
			zap.String("entity", entity),
		)
	}
	e.lastUsed = r.now()
	return e.handle, nil
}

// Drop removes every handle owned by subject, cancelling in-flight fetches.
func (r *Registry) Drop(subject string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, e := range r.entries {
		if k.subject == subject {
			e.handle.Cancel()
			delete(r.entries, k)
		}
	}
	r.metrics.SetListCachesActive(len(r.entries))
}

// Sweep removes handles idle for longer than the TTL and returns how many
// were removed.
func (r *Registry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-r.idleTTL)
	removed := 0
	for k, e := range r.entries {
		if e.lastUsed.Before(cutoff) {
			e.handle.Cancel()
			delete(r.entries, k)
			removed++
		}
	}
	if removed > 0 {
		r.metrics.SetListCachesActive(len(r.entries))
		r.logger.Debug("crud: idle list caches expired", zap.Int("count", removed))
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 || r.idleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
