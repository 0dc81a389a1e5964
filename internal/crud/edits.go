package crud

import (
	"context"
	"maps"
	"slices"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/medinor/dashboard/model"
)

// EditTracker keeps inline row edits on top of a Cache. A row is pending
// only while it differs from the last value the server returned for it.
type EditTracker[T model.Identifiable] struct {
	cache *Cache[T]
}

// NewEditTracker attaches a tracker to c. Pending edits that match a
// freshly fetched row are dropped after every successful fetch.
func NewEditTracker[T model.Identifiable](c *Cache[T]) *EditTracker[T] {
	t := &EditTracker[T]{cache: c}
	c.mu.Lock()
	c.afterFetch = reconcile[T]
	c.mu.Unlock()
	return t
}

func serverValue[T model.Identifiable](items []T, id string) (T, bool) {
	for _, it := range items {
		if it.Identity() == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}

func reconcile[T model.Identifiable](s model.ListState[T]) model.ListState[T] {
	if len(s.Modified) == 0 {
		return s
	}
	modified := maps.Clone(s.Modified)
	for id, edited := range modified {
		if current, ok := serverValue(s.Items, id); ok && cmp.Equal(current, edited) {
			delete(modified, id)
		}
	}
	s.Modified = modified
	return s
}

// Track records an edited row, or forgets it if it equals the server copy.
func (t *EditTracker[T]) Track(item T) {
	c := t.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apply(func(s model.ListState[T]) model.ListState[T] {
		id := item.Identity()
		modified := maps.Clone(s.Modified)
		if modified == nil {
			modified = map[string]T{}
		}
		if current, ok := serverValue(s.Items, id); ok && cmp.Equal(current, item) {
			delete(modified, id)
		} else {
			modified[id] = item
		}
		s.Modified = modified
		return s
	})
}

// Reconcile drops pending edits that match items.
func (t *EditTracker[T]) Reconcile(items []T) {
	c := t.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apply(func(s model.ListState[T]) model.ListState[T] {
		view := s
		view.Items = items
		s.Modified = reconcile(view).Modified
		return s
	})
}

// Merge overlays pending edits on items by id.
func (t *EditTracker[T]) Merge(items []T) []T {
	pending := t.Pending()
	out := slices.Clone(items)
	for i, it := range out {
		if edited, ok := pending[it.Identity()]; ok {
			out[i] = edited
		}
	}
	return out
}

// Pending returns a copy of the pending edits.
func (t *EditTracker[T]) Pending() map[string]T {
	c := t.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.state.Modified)
}

// HasUnsavedChanges reports whether any edit is pending.
func (t *EditTracker[T]) HasUnsavedChanges() bool {
	return len(t.Pending()) > 0
}

// Cancel discards pending edits and reloads the list.
func (t *EditTracker[T]) Cancel(ctx context.Context) error {
	t.clear()
	return t.cache.FetchItems(ctx)
}

func (t *EditTracker[T]) clear() {
	c := t.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apply(func(s model.ListState[T]) model.ListState[T] {
		s.Modified = nil
		return s
	})
}

// Save sends every pending edit, in id order, through UpdateBatch when the
// service has it and UpdateItem otherwise. Edits are cleared only when all
// of them were accepted.
func (t *EditTracker[T]) Save(ctx context.Context) error {
	c := t.cache
	pending := t.Pending()
	if len(pending) == 0 {
		return nil
	}
	ids := slices.Sorted(maps.Keys(pending))
	items := make([]T, 0, len(ids))
	for _, id := range ids {
		if err := c.validator.Check(pending[id]); err != nil {
			return c.recordError(err)
		}
		items = append(items, pending[id])
	}

	switch {
	case c.svc.UpdateBatch != nil:
		if err := c.svc.UpdateBatch(ctx, items); err != nil {
			c.logger.Warn("crud: batch save failed", zap.Int("rows", len(items)), zap.Error(err))
			return c.recordError(err)
		}
	case c.svc.UpdateItem != nil:
		for _, it := range items {
			if err := c.svc.UpdateItem(ctx, it.Identity(), it); err != nil {
				c.logger.Warn("crud: row save failed", zap.String("id", it.Identity()), zap.Error(err))
				return c.recordError(err)
			}
		}
	default:
		return c.recordError(model.NewOperationMissingError(OpUpdateItem))
	}

	c.logger.Info("crud: edits saved", zap.Int("rows", len(items)))
	t.clear()
	return c.FetchItems(ctx)
}
