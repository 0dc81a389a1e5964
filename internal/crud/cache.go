package crud

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/medinor/dashboard/internal/observability"
	"github.com/medinor/dashboard/model"
)

// Options configures a Cache.
type Options struct {
	DefaultLimit int
	MaxLimit     int
	Validator    *Validator
	Logger       *zap.Logger
	Metrics      *observability.Metrics
}

// Cache is the state container for one entity list. Every state change is
// a function of the previous state applied under mu.
type Cache[T any] struct {
	entity    string
	svc       Service[T]
	validator *Validator
	maxLimit  int
	logger    *zap.Logger
	metrics   *observability.Metrics

	mu         sync.Mutex
	state      model.ListState[T]
	generation uint64
	cancel     context.CancelFunc
	afterFetch func(model.ListState[T]) model.ListState[T]
}

// NewCache creates a cache on page 1 with the default limit.
func NewCache[T any](entity string, svc Service[T], opts Options) *Cache[T] {
	if opts.DefaultLimit < 1 {
		opts.DefaultLimit = 25
	}
	if opts.MaxLimit < opts.DefaultLimit {
		opts.MaxLimit = opts.DefaultLimit
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Cache[T]{
		entity:    entity,
		svc:       svc,
		validator: opts.Validator,
		maxLimit:  opts.MaxLimit,
		logger:    opts.Logger.With(zap.String("entity", entity)),
		metrics:   opts.Metrics,
		state: model.ListState[T]{
			Items:      []T{},
			Pagination: model.Pagination{Page: 1, Limit: opts.DefaultLimit},
			Filters:    map[string]string{},
		},
	}
}

// Entity returns the entity name the cache was built for.
func (c *Cache[T]) Entity() string { return c.entity }

// State returns a copy of the current state.
func (c *Cache[T]) State() model.ListState[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyState(c.state)
}

func copyState[T any](s model.ListState[T]) model.ListState[T] {
	s.Items = slices.Clone(s.Items)
	s.Filters = maps.Clone(s.Filters)
	s.Modified = maps.Clone(s.Modified)
	if s.Selected != nil {
		sel := *s.Selected
		s.Selected = &sel
	}
	return s
}

// apply replaces the state with f(state). Callers hold mu.
func (c *Cache[T]) apply(f func(model.ListState[T]) model.ListState[T]) {
	c.state = f(c.state)
}

func (c *Cache[T]) queryLocked() model.Query {
	return model.Query{
		Page:    c.state.Pagination.Page,
		Limit:   c.state.Pagination.Limit,
		Filters: maps.Clone(c.state.Filters),
		Sort:    c.state.Sort,
		Search:  c.state.Search,
	}
}

// Query returns the query the next fetch would send.
func (c *Cache[T]) Query() model.Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queryLocked()
}

func (c *Cache[T]) recordError(err error) error {
	c.mu.Lock()
	c.apply(func(s model.ListState[T]) model.ListState[T] {
		s.Error = model.MessageOf(err)
		return s
	})
	c.mu.Unlock()
	return err
}

// FetchItems loads the page described by the current query. It does
// nothing while another fetch is in flight. A response that arrives after
// Cancel or a newer fetch is dropped.
func (c *Cache[T]) FetchItems(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Loading {
		c.mu.Unlock()
		return nil
	}
	if c.svc.GetItems == nil {
		c.mu.Unlock()
		return c.recordError(model.NewOperationMissingError(OpGetItems))
	}
	q := c.queryLocked()
	c.generation++
	gen := c.generation
	fetchCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.apply(func(s model.ListState[T]) model.ListState[T] {
		s.Loading = true
		s.Error = ""
		return s
	})
	c.mu.Unlock()

	page, err := c.svc.GetItems(fetchCtx, q)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		c.metrics.RecordListFetch(c.entity, "stale")
		c.logger.Debug("crud: discarded superseded page", zap.Uint64("generation", gen))
		return nil
	}
	c.cancel = nil
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		c.metrics.RecordListFetch(c.entity, "cancelled")
		c.logger.Debug("crud: fetch abandoned by caller")
		c.apply(func(s model.ListState[T]) model.ListState[T] {
			s.Loading = false
			return s
		})
		return ctx.Err()
	}
	if err != nil {
		c.metrics.RecordListFetch(c.entity, "error")
		c.logger.Warn("crud: fetch failed", zap.Error(err))
		c.apply(func(s model.ListState[T]) model.ListState[T] {
			s.Loading = false
			s.Error = model.MessageOf(err)
			return s
		})
		return err
	}

	c.metrics.RecordListFetch(c.entity, "ok")
	c.logger.Debug("crud: page loaded",
		zap.Int("page", q.Page),
		zap.Int("items", len(page.Items)),
		zap.Int("total_items", page.TotalItems),
	)
	c.apply(func(s model.ListState[T]) model.ListState[T] {
		s.Loading = false
		s.Items = page.Items
		if s.Items == nil {
			s.Items = []T{}
		}
		s.Pagination.Page = page.Page
		if page.Page < 1 {
			s.Pagination.Page = q.Page
		}
		s.Pagination.Total = page.TotalItems
		s.Pagination.TotalPages = page.TotalPages
		return s
	})
	if c.afterFetch != nil {
		c.apply(c.afterFetch)
	}
	return nil
}

// Cancel aborts an in-flight fetch. Its response, if any, is ignored.
func (c *Cache[T]) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.cancel = nil
	c.generation++
	c.apply(func(s model.ListState[T]) model.ListState[T] {
		s.Loading = false
		return s
	})
}

// FetchItemByID loads a single record into the Selected slot.
func (c *Cache[T]) FetchItemByID(ctx context.Context, id string) error {
	if c.svc.GetItemByID == nil {
		err := model.NewOperationMissingError(OpGetItemByID)
		c.mu.Lock()
		c.apply(func(s model.ListState[T]) model.ListState[T] {
			s.SelectedError = err.Message
			return s
		})
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.apply(func(s model.ListState[T]) model.ListState[T] {
		s.SelectedLoading = true
		s.SelectedError = ""
		return s
	})
	c.mu.Unlock()

	item, err := c.svc.GetItemByID(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	cancelled := err != nil && errors.Is(ctx.Err(), context.Canceled)
	c.apply(func(s model.ListState[T]) model.ListState[T] {
		s.SelectedLoading = false
		if cancelled {
			return s
		}
		if err != nil {
			s.SelectedError = model.MessageOf(err)
			return s
		}
		s.Selected = &item
		return s
	})
	return err
}

// AddItem creates a record and refreshes the list. Failures are recorded
// in the state and returned.
func (c *Cache[T]) AddItem(ctx context.Context, item T) error {
	if c.svc.CreateItem == nil {
		return c.recordError(model.NewOperationMissingError(OpCreateItem))
	}
	if err := c.validator.Check(item); err != nil {
		return c.recordError(err)
	}
	if err := c.svc.CreateItem(ctx, item); err != nil {
		c.logger.Warn("crud: create failed", zap.Error(err))
		return c.recordError(err)
	}
	return c.FetchItems(ctx)
}

// EditItem updates a record and refreshes the list. Failures are recorded
// in the state and returned.
func (c *Cache[T]) EditItem(ctx context.Context, id string, item T) error {
	if c.svc.UpdateItem == nil {
		return c.recordError(model.NewOperationMissingError(OpUpdateItem))
	}
	if err := c.validator.Check(item); err != nil {
		return c.recordError(err)
	}
	if err := c.svc.UpdateItem(ctx, id, item); err != nil {
		c.logger.Warn("crud: update failed", zap.String("id", id), zap.Error(err))
		return c.recordError(err)
	}
	return c.FetchItems(ctx)
}

// ClearError dismisses the list error without touching data.
func (c *Cache[T]) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apply(func(s model.ListState[T]) model.ListState[T] {
		s.Error = ""
		return s
	})
}

// setQuery applies f unless a fetch is in flight, then fetches once if the
// query actually changed.
func (c *Cache[T]) setQuery(ctx context.Context, f func(model.ListState[T]) model.ListState[T]) error {
	c.mu.Lock()
	if c.state.Loading {
		c.mu.Unlock()
		return nil
	}
	before := c.queryLocked()
	c.apply(f)
	changed := !before.Equal(c.queryLocked())
	c.mu.Unlock()

	if !changed {
		return nil
	}
	return c.FetchItems(ctx)
}

// SetPage moves to page p.
func (c *Cache[T]) SetPage(ctx context.Context, p int) error {
	if p < 1 {
		p = 1
	}
	return c.setQuery(ctx, func(s model.ListState[T]) model.ListState[T] {
		s.Pagination.Page = p
		return s
	})
}

// SetLimit changes the page size, clamped to the configured maximum.
func (c *Cache[T]) SetLimit(ctx context.Context, limit int) error {
	limit = max(1, min(limit, c.maxLimit))
	return c.setQuery(ctx, func(s model.ListState[T]) model.ListState[T] {
		s.Pagination.Limit = limit
		s.Pagination.Page = 1
		return s
	})
}

// SetSort changes the ordering.
func (c *Cache[T]) SetSort(ctx context.Context, sort model.Sort) error {
	return c.setQuery(ctx, func(s model.ListState[T]) model.ListState[T] {
		s.Sort = sort
		s.Pagination.Page = 1
		return s
	})
}

// SetFilters replaces the filter set. Empty values are dropped.
func (c *Cache[T]) SetFilters(ctx context.Context, filters map[string]string) error {
	clean := make(map[string]string, len(filters))
	for k, v := range filters {
		if v != "" {
			clean[k] = v
		}
	}
	return c.setQuery(ctx, func(s model.ListState[T]) model.ListState[T] {
		s.Filters = clean
		s.Pagination.Page = 1
		return s
	})
}

// SetSearch changes the free-text search.
func (c *Cache[T]) SetSearch(ctx context.Context, search string) error {
	return c.setQuery(ctx, func(s model.ListState[T]) model.ListState[T] {
		s.Search = search
		s.Pagination.Page = 1
		return s
	})
}

// ApplyPatch applies every non-nil field of p as one query change and
// fetches at most once. An explicit Page wins over the reset to page 1.
func (c *Cache[T]) ApplyPatch(ctx context.Context, p model.QueryPatch) error {
	return c.setQuery(ctx, func(s model.ListState[T]) model.ListState[T] {
		reset := false
		if p.Limit != nil {
			s.Pagination.Limit = max(1, min(*p.Limit, c.maxLimit))
			reset = true
		}
		if p.Sort != nil {
			s.Sort = *p.Sort
			reset = true
		}
		if p.Filters != nil {
			s.Filters = make(map[string]string, len(p.Filters))
			for k, v := range p.Filters {
				if v != "" {
					s.Filters[k] = v
				}
			}
			reset = true
		}
		if p.Search != nil {
			s.Search = *p.Search
			reset = true
		}
		if reset {
			s.Pagination.Page = 1
		}
		if p.Page != nil {
			s.Pagination.Page = max(1, *p.Page)
		}
		return s
	})
}
