package crud

import (
	"context"
	"encoding/json"

	"github.com/medinor/dashboard/model"
)

// Handle is the type-erased view of a Screen used by the HTTP layer, which
// only deals in JSON.
type Handle interface {
	Entity() string
	View() any
	Fetch(ctx context.Context) error
	FetchOne(ctx context.Context, id string) error
	ApplyPatch(ctx context.Context, p model.QueryPatch) error
	Add(ctx context.Context, raw json.RawMessage) error
	Edit(ctx context.Context, id string, raw json.RawMessage) error
	TrackEdit(raw json.RawMessage) error
	SaveEdits(ctx context.Context) error
	CancelEdits(ctx context.Context) error
	ClearError()
	Cancel()
}

// Screen pairs a list cache with its edit tracker.
type Screen[T model.Identifiable] struct {
	*Cache[T]
	Edits *EditTracker[T]
}

// NewScreen builds a cache and tracker for one entity.
func NewScreen[T model.Identifiable](entity string, svc Service[T], opts Options) *Screen[T] {
	c := NewCache(entity, svc, opts)
	return &Screen[T]{Cache: c, Edits: NewEditTracker(c)}
}

// ScreenView is the list state with pending edits merged into the items.
type ScreenView[T any] struct {
	model.ListState[T]
	HasUnsavedChanges bool `json:"hasUnsavedChanges"`
}

// View returns the merged state.
func (s *Screen[T]) View() any {
	state := s.State()
	state.Items = s.Edits.Merge(state.Items)
	return ScreenView[T]{ListState: state, HasUnsavedChanges: len(state.Modified) > 0}
}

func (s *Screen[T]) Fetch(ctx context.Context) error { return s.FetchItems(ctx) }

func (s *Screen[T]) FetchOne(ctx context.Context, id string) error {
	return s.FetchItemByID(ctx, id)
}

func decodeItem[T any](raw json.RawMessage) (T, error) {
	var item T
	if err := json.Unmarshal(raw, &item); err != nil {
		return item, model.NewBadRequestError("invalid record: " + err.Error())
	}
	return item, nil
}

func (s *Screen[T]) Add(ctx context.Context, raw json.RawMessage) error {
	item, err := decodeItem[T](raw)
	if err != nil {
		return err
	}
	return s.AddItem(ctx, item)
}

func (s *Screen[T]) Edit(ctx context.Context, id string, raw json.RawMessage) error {
	item, err := decodeItem[T](raw)
	if err != nil {
		return err
	}
	return s.EditItem(ctx, id, item)
}

// TrackEdit records an inline edit. The record must carry its id.
func (s *Screen[T]) TrackEdit(raw json.RawMessage) error {
	item, err := decodeItem[T](raw)
	if err != nil {
		return err
	}
	if item.Identity() == "" {
		return model.NewBadRequestError("edited record has no id")
	}
	s.Edits.Track(item)
	return nil
}

func (s *Screen[T]) SaveEdits(ctx context.Context) error { return s.Edits.Save(ctx) }

func (s *Screen[T]) CancelEdits(ctx context.Context) error { return s.Edits.Cancel(ctx) }
