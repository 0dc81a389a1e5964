// Package crud holds the list cache behind every paginated entity screen:
// single-flight fetches, query setters with auto-refetch, row-edit tracking
// and per-subject cache instances.
package crud

import (
	"context"

	"github.com/medinor/dashboard/model"
)

// Operation names reported when a Service lacks a function.
const (
	OpGetItems    = "getItems"
	OpGetItemByID = "getItemById"
	OpCreateItem  = "createItem"
	OpUpdateItem  = "updateItem"
)

// Service describes what an entity backend can do. Any function may be nil;
// the cache reports OPERATION_NOT_PROVIDED instead of calling it.
type Service[T any] struct {
	GetItems    func(ctx context.Context, q model.Query) (model.Page[T], error)
	GetItemByID func(ctx context.Context, id string) (T, error)
	CreateItem  func(ctx context.Context, item T) error
	UpdateItem  func(ctx context.Context, id string, item T) error
	// UpdateBatch saves several edited rows in one call. When nil, pending
	// edits are saved one by one through UpdateItem.
	UpdateBatch func(ctx context.Context, items []T) error
}
