package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/medinor/dashboard/internal/crud"
	"github.com/medinor/dashboard/model"
)

// listValues encodes a query the way the backend's qs parser expects:
// filters[lab]=X&sort[key]=price&sort[direction]=desc.
func listValues(q model.Query) url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("limit", strconv.Itoa(q.Limit))
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if !q.Sort.IsZero() {
		v.Set("sort[key]", q.Sort.Key)
		dir := q.Sort.Direction
		if dir == "" {
			dir = model.SortAsc
		}
		v.Set("sort[direction]", dir)
	}
	for k, val := range q.Filters {
		v.Set("filters["+k+"]", val)
	}
	return v
}

func listItems[T any](c *Client, entity string) func(context.Context, model.Query) (model.Page[T], error) {
	return func(ctx context.Context, q model.Query) (model.Page[T], error) {
		var page model.Page[T]
		err := c.do(ctx, call{
			op:     entity + ".list",
			method: http.MethodGet,
			path:   escapePath(entity),
			query:  listValues(q),
		}, &page)
		return page, err
	}
}

func getItem[T any](c *Client, entity string) func(context.Context, string) (T, error) {
	return func(ctx context.Context, id string) (T, error) {
		var item T
		err := c.do(ctx, call{
			op:     entity + ".get",
			method: http.MethodGet,
			path:   escapePath(entity, id),
		}, &item)
		return item, err
	}
}

func createItem[T any](c *Client, entity string) func(context.Context, T) error {
	return func(ctx context.Context, item T) error {
		return c.do(ctx, call{
			op:     entity + ".create",
			method: http.MethodPost,
			path:   escapePath(entity),
			body:   item,
		}, nil)
	}
}

func updateItem[T any](c *Client, entity string) func(context.Context, string, T) error {
	return func(ctx context.Context, id string, item T) error {
		return c.do(ctx, call{
			op:     entity + ".update",
			method: http.MethodPut,
			path:   escapePath(entity, id),
			body:   item,
		}, nil)
	}
}

// Clients is the list service for the clients screen.
func (c *Client) Clients() crud.Service[model.Client] {
	return crud.Service[model.Client]{
		GetItems:    listItems[model.Client](c, model.EntityClients),
		GetItemByID: getItem[model.Client](c, model.EntityClients),
		CreateItem:  createItem[model.Client](c, model.EntityClients),
		UpdateItem:  updateItem[model.Client](c, model.EntityClients),
	}
}

// Products is the list service for the product grid, which saves inline
// price edits in one batch.
func (c *Client) Products() crud.Service[model.Product] {
	return crud.Service[model.Product]{
		GetItems:    listItems[model.Product](c, model.EntityProducts),
		GetItemByID: getItem[model.Product](c, model.EntityProducts),
		CreateItem:  createItem[model.Product](c, model.EntityProducts),
		UpdateItem:  updateItem[model.Product](c, model.EntityProducts),
		UpdateBatch: func(ctx context.Context, items []model.Product) error {
			return c.do(ctx, call{
				op:     "products.update_batch",
				method: http.MethodPut,
				path:   "/products/batch",
				body:   map[string]any{"products": items},
			}, nil)
		},
	}
}

// Orders is read-mostly: orders are placed by sellers elsewhere and only
// their status is edited here.
func (c *Client) Orders() crud.Service[model.Order] {
	return crud.Service[model.Order]{
		GetItems:    listItems[model.Order](c, model.EntityOrders),
		GetItemByID: getItem[model.Order](c, model.EntityOrders),
		UpdateItem:  updateItem[model.Order](c, model.EntityOrders),
	}
}

// Admins manages operator accounts.
func (c *Client) Admins() crud.Service[model.Admin] {
	return crud.Service[model.Admin]{
		GetItems:   listItems[model.Admin](c, model.EntityAdmins),
		CreateItem: createItem[model.Admin](c, model.EntityAdmins),
		UpdateItem: updateItem[model.Admin](c, model.EntityAdmins),
	}
}

// Screen builds the list screen for entity.
func (c *Client) Screen(entity string, opts crud.Options) (crud.Handle, error) {
	switch entity {
	case model.EntityClients:
		return crud.NewScreen(entity, c.Clients(), opts), nil
	case model.EntityProducts:
		return crud.NewScreen(entity, c.Products(), opts), nil
	case model.EntityOrders:
		return crud.NewScreen(entity, c.Orders(), opts), nil
	case model.EntityAdmins:
		return crud.NewScreen(entity, c.Admins(), opts), nil
	default:
		return nil, model.NewNotFoundError("unknown list " + entity)
	}
}

// RegisterLists installs a screen factory for every entity list.
func (c *Client) RegisterLists(reg *crud.Registry, opts crud.Options) {
	for _, entity := range []string{model.EntityClients, model.EntityProducts, model.EntityOrders, model.EntityAdmins} {
		reg.Register(entity, func(*model.RequestContext) crud.Handle {
			h, _ := c.Screen(entity, opts)
			return h
		})
	}
}
