package model

import "maps"

// Sort directions.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Sort is the list ordering. The zero value means "no sort" and is
// serialized as an empty object.
type Sort struct {
	Key       string `json:"key,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// IsZero reports whether no sort is applied.
func (s Sort) IsZero() bool { return s.Key == "" }

// Pagination describes the page currently held by a list cache.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Query is the request body accepted by the backend list endpoints.
type Query struct {
	Page    int               `json:"page"`
	Limit   int               `json:"limit"`
	Filters map[string]string `json:"filters,omitempty"`
	Sort    Sort              `json:"sort"`
	Search  string            `json:"search,omitempty"`
}

// Equal reports whether two queries address the same result set.
func (q Query) Equal(o Query) bool {
	return q.Page == o.Page &&
		q.Limit == o.Limit &&
		q.Sort == o.Sort &&
		q.Search == o.Search &&
		maps.Equal(q.Filters, o.Filters)
}

// Page is one page of items as returned by a list endpoint.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
}

// QueryPatch is a partial update of a list query. Nil fields are left
// untouched.
type QueryPatch struct {
	Page    *int              `json:"page,omitempty"`
	Limit   *int              `json:"limit,omitempty"`
	Sort    *Sort             `json:"sort,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
	Search  *string           `json:"search,omitempty"`
}

// ListState is the JSON view of a list cache.
type ListState[T any] struct {
	Items      []T               `json:"items"`
	Pagination Pagination        `json:"pagination"`
	Loading    bool              `json:"loading"`
	Error      string            `json:"error,omitempty"`
	Filters    map[string]string `json:"filters"`
	Sort       Sort              `json:"sort"`
	Search     string            `json:"search"`

	Selected        *T     `json:"selected,omitempty"`
	SelectedLoading bool   `json:"selectedLoading"`
	SelectedError   string `json:"selectedError,omitempty"`

	// Modified holds pending row edits keyed by record id.
	Modified map[string]T `json:"modified,omitempty"`
}
