package integration

import (
	"net/http"
	"testing"

	"github.com/medinor/dashboard/internal/crud"
	"github.com/medinor/dashboard/model"
)

type clientsView = crud.ScreenView[model.Client]
type productsView = crud.ScreenView[model.Product]

func TestLists_QueryEncoding(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(AdminClaims())

	rows := []map[string]any{ClientFixture("c1", "1", "ACME")}
	h.Backend.On("clients.list").
		RespondWith(http.StatusOK, PageFixture(rows, 1, 41, 2)).
		RespondWith(http.StatusOK, PageFixture(rows, 2, 41, 2))

	var view clientsView
	h.AssertJSON(t, h.GET("/api/lists/clients?refresh=true", token), http.StatusOK, &view)
	if len(view.Items) != 1 || view.Pagination.Total != 41 || view.Pagination.TotalPages != 2 {
		t.Fatalf("view = %s", FormatJSON(view))
	}
	q := h.Backend.LastRequest("clients.list").Query
	if q["page"] != "1" || q["limit"] != "25" {
		t.Errorf("default query = %v", q)
	}

	patch := map[string]any{
		"sort":    map[string]string{"key": "RAZON_SOCI", "direction": "desc"},
		"filters": map[string]string{"LEVEL": "2", "empty": ""},
		"search":  "acme",
		"page":    2,
	}
	h.AssertJSON(t, h.PATCH("/api/lists/clients/query", patch, token), http.StatusOK, &view)
	q = h.Backend.LastRequest("clients.list").Query
	want := map[string]string{
		"page":            "2",
		"limit":           "25",
		"search":          "acme",
		"sort[key]":       "RAZON_SOCI",
		"sort[direction]": "desc",
		"filters[LEVEL]":  "2",
	}
	for k, v := range want {
		if q[k] != v {
			t.Errorf("query[%s] = %q, want %q", k, q[k], v)
		}
	}
	if _, ok := q["filters[empty]"]; ok {
		t.Error("empty filter value was sent")
	}

	// An unchanged query does not refetch.
	h.AssertJSON(t, h.PATCH("/api/lists/clients/query", map[string]any{"page": 2}, token), http.StatusOK, &view)
	h.Backend.AssertCalled(t, "clients.list", 2)

	// Limits are clamped to the configured maximum.
	h.AssertJSON(t, h.PATCH("/api/lists/clients/query", map[string]any{"limit": 10000}, token), http.StatusOK, &view)
	if got := h.Backend.LastRequest("clients.list").Query["limit"]; got != "200" {
		t.Errorf("clamped limit = %s, want 200", got)
	}
}

func TestLists_ProductPriceEditsSaveAsBatch(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(AdminClaims())

	h.Backend.On("products.list").
		RespondWith(http.StatusOK, PageFixture([]map[string]any{
			ProductFixture("p1", "A1", 10), ProductFixture("p2", "A2", 20),
		}, 1, 2, 1)).
		RespondWith(http.StatusOK, PageFixture([]map[string]any{
			ProductFixture("p1", "A1", 12), ProductFixture("p2", "A2", 22),
		}, 1, 2, 1))

	var view productsView
	h.AssertJSON(t, h.GET("/api/lists/products?refresh=1", token), http.StatusOK, &view)

	edit := func(id string, price float64) {
		t.Helper()
		p := ProductFixture(id, "A"+id[1:], price)
		h.AssertJSON(t, h.POST("/api/lists/products/edits", p, token), http.StatusOK, &view)
	}
	edit("p1", 12)
	edit("p2", 22)
	if !view.HasUnsavedChanges || len(view.Modified) != 2 {
		t.Fatalf("pending edits = %d", len(view.Modified))
	}
	if view.Items[0].Price != 12 {
		t.Errorf("merged price = %v, want 12", view.Items[0].Price)
	}

	h.AssertJSON(t, h.POST("/api/lists/products/edits/save", nil, token), http.StatusOK, &view)
	if view.HasUnsavedChanges {
		t.Error("edits still pending after save")
	}
	h.Backend.AssertCalled(t, "products.update_batch", 1)
	h.Backend.AssertNotCalled(t, "products.update")
	sent, _ := h.Backend.LastRequest("products.update_batch").Body["products"].([]any)
	if len(sent) != 2 || sent[0].(map[string]any)["_id"] != "p1" {
		t.Errorf("batch body = %s", h.Backend.LastRequest("products.update_batch").RawBody)
	}
}

func TestLists_ClientEditsSaveRowByRow(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(AdminClaims())

	h.Backend.On("clients.list").RespondWith(http.StatusOK, PageFixture([]map[string]any{
		ClientFixture("c1", "1", "ACME"), ClientFixture("c2", "2", "BETA"),
	}, 1, 2, 1))

	var view clientsView
	h.AssertJSON(t, h.GET("/api/lists/clients?refresh=true", token), http.StatusOK, &view)
	h.AssertJSON(t, h.POST("/api/lists/clients/edits", ClientFixture("c2", "2", "BETA SA"), token), http.StatusOK, &view)
	h.AssertJSON(t, h.POST("/api/lists/clients/edits/save", nil, token), http.StatusOK, &view)

	h.Backend.AssertCalled(t, "clients.update", 1)
	if r := h.Backend.LastRequest("clients.update"); r.Path != "/clients/c2" || r.Body["RAZON_SOCI"] != "BETA SA" {
		t.Errorf("update = %s %s", r.Path, r.RawBody)
	}
}

func TestLists_CreateAndFetchOne(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(SuperadminClaims())

	h.Backend.On("admins.create").RespondWith(http.StatusCreated, map[string]any{"_id": "a9"})
	h.Backend.On("clients.get").RespondWith(http.StatusOK, ClientFixture("c7", "7", "GAMMA"))

	admin := map[string]any{"username": "nuevo", "role": "seller", "password": "longenough", "active": true}
	resp := h.POST("/api/lists/admins/items", admin, token)
	h.AssertStatus(t, resp, http.StatusCreated)
	if r := h.Backend.LastRequest("admins.create"); r == nil || r.Body["username"] != "nuevo" {
		t.Fatalf("admins.create not called with the record")
	}
	// Adding refreshes the list.
	h.Backend.AssertCalled(t, "admins.list", 1)

	// Validation runs before any backend call.
	h.AssertError(t, h.POST("/api/lists/admins/items", map[string]any{"username": "x", "role": "owner"}, token),
		http.StatusUnprocessableEntity, model.ErrValidationError)
	h.Backend.AssertCalled(t, "admins.create", 1)

	var view clientsView
	h.AssertJSON(t, h.GET("/api/lists/clients/items/c7", token), http.StatusOK, &view)
	if view.Selected == nil || view.Selected.Name != "GAMMA" {
		t.Errorf("selected = %+v", view.Selected)
	}
}

func TestLists_MissingOperationShowsInBanner(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(AdminClaims())

	order := map[string]any{"clientCode": "1", "status": "pending", "total": 10}
	var view crud.ScreenView[model.Order]
	h.AssertJSON(t, h.POST("/api/lists/orders/items", order, token), http.StatusOK, &view)
	if view.Error == "" {
		t.Fatal("creating an order should report the missing operation")
	}

	h.AssertJSON(t, h.DELETE("/api/lists/orders/error", token), http.StatusOK, &view)
	if view.Error != "" {
		t.Errorf("error after clear = %q", view.Error)
	}
}

func TestLists_UnknownEntity(t *testing.T) {
	h := NewTestHarness(t)
	h.AssertError(t, h.GET("/api/lists/invoices", h.GenerateToken(AdminClaims())), http.StatusNotFound, model.ErrNotFound)
}

func TestLists_LogoutDropsCache(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(AdminClaims())

	h.Backend.On("clients.list").RespondWith(http.StatusOK, PageFixture([]map[string]any{ClientFixture("c1", "1", "ACME")}, 1, 1, 1))

	var view clientsView
	h.AssertJSON(t, h.GET("/api/lists/clients?refresh=true", token), http.StatusOK, &view)
	h.AssertStatus(t, h.POST("/api/auth/logout", nil, token), http.StatusNoContent)

	h.AssertJSON(t, h.GET("/api/lists/clients", token), http.StatusOK, &view)
	if len(view.Items) != 0 {
		t.Errorf("items after logout = %d, want a fresh empty cache", len(view.Items))
	}
}
