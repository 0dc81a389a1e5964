package integration

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/medinor/dashboard/internal/migration"
	"github.com/medinor/dashboard/model"
)

func clientAnalysis(newCodes ...string) map[string]any {
	clients := make([]map[string]any, len(newCodes))
	for i, code := range newCodes {
		clients[i] = map[string]any{"COD_CLIENT": code}
	}
	return map[string]any{
		"summary": map[string]any{"totalNew": len(newCodes), "totalConflicts": 0, "totalInvalid": 0},
		"data":    map[string]any{"newClients": clients},
	}
}

func TestMigration_ClientsEndToEnd(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(AdminClaims())

	h.Backend.On("clients.analyze").RespondWith(http.StatusOK, clientAnalysis("10", "11"))
	h.Backend.On("clients.make_migration").RespondWith(http.StatusOK, map[string]any{"data": map[string]any{"createdCount": 2}})

	var snap model.MigrationSnapshot
	resp := h.Upload(http.MethodPost, "/api/migrations/clients", "file", "clientes.csv",
		ClientsCSV("10,acme sa,30111,2", "11,beta srl,30222,", "10,dup,30111,"), token)
	h.AssertJSON(t, resp, http.StatusCreated, &snap)
	if snap.State != model.MigrationParsed || snap.ParsedCount != 2 {
		t.Fatalf("after upload: state=%s parsed=%d error=%q", snap.State, snap.ParsedCount, snap.Error)
	}
	id := snap.ID

	h.AssertJSON(t, h.POST("/api/migrations/"+id+"/process", nil, token), http.StatusOK, &snap)
	if snap.State != model.MigrationAnalyzed {
		t.Fatalf("after process: state=%s error=%q", snap.State, snap.Error)
	}

	analyze := h.Backend.LastRequest("clients.analyze")
	if analyze.Headers.Get("Authorization") != "Bearer "+token {
		t.Errorf("analyze did not forward the user's token")
	}
	if analyze.Headers.Get("X-Correlation-Id") == "" {
		t.Errorf("analyze did not carry a correlation id")
	}
	sent, _ := analyze.Body["clients"].([]any)
	if len(sent) != 2 {
		t.Fatalf("analyze got %d clients, want 2: %s", len(sent), analyze.RawBody)
	}
	first := sent[0].(map[string]any)
	if first["RAZON_SOCI"] != "ACME SA" || first["LEVEL"] != float64(2) {
		t.Errorf("first client = %v", first)
	}

	h.AssertJSON(t, h.POST("/api/migrations/"+id+"/execute", nil, token), http.StatusOK, &snap)
	if !snap.MigrationComplete || snap.CreatedCount != 2 || snap.State != model.MigrationCommitted {
		t.Fatalf("after execute: %+v", snap)
	}

	// The whole classification payload is committed verbatim.
	var committed, analyzed any
	json.Unmarshal(h.Backend.LastRequest("clients.make_migration").RawBody, &committed)
	json.Unmarshal(snap.ProcessedData, &analyzed)
	if FormatJSON(committed) != FormatJSON(analyzed) {
		t.Errorf("commit body differs from analysis:\n%s\nvs\n%s", FormatJSON(committed), FormatJSON(analyzed))
	}

	// A completed session cannot be committed twice.
	h.AssertJSON(t, h.POST("/api/migrations/"+id+"/execute", nil, token), http.StatusOK, &snap)
	if snap.Error == "" {
		t.Error("second execute recorded no error")
	}
	h.Backend.AssertCalled(t, "clients.make_migration", 1)

	h.AssertJSON(t, h.DELETE("/api/migrations/"+id, token), http.StatusOK, &snap)
	if snap.State != model.MigrationIdle || snap.ParsedCount != 0 || snap.Error != "" {
		t.Errorf("after clear: %+v", snap)
	}
}

func TestMigration_ProductsCommitOnlyReadyRows(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(SuperadminClaims())

	h.Backend.On("products.analyze").RespondWith(http.StatusOK, map[string]any{
		"summary": map[string]any{"totalNew": 1, "totalConflicts": 1},
		"data": map[string]any{
			"newProducts":               []map[string]any{{"code": "A1"}},
			"conflictingProducts":       []map[string]any{{"code": "B2"}},
			"productsReadyForMigration": []map[string]any{{"code": "A1", "price": 10}},
		},
	})
	h.Backend.On("products.make_migration").RespondWith(http.StatusOK, map[string]any{"data": map[string]any{}})

	var snap model.MigrationSnapshot
	h.AssertJSON(t, h.Upload(http.MethodPost, "/api/migrations/products", "file", "lista.csv",
		ProductsCSV(`A1,Bayer,Aspirina,Analgesicos,,,1,"10,5",15,10`, `B2,Roche,Otro,,,,0,1,2,3`), token),
		http.StatusCreated, &snap)
	if snap.ParsedCount != 2 {
		t.Fatalf("parsed = %d, error %q", snap.ParsedCount, snap.Error)
	}

	h.AssertJSON(t, h.POST("/api/migrations/"+snap.ID+"/process", nil, token), http.StatusOK, &snap)
	h.AssertJSON(t, h.POST("/api/migrations/"+snap.ID+"/execute", nil, token), http.StatusOK, &snap)

	// Without a createdCount in the reply the eligible count is reported.
	if snap.CreatedCount != 1 {
		t.Errorf("createdCount = %d, want 1", snap.CreatedCount)
	}
	ready, _ := h.Backend.LastRequest("products.make_migration").Body["productsToMigrate"].([]any)
	if len(ready) != 1 || ready[0].(map[string]any)["code"] != "A1" {
		t.Errorf("committed %v, want only A1", ready)
	}
}

func TestMigration_BackendRejectionIsRecorded(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(AdminClaims())

	h.Backend.On("clients.analyze").
		RespondWithError(http.StatusBadRequest, "El lote supera el máximo permitido").
		RespondWith(http.StatusOK, clientAnalysis("1"))

	var snap model.MigrationSnapshot
	h.AssertJSON(t, h.Upload(http.MethodPost, "/api/migrations/clients", "file", "c.csv", ClientsCSV("1,a,2,"), token),
		http.StatusCreated, &snap)

	h.AssertJSON(t, h.POST("/api/migrations/"+snap.ID+"/process", nil, token), http.StatusOK, &snap)
	if snap.Error != "El lote supera el máximo permitido" || snap.State != model.MigrationParsed || snap.Processing {
		t.Fatalf("after rejected analysis: %+v", snap)
	}

	h.AssertJSON(t, h.DELETE("/api/migrations/"+snap.ID+"/error", token), http.StatusOK, &snap)
	if snap.Error != "" || snap.ParsedCount != 1 {
		t.Errorf("clear error dropped data: %+v", snap)
	}

	// The parsed data survives, so a retry needs no new upload.
	h.AssertJSON(t, h.POST("/api/migrations/"+snap.ID+"/process", nil, token), http.StatusOK, &snap)
	if snap.State != model.MigrationAnalyzed {
		t.Errorf("retry state = %s, error %q", snap.State, snap.Error)
	}
}

func TestMigration_IngestionErrors(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(AdminClaims())

	tests := []struct {
		name, file, body, want string
	}{
		{"missing column", "c.csv", "COD_CLIENT,RAZON_SOCI\n1,a\n", "IDENTIFTRI"},
		{"unsupported type", "c.pdf", "x", ""},
		{"no valid rows", "c.csv", ClientsCSV(",a,,"), ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var snap model.MigrationSnapshot
			h.AssertJSON(t, h.Upload(http.MethodPost, "/api/migrations/clients", "file", tc.file, tc.body, token),
				http.StatusCreated, &snap)
			if snap.State != model.MigrationIdle || snap.Error == "" {
				t.Fatalf("snapshot = %+v, want idle with error", snap)
			}
			if tc.want != "" && !strings.Contains(snap.Error, tc.want) {
				t.Errorf("error %q does not mention %q", snap.Error, tc.want)
			}
		})
	}
	h.Backend.AssertNotCalled(t, "clients.analyze")
}

func TestMigration_SessionsSurviveInRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := migration.NewRedisStore(rdb, "it:migration:")

	h := NewTestHarness(t, WithSessionStore(store))
	token := h.GenerateToken(AdminClaims())

	var snap model.MigrationSnapshot
	h.AssertJSON(t, h.Upload(http.MethodPost, "/api/migrations/clients", "file", "c.csv", ClientsCSV("1,a,2,", "2,b,3,"), token),
		http.StatusCreated, &snap)

	if len(mr.Keys()) == 0 {
		t.Fatal("no session keys written to redis")
	}

	// A second BFF instance sharing the store sees the same session.
	other := NewTestHarness(t, WithSessionStore(store))
	var again model.MigrationSnapshot
	h2token := other.GenerateToken(AdminClaims())
	other.AssertJSON(t, other.GET("/api/migrations/"+snap.ID, h2token), http.StatusOK, &again)
	if again.ParsedCount != 2 || again.FileName != "c.csv" {
		t.Errorf("shared session = %+v", again)
	}

	// Sessions belong to their subject.
	h.AssertError(t, h.GET("/api/migrations/"+snap.ID, h.GenerateToken(SellerClaims())), http.StatusNotFound, model.ErrNotFound)
}
