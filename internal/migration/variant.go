package migration

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/medinor/dashboard/internal/ingest"
	"github.com/medinor/dashboard/model"
)

// Backend is the subset of the Medinor API a migration needs.
type Backend interface {
	AnalyzeClients(ctx context.Context, records []model.ClientRecord) (json.RawMessage, error)
	CommitClients(ctx context.Context, classification json.RawMessage) (model.CommitResponse, error)
	AnalyzeProducts(ctx context.Context, records []model.ProductRecord) (json.RawMessage, error)
	CommitProducts(ctx context.Context, ready []json.RawMessage) (model.CommitResponse, error)
}

// variant binds one entity to its ingestion rules and backend endpoints.
// Parsed records travel as JSON so a snapshot can be stored and restored
// without knowing the record type.
type variant interface {
	ingest(ctx context.Context, in *ingest.Ingester, f ingest.File) (records json.RawMessage, count int, err error)
	analyze(ctx context.Context, b Backend, records json.RawMessage) (json.RawMessage, error)
	// eligible returns the number of records a commit would create.
	eligible(c model.Classification) int
	commit(ctx context.Context, b Backend, processed json.RawMessage, c model.Classification) (model.CommitResponse, error)
}

func variantFor(entity string) (variant, error) {
	switch entity {
	case model.EntityClients:
		return clientsVariant{}, nil
	case model.EntityProducts:
		return productsVariant{}, nil
	}
	return nil, model.NewNotFoundError(fmt.Sprintf("no migration for %q", entity))
}

// Supported reports whether entity can be migrated.
func Supported(entity string) bool {
	_, err := variantFor(entity)
	return err == nil
}

type clientsVariant struct{}

func (clientsVariant) ingest(ctx context.Context, in *ingest.Ingester, f ingest.File) (json.RawMessage, int, error) {
	res, err := in.Clients(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	data, err := json.Marshal(res.Records)
	return data, len(res.Records), err
}

func (clientsVariant) analyze(ctx context.Context, b Backend, records json.RawMessage) (json.RawMessage, error) {
	var clients []model.ClientRecord
	if err := json.Unmarshal(records, &clients); err != nil {
		return nil, fmt.Errorf("decode parsed clients: %w", err)
	}
	return b.AnalyzeClients(ctx, clients)
}

func (clientsVariant) eligible(c model.Classification) int {
	if n := len(c.Data.NewClients); n > 0 {
		return n
	}
	return c.Summary.TotalNew
}

// Clients commit the whole classification payload.
func (clientsVariant) commit(ctx context.Context, b Backend, processed json.RawMessage, _ model.Classification) (model.CommitResponse, error) {
	return b.CommitClients(ctx, processed)
}

type productsVariant struct{}

func (productsVariant) ingest(ctx context.Context, in *ingest.Ingester, f ingest.File) (json.RawMessage, int, error) {
	res, err := in.Products(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	data, err := json.Marshal(res.Records)
	return data, len(res.Records), err
}

func (productsVariant) analyze(ctx context.Context, b Backend, records json.RawMessage) (json.RawMessage, error) {
	var products []model.ProductRecord
	if err := json.Unmarshal(records, &products); err != nil {
		return nil, fmt.Errorf("decode parsed products: %w", err)
	}
	return b.AnalyzeProducts(ctx, products)
}

func (productsVariant) eligible(c model.Classification) int {
	return len(c.Data.ProductsReadyForMigration)
}

// Products commit only the subset the analysis marked ready.
func (productsVariant) commit(ctx context.Context, b Backend, _ json.RawMessage, c model.Classification) (model.CommitResponse, error) {
	return b.CommitProducts(ctx, c.Data.ProductsReadyForMigration)
}
