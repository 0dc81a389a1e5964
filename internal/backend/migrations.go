package backend

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/medinor/dashboard/model"
)

// AnalyzeClients sends the ingested clients for classification. The
// response is returned verbatim; it is also the commit payload.
func (c *Client) AnalyzeClients(ctx context.Context, records []model.ClientRecord) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, call{
		op:     "clients.analyze",
		method: http.MethodPost,
		path:   "/clients/analyze",
		body:   map[string]any{"clients": records},
		upload: true,
	}, &out)
	return out, err
}

// CommitClients creates the clients of a classification payload.
func (c *Client) CommitClients(ctx context.Context, classification json.RawMessage) (model.CommitResponse, error) {
	var out model.CommitResponse
	err := c.do(ctx, call{
		op:          "clients.make_migration",
		method:      http.MethodPost,
		path:        "/clients/make-migration",
		raw:         classification,
		contentType: "application/json",
		upload:      true,
	}, &out)
	return out, err
}

// AnalyzeProducts sends the ingested products for classification.
func (c *Client) AnalyzeProducts(ctx context.Context, records []model.ProductRecord) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, call{
		op:     "products.analyze",
		method: http.MethodPost,
		path:   "/products/analyze",
		body:   map[string]any{"products": records},
		upload: true,
	}, &out)
	return out, err
}

// CommitProducts creates the products the analysis marked ready.
func (c *Client) CommitProducts(ctx context.Context, ready []json.RawMessage) (model.CommitResponse, error) {
	if ready == nil {
		ready = []json.RawMessage{}
	}
	var out model.CommitResponse
	err := c.do(ctx, call{
		op:     "products.make_migration",
		method: http.MethodPost,
		path:   "/products/make-migration",
		body:   map[string]any{"productsToMigrate": ready},
		upload: true,
	}, &out)
	return out, err
}
