// Package ingest turns uploaded spreadsheets into normalized client and
// product records ready for backend analysis.
package ingest

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/medinor/dashboard/internal/observability"
	"github.com/medinor/dashboard/model"
)

// Drop reasons reported in diagnostics and metrics.
const (
	ReasonMissingRequired = "missing_required"
	ReasonDuplicate       = "duplicate"
)

// File is an uploaded file. The extension of Name selects the parser.
type File struct {
	Name string
	Data io.Reader
}

// Result holds the surviving records plus counters for the rows that were
// skipped on the way.
type Result[T any] struct {
	Records    []T
	Format     string
	Rows       int
	Dropped    int
	Duplicates int
}

// Variant describes how one entity is read from a table.
type Variant[T any] struct {
	Entity   string
	Columns  []Column
	Matchers []Matcher
	// Build returns false when the row lacks a required value.
	Build func(Row) (T, bool)
	Key   func(T) string
}

// Ingester runs the shared pipeline for every variant.
type Ingester struct {
	logger  *zap.Logger
	metrics *observability.Metrics
}

// New creates an Ingester. metrics may be nil.
func New(logger *zap.Logger, metrics *observability.Metrics) *Ingester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{logger: logger, metrics: metrics}
}

// Clients parses a client master file.
func (in *Ingester) Clients(ctx context.Context, f File) (Result[model.ClientRecord], error) {
	return Run(ctx, in, ClientVariant(), f)
}

// Products parses a product catalog file.
func (in *Ingester) Products(ctx context.Context, f File) (Result[model.ProductRecord], error) {
	return Run(ctx, in, ProductVariant(), f)
}

// Run reads f and applies v row by row: resolve columns, build, drop rows
// missing required values, then keep the first record for every key.
func Run[T any](ctx context.Context, in *Ingester, v Variant[T], f File) (res Result[T], err error) {
	ctx, span := observability.StartSpan(ctx, "ingest."+v.Entity,
		observability.AttrEntity.String(v.Entity),
		observability.AttrFileName.String(f.Name),
	)
	defer func() {
		span.SetAttributes(observability.AttrRecords.Int(len(res.Records)))
		observability.EndSpanWithError(span, err)
		if err != nil {
			in.metrics.RecordIngestFailure(v.Entity)
		}
	}()

	logger := observability.LoggerFrom(ctx, in.logger).With(
		zap.String("entity", v.Entity),
		zap.String("file_name", f.Name),
	)

	tbl, err := readTable(f)
	if err != nil {
		logger.Warn("ingest: file rejected", zap.Error(err))
		return Result[T]{}, err
	}
	index, err := resolveColumns(v.Columns, tbl.header, v.Matchers)
	if err != nil {
		logger.Warn("ingest: header rejected", zap.Error(err), zap.Strings("headers", tbl.header))
		return Result[T]{}, err
	}

	res = Result[T]{Format: tbl.format, Rows: len(tbl.rows)}
	seen := make(map[string]struct{}, len(tbl.rows))
	for i, cells := range tbl.rows {
		if err := ctx.Err(); err != nil {
			return Result[T]{}, err
		}
		// Row numbers are 1-based and count the header.
		row := Row{Number: i + 2, cells: cells, index: index}
		rec, ok := v.Build(row)
		if !ok {
			res.Dropped++
			logger.Debug("ingest: row dropped",
				zap.Int("row", row.Number),
				zap.String("reason", ReasonMissingRequired),
			)
			continue
		}
		key := v.Key(rec)
		if _, dup := seen[key]; dup {
			res.Duplicates++
			logger.Warn("ingest: duplicate row skipped",
				zap.Int("row", row.Number),
				zap.String("key", key),
			)
			continue
		}
		seen[key] = struct{}{}
		res.Records = append(res.Records, rec)
	}

	in.metrics.RecordIngest(v.Entity, tbl.format, res.Rows, len(res.Records), map[string]int{
		ReasonMissingRequired: res.Dropped,
		ReasonDuplicate:       res.Duplicates,
	})

	if len(res.Records) == 0 {
		err = noValidRecordsError()
		logger.Warn("ingest: no usable rows", zap.Int("rows", res.Rows), zap.Int("dropped", res.Dropped))
		return res, err
	}

	logger.Info("ingest: file parsed",
		zap.String("format", tbl.format),
		zap.Int("rows", res.Rows),
		zap.Int("records", len(res.Records)),
		zap.Int("dropped", res.Dropped),
		zap.Int("duplicates", res.Duplicates),
	)
	return res, nil
}
