package main

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/medinor/dashboard/internal/ingest"
	"github.com/medinor/dashboard/model"
)

// inspectReport is what inspect prints: the records plus the row counters.
type inspectReport[T any] struct {
	Entity     string `json:"entity"`
	Format     string `json:"format"`
	Rows       int    `json:"rows"`
	Dropped    int    `json:"dropped"`
	Duplicates int    `json:"duplicates"`
	Records    []T    `json:"records"`
}

func newInspectCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect {clients|products} FILE",
		Short: "Parse a spreadsheet locally and print the records it yields",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := global.logger()
			defer logger.Sync()
			return runInspect(cmd.Context(), cmd.OutOrStdout(), logger, args[0], args[1])
		},
	}
}

func runInspect(ctx context.Context, out io.Writer, logger *zap.Logger, entity, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return model.NewBadRequestError(err.Error())
	}
	defer f.Close()

	in := ingest.New(logger, nil)
	file := ingest.File{Name: filepath.Base(path), Data: f}

	switch entity {
	case model.EntityClients:
		res, err := in.Clients(ctx, file)
		if err != nil {
			return err
		}
		return printJSON(out, report(entity, res))
	case model.EntityProducts:
		res, err := in.Products(ctx, file)
		if err != nil {
			return err
		}
		return printJSON(out, report(entity, res))
	default:
		return model.NewBadRequestError("inspect supports clients and products, not " + entity)
	}
}

func report[T any](entity string, res ingest.Result[T]) inspectReport[T] {
	records := res.Records
	if records == nil {
		records = []T{}
	}
	return inspectReport[T]{
		Entity:     entity,
		Format:     res.Format,
		Rows:       res.Rows,
		Dropped:    res.Dropped,
		Duplicates: res.Duplicates,
		Records:    records,
	}
}
