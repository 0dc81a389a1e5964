package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/medinor/dashboard/internal/backend"
	"github.com/medinor/dashboard/internal/ingest"
	"github.com/medinor/dashboard/internal/migration"
	"github.com/medinor/dashboard/model"
)

// cliSubject owns the sessions the CLI creates in its private store.
const cliSubject = "medinorctl"

type migrateOptions struct {
	yes bool
}

func newMigrateCmd(global *globalOptions) *cobra.Command {
	var opts migrateOptions

	cmd := &cobra.Command{
		Use:   "migrate {clients|products} FILE",
		Short: "Upload a spreadsheet, review the backend analysis, and create the records",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, path := args[0], args[1]
			if !migration.Supported(entity) {
				return model.NewBadRequestError(fmt.Sprintf("no migration for %q", entity))
			}
			client, _, logger, err := global.client(true)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return runMigrate(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), client, logger, entity, path, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Create the records without asking")
	return cmd
}

func runMigrate(ctx context.Context, in io.Reader, out io.Writer, client *backend.Client, logger *zap.Logger, entity, path string, opts migrateOptions) error {
	f, err := os.Open(path)
	if err != nil {
		return model.NewBadRequestError(err.Error())
	}
	defer f.Close()

	mgr := migration.NewManager(migration.NewMemoryStore(), time.Hour, migration.Deps{
		Backend: client,
		Logger:  logger,
	})

	snap, err := mgr.Create(ctx, cliSubject, entity)
	if err != nil {
		return err
	}
	defer func() {
		if err := mgr.Delete(context.WithoutCancel(ctx), cliSubject, snap.ID); err != nil {
			logger.Warn("dropping migration session", zap.Error(err))
		}
	}()

	snap, err = mgr.Accept(ctx, cliSubject, snap.ID, ingest.File{Name: filepath.Base(path), Data: f})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Parsed %d %s from %s\n", snap.ParsedCount, entity, snap.FileName)

	snap, err = mgr.Process(ctx, cliSubject, snap.ID)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Backend analysis:")
	if err := printRaw(out, snap.ProcessedData); err != nil {
		return err
	}

	if !opts.yes {
		ok, err := confirm(in, out, fmt.Sprintf("Create the %s now?", entity))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Nothing was created.")
			return nil
		}
	}

	snap, err = mgr.Execute(ctx, cliSubject, snap.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Created %d %s\n", snap.CreatedCount, entity)
	return nil
}

func printRaw(out io.Writer, raw json.RawMessage) error {
	if len(raw) == 0 {
		_, err := fmt.Fprintln(out, "  (empty)")
		return err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode analysis: %w", err)
	}
	return printJSON(out, v)
}

func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
