// Command medinorctl runs dashboard workflows against the Medinor backend
// from a terminal: spreadsheet migrations, ingestion dry runs, and entity
// list queries.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/medinor/dashboard/internal/backend"
	"github.com/medinor/dashboard/internal/config"
	"github.com/medinor/dashboard/model"
)

var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	backendURL string
	token      string
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cmd := newRootCmd(os.Stdin, os.Stdout)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	switch model.CodeOf(err) {
	case model.ErrBadRequest, model.ErrValidationError:
		return exitUsage
	}
	return exitError
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "medinorctl",
		Short:         "Command line client for the Medinor admin dashboard",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a dashboard config file (default: environment only)")
	root.PersistentFlags().StringVar(&opts.backendURL, "backend-url", "", "Backend base URL (overrides config)")
	root.PersistentFlags().StringVar(&opts.token, "token", "", "Backend bearer token (default $MEDINOR_TOKEN)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log backend calls to stderr")

	root.AddCommand(
		newLoginCmd(opts),
		newMigrateCmd(opts),
		newInspectCmd(opts),
		newListCmd(opts),
	)
	return root
}

// loadConfig reads --config when given, otherwise builds the configuration
// from the environment. --backend-url wins over both.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	if o.backendURL != "" {
		os.Setenv("MEDINOR_BACKEND_URL", o.backendURL)
	}
	if o.configPath != "" {
		return config.Load(o.configPath)
	}
	return config.FromEnv()
}

func (o *globalOptions) logger() *zap.Logger {
	if !o.verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// client builds a backend client. With requireToken the token must come
// from --token or MEDINOR_TOKEN.
func (o *globalOptions) client(requireToken bool) (*backend.Client, *config.Config, *zap.Logger, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	token := o.token
	if token == "" {
		token = os.Getenv("MEDINOR_TOKEN")
	}
	if requireToken && token == "" {
		return nil, nil, nil, model.NewBadRequestError("a backend token is required: pass --token or set MEDINOR_TOKEN")
	}
	creds, err := backend.NewTokenCredentials(token)
	if err != nil {
		return nil, nil, nil, model.NewBadRequestError(err.Error())
	}
	logger := o.logger()
	client, err := backend.New(cfg.Backend, creds, backend.WithLogger(logger))
	if err != nil {
		return nil, nil, nil, err
	}
	return client, cfg, logger, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
