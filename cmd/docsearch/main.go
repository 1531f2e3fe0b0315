// Package main provides the docsearch CLI for managing and querying the document index.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/docsearch/internal/app"
	"github.com/bull/docsearch/internal/config"
)

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "docsearch",
		Short:        "Document ingestion and semantic search",
		Long:         "CLI tool for uploading, processing and searching documents in the docsearch index",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (default: $CONFIG_FILE)")

	root.AddCommand(
		newIngestCmd(opts),
		newProcessCmd(opts),
		newGetCmd(opts),
		newListCmd(opts),
		newDeleteCmd(opts),
		newSearchCmd(opts),
		newImportGitHubCmd(opts),
		newModelCmd(opts),
	)
	return root
}

// open loads the configuration and builds the application for one command.
func (o *rootOptions) open(ctx context.Context, cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, cfg.Logger(cmd.ErrOrStderr()))
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid document id %q", arg)
	}
	return id, nil
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
