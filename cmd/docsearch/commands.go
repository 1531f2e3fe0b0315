package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/docsearch/internal/github"
	"github.com/bull/docsearch/internal/indexer"
	"github.com/bull/docsearch/internal/ingest"
	"github.com/bull/docsearch/internal/storage"
)

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var (
		owner     string
		noProcess bool
	)
	cmd := &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Upload local files and process them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			var failed int
			for _, path := range args {
				doc, err := ingestFile(cmd, a.Docs, path, owner)
				if err != nil {
					printf(out, "  - %s: %v\n", path, err)
					failed++
					continue
				}
				if noProcess {
					printf(out, "Document %d: %s (pending)\n", doc.ID, doc.Filename)
					continue
				}
				n, err := a.Docs.Process(ctx, doc.ID)
				if err != nil {
					printf(out, "Document %d: %s failed: %v\n", doc.ID, doc.Filename, err)
					failed++
					continue
				}
				printf(out, "Document %d: %s (%d chunks)\n", doc.ID, doc.Filename, n)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner recorded on the documents")
	cmd.Flags().BoolVar(&noProcess, "no-process", false, "store the files without processing them")
	return cmd
}

func ingestFile(cmd *cobra.Command, docs *ingest.Orchestrator, path, owner string) (*storage.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return docs.Upload(cmd.Context(), ingest.UploadRequest{
		Filename: filepath.Base(path),
		Reader:   f,
		Size:     info.Size(),
		Owner:    owner,
	})
}

func newProcessCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "process ID",
		Short: "Extract, chunk and embed a stored document again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := opts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Docs.Process(cmd.Context(), id)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Document %d processed: %d chunks\n", id, n)
			return nil
		},
	}
}

func newGetCmd(opts *rootOptions) *cobra.Command {
	var withChunks bool
	cmd := &cobra.Command{
		Use:   "get ID",
		Short: "Show a document and its processing state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := opts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, chunks, err := a.Docs.Get(cmd.Context(), id, withChunks)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printf(out, "ID:       %d\n", doc.ID)
			printf(out, "Filename: %s\n", doc.Filename)
			printf(out, "Type:     %s\n", doc.FileType)
			printf(out, "Size:     %d bytes\n", doc.FileSize)
			printf(out, "Status:   %s\n", doc.Status())
			if msg := doc.Metadata.String(storage.MetaError); msg != "" {
				printf(out, "Error:    %s\n", msg)
			}
			if n, ok := doc.Metadata.Int(storage.MetaChunksCount); ok {
				printf(out, "Chunks:   %d\n", n)
			}
			for _, c := range chunks {
				printf(out, "\n[%d] %s\n", c.Index, c.Text)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withChunks, "chunks", false, "print the chunk texts")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var list storage.ListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			docs, total, err := a.Docs.List(cmd.Context(), list)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range docs {
				printf(out, "%6d  %-10s  %s\n", d.ID, d.Status(), d.Filename)
			}
			printf(out, "%d of %d documents\n", len(docs), total)
			return nil
		},
	}
	cmd.Flags().IntVar(&list.Offset, "offset", 0, "number of documents to skip")
	cmd.Flags().IntVar(&list.Limit, "limit", storage.DefaultListLimit, "maximum number of documents")
	cmd.Flags().StringVar(&list.Owner, "owner", "", "only list documents of this owner")
	return cmd
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a document, its chunks and its stored file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := opts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			deleted, err := a.Docs.Delete(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("document %d: %w", id, ingest.ErrNotFound)
			}
			printf(cmd.OutOrStdout(), "Document %d deleted\n", id)
			return nil
		},
	}
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		limit     int
		threshold float64
	)
	cmd := &cobra.Command{
		Use:   "search QUERY...",
		Short: "Find the chunks most similar to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			search := ingest.SearchOptions{Limit: limit}
			if cmd.Flags().Changed("threshold") {
				search.Threshold = ingest.Threshold(threshold)
			}
			results, err := a.Docs.Search(cmd.Context(), strings.Join(args, " "), search)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				printf(out, "No matching chunks found.\n")
				return nil
			}
			for i, r := range results {
				printf(out, "%d. %.4f  %s #%d (document %d)\n", i+1, r.Score, r.Chunk.Filename, r.Chunk.Index, r.Chunk.DocumentID)
				printf(out, "   %s\n", strings.ReplaceAll(r.Chunk.Text, "\n", " "))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of results (default from config)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum similarity (default from config)")
	return cmd
}

func newImportGitHubCmd(opts *rootOptions) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "import-github OWNER/REPO[/PATH][@REF]",
		Short: "Import every supported file from a GitHub repository directory",
		Long: `Fetches every file with an allowed extension below PATH and ingests it.

Each file is uploaded and processed before the next one is fetched.
Files that fail are reported at the end and do not stop the import.

Environment variables:
  GITHUB_TOKEN   GitHub token for higher rate limits (optional)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := github.ParseSource(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			start := time.Now()
			out := cmd.OutOrStdout()

			a, err := opts.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			client, err := github.NewClient(a.Config.GitHubToken)
			if err != nil {
				return fmt.Errorf("create GitHub client: %w", err)
			}
			fetcher := github.NewFetcher(client, src, a.Docs.Allowed)

			printf(out, "Importing %s...\n", src)
			pipeline := indexer.NewPipeline(fetcher, a.Docs, nil, owner, a.Logger)
			result, err := pipeline.IndexAll(ctx)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}

			printf(out, "\nImport complete!\n")
			printf(out, "  Documents: %d/%d\n", result.SuccessfulDocs, result.TotalDocs)
			printf(out, "  Chunks: %d\n", result.TotalChunks)
			printf(out, "  Duration: %s\n", result.Duration.Round(time.Second))
			printf(out, "  Commit: %s\n", result.CommitSHA)

			if len(result.FailedDocs) > 0 {
				printf(out, "\nFailed documents:\n")
				for _, failed := range result.FailedDocs {
					printf(out, "  - %s: %s\n", failed.Path, failed.Reason)
				}
			}
			printf(out, "\nTotal time: %s\n", time.Since(start).Round(time.Second))
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner recorded on the imported documents")
	return cmd
}

func newModelCmd(opts *rootOptions) *cobra.Command {
	var reload string
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Show the embedding model, optionally reloading it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Flags().Changed("reload") {
				a.Provider.Reload(ctx, strings.TrimSpace(reload))
			}
			info := a.Provider.Info(ctx)
			out := cmd.OutOrStdout()
			printf(out, "Model:     %s\n", info.ModelName)
			printf(out, "Type:      %s\n", info.ModelType)
			printf(out, "Dimension: %d\n", info.Dimension)
			printf(out, "Loaded:    %t\n", info.ModelLoaded)
			printf(out, "State:     %s\n", info.State)
			return nil
		},
	}
	cmd.Flags().StringVar(&reload, "reload", "", "reload the model, switching to this name when given")
	cmd.Flags().Lookup("reload").NoOptDefVal = " "
	return cmd
}
