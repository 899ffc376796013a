package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/financescope/financescope/internal/core/domain"
	"github.com/financescope/financescope/internal/core/ports/driving"
)

var ingestTitle string

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Ingest PDF documents into the index",
	Long: `Parses one or more PDF reports, segments them into overlapping
chunks and indexes each chunk for semantic retrieval. Multiple files are
processed concurrently; a document that fails to parse does not affect
the others.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestTitle, "title", "t", "", "document title (single file only; defaults to the file name)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if err := initServices(); err != nil {
		return err
	}
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}
	if ingestTitle != "" && len(args) > 1 {
		return errors.New("--title applies to a single file only")
	}

	ctx := cmd.Context()

	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		title := ingestTitle
		if title == "" {
			title = titleFromPath(args[0])
		}
		report, err := ingestService.Ingest(ctx, title, data)
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", args[0], err)
		}
		printReport(cmd, report)
		return nil
	}

	items := make([]driving.BatchItem, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		items = append(items, driving.BatchItem{Title: titleFromPath(path), Data: data})
	}

	results, err := ingestService.IngestBatch(ctx, items)
	if err != nil {
		return fmt.Errorf("batch ingest: %w", err)
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			cmd.Printf("FAILED %s: %v\n", res.Title, res.Err)
			continue
		}
		printReport(cmd, res.Report)
	}
	if failed > 0 {
		cmd.Printf("\n%d of %d documents failed\n", failed, len(results))
	}
	return nil
}

func printReport(cmd *cobra.Command, report *domain.IngestReport) {
	cmd.Printf("Ingested %q (%s)\n", report.Title, report.DocumentID)
	cmd.Printf("  pages: %d, chunks: %d, indexed: %d\n",
		report.PageCount, report.ChunksCreated, report.ChunksIndexed)
	for _, warning := range report.Warnings {
		cmd.Printf("  warning: %s\n", warning)
	}
	if len(report.Unindexed) > 0 {
		cmd.Printf("  %d chunks not indexed (stored but not searchable)\n", len(report.Unindexed))
	}
}

// titleFromPath derives a human-readable title from a file path.
func titleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
