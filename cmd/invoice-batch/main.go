package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/joseph-ayodele/invoice-pipeline/internal/app"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/export"
	"github.com/joseph-ayodele/invoice-pipeline/internal/ingest"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir       = flag.String("dir", "", "directory of invoices to process (required)")
		out       = flag.String("out", "", "output directory for the xlsx and json reports (defaults to the parent of -dir)")
		asJSON    = flag.Bool("json", false, "print the batch result as JSON to stdout")
		inmem     = flag.Bool("inmem", false, "use an in-memory SQLite supplier directory")
		suppliers = flag.String("suppliers", "", "supplier directory export (.json or .xlsx)")
		workers   = flag.Int("workers", 0, "documents processed in parallel (defaults to PIPELINE_WORKERS)")
		dpi       = flag.Int("dpi", 0, "PDF rasterization DPI (defaults to OCR_DPI)")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Dir(filepath.Clean(*dir))
	}

	cfg := common.LoadConfig()
	if *workers > 0 {
		cfg.Pipeline.Workers = *workers
	}
	if *dpi > 0 {
		cfg.OCR.DPI = *dpi
	}
	logger := app.NewLogger(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stack, err := app.Build(ctx, cfg, app.DirectoryOptions{InMemory: *inmem, SuppliersFile: *suppliers}, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer stack.Close()

	ingestor := ingest.NewFSIngestor(ingest.NewMemorySeen(), cfg.Server.MaxUploadBytes, logger)
	docs, _, stats, err := ingestor.LoadDirectory(ctx, *dir, true)
	if err != nil {
		logger.Error("failed to read directory", "error", err)
		os.Exit(1)
	}
	logger.Info("directory loaded",
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed)

	res := stack.Batch.ProcessBatch(ctx, docs)

	xlsxPath, jsonPath, err := export.NewService(logger).WriteBatch(ctx, *out, res)
	if err != nil {
		logger.Error("failed to write reports", "error", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			logger.Error("encode result", "error", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Documents: %d\n", res.Stats.Total)
	fmt.Printf("- Succeeded: %d\n", res.Stats.Succeeded)
	fmt.Printf("- Failed: %d\n", res.Stats.Failed)
	for kind, n := range res.Stats.ByKind {
		fmt.Printf("  - %s: %d\n", kind, n)
	}
	fmt.Printf("- Workbook: %s\n", xlsxPath)
	fmt.Printf("- Report: %s\n", jsonPath)
}
