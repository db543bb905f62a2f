package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joseph-ayodele/invoice-pipeline/internal/app"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/ingest"
	"github.com/joseph-ayodele/invoice-pipeline/internal/ocr"
)

func main() {
	var (
		lang = flag.String("lang", "", "OCR language for this file, e.g. rus or rus+eng (defaults to OCR_LANGUAGE)")
		dpi  = flag.Int("dpi", 0, "PDF rasterization DPI (defaults to OCR_DPI)")
	)
	flag.Parse()

	cfg := common.LoadConfig()
	logger := app.NewLogger(cfg.LogLevel)

	if flag.NArg() != 1 {
		logger.Error("usage", "cmd", "runocr [-lang rus+eng] [-dpi 300] <path-to-invoice>")
		os.Exit(2)
	}
	path := flag.Arg(0)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// the directory is not needed to normalize text
	cfg.Database.DSN = ""
	stack, err := app.Build(ctx, cfg, app.DirectoryOptions{}, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer stack.Close()

	doc, _, err := ingest.NewFSIngestor(nil, cfg.Server.MaxUploadBytes, logger).ReadPath(ctx, path)
	if err != nil {
		logger.Error("read file", "path", path, "error", err)
		os.Exit(1)
	}

	start := time.Now()
	opts := []ocr.Option{ocr.WithLanguage(*lang)}
	if *dpi > 0 {
		opts = append(opts, ocr.WithDPI(*dpi))
	}
	text, err := stack.Normalizer.Normalize(ctx, *doc, opts...)
	dur := time.Since(start)
	if err != nil {
		logger.Error("text extraction failed",
			"kind", common.Kind(err), "retryable", common.Retryable(err), "error", err, "duration_ms", dur.Milliseconds())
		os.Exit(1)
	}

	logger.Info("text extraction OK",
		"format", text.Format,
		"method", text.Method,
		"pages", len(text.Pages),
		"chars", text.CharCount,
		"duration_ms", dur.Milliseconds())
	for _, w := range text.Warnings {
		logger.Warn("normalization warning", "warning", w)
	}
	fmt.Println(text.Text())
}
