package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	"github.com/cloudwego/eino/components/document/parser"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
)

// PageRenderer rasterizes PDF pages to PNG. It renders at most maxPages pages
// and reports whether the document had more.
type PageRenderer interface {
	Render(ctx context.Context, content []byte, dpi, maxPages int) (pages [][]byte, truncated bool, err error)
}

// PdftoppmRenderer renders pages with poppler's pdftoppm.
type PdftoppmRenderer struct {
	Bin    string
	Runner Runner
	Logger *slog.Logger
}

func NewPdftoppmRenderer(bin string, runner Runner, logger *slog.Logger) *PdftoppmRenderer {
	if bin == "" {
		bin = "pdftoppm"
	}
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	return &PdftoppmRenderer{Bin: bin, Runner: runner, Logger: logger}
}

func (r *PdftoppmRenderer) Render(ctx context.Context, content []byte, dpi, maxPages int) ([][]byte, bool, error) {
	tmpDir, err := os.MkdirTemp("", "inv-pp-*")
	if err != nil {
		return nil, false, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			r.Logger.Warn("failed to remove temp dir", "path", tmpDir, "error", err)
		}
	}()

	in := filepath.Join(tmpDir, "in.pdf")
	if err := os.WriteFile(in, content, 0o600); err != nil {
		return nil, false, fmt.Errorf("write pdf: %w", err)
	}
	prefix := filepath.Join(tmpDir, "page")

	// pdftoppm -r <dpi> -png [-l <maxPages+1>] <in.pdf> <tmp/page>
	args := []string{"-r", strconv.Itoa(dpi), "-png"}
	if maxPages > 0 {
		args = append(args, "-l", strconv.Itoa(maxPages+1))
	}
	args = append(args, in, prefix)

	_, errb, err := r.Runner.Run(ctx, r.Bin, args...)
	if err != nil {
		switch {
		case errors.Is(err, exec.ErrNotFound):
			return nil, false, common.OCRUnavailable(err, "pdf renderer %q not installed", r.Bin)
		case ctx.Err() != nil:
			return nil, false, ctx.Err()
		}
		return nil, false, common.MalformedDocument(err, "render pdf: %s", strings.TrimSpace(truncate(string(errb), 512)))
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	sortPages(matches)
	if len(matches) == 0 {
		return nil, false, common.MalformedDocument(nil, "pdf rendered no pages")
	}
	truncated := false
	if maxPages > 0 && len(matches) > maxPages {
		matches = matches[:maxPages]
		truncated = true
	}

	pages := make([][]byte, 0, len(matches))
	for _, m := range matches {
		b, err := os.ReadFile(m)
		if err != nil {
			return nil, false, fmt.Errorf("read rendered page: %w", err)
		}
		pages = append(pages, b)
	}
	return pages, truncated, nil
}

// sortPages orders prefix-N.png by N; pdftoppm zero pads, but not always to the same width.
func sortPages(paths []string) {
	num := func(p string) int {
		base := strings.TrimSuffix(filepath.Base(p), ".png")
		i := strings.LastIndexByte(base, '-')
		n, _ := strconv.Atoi(base[i+1:])
		return n
	}
	sort.SliceStable(paths, func(i, j int) bool { return num(paths[i]) < num(paths[j]) })
}

// TextLayer reads the embedded text of a PDF, one entry per page.
type TextLayer interface {
	Pages(ctx context.Context, content []byte, name string) ([]string, error)
}

// EinoTextLayer uses the eino PDF parser.
type EinoTextLayer struct{}

func (EinoTextLayer) Pages(ctx context.Context, content []byte, name string) ([]string, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{ToPages: true})
	if err != nil {
		return nil, fmt.Errorf("init pdf parser: %w", err)
	}
	docs, err := p.Parse(ctx, bytes.NewReader(content), parser.WithURI(name))
	if err != nil {
		return nil, fmt.Errorf("parse pdf text layer: %w", err)
	}
	pages := make([]string, 0, len(docs))
	for _, d := range docs {
		pages = append(pages, d.Content)
	}
	return pages, nil
}
