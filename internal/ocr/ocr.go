// Package ocr turns uploaded documents into normalized text lines.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

const (
	DefaultDPI      = 200
	MaxDPI          = 600
	DefaultMaxPages = 10
)

type Config struct {
	DPI             int           // PDF rasterization DPI, default 200, capped at 600
	MaxPages        int           // PDF page cap, default 10
	Timeout         time.Duration // bound on each OCR call; 0 = none
	Language        string        // OCR language, default "rus+eng"
	PreferTextLayer bool          // use the PDF text layer when it looks complete
}

type callOptions struct {
	dpi  int
	lang string
}

// Option adjusts a single Normalize call.
type Option func(*callOptions)

func WithDPI(dpi int) Option { return func(o *callOptions) { o.dpi = dpi } }

// WithLanguage overrides the OCR language for one call, e.g. "rus" or "rus+eng".
func WithLanguage(lang string) Option {
	return func(o *callOptions) {
		if lang != "" {
			o.lang = lang
		}
	}
}

// Normalizer converts a RawDocument into NormalizedText.
type Normalizer struct {
	cfg       Config
	svc       TextExtractionService
	renderer  PageRenderer
	textLayer TextLayer
	logger    *slog.Logger
}

// NewNormalizer wires the format handlers. textLayer may be nil.
func NewNormalizer(cfg Config, svc TextExtractionService, renderer PageRenderer, textLayer TextLayer, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DPI <= 0 {
		cfg.DPI = DefaultDPI
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.Language == "" {
		cfg.Language = "rus+eng"
	}
	return &Normalizer{cfg: cfg, svc: svc, renderer: renderer, textLayer: textLayer, logger: logger}
}

// Normalize extracts the text of doc. Every failure is a typed error from the
// common package: UnsupportedFormat, NoTextDetected, OcrUnavailable,
// MalformedDocument or Cancelled.
func (n *Normalizer) Normalize(ctx context.Context, doc entity.RawDocument, opts ...Option) (entity.NormalizedText, error) {
	o := callOptions{dpi: n.cfg.DPI, lang: n.cfg.Language}
	for _, opt := range opts {
		opt(&o)
	}
	if err := ctx.Err(); err != nil {
		return entity.NormalizedText{}, n.classify(ctx, ctx, err)
	}

	start := time.Now()
	format := doc.Format()
	n.logger.Debug("starting normalization", "filename", doc.Filename, "format", format, "ext", doc.Ext(), "bytes", doc.Size())

	if format == constants.FormatUnknown {
		return entity.NormalizedText{}, common.UnsupportedFormat("unsupported format: mime %q, extension %q", doc.MIMEType, doc.Ext())
	}
	if doc.Size() == 0 {
		return entity.NormalizedText{}, common.MalformedDocument(nil, "%s is empty", doc.Filename)
	}

	var (
		out entity.NormalizedText
		err error
	)
	switch format {
	case constants.FormatSpreadsheet:
		out, err = n.spreadsheet(ctx, doc)
	case constants.FormatWord:
		out, err = n.word(ctx, doc)
	case constants.FormatText:
		out, err = plainText(doc)
	case constants.FormatImage:
		out, err = n.image(ctx, doc, o)
	case constants.FormatPDF:
		out, err = n.pdf(ctx, doc, o)
	}
	if err != nil {
		n.logger.Warn("normalization failed", "filename", doc.Filename, "format", format, "kind", common.Kind(err), "error", err)
		return entity.NormalizedText{}, err
	}

	out.Format = format
	out.CharCount = entity.CountChars(out.Lines)
	if !hasText(out.Lines) {
		return entity.NormalizedText{}, common.NoTextDetected("no text detected in %s", doc.Filename)
	}
	n.logger.Info("document normalized",
		"filename", doc.Filename,
		"format", format,
		"method", out.Method,
		"lines", len(out.Lines),
		"pages", len(out.Pages),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (n *Normalizer) spreadsheet(ctx context.Context, doc entity.RawDocument) (entity.NormalizedText, error) {
	raw, ranges, err := n.svc.ExtractSpreadsheet(ctx, doc.Content)
	if err != nil {
		return entity.NormalizedText{}, err
	}
	// sheets are rebuilt through assemble so ranges stay valid after cleanup
	pages := make([][]string, 0, len(ranges))
	for _, r := range ranges {
		pages = append(pages, raw[r.Start:r.End])
	}
	if len(ranges) == 0 {
		pages = [][]string{raw}
	}
	lines, pr := assemble(pages)
	if len(ranges) > 0 {
		for i := range pr {
			pr[i].Page = ranges[pr[i].Page-1].Page
		}
	}
	return entity.NormalizedText{Lines: lines, Pages: pr, Method: constants.ExtractionOffice}, nil
}

func (n *Normalizer) word(ctx context.Context, doc entity.RawDocument) (entity.NormalizedText, error) {
	raw, err := n.svc.ExtractWordDocument(ctx, doc.Content)
	if err != nil {
		return entity.NormalizedText{}, err
	}
	lines, pr := assemble([][]string{raw})
	return entity.NormalizedText{Lines: lines, Pages: pr, Method: constants.ExtractionOffice}, nil
}

func plainText(doc entity.RawDocument) (entity.NormalizedText, error) {
	b := doc.Content
	b = trimBOM(b)
	var s string
	if utf8.Valid(b) {
		s = string(b)
	} else {
		dec, err := charmap.Windows1251.NewDecoder().Bytes(b)
		if err != nil {
			return entity.NormalizedText{}, common.MalformedDocument(err, "decode text")
		}
		s = string(dec)
	}
	lines, pr := assemble([][]string{splitText(s)})
	return entity.NormalizedText{Lines: lines, Pages: pr, Method: constants.ExtractionPlain}, nil
}

func trimBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}

func (n *Normalizer) image(ctx context.Context, doc entity.RawDocument, o callOptions) (entity.NormalizedText, error) {
	raw, err := n.recognize(ctx, doc.Content, o.lang)
	if err != nil {
		return entity.NormalizedText{}, err
	}
	lines, pr := assemble([][]string{raw})
	return entity.NormalizedText{Lines: lines, Pages: pr, Method: constants.ExtractionOCR}, nil
}

func (n *Normalizer) pdf(ctx context.Context, doc entity.RawDocument, o callOptions) (entity.NormalizedText, error) {
	var warnings []string

	if n.cfg.PreferTextLayer && n.textLayer != nil {
		if out, ok := n.pdfTextLayer(ctx, doc); ok {
			return out, nil
		}
	}

	dpi := o.dpi
	if dpi <= 0 {
		dpi = n.cfg.DPI
	}
	if dpi > MaxDPI {
		warnings = append(warnings, fmt.Sprintf("dpi %d exceeds maximum, clamped to %d", dpi, MaxDPI))
		dpi = MaxDPI
	}

	images, truncated, err := n.renderer.Render(ctx, doc.Content, dpi, n.cfg.MaxPages)
	if err != nil {
		return entity.NormalizedText{}, n.classify(ctx, ctx, err)
	}
	if truncated {
		warnings = append(warnings, fmt.Sprintf("document has more than %d pages; later pages were not processed", n.cfg.MaxPages))
	}

	pages := make([][]string, 0, len(images))
	for i, img := range images {
		raw, err := n.recognize(ctx, img, o.lang)
		if err != nil {
			if errors.Is(err, common.ErrNoTextDetected) {
				pages = append(pages, nil)
				continue
			}
			n.logger.Warn("page ocr failed", "filename", doc.Filename, "page", i+1, "error", err)
			return entity.NormalizedText{}, err
		}
		pages = append(pages, raw)
	}
	lines, pr := assemble(pages)
	return entity.NormalizedText{Lines: lines, Pages: pr, Method: constants.ExtractionOCR, Warnings: warnings}, nil
}

func (n *Normalizer) pdfTextLayer(ctx context.Context, doc entity.RawDocument) (entity.NormalizedText, bool) {
	texts, err := n.textLayer.Pages(ctx, doc.Content, doc.Filename)
	if err != nil {
		n.logger.Debug("pdf text layer unavailable", "filename", doc.Filename, "error", err)
		return entity.NormalizedText{}, false
	}
	if !textLayerUsable(strings.Join(texts, "\n")) {
		return entity.NormalizedText{}, false
	}
	var warnings []string
	if len(texts) > n.cfg.MaxPages {
		texts = texts[:n.cfg.MaxPages]
		warnings = append(warnings, fmt.Sprintf("document has more than %d pages; later pages were not processed", n.cfg.MaxPages))
	}
	pages := make([][]string, len(texts))
	for i, t := range texts {
		pages[i] = splitText(t)
	}
	lines, pr := assemble(pages)
	return entity.NormalizedText{Lines: lines, Pages: pr, Method: constants.ExtractionTextLayer, Warnings: warnings}, true
}

// recognize runs one bounded OCR call.
func (n *Normalizer) recognize(ctx context.Context, img []byte, lang string) ([]string, error) {
	callCtx, cancel := common.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	lines, err := n.svc.RecognizeImage(callCtx, img, lang)
	if err != nil {
		return nil, n.classify(ctx, callCtx, err)
	}
	if !hasText(lines) {
		return nil, common.NoTextDetected("ocr returned no text")
	}
	return lines, nil
}

// classify turns an untyped failure into one of the normalization errors.
// Any deadline is an OCR timeout; explicit cancellation of the parent is
// reported as Cancelled.
func (n *Normalizer) classify(parent, call context.Context, err error) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return common.Cancelled(parent.Err(), "normalization cancelled")
	}
	if errors.Is(call.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return common.OCRUnavailable(err, "ocr timed out")
	}
	if common.Kind(err) != common.CodeInternal {
		return err
	}
	return common.OCRUnavailable(err, "ocr failed")
}
