// Package pipeline runs documents through normalization, field extraction and
// category resolution.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/category"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
	"github.com/joseph-ayodele/invoice-pipeline/internal/ocr"
)

// Processor coordinates the OCR stage and the parse stage for one document.
type Processor struct {
	Logger *slog.Logger
	OCR    *OCRStage
	Parse  *ParseStage
}

func NewProcessor(logger *slog.Logger, ocrStage *OCRStage, parse *ParseStage) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{Logger: logger, OCR: ocrStage, Parse: parse}
}

// Process runs one document against dir. It never returns an error: failures
// become a FAILED outcome that still carries provenance.
func (p *Processor) Process(ctx context.Context, doc entity.RawDocument, dir category.Directory, lang string, opts ...ocr.Option) (out entity.DocumentOutcome) {
	start := time.Now()
	out.Provenance = newProvenance(doc)
	logger := common.LoggerFromContext(ctx, p.Logger)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline.document.panic", "filename", doc.Filename, "panic", r)
			out = failed(out, common.NewAppError(common.CodeInternal, fmt.Sprintf("panic: %v", r), common.ErrInternal))
		}
		out.Duration = time.Since(start)
	}()

	text, err := p.OCR.Run(ctx, doc, &out.Provenance, opts...)
	if err != nil {
		logger.Warn("pipeline.document.failed", "filename", doc.Filename, "kind", common.Kind(err), "error", err)
		return failed(out, err)
	}

	inv, assignment := p.Parse.Run(text, lang, dir)
	out.Status = constants.OutcomeOK
	out.Invoice = &inv
	out.Category = &assignment
	out.Text = text.Text()

	logger.Info("pipeline.document.ok",
		"filename", doc.Filename,
		"format", out.Provenance.Format,
		"method", out.Provenance.Method,
		"category", assignment.Category,
		"category_method", assignment.Method,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out
}

func newProvenance(doc entity.RawDocument) entity.Provenance {
	return entity.Provenance{
		Filename:  doc.Filename,
		Size:      doc.Size(),
		Format:    doc.Format(),
		Extension: doc.Ext(),
		MIMEType:  doc.MIMEType,
	}
}

func failed(out entity.DocumentOutcome, err error) entity.DocumentOutcome {
	out.Status = constants.OutcomeFailed
	out.Invoice = nil
	out.Category = nil
	out.Error = &entity.OutcomeError{
		Kind:      common.Kind(err),
		Message:   err.Error(),
		Retryable: common.Retryable(err),
	}
	return out
}
