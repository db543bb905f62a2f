package pipeline

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
	"github.com/joseph-ayodele/invoice-pipeline/internal/ocr"
)

// Normalizer is the text extraction collaborator.
type Normalizer interface {
	Normalize(ctx context.Context, doc entity.RawDocument, opts ...ocr.Option) (entity.NormalizedText, error)
}

// OCRStage turns a raw document into normalized text.
type OCRStage struct {
	Normalizer Normalizer
	Logger     *slog.Logger
}

func NewOCRStage(n Normalizer, logger *slog.Logger) *OCRStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRStage{Normalizer: n, Logger: logger}
}

// Run normalizes doc and records what was learned about it in prov, even on failure.
func (s *OCRStage) Run(ctx context.Context, doc entity.RawDocument, prov *entity.Provenance, opts ...ocr.Option) (entity.NormalizedText, error) {
	text, err := s.Normalizer.Normalize(ctx, doc, opts...)
	if err != nil {
		return entity.NormalizedText{}, err
	}
	prov.Method = text.Method
	prov.Pages = len(text.Pages)
	prov.Warnings = append(prov.Warnings, text.Warnings...)
	return text, nil
}
