package pipeline

import (
	"log/slog"

	"github.com/joseph-ayodele/invoice-pipeline/internal/category"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
	"github.com/joseph-ayodele/invoice-pipeline/internal/extract"
)

// ParseStage extracts invoice fields and resolves the contractor's category.
// It never fails.
type ParseStage struct {
	Extractor *extract.Extractor
	Resolver  *category.Resolver
	Logger    *slog.Logger
}

func NewParseStage(x *extract.Extractor, r *category.Resolver, logger *slog.Logger) *ParseStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ParseStage{Extractor: x, Resolver: r, Logger: logger}
}

func (s *ParseStage) Run(text entity.NormalizedText, lang string, dir category.Directory) (entity.ParsedInvoice, entity.CategoryAssignment) {
	inv := s.Extractor.Extract(text, lang)
	a := s.Resolver.Resolve(dir, entity.Deref(inv.Contractor.Name), entity.Deref(inv.Contractor.INN))
	return inv, a
}
