package ocr

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// TextExtractionService extracts raw lines from one format family each.
type TextExtractionService interface {
	RecognizeImage(ctx context.Context, img []byte, lang string) ([]string, error)
	ExtractSpreadsheet(ctx context.Context, content []byte) ([]string, []entity.PageRange, error)
	ExtractWordDocument(ctx context.Context, content []byte) ([]string, error)
}

// Service is the default TextExtractionService.
type Service struct {
	engine  ImageRecognizer
	maxSide int
	logger  *slog.Logger
}

// NewService wraps engine. Images larger than maxSide on either axis are
// downscaled before recognition; zero disables the limit.
func NewService(engine ImageRecognizer, maxSide int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, maxSide: maxSide, logger: logger}
}

func (s *Service) RecognizeImage(ctx context.Context, img []byte, lang string) ([]string, error) {
	prepared, err := preprocess(img, s.maxSide)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("recognizing image", "engine", s.engine.Name(), "bytes", len(prepared), "lang", lang)
	return s.engine.Recognize(ctx, prepared, lang)
}

// ExtractSpreadsheet reads xlsx and xlsm workbooks, and legacy .xls when the
// content is a compound file.
func (s *Service) ExtractSpreadsheet(_ context.Context, content []byte) ([]string, []entity.PageRange, error) {
	if isCompoundFile(content) {
		return xlsLines(content)
	}
	return spreadsheetLines(content)
}

// ExtractWordDocument reads docx, and legacy .doc when the content is a compound file.
func (s *Service) ExtractWordDocument(_ context.Context, content []byte) ([]string, error) {
	if isCompoundFile(content) {
		return docLines(content)
	}
	return wordLines(content)
}
