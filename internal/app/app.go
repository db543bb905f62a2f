// Package app assembles the pipeline from configuration for the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/invoice-pipeline/internal/category"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/extract"
	"github.com/joseph-ayodele/invoice-pipeline/internal/ocr"
	"github.com/joseph-ayodele/invoice-pipeline/internal/pipeline"
	"github.com/joseph-ayodele/invoice-pipeline/internal/repository"
)

// NewLogger returns a JSON logger at the configured level and installs it as default.
func NewLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
	slog.SetDefault(logger)
	return logger
}

// DirectoryOptions select where the supplier directory comes from.
type DirectoryOptions struct {
	// InMemory uses a private sqlite database instead of DB_URL.
	InMemory bool
	// SuppliersFile is a .json or .xlsx directory export. With InMemory it
	// seeds the database; without a database it is used as is.
	SuppliersFile string
}

// Stack is the assembled pipeline plus the resources it holds.
type Stack struct {
	Normalizer *ocr.Normalizer
	Batch      *pipeline.BatchProcessor
	DB         *repository.DB
	Suppliers  repository.SupplierRepository

	redis  *redis.Client
	logger *slog.Logger
}

// Build wires the OCR engine, extractor, resolver and supplier directory.
func Build(ctx context.Context, cfg *common.Config, dir DirectoryOptions, logger *slog.Logger) (*Stack, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Stack{logger: logger}

	normalizer, err := s.newNormalizer(cfg)
	if err != nil {
		return nil, err
	}
	s.Normalizer = normalizer

	tables, err := category.LoadTables(cfg.Pipeline.CategoryTablesPath)
	if err != nil {
		s.Close()
		return nil, err
	}

	source, err := s.supplierSource(ctx, cfg, dir)
	if err != nil {
		s.Close()
		return nil, err
	}

	proc := pipeline.NewProcessor(logger,
		pipeline.NewOCRStage(normalizer, logger),
		pipeline.NewParseStage(
			extract.NewExtractor(extract.Options{OwnINNs: cfg.Pipeline.OwnINNs, Logger: logger}),
			category.NewResolver(tables, logger),
			logger,
		),
	)
	s.Batch = pipeline.NewBatchProcessor(proc, source, logger,
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithDocumentTimeout(cfg.Pipeline.DocumentTimeout),
		pipeline.WithLanguage(cfg.Pipeline.LanguageHint),
	)
	return s, nil
}

func (s *Stack) newNormalizer(cfg *common.Config) (*ocr.Normalizer, error) {
	engine, err := ocr.NewRecognizer(cfg.OCR)
	if err != nil {
		return nil, common.NewAppError("CONFIG_ERROR", "ocr engine", err)
	}
	if cfg.Cache.RedisAddr != "" {
		s.redis = redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		engine = ocr.NewCachingRecognizer(engine, s.redis, cfg.Cache.TTL, s.logger)
		s.logger.Info("ocr cache enabled", "addr", cfg.Cache.RedisAddr, "ttl", cfg.Cache.TTL)
	}

	var textLayer ocr.TextLayer
	if cfg.OCR.PreferTextLayer {
		textLayer = ocr.EinoTextLayer{}
	}
	return ocr.NewNormalizer(ocr.Config{
		DPI:             cfg.OCR.DPI,
		MaxPages:        cfg.OCR.MaxPages,
		Timeout:         cfg.OCR.Timeout,
		Language:        cfg.OCR.Language,
		PreferTextLayer: cfg.OCR.PreferTextLayer,
	},
		ocr.NewService(engine, cfg.OCR.MaxImageSide, s.logger),
		ocr.NewPdftoppmRenderer(cfg.OCR.PdftoppmPath, ocr.ExecRunner{Logger: s.logger}, s.logger),
		textLayer,
		s.logger,
	), nil
}

func (s *Stack) supplierSource(ctx context.Context, cfg *common.Config, dir DirectoryOptions) (pipeline.SupplierSource, error) {
	dbCfg := cfg.Database
	switch {
	case dir.InMemory:
		dbCfg.Driver = "sqlite"
		dbCfg.DSN = ""
	case dbCfg.DSN == "":
		if dir.SuppliersFile == "" {
			s.logger.Warn("no supplier directory configured; only keyword rules will categorize")
			return pipeline.StaticSource(nil), nil
		}
		suppliers, err := repository.LoadSuppliersFile(dir.SuppliersFile)
		if err != nil {
			return nil, err
		}
		s.logger.Info("supplier directory loaded from file", "path", dir.SuppliersFile, "suppliers", len(suppliers))
		return pipeline.StaticSource(suppliers), nil
	}

	db, err := repository.Open(ctx, dbCfg, s.logger)
	if err != nil {
		return nil, err
	}
	s.DB = db
	s.Suppliers = repository.NewSupplierRepository(db, s.logger)

	if !dir.InMemory {
		return s.Suppliers, nil
	}
	if dir.SuppliersFile == "" {
		if err := s.Suppliers.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate suppliers: %w", err)
		}
		return s.Suppliers, nil
	}
	rows, err := repository.LoadSuppliersFile(dir.SuppliersFile)
	if err != nil {
		return nil, err
	}
	if err := repository.Seed(ctx, s.Suppliers, rows); err != nil {
		return nil, fmt.Errorf("seed suppliers: %w", err)
	}
	s.logger.Info("in-memory supplier directory seeded", "suppliers", len(rows))
	return s.Suppliers, nil
}

// Close releases the database and cache connections.
func (s *Stack) Close() {
	if s.DB != nil {
		s.DB.Close(s.logger)
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("close redis", "error", err)
		}
	}
}
