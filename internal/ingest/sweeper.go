package ingest

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// BatchHandler receives the new documents found by a sweep.
type BatchHandler func(ctx context.Context, docs []entity.RawDocument) error

// Sweeper rescans an inbox directory on a cron schedule and hands new
// documents to a handler. It catches files the watcher missed, for example
// those copied in while the worker was down.
type Sweeper struct {
	root    string
	ing     *FSIngestor
	handle  BatchHandler
	logger  *slog.Logger
	cron    *cron.Cron
	running sync.Mutex
}

func NewSweeper(root string, ing *FSIngestor, handle BatchHandler, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{root: root, ing: ing, handle: handle, logger: logger, cron: cron.New()}
}

// Start schedules sweeps (standard five field cron spec) until ctx is done.
func (s *Sweeper) Start(ctx context.Context, spec string) error {
	if _, err := s.cron.AddFunc(spec, func() { s.Sweep(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("inbox sweeper started", "root", s.root, "schedule", spec)
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
		s.logger.Info("inbox sweeper stopped")
	}()
	return nil
}

// Sweep runs one scan. Overlapping sweeps are skipped.
func (s *Sweeper) Sweep(ctx context.Context) {
	if !s.running.TryLock() {
		s.logger.Debug("sweep already running, skipping")
		return
	}
	defer s.running.Unlock()

	docs, _, stats, err := s.ing.LoadDirectory(ctx, s.root, true)
	if err != nil {
		s.logger.Error("inbox sweep failed", "root", s.root, "error", err)
		return
	}
	if len(docs) == 0 {
		return
	}
	if err := s.handle(ctx, docs); err != nil {
		s.logger.Error("inbox batch handler failed", "documents", len(docs), "error", err)
		return
	}
	s.logger.Info("inbox sweep done", "documents", len(docs), "deduplicated", stats.Deduplicated)
}
