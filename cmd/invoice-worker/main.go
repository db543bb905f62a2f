package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/invoice-pipeline/internal/app"
	"github.com/joseph-ayodele/invoice-pipeline/internal/async"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
	"github.com/joseph-ayodele/invoice-pipeline/internal/export"
	"github.com/joseph-ayodele/invoice-pipeline/internal/ingest"
)

const seenTTL = 30 * 24 * time.Hour

func main() {
	cfg := common.LoadConfig()
	logger := app.NewLogger(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := app.Build(ctx, cfg, app.DirectoryOptions{}, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer stack.Close()

	sink := export.DirectorySink{Service: export.NewService(logger), Dir: cfg.Inbox.OutDir}
	handler := async.NewHandler(stack.Batch, sink, logger)
	srv, mux, err := async.NewServer(async.ServerConfig{
		RedisURL:    cfg.Queue.RedisURL,
		Queue:       cfg.Queue.Queue,
		Concurrency: cfg.Queue.Concurrency,
	}, handler)
	if err != nil {
		logger.Error("failed to create worker", "error", err)
		os.Exit(1)
	}
	if err := srv.Start(mux); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}
	logger.Info("worker started", "queue", cfg.Queue.Queue, "concurrency", cfg.Queue.Concurrency)

	if cfg.Inbox.Dir != "" {
		if err := startInbox(ctx, cfg, logger); err != nil {
			logger.Error("failed to start inbox", "dir", cfg.Inbox.Dir, "error", err)
			srv.Shutdown()
			os.Exit(1)
		}
	}

	<-ctx.Done()
	logger.Info("shutting down worker")
	srv.Shutdown()
}

// startInbox enqueues files dropped into the inbox directory: each new file
// as it appears, plus a periodic sweep for anything the watcher missed.
// Content hashes in Redis keep a file from being processed twice.
func startInbox(ctx context.Context, cfg *common.Config, logger *slog.Logger) error {
	opt, err := redis.ParseURL(cfg.Queue.RedisURL)
	if err != nil {
		return err
	}
	rdb := redis.NewClient(opt)
	go func() {
		<-ctx.Done()
		_ = rdb.Close()
	}()

	queue, err := async.NewClient(cfg.Queue.RedisURL, cfg.Queue.Queue)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = queue.Close()
	}()

	seen := ingest.NewRedisSeen(rdb, seenTTL)
	ing := ingest.NewFSIngestor(seen, cfg.Server.MaxUploadBytes, logger)
	enqueue := func(ctx context.Context, docs []entity.RawDocument) error {
		ref := "inbox-" + uuid.NewString()
		id, err := queue.EnqueueBatch(ctx, async.NewBatchPayload(ref, docs))
		if err != nil {
			// unmark so the next sweep retries these files
			for _, d := range docs {
				if ferr := seen.Forget(ctx, ingest.ContentHash(d.Content)); ferr != nil {
					logger.Warn("inbox unmark failed", "filename", d.Filename, "error", ferr)
				}
			}
			return err
		}
		logger.Info("inbox batch enqueued", "ref", ref, "task_id", id, "documents", len(docs))
		return nil
	}

	sweeper := ingest.NewSweeper(cfg.Inbox.Dir, ing, enqueue, logger)
	if err := sweeper.Start(ctx, cfg.Inbox.Schedule); err != nil {
		return err
	}

	events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       []string{cfg.Inbox.Dir},
		InitialScan: true,
		Debounce:    cfg.Inbox.Debounce,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	go func() {
		for {
			select {
			case path, ok := <-events:
				if !ok {
					return
				}
				doc, r, err := ing.ReadPath(ctx, path)
				if err != nil {
					logger.Warn("inbox file skipped", "path", filepath.Base(path), "error", err)
					continue
				}
				if r.Deduplicated {
					continue
				}
				if err := enqueue(ctx, []entity.RawDocument{*doc}); err != nil {
					logger.Error("inbox enqueue failed", "path", filepath.Base(path), "error", err)
				}
			case err, ok := <-errs:
				if !ok {
					return
				}
				logger.Error("inbox watcher error", "error", err)
			}
		}
	}()
	logger.Info("inbox watching", "dir", cfg.Inbox.Dir, "out", cfg.Inbox.OutDir)
	return nil
}
