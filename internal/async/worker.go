package async

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// BatchRunner runs a batch; pipeline.BatchProcessor satisfies it.
type BatchRunner interface {
	ProcessBatch(ctx context.Context, docs []entity.RawDocument) entity.BatchResult
}

// ResultSink stores a finished batch.
type ResultSink interface {
	Store(ctx context.Context, ref string, res entity.BatchResult) error
}

// Handler processes invoice batch tasks.
type Handler struct {
	Runner BatchRunner
	Sink   ResultSink
	Logger *slog.Logger
}

func NewHandler(runner BatchRunner, sink ResultSink, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Runner: runner, Sink: sink, Logger: logger}
}

// ProcessTask runs the batch and stores its result. It returns an error, and
// so asks asynq to retry, only when nothing succeeded and every failure is
// retryable, or when the result could not be stored.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p BatchPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal batch payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := p.Validate(); err != nil {
		h.Logger.Error("async.batch.invalid", "ref", p.Ref, "error", err)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if p.TraceID != "" {
		ctx = common.WithRequestID(ctx, p.TraceID)
	}
	start := time.Now()
	h.Logger.Info("async.batch.start", "ref", p.Ref, "documents", len(p.Documents))

	res := h.Runner.ProcessBatch(ctx, p.RawDocuments())
	if allRetryable(res) {
		h.Logger.Warn("async.batch.retry", "ref", p.Ref, "batch_id", res.ID.String(), "failed", res.Stats.Failed)
		return common.OCRUnavailable(nil, "batch %s: every document failed with a retryable error", p.Ref)
	}
	if h.Sink != nil {
		if err := h.Sink.Store(ctx, p.Ref, res); err != nil {
			return fmt.Errorf("store batch result: %w", err)
		}
	}
	h.Logger.Info("async.batch.done",
		"ref", p.Ref,
		"batch_id", res.ID.String(),
		"succeeded", res.Stats.Succeeded,
		"failed", res.Stats.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func allRetryable(res entity.BatchResult) bool {
	if res.Stats.Succeeded > 0 || len(res.Outcomes) == 0 {
		return false
	}
	for _, o := range res.Outcomes {
		if o.Error == nil || !o.Error.Retryable {
			return false
		}
	}
	return true
}

// ServerConfig configures the task server.
type ServerConfig struct {
	RedisURL    string
	Queue       string
	Concurrency int
}

// NewServer builds the asynq server and a mux with the batch handler registered.
func NewServer(cfg ServerConfig, h *Handler) (*asynq.Server, *asynq.ServeMux, error) {
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.Queue == "" {
		cfg.Queue = "invoices"
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{cfg.Queue: 10, "default": 1},
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			// 10s, 20s, 40s, capped at 2m
			return min(time.Duration(10*(1<<uint(n)))*time.Second, 2*time.Minute)
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			h.Logger.Error("async.task.failed", "type", task.Type(), "error", err)
		}),
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeInvoiceBatch, h.ProcessTask)
	return srv, mux, nil
}
