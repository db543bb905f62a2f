package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-pipeline/internal/category"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
	"github.com/joseph-ayodele/invoice-pipeline/internal/ocr"
)

// SupplierSource loads the supplier directory.
type SupplierSource interface {
	ListSuppliers(ctx context.Context) ([]entity.Supplier, error)
}

// StaticSource serves a fixed supplier list.
type StaticSource []entity.Supplier

func (s StaticSource) ListSuppliers(context.Context) ([]entity.Supplier, error) { return s, nil }

// BatchProcessor runs a batch on a bounded worker pool. The directory is read
// once per batch so every document sees the same snapshot.
type BatchProcessor struct {
	proc    *Processor
	source  SupplierSource
	logger  *slog.Logger
	workers int
	timeout time.Duration
	lang    string
	ocrOpts []ocr.Option
}

type Option func(*BatchProcessor)

func WithWorkers(n int) Option {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithDocumentTimeout bounds each document's whole run.
func WithDocumentTimeout(d time.Duration) Option {
	return func(b *BatchProcessor) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithLanguage sets the extraction language hint ("ru" or "en").
func WithLanguage(lang string) Option {
	return func(b *BatchProcessor) {
		if lang != "" {
			b.lang = lang
		}
	}
}

// WithOCROptions passes per-call options such as ocr.WithDPI to the normalizer.
func WithOCROptions(opts ...ocr.Option) Option {
	return func(b *BatchProcessor) { b.ocrOpts = append(b.ocrOpts, opts...) }
}

func NewBatchProcessor(proc *Processor, source SupplierSource, logger *slog.Logger, opts ...Option) *BatchProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	b := &BatchProcessor{
		proc:    proc,
		source:  source,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		lang:    "ru",
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// ProcessBatch returns exactly one outcome per document, in input order.
// Cancelling ctx stops new documents from starting; those get a Cancelled outcome.
func (b *BatchProcessor) ProcessBatch(ctx context.Context, docs []entity.RawDocument) entity.BatchResult {
	start := time.Now()
	res := entity.BatchResult{ID: uuid.New(), Outcomes: make([]entity.DocumentOutcome, len(docs))}
	logger := b.logger.With("batch_id", res.ID.String())
	ctx = common.WithLogger(common.WithBatchID(ctx, res.ID.String()), logger)

	snap := b.snapshot(ctx, logger, &res)
	logger.Info("pipeline.batch.start", "documents", len(docs), "workers", b.workers, "suppliers", snap.Len())

	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := min(b.workers, len(docs))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res.Outcomes[i] = b.runOne(ctx, i, docs[i], snap)
			}
		}()
	}

feed:
	for i := range docs {
		select {
		case <-ctx.Done():
			for j := i; j < len(docs); j++ {
				res.Outcomes[j] = cancelledOutcome(j, docs[j], ctx.Err())
			}
			logger.Warn("pipeline.batch.cancelled", "not_started", len(docs)-i)
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	res.Stats = entity.BatchStats{Suppliers: snap.Len(), Duration: time.Since(start)}
	res.Tally()
	logger.Info("pipeline.batch.done",
		"total", res.Stats.Total,
		"succeeded", res.Stats.Succeeded,
		"failed", res.Stats.Failed,
		"duration_ms", res.Stats.Duration.Milliseconds(),
	)
	return res
}

func (b *BatchProcessor) runOne(ctx context.Context, i int, doc entity.RawDocument, dir category.Directory) entity.DocumentOutcome {
	if err := ctx.Err(); err != nil {
		return cancelledOutcome(i, doc, err)
	}
	docCtx, cancel := common.WithTimeout(ctx, b.timeout)
	defer cancel()
	out := b.proc.Process(docCtx, doc, dir, b.lang, b.ocrOpts...)
	out.Index = i
	return out
}

func (b *BatchProcessor) snapshot(ctx context.Context, logger *slog.Logger, res *entity.BatchResult) *category.Snapshot {
	if b.source == nil {
		return category.EmptySnapshot()
	}
	suppliers, err := b.source.ListSuppliers(ctx)
	if err != nil {
		logger.Warn("pipeline.batch.directory.failed", "error", err)
		res.Warnings = append(res.Warnings, "supplier directory unavailable; categories resolved from keywords only")
		return category.EmptySnapshot()
	}
	return category.NewSnapshot(suppliers)
}

func cancelledOutcome(i int, doc entity.RawDocument, cause error) entity.DocumentOutcome {
	out := entity.DocumentOutcome{Index: i, Provenance: newProvenance(doc)}
	return failed(out, common.Cancelled(cause, "batch cancelled before %s started", doc.Filename))
}
