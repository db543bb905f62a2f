// Package server exposes the invoice pipeline over HTTP.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/invoice-pipeline/internal/async"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// BatchRunner processes documents against one directory snapshot.
type BatchRunner interface {
	ProcessBatch(ctx context.Context, docs []entity.RawDocument) entity.BatchResult
}

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	HealthCheck(ctx context.Context, timeout time.Duration, logger *slog.Logger) error
}

// InvoiceHandler serves the invoice endpoints.
type InvoiceHandler struct {
	runner BatchRunner
	queue  async.Queue
	health HealthChecker
	limits common.ServerConfig
	logger *slog.Logger
}

// NewInvoiceHandler wires the handlers. queue and health may be nil: async
// submission then answers 503 and the health check skips the database.
func NewInvoiceHandler(runner BatchRunner, queue async.Queue, health HealthChecker, limits common.ServerConfig, logger *slog.Logger) *InvoiceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if limits.MaxUploadBytes <= 0 {
		limits.MaxUploadBytes = 32 << 20
	}
	if limits.MaxBatchFiles <= 0 {
		limits.MaxBatchFiles = 50
	}
	return &InvoiceHandler{runner: runner, queue: queue, health: health, limits: limits, logger: logger}
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(h *InvoiceHandler, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestContext(logger))
	RegisterRoutes(r, h)
	return r
}

func RegisterRoutes(r *gin.Engine, h *InvoiceHandler) {
	r.GET("/healthz", h.Health)

	api := r.Group("/api/v1")
	{
		invoices := api.Group("/invoices")
		{
			invoices.POST("/recognize", h.Recognize)
			invoices.POST("/batch", h.Batch)
			invoices.POST("/batch/async", h.BatchAsync)
		}
		api.GET("/categories", h.Categories)
	}
}
