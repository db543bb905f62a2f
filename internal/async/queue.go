// Package async carries invoice batches through a Redis-backed task queue.
package async

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// TypeInvoiceBatch is the asynq task type for a batch of documents.
const TypeInvoiceBatch = "invoice:batch"

const (
	MaxRefLength      = 128
	MaxFilenameLength = 255
)

// TaskDocument is a RawDocument with its content serialized.
type TaskDocument struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type,omitempty"`
	Content  []byte `json:"content"`
}

// BatchPayload is the task body. Ref is caller supplied and echoed in logs
// and output file names.
type BatchPayload struct {
	Ref         string         `json:"ref"`
	Documents   []TaskDocument `json:"documents"`
	SubmittedAt time.Time      `json:"submitted_at"`
	TraceID     string         `json:"trace_id,omitempty"`
}

// Validate checks the fields a worker relies on. Content is not inspected;
// unreadable documents fail individually.
func (p BatchPayload) Validate() error {
	v := common.NewValidator().
		Field("ref", p.Ref, common.Required, common.MaxLength(MaxRefLength)).
		Field("documents", len(p.Documents), common.MinCount(1))
	for i, d := range p.Documents {
		v.Field(fmt.Sprintf("documents[%d].filename", i), d.Filename, common.Required, common.MaxLength(MaxFilenameLength))
	}
	return v.Error()
}

func (p BatchPayload) RawDocuments() []entity.RawDocument {
	out := make([]entity.RawDocument, len(p.Documents))
	for i, d := range p.Documents {
		out[i] = entity.RawDocument{Filename: d.Filename, MIMEType: d.MIMEType, Content: d.Content}
	}
	return out
}

func NewBatchPayload(ref string, docs []entity.RawDocument) BatchPayload {
	p := BatchPayload{Ref: ref, SubmittedAt: time.Now().UTC(), Documents: make([]TaskDocument, len(docs))}
	for i, d := range docs {
		p.Documents[i] = TaskDocument{Filename: d.Filename, MIMEType: d.MIMEType, Content: d.Content}
	}
	return p
}

func NewBatchTask(p BatchPayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal batch payload: %w", err)
	}
	return asynq.NewTask(TypeInvoiceBatch, b), nil
}

// Queue submits batches for background processing.
type Queue interface {
	EnqueueBatch(ctx context.Context, p BatchPayload) (string, error)
	Close() error
}

// Client enqueues batches on one asynq queue.
type Client struct {
	client   *asynq.Client
	queue    string
	maxRetry int
}

// NewClient connects to the Redis at redisURL (redis://host:port/db).
func NewClient(redisURL, queue string) (*Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if queue == "" {
		queue = "invoices"
	}
	return &Client{client: asynq.NewClient(opt), queue: queue, maxRetry: 3}, nil
}

// EnqueueBatch returns the task id. Invalid payloads are rejected before they reach Redis.
func (c *Client) EnqueueBatch(ctx context.Context, p BatchPayload) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	task, err := NewBatchTask(p)
	if err != nil {
		return "", err
	}
	info, err := c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue), asynq.MaxRetry(c.maxRetry))
	if err != nil {
		return "", fmt.Errorf("enqueue batch: %w", err)
	}
	return info.ID, nil
}

func (c *Client) Close() error { return c.client.Close() }
