package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
)

// Provenance identifies the source of an outcome, success or failure.
type Provenance struct {
	Filename  string           `json:"filename"`
	Size      int              `json:"size"`
	Format    constants.Format `json:"format"`
	Extension string           `json:"extension,omitempty"`
	MIMEType  string           `json:"mime_type,omitempty"`
	Method    string           `json:"method,omitempty"`
	Pages     int              `json:"pages,omitempty"`
	Warnings  []string         `json:"warnings,omitempty"`
}

// OutcomeError is the client facing form of a document failure.
type OutcomeError struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// DocumentOutcome is the result for one input document. Exactly one of
// Invoice or Error is set.
type DocumentOutcome struct {
	Index      int                     `json:"index"`
	Status     constants.OutcomeStatus `json:"status"`
	Provenance Provenance              `json:"provenance"`
	Invoice    *ParsedInvoice          `json:"invoice,omitempty"`
	Category   *CategoryAssignment     `json:"category,omitempty"`
	Error      *OutcomeError           `json:"error,omitempty"`
	Duration   time.Duration           `json:"duration_ns"`

	// Text is the normalized text, kept for API responses and debugging.
	Text string `json:"-"`
}

func (o DocumentOutcome) OK() bool { return o.Status == constants.OutcomeOK }

// BatchStats summarizes a batch run.
type BatchStats struct {
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	ByKind    map[string]int `json:"by_kind,omitempty"`
	Suppliers int            `json:"suppliers"`
	Duration  time.Duration  `json:"duration_ns"`
}

// BatchResult holds one outcome per input document, in input order.
type BatchResult struct {
	ID       uuid.UUID         `json:"id"`
	Outcomes []DocumentOutcome `json:"outcomes"`
	Warnings []string          `json:"warnings,omitempty"`
	Stats    BatchStats        `json:"stats"`
}

// Tally recounts Total, Succeeded, Failed and ByKind from Outcomes.
func (r *BatchResult) Tally() {
	r.Stats.Total, r.Stats.Succeeded, r.Stats.Failed = len(r.Outcomes), 0, 0
	r.Stats.ByKind = map[string]int{}
	for _, o := range r.Outcomes {
		if o.OK() {
			r.Stats.Succeeded++
			continue
		}
		r.Stats.Failed++
		if o.Error != nil {
			r.Stats.ByKind[o.Error.Kind]++
		}
	}
}
