package async

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

type fakeRunner struct {
	outcomes []entity.DocumentOutcome
	got      []entity.RawDocument
}

func (f *fakeRunner) ProcessBatch(_ context.Context, docs []entity.RawDocument) entity.BatchResult {
	f.got = docs
	res := entity.BatchResult{Outcomes: f.outcomes}
	for _, o := range f.outcomes {
		res.Stats.Total++
		if o.OK() {
			res.Stats.Succeeded++
		} else {
			res.Stats.Failed++
		}
	}
	return res
}

type fakeSink struct {
	refs []string
	err  error
}

func (f *fakeSink) Store(_ context.Context, ref string, _ entity.BatchResult) error {
	f.refs = append(f.refs, ref)
	return f.err
}

func ok() entity.DocumentOutcome { return entity.DocumentOutcome{Status: constants.OutcomeOK} }

func fail(retryable bool) entity.DocumentOutcome {
	return entity.DocumentOutcome{Status: constants.OutcomeFailed, Error: &entity.OutcomeError{Kind: "x", Retryable: retryable}}
}

func TestHandler_ProcessTask(t *testing.T) {
	docs := []entity.RawDocument{{Filename: "a.pdf", MIMEType: "application/pdf", Content: []byte("%PDF")}}

	tests := []struct {
		name      string
		outcomes  []entity.DocumentOutcome
		sinkErr   error
		wantErr   error
		wantStore bool
	}{
		{"success is stored", []entity.DocumentOutcome{ok(), fail(true)}, nil, nil, true},
		{"terminal failures are stored", []entity.DocumentOutcome{fail(false), fail(true)}, nil, nil, true},
		{"all retryable asks for retry", []entity.DocumentOutcome{fail(true), fail(true)}, nil, common.ErrOCRUnavailable, false},
		{"sink failure is returned", []entity.DocumentOutcome{ok()}, errors.New("disk full"), errors.New("any"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{outcomes: tt.outcomes}
			sink := &fakeSink{err: tt.sinkErr}
			task, err := NewBatchTask(NewBatchPayload("ref-1", docs))
			if err != nil {
				t.Fatalf("NewBatchTask() error = %v", err)
			}

			err = NewHandler(runner, sink, nil).ProcessTask(context.Background(), task)
			switch {
			case tt.wantErr == nil && err != nil:
				t.Errorf("ProcessTask() error = %v, want nil", err)
			case tt.wantErr != nil && err == nil:
				t.Errorf("ProcessTask() error = nil, want error")
			case errors.Is(tt.wantErr, common.ErrOCRUnavailable) && !errors.Is(err, common.ErrOCRUnavailable):
				t.Errorf("ProcessTask() error = %v, want OcrUnavailable", err)
			}
			if stored := len(sink.refs) == 1; stored != tt.wantStore {
				t.Errorf("stored = %v, want %v", stored, tt.wantStore)
			}
			if len(runner.got) != 1 || string(runner.got[0].Content) != "%PDF" || runner.got[0].MIMEType != "application/pdf" {
				t.Errorf("runner docs = %+v, want the submitted document", runner.got)
			}
		})
	}
}

func TestHandler_BadPayloadSkipsRetry(t *testing.T) {
	doc := []entity.RawDocument{{Filename: "a.pdf", Content: []byte("%PDF")}}
	tests := []struct {
		name    string
		payload func() []byte
	}{
		{"malformed json", func() []byte { return []byte("{") }},
		{"missing ref", func() []byte { return mustTask(t, NewBatchPayload("", doc)).Payload() }},
		{"no documents", func() []byte { return mustTask(t, NewBatchPayload("ref-1", nil)).Payload() }},
		{"nameless document", func() []byte {
			return mustTask(t, NewBatchPayload("ref-1", []entity.RawDocument{{Content: []byte("x")}})).Payload()
		}},
		{"ref too long", func() []byte { return mustTask(t, NewBatchPayload(strings.Repeat("r", MaxRefLength+1), doc)).Payload() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			err := NewHandler(runner, nil, nil).ProcessTask(context.Background(), asynq.NewTask(TypeInvoiceBatch, tt.payload()))
			if !errors.Is(err, asynq.SkipRetry) {
				t.Errorf("ProcessTask() error = %v, want SkipRetry", err)
			}
			if runner.got != nil {
				t.Errorf("runner called with %d documents, want no call", len(runner.got))
			}
		})
	}
}

func TestBatchPayload_Validate(t *testing.T) {
	p := NewBatchPayload("ref-1", []entity.RawDocument{{Filename: "a.pdf"}, {Filename: ""}})
	err := p.Validate()
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("Validate() error = %v, want validation error", err)
	}
	if !strings.Contains(err.Error(), "documents[1].filename") {
		t.Errorf("Validate() error = %v, want it to name documents[1].filename", err)
	}
	if err := NewBatchPayload("ref-1", []entity.RawDocument{{Filename: "a.pdf"}}).Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func mustTask(t *testing.T, p BatchPayload) *asynq.Task {
	t.Helper()
	task, err := NewBatchTask(p)
	if err != nil {
		t.Fatalf("NewBatchTask() error = %v", err)
	}
	return task
}
