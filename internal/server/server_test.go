package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/async"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

func init() { gin.SetMode(gin.TestMode) }

// echoRunner succeeds for every document except one whose content is "bad".
type echoRunner struct{ calls int }

func (r *echoRunner) ProcessBatch(_ context.Context, docs []entity.RawDocument) entity.BatchResult {
	r.calls++
	res := entity.BatchResult{}
	for i, d := range docs {
		o := entity.DocumentOutcome{Index: i, Provenance: entity.Provenance{Filename: d.Filename, Size: d.Size(), Format: d.Format()}}
		if string(d.Content) == "bad" {
			o.Status = constants.OutcomeFailed
			o.Error = &entity.OutcomeError{Kind: common.CodeMalformedDocument, Message: "corrupt"}
		} else {
			o.Status = constants.OutcomeOK
			o.Invoice = &entity.ParsedInvoice{}
			o.Category = &entity.CategoryAssignment{Category: constants.General, Method: constants.MethodDefault}
			o.Text = string(d.Content)
		}
		res.Outcomes = append(res.Outcomes, o)
	}
	return res
}

type fakeQueue struct {
	got []async.BatchPayload
	err error
}

func (q *fakeQueue) EnqueueBatch(_ context.Context, p async.BatchPayload) (string, error) {
	q.got = append(q.got, p)
	return "task-1", q.err
}

func (q *fakeQueue) Close() error { return nil }

type fakeHealth struct{ err error }

func (f fakeHealth) HealthCheck(context.Context, time.Duration, *slog.Logger) error { return f.err }

type upload struct{ field, name, body string }

func multipartRequest(t *testing.T, path string, files ...upload) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		part.Write([]byte(f.body))
	}
	w.Close()
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func multipartRequestWithRef(t *testing.T, path, ref string, files ...upload) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("ref", ref); err != nil {
		t.Fatalf("WriteField() error = %v", err)
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		part.Write([]byte(f.body))
	}
	w.Close()
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(h *InvoiceHandler, req *http.Request) (*httptest.ResponseRecorder, Response) {
	rec := httptest.NewRecorder()
	NewRouter(h, nil).ServeHTTP(rec, req)
	var resp Response
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestRecognize(t *testing.T) {
	tests := []struct {
		name       string
		files      []upload
		limits     common.ServerConfig
		wantStatus int
		wantOK     bool
		wantKind   string
	}{
		{"ok", []upload{{"file", "счет.txt", "Счет № 1"}}, common.ServerConfig{}, http.StatusOK, true, ""},
		{"document failure", []upload{{"file", "scan.pdf", "bad"}}, common.ServerConfig{}, http.StatusUnprocessableEntity, false, common.CodeMalformedDocument},
		{"missing field", []upload{{"other", "a.txt", "x"}}, common.ServerConfig{}, http.StatusBadRequest, false, common.CodeInvalidInput},
		{"too large", []upload{{"file", "a.txt", "0123456789"}}, common.ServerConfig{MaxUploadBytes: 4}, http.StatusBadRequest, false, common.CodeInvalidInput},
		{"name too long", []upload{{"file", strings.Repeat("a", 300) + ".txt", "x"}}, common.ServerConfig{}, http.StatusBadRequest, false, common.CodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewInvoiceHandler(&echoRunner{}, nil, nil, tt.limits, nil)
			rec, resp := serve(h, multipartRequest(t, "/api/v1/invoices/recognize", tt.files...))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if resp.Success != tt.wantOK {
				t.Errorf("success = %v, want %v", resp.Success, tt.wantOK)
			}
			if tt.wantKind != "" && (resp.Error == "" || resp.ErrorKind != tt.wantKind) {
				t.Errorf("error = %q kind = %q, want kind %s", resp.Error, resp.ErrorKind, tt.wantKind)
			}
			if rec.Header().Get(requestIDHeader) == "" {
				t.Error("response has no request id")
			}
		})
	}
}

func TestRecognize_Envelope(t *testing.T) {
	h := NewInvoiceHandler(&echoRunner{}, nil, nil, common.ServerConfig{}, nil)

	rec, _ := serve(h, multipartRequest(t, "/api/v1/invoices/recognize", upload{"file", "a.txt", "Счет № 1"}))
	var ok struct {
		Data       entity.ParsedInvoice       `json:"data"`
		Category   *entity.CategoryAssignment `json:"category"`
		Provenance *entity.Provenance         `json:"provenance"`
		Error      *string                    `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &ok); err != nil {
		t.Fatalf("decode success body %s: %v", rec.Body.String(), err)
	}
	if ok.Category == nil || ok.Category.Category != constants.General {
		t.Errorf("category = %+v, want general beside data", ok.Category)
	}
	if ok.Provenance == nil || ok.Provenance.Filename != "a.txt" {
		t.Errorf("provenance = %+v, want a.txt", ok.Provenance)
	}
	if ok.Error != nil {
		t.Errorf("error = %q, want absent on success", *ok.Error)
	}

	rec, _ = serve(h, multipartRequest(t, "/api/v1/invoices/recognize", upload{"file", "scan.pdf", "bad"}))
	var failed map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &failed); err != nil {
		t.Fatalf("decode failure body: %v", err)
	}
	if msg, _ := failed["error"].(string); msg != "corrupt" {
		t.Errorf("error = %v, want the message string \"corrupt\"", failed["error"])
	}
	if kind, _ := failed["error_kind"].(string); kind != common.CodeMalformedDocument {
		t.Errorf("error_kind = %v, want %s", failed["error_kind"], common.CodeMalformedDocument)
	}
	if _, has := failed["data"]; has {
		t.Errorf("data = %v, want absent on failure", failed["data"])
	}
}

func TestRecognize_FileInfo(t *testing.T) {
	h := NewInvoiceHandler(&echoRunner{}, nil, nil, common.ServerConfig{}, nil)
	_, resp := serve(h, multipartRequest(t, "/api/v1/invoices/recognize", upload{"file", "dir/Счет.TXT", "Итого 100"}))

	want := FileInfo{Name: "Счет.TXT", Size: len("Итого 100"), Type: string(constants.FormatText), Extension: "txt"}
	if resp.FileInfo == nil || *resp.FileInfo != want {
		t.Errorf("file_info = %+v, want %+v", resp.FileInfo, want)
	}
	if resp.OCRText != "Итого 100" {
		t.Errorf("ocr_text = %q, want the normalized text", resp.OCRText)
	}
}

func TestBatch(t *testing.T) {
	runner := &echoRunner{}
	h := NewInvoiceHandler(runner, nil, nil, common.ServerConfig{MaxBatchFiles: 2}, nil)

	rec, resp := serve(h, multipartRequest(t, "/api/v1/invoices/batch",
		upload{"files", "a.txt", "Счет"}, upload{"files", "b.txt", "bad"}))
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("status = %d success = %v, want 200 true", rec.Code, resp.Success)
	}
	var body struct {
		Data entity.BatchResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data.Outcomes) != 2 || !body.Data.Outcomes[0].OK() || body.Data.Outcomes[1].OK() {
		t.Errorf("outcomes = %+v, want ok then failed", body.Data.Outcomes)
	}

	rec, _ = serve(h, multipartRequest(t, "/api/v1/invoices/batch",
		upload{"files", "a.txt", "1"}, upload{"files", "b.txt", "2"}, upload{"files", "c.txt", "3"}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("over limit status = %d, want 400", rec.Code)
	}
	if runner.calls != 1 {
		t.Errorf("runner calls = %d, want 1", runner.calls)
	}
}

func TestBatch_OversizeUploadFailsAlone(t *testing.T) {
	runner := &echoRunner{}
	h := NewInvoiceHandler(runner, nil, nil, common.ServerConfig{MaxUploadBytes: 8, MaxBatchFiles: 5}, nil)

	rec, resp := serve(h, multipartRequest(t, "/api/v1/invoices/batch",
		upload{"files", "a.txt", "Счет"}, upload{"files", "big.pdf", "0123456789abcdef"}, upload{"files", "c.txt", "sum"}))
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("status = %d success = %v, want 200 true (body %s)", rec.Code, resp.Success, rec.Body.String())
	}
	var body struct {
		Data entity.BatchResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := body.Data
	if len(got.Outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(got.Outcomes))
	}
	for i, o := range got.Outcomes {
		if o.Index != i {
			t.Errorf("outcome %d index = %d, want %d", i, o.Index, i)
		}
	}
	if !got.Outcomes[0].OK() || !got.Outcomes[2].OK() {
		t.Errorf("outcomes 0 and 2 = %s, %s, want OK", got.Outcomes[0].Status, got.Outcomes[2].Status)
	}
	big := got.Outcomes[1]
	if big.OK() || big.Error == nil || big.Error.Kind != common.CodeInvalidInput || big.Provenance.Filename != "big.pdf" {
		t.Errorf("outcome 1 = %+v, want an InvalidInput failure for big.pdf", big)
	}
	if got.Stats.Total != 3 || got.Stats.Succeeded != 2 || got.Stats.Failed != 1 || got.Stats.ByKind[common.CodeInvalidInput] != 1 {
		t.Errorf("stats = %+v, want 3 total, 2 ok, 1 InvalidInput", got.Stats)
	}

	rec, _ = serve(h, multipartRequest(t, "/api/v1/invoices/batch", upload{"files", "big.pdf", "0123456789abcdef"}))
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusOK || len(body.Data.Outcomes) != 1 || body.Data.Outcomes[0].OK() {
		t.Errorf("status = %d outcomes = %+v, want 200 with one failed outcome", rec.Code, body.Data.Outcomes)
	}
	if runner.calls != 1 {
		t.Errorf("runner calls = %d, want 1", runner.calls)
	}
}

func TestBatchAsync(t *testing.T) {
	t.Run("enqueued", func(t *testing.T) {
		q := &fakeQueue{}
		h := NewInvoiceHandler(&echoRunner{}, q, nil, common.ServerConfig{}, nil)
		req := multipartRequest(t, "/api/v1/invoices/batch/async", upload{"files", "a.pdf", "%PDF"})
		req.Header.Set(requestIDHeader, "req-7")
		rec, resp := serve(h, req)

		if rec.Code != http.StatusAccepted || !resp.Success {
			t.Fatalf("status = %d, want 202", rec.Code)
		}
		if len(q.got) != 1 || len(q.got[0].Documents) != 1 || q.got[0].TraceID != "req-7" || q.got[0].Ref == "" {
			t.Errorf("payload = %+v, want one document traced to req-7", q.got)
		}
	})
	t.Run("queue down", func(t *testing.T) {
		h := NewInvoiceHandler(&echoRunner{}, &fakeQueue{err: errors.New("dial tcp")}, nil, common.ServerConfig{}, nil)
		rec, resp := serve(h, multipartRequest(t, "/api/v1/invoices/batch/async", upload{"files", "a.pdf", "%PDF"}))
		if rec.Code != http.StatusServiceUnavailable || resp.Error == "" || !resp.Retryable {
			t.Errorf("status = %d error = %q retryable = %v, want 503 retryable", rec.Code, resp.Error, resp.Retryable)
		}
	})
	t.Run("oversize upload is not enqueued", func(t *testing.T) {
		q := &fakeQueue{}
		h := NewInvoiceHandler(&echoRunner{}, q, nil, common.ServerConfig{MaxUploadBytes: 8}, nil)
		rec, _ := serve(h, multipartRequest(t, "/api/v1/invoices/batch/async",
			upload{"files", "a.pdf", "%PDF"}, upload{"files", "big.pdf", "0123456789abcdef"}))
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202", rec.Code)
		}
		var body struct {
			Data struct {
				Rejected []entity.DocumentOutcome `json:"rejected"`
			} `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(q.got) != 1 || len(q.got[0].Documents) != 1 || q.got[0].Documents[0].Filename != "a.pdf" {
			t.Errorf("payload = %+v, want only a.pdf", q.got)
		}
		if len(body.Data.Rejected) != 1 || body.Data.Rejected[0].Index != 1 {
			t.Errorf("rejected = %+v, want big.pdf at index 1", body.Data.Rejected)
		}
	})
	t.Run("ref too long", func(t *testing.T) {
		q := &fakeQueue{}
		h := NewInvoiceHandler(&echoRunner{}, q, nil, common.ServerConfig{}, nil)
		req := multipartRequestWithRef(t, "/api/v1/invoices/batch/async", strings.Repeat("r", async.MaxRefLength+1), upload{"files", "a.pdf", "%PDF"})
		rec, resp := serve(h, req)
		if rec.Code != http.StatusBadRequest || resp.ErrorKind != common.CodeInvalidInput {
			t.Errorf("status = %d kind = %q, want 400 InvalidInput", rec.Code, resp.ErrorKind)
		}
		if len(q.got) != 0 {
			t.Errorf("enqueued %d batches, want none", len(q.got))
		}
	})
	t.Run("not configured", func(t *testing.T) {
		h := NewInvoiceHandler(&echoRunner{}, nil, nil, common.ServerConfig{}, nil)
		rec, _ := serve(h, multipartRequest(t, "/api/v1/invoices/batch/async", upload{"files", "a.pdf", "%PDF"}))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})
}

func TestCategories(t *testing.T) {
	h := NewInvoiceHandler(&echoRunner{}, nil, nil, common.ServerConfig{}, nil)
	rec, _ := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil))

	var body struct {
		Data []categoryView `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != len(constants.AllCategories()) {
		t.Errorf("categories = %d, want %d", len(body.Data), len(constants.AllCategories()))
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		health HealthChecker
		want   int
	}{
		{"no database", nil, http.StatusOK},
		{"database ok", fakeHealth{}, http.StatusOK},
		{"database down", fakeHealth{err: errors.New("refused")}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewInvoiceHandler(&echoRunner{}, nil, tt.health, common.ServerConfig{}, nil)
			rec, _ := serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
