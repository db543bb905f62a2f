package server

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/async"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// Recognize processes a single uploaded file (form field "file"). On success
// data is the parsed invoice; category and provenance sit beside it.
func (h *InvoiceHandler) Recognize(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "multipart field \"file\" is required")
		return
	}
	doc, err := h.readUpload(fh)
	if err != nil {
		fail(c, err)
		return
	}

	res := h.runner.ProcessBatch(c.Request.Context(), []entity.RawDocument{doc})
	o := res.Outcomes[0]
	resp := Response{
		Success:    o.OK(),
		FileInfo:   fileInfo(doc, o.Provenance),
		OCRText:    o.Text,
		Provenance: &o.Provenance,
		Warnings:   res.Warnings,
	}
	status := http.StatusOK
	if o.OK() {
		resp.Data = o.Invoice
		resp.Category = o.Category
	} else {
		resp.Error = o.Error.Message
		resp.ErrorKind = o.Error.Kind
		resp.Retryable = o.Error.Retryable
		status = common.StatusForKind(o.Error.Kind)
	}
	c.JSON(status, resp)
}

// Batch processes every uploaded file (form field "files" or "file") in one
// batch. An upload that cannot be read fails on its own; the rest still run.
func (h *InvoiceHandler) Batch(c *gin.Context) {
	uploads, ok := h.readBatch(c)
	if !ok {
		return
	}
	success(c, http.StatusOK, h.runUploads(c.Request.Context(), uploads))
}

// runUploads processes the readable uploads and merges the rejected ones back
// in upload order.
func (h *InvoiceHandler) runUploads(ctx context.Context, uploads []received) entity.BatchResult {
	docs := make([]entity.RawDocument, 0, len(uploads))
	for _, u := range uploads {
		if u.err == nil {
			docs = append(docs, u.doc)
		}
	}
	res := entity.BatchResult{ID: uuid.New()}
	if len(docs) > 0 {
		res = h.runner.ProcessBatch(ctx, docs)
	}

	outcomes := make([]entity.DocumentOutcome, len(uploads))
	next := 0
	for i, u := range uploads {
		if u.err != nil {
			outcomes[i] = rejected(u)
		} else {
			outcomes[i] = res.Outcomes[next]
			next++
		}
		outcomes[i].Index = i
	}
	res.Outcomes = outcomes
	res.Tally()
	return res
}

// BatchAsync enqueues the readable uploads and returns the task id. Uploads
// that cannot be read are listed in the response and not enqueued.
func (h *InvoiceHandler) BatchAsync(c *gin.Context) {
	if h.queue == nil {
		fail(c, common.OCRUnavailable(nil, "async processing is not configured"))
		return
	}
	ref := c.PostForm("ref")
	if ref == "" {
		ref = uuid.NewString()
	}
	if err := common.NewValidator().Field("ref", ref, common.MaxLength(async.MaxRefLength)).Error(); err != nil {
		fail(c, err)
		return
	}
	uploads, ok := h.readBatch(c)
	if !ok {
		return
	}

	var docs []entity.RawDocument
	var skipped []entity.DocumentOutcome
	for i, u := range uploads {
		if u.err != nil {
			o := rejected(u)
			o.Index = i
			skipped = append(skipped, o)
			continue
		}
		docs = append(docs, u.doc)
	}
	if len(docs) == 0 {
		fail(c, uploads[0].err)
		return
	}

	p := async.NewBatchPayload(ref, docs)
	p.TraceID = common.RequestIDFromContext(c.Request.Context())

	id, err := h.queue.EnqueueBatch(c.Request.Context(), p)
	if err != nil {
		h.logger.Error("enqueue batch failed", "ref", ref, "error", err)
		fail(c, common.OCRUnavailable(err, "queue unavailable"))
		return
	}
	h.logger.Info("batch enqueued", "ref", ref, "task_id", id, "documents", len(docs), "rejected", len(skipped))
	success(c, http.StatusAccepted, gin.H{"task_id": id, "ref": ref, "documents": len(docs), "rejected": skipped})
}

type categoryView struct {
	Key         constants.Category `json:"key"`
	DisplayName string             `json:"display_name"`
}

func (h *InvoiceHandler) Categories(c *gin.Context) {
	all := constants.AllCategories()
	out := make([]categoryView, 0, len(all))
	for _, cat := range all {
		out = append(out, categoryView{Key: cat, DisplayName: cat.DisplayName()})
	}
	success(c, http.StatusOK, out)
}

func (h *InvoiceHandler) Health(c *gin.Context) {
	if h.health != nil {
		if err := h.health.HealthCheck(c.Request.Context(), 2*time.Second, h.logger); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// received is one multipart upload: the document, or why it could not be read.
type received struct {
	doc  entity.RawDocument
	size int64
	err  error
}

func (h *InvoiceHandler) readBatch(c *gin.Context) ([]received, bool) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "multipart form is required")
		return nil, false
	}
	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}
	if len(files) == 0 {
		badRequest(c, "no files uploaded; use the \"files\" field")
		return nil, false
	}
	if len(files) > h.limits.MaxBatchFiles {
		badRequest(c, fmt.Sprintf("too many files: %d, limit is %d", len(files), h.limits.MaxBatchFiles))
		return nil, false
	}
	out := make([]received, len(files))
	for i, fh := range files {
		doc, err := h.readUpload(fh)
		if err != nil {
			h.logger.Warn("upload rejected", "filename", fh.Filename, "error", err)
			doc = uploadDocument(fh, nil)
		}
		out[i] = received{doc: doc, size: fh.Size, err: err}
	}
	return out, true
}

func (h *InvoiceHandler) readUpload(fh *multipart.FileHeader) (entity.RawDocument, error) {
	name := filepath.Base(fh.Filename)
	if err := common.NewValidator().
		Field("filename", name, common.Required, common.MaxLength(async.MaxFilenameLength)).
		Error(); err != nil {
		return entity.RawDocument{}, err
	}
	if fh.Size > h.limits.MaxUploadBytes {
		return entity.RawDocument{}, common.NewAppError(common.CodeInvalidInput,
			fmt.Sprintf("%s is %d bytes, limit is %d", name, fh.Size, h.limits.MaxUploadBytes), common.ErrInvalidInput)
	}
	f, err := fh.Open()
	if err != nil {
		return entity.RawDocument{}, common.NewAppError(common.CodeInvalidInput, "open upload", common.ErrInvalidInput)
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, h.limits.MaxUploadBytes+1))
	if err != nil {
		return entity.RawDocument{}, common.NewAppError(common.CodeInvalidInput, "read upload", common.ErrInvalidInput)
	}
	if int64(len(content)) > h.limits.MaxUploadBytes {
		return entity.RawDocument{}, common.NewAppError(common.CodeInvalidInput,
			fmt.Sprintf("%s exceeds the upload limit", name), common.ErrInvalidInput)
	}
	return uploadDocument(fh, content), nil
}

func uploadDocument(fh *multipart.FileHeader, content []byte) entity.RawDocument {
	return entity.RawDocument{
		Filename:  filepath.Base(fh.Filename),
		MIMEType:  fh.Header.Get("Content-Type"),
		Extension: filepath.Ext(fh.Filename),
		Content:   content,
	}
}

// rejected is the failed outcome of an upload that never reached the pipeline.
func rejected(u received) entity.DocumentOutcome {
	return entity.DocumentOutcome{
		Status: constants.OutcomeFailed,
		Provenance: entity.Provenance{
			Filename:  u.doc.Filename,
			Size:      int(u.size),
			Format:    u.doc.Format(),
			Extension: u.doc.Ext(),
			MIMEType:  u.doc.MIMEType,
		},
		Error: &entity.OutcomeError{Kind: common.Kind(u.err), Message: u.err.Error()},
	}
}

func fileInfo(doc entity.RawDocument, prov entity.Provenance) *FileInfo {
	return &FileInfo{
		Name:      doc.Filename,
		Size:      doc.Size(),
		Type:      string(prov.Format),
		Extension: doc.Ext(),
	}
}
