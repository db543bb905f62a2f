package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// FileInfo describes the uploaded file.
type FileInfo struct {
	Name      string `json:"name"`
	Size      int    `json:"size"`
	Type      string `json:"type"`
	Extension string `json:"extension"`
}

// Response is the envelope of every API response. On success Data holds the
// payload; on failure Error holds the message and ErrorKind its code.
type Response struct {
	Success    bool                       `json:"success"`
	Data       any                        `json:"data,omitempty"`
	Error      string                     `json:"error,omitempty"`
	ErrorKind  string                     `json:"error_kind,omitempty"`
	Retryable  bool                       `json:"retryable,omitempty"`
	FileInfo   *FileInfo                  `json:"file_info,omitempty"`
	OCRText    string                     `json:"ocr_text,omitempty"`
	Category   *entity.CategoryAssignment `json:"category,omitempty"`
	Provenance *entity.Provenance         `json:"provenance,omitempty"`
	Warnings   []string                   `json:"warnings,omitempty"`
}

func success(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Success: true, Data: data})
}

func fail(c *gin.Context, err error) {
	c.JSON(common.HTTPStatus(err), Response{
		Error:     err.Error(),
		ErrorKind: common.Kind(err),
		Retryable: common.Retryable(err),
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{Error: message, ErrorKind: common.CodeInvalidInput})
}
