package entity

import (
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
)

// RawDocument is an uploaded or ingested file before normalization.
type RawDocument struct {
	Filename  string `json:"filename"`
	MIMEType  string `json:"mime_type,omitempty"`
	Extension string `json:"extension,omitempty"`
	Content   []byte `json:"-"`
}

func (d RawDocument) Size() int { return len(d.Content) }

// Ext returns the declared extension, falling back to the filename's.
func (d RawDocument) Ext() string {
	if d.Extension != "" {
		return constants.NormalizeExt(d.Extension)
	}
	return constants.NormalizeExt(filepath.Ext(d.Filename))
}

// Format is the family the document is processed as.
func (d RawDocument) Format() constants.Format {
	return constants.DetectFormat(d.MIMEType, d.Ext())
}

// PageRange is a half-open range of line indexes that came from one page or sheet.
type PageRange struct {
	Page  int `json:"page"`
	Start int `json:"start"`
	End   int `json:"end"`
}

// NormalizedText is the cleaned text of a document, in reading order.
type NormalizedText struct {
	Lines     []string         `json:"lines"`
	Format    constants.Format `json:"format"`
	CharCount int              `json:"char_count"`
	Pages     []PageRange      `json:"pages,omitempty"`
	Method    string           `json:"method"`
	Warnings  []string         `json:"warnings,omitempty"`
}

func (n NormalizedText) Text() string {
	return strings.Join(n.Lines, "\n")
}

// NewNormalizedText builds a NormalizedText from plain text, one line per newline.
func NewNormalizedText(text string, format constants.Format) NormalizedText {
	lines := strings.Split(text, "\n")
	return NormalizedText{
		Lines:     lines,
		Format:    format,
		CharCount: countChars(lines),
		Pages:     []PageRange{{Page: 1, Start: 0, End: len(lines)}},
	}
}

func countChars(lines []string) int {
	n := 0
	for _, l := range lines {
		n += len([]rune(l))
	}
	return n
}

// CountChars counts non-newline characters across lines.
func CountChars(lines []string) int { return countChars(lines) }
