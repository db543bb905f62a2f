package constants

import (
	"mime"
	"strings"
)

// Format is the document family a raw upload belongs to.
type Format string

const (
	FormatUnknown     Format = ""
	FormatPDF         Format = "PDF"
	FormatImage       Format = "IMAGE"
	FormatSpreadsheet Format = "SPREADSHEET"
	FormatWord        Format = "WORD"
	FormatText        Format = "TEXT"
)

// FileTypes holds the format values reported in results.
var FileTypes = []string{
	string(FormatPDF),
	string(FormatImage),
	string(FormatSpreadsheet),
	string(FormatWord),
	string(FormatText),
}

// AllowedExtensions holds the extensions accepted by ingestion and upload.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"bmp":  {},
	"gif":  {},
	"tif":  {},
	"tiff": {},
	"webp": {},
	"xlsx": {},
	"xlsm": {},
	"xls":  {},
	"docx": {},
	"doc":  {},
	"txt":  {},
}

var extToFormat = map[string]Format{
	"pdf":  FormatPDF,
	"jpg":  FormatImage,
	"jpeg": FormatImage,
	"png":  FormatImage,
	"bmp":  FormatImage,
	"gif":  FormatImage,
	"tif":  FormatImage,
	"tiff": FormatImage,
	"webp": FormatImage,
	"xlsx": FormatSpreadsheet,
	"xlsm": FormatSpreadsheet,
	"xls":  FormatSpreadsheet,
	"docx": FormatWord,
	"doc":  FormatWord,
	"txt":  FormatText,
}

var mimeToFormat = map[string]Format{
	"application/pdf": FormatPDF,
	"image/jpeg":      FormatImage,
	"image/jpg":       FormatImage,
	"image/png":       FormatImage,
	"image/bmp":       FormatImage,
	"image/gif":       FormatImage,
	"image/tiff":      FormatImage,
	"image/webp":      FormatImage,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       FormatSpreadsheet,
	"application/vnd.ms-excel.sheet.macroenabled.12":                          FormatSpreadsheet,
	"application/vnd.ms-excel":                                                FormatSpreadsheet,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": FormatWord,
	"application/msword": FormatWord,
	"text/plain":         FormatText,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// MapExtToFormat returns the format for an extension, with or without the dot.
func MapExtToFormat(ext string) Format {
	return extToFormat[NormalizeExt(ext)]
}

// MapMIMEToFormat ignores MIME parameters such as charset.
func MapMIMEToFormat(mimeType string) Format {
	if mimeType == "" {
		return FormatUnknown
	}
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(mimeType))
	}
	return mimeToFormat[mt]
}

// DetectFormat prefers a recognized declared MIME type and falls back to the extension.
// Generic types such as application/octet-stream defer to the extension.
func DetectFormat(mimeType, ext string) Format {
	if f := MapMIMEToFormat(mimeType); f != FormatUnknown {
		return f
	}
	return MapExtToFormat(ext)
}

// IsAllowedExt reports whether ingestion accepts the extension.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}
