// Package ingest reads invoice files from disk and watches an inbox directory.
package ingest

import (
	"context"
)

// IngestionResult is the per-file ingest outcome.
type IngestionResult struct {
	SourcePath   string `json:"source_path"`
	HashHex      string `json:"hash"`
	FileExt      string `json:"ext"`
	Size         int64  `json:"size"`
	Deduplicated bool   `json:"deduplicated"`
	Err          string `json:"error,omitempty"`
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Deduper remembers content hashes. MarkNew reports true the first time a
// hash is seen.
type Deduper interface {
	MarkNew(ctx context.Context, hashHex string) (bool, error)
}
