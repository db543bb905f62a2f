package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// FSIngestor reads invoice files from the local filesystem.
type FSIngestor struct {
	Seen     Deduper // nil disables deduplication
	MaxBytes int64   // 0 = unlimited
	Logger   *slog.Logger
}

func NewFSIngestor(seen Deduper, maxBytes int64, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{Seen: seen, MaxBytes: maxBytes, Logger: logger}
}

// ReadPath loads one file. A file whose content was seen before is returned
// with Deduplicated set and no document.
func (i *FSIngestor) ReadPath(ctx context.Context, path string) (*entity.RawDocument, IngestionResult, error) {
	out := IngestionResult{SourcePath: path}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, out, err
	}
	out.SourcePath = abs

	ext := constants.NormalizeExt(filepath.Ext(abs))
	out.FileExt = ext
	if ext == "" || !AllowedExt(ext) {
		i.Logger.Debug("unsupported or missing extension", "path", abs, "ext", ext)
		return nil, out, fmt.Errorf("unsupported or missing extension %q", ext)
	}

	st, err := os.Stat(abs)
	if err != nil {
		return nil, out, err
	}
	if i.MaxBytes > 0 && st.Size() > i.MaxBytes {
		return nil, out, fmt.Errorf("file is %d bytes, limit is %d", st.Size(), i.MaxBytes)
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		i.Logger.Error("read file failed", "path", abs, "error", err)
		return nil, out, err
	}
	out.HashHex = ContentHash(content)
	out.Size = int64(len(content))

	if i.Seen != nil {
		isNew, err := i.Seen.MarkNew(ctx, out.HashHex)
		if err != nil {
			// dedup is an optimization; process the file anyway
			i.Logger.Warn("dedup check failed", "path", abs, "error", err)
		} else if !isNew {
			out.Deduplicated = true
			return nil, out, nil
		}
	}

	return &entity.RawDocument{
		Filename:  filepath.Base(abs),
		Extension: ext,
		Content:   content,
	}, out, nil
}

// LoadDirectory walks root in lexical order and reads every allowed file.
// Per-file failures are recorded and do not stop the walk.
func (i *FSIngestor) LoadDirectory(ctx context.Context, root string, skipHidden bool) ([]entity.RawDocument, []IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, nil, DirStats{}, errors.New("root path is required")
	}

	var (
		docs    []entity.RawDocument
		results []IngestionResult
		stats   DirStats
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		doc, r, err := i.ReadPath(ctx, path)
		if err != nil {
			r.Err = err.Error()
			results = append(results, r)
			stats.Failed++
			return nil
		}
		results = append(results, r)
		stats.Succeeded++
		if r.Deduplicated {
			stats.Deduplicated++
			return nil
		}
		docs = append(docs, *doc)
		return nil
	})
	if err != nil {
		return docs, results, stats, fmt.Errorf("walk: %w", err)
	}
	i.Logger.Info("directory loaded",
		"root", root,
		"matched", stats.Matched,
		"documents", len(docs),
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)
	return docs, results, stats, nil
}

// ContentHash is the dedup key of a document: hex sha256 of its bytes.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
