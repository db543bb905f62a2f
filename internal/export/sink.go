package export

import (
	"context"
	"path/filepath"
	"regexp"

	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

var reUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// DirectorySink writes each batch's workbook and report into Dir, in a
// subdirectory named after the batch reference.
type DirectorySink struct {
	Service *Service
	Dir     string
}

func (s DirectorySink) Store(ctx context.Context, ref string, res entity.BatchResult) error {
	dir := s.Dir
	if ref = reUnsafe.ReplaceAllString(ref, "_"); ref != "" {
		dir = filepath.Join(dir, ref)
	}
	xlsxPath, _, err := s.Service.WriteBatch(ctx, dir, res)
	if err != nil {
		return err
	}
	s.Service.logger.Info("export.batch.stored", "batch_id", res.ID.String(), "path", xlsxPath)
	return nil
}
