package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

const invoice = `Счет на оплату № 7 от 01.02.2024
Поставщик: ООО "Стекольщик", ИНН 7707083893, КПП 773601001
Всего к оплате: 5 400,00 руб.`

func testConfig() *common.Config {
	cfg := common.LoadConfig()
	cfg.OCR.Engine = "tesseract"
	cfg.Cache.RedisAddr = ""
	cfg.Database.DSN = ""
	cfg.Pipeline.CategoryTablesPath = ""
	cfg.Pipeline.Workers = 2
	return cfg
}

func TestBuild_InMemoryDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suppliers.json")
	data := `[{"id": 1, "name": "ООО Стекольщик", "inn": "7707083893", "category": "glass_units"}]`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	s, err := Build(ctx, testConfig(), DirectoryOptions{InMemory: true, SuppliersFile: path}, NewLogger("error"))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer s.Close()

	if n, err := s.Suppliers.Count(ctx); err != nil || n != 1 {
		t.Fatalf("Count() = %d, %v, want 1", n, err)
	}
	res := s.Batch.ProcessBatch(ctx, []entity.RawDocument{{Filename: "inv.txt", Content: []byte(invoice)}})
	o := res.Outcomes[0]
	if !o.OK() {
		t.Fatalf("outcome = %+v, want OK", o.Error)
	}
	if o.Category.Category != constants.GlassUnits || o.Category.Method != constants.MethodExactINN {
		t.Errorf("category = %s/%s, want glass_units/exact_inn", o.Category.Category, o.Category.Method)
	}
}

func TestBuild_NoDirectory(t *testing.T) {
	s, err := Build(context.Background(), testConfig(), DirectoryOptions{}, NewLogger("error"))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer s.Close()
	if s.DB != nil {
		t.Error("DB opened without DB_URL or -inmem")
	}
}

func TestBuild_BadEngine(t *testing.T) {
	cfg := testConfig()
	cfg.OCR.Engine = "abbyy"
	if _, err := Build(context.Background(), cfg, DirectoryOptions{}, NewLogger("error")); err == nil {
		t.Error("Build() error = nil, want unknown engine")
	}
}

func TestBuild_NilLogger(t *testing.T) {
	s, err := Build(context.Background(), testConfig(), DirectoryOptions{}, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer s.Close()
	if s.logger == nil {
		t.Fatal("logger = nil, want slog.Default()")
	}
	res := s.Batch.ProcessBatch(context.Background(), []entity.RawDocument{{Filename: "inv.txt", Content: []byte(invoice)}})
	if len(res.Outcomes) != 1 || !res.Outcomes[0].OK() {
		t.Errorf("ProcessBatch() = %+v, want one OK outcome", res.Outcomes)
	}
}
