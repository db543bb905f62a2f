package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// LoadSuppliersFile reads a supplier list from a .json array or the first
// sheet of an .xlsx workbook whose header row names the columns. Every row
// is validated; the first invalid row fails the load.
func LoadSuppliersFile(path string) ([]entity.Supplier, error) {
	out, err := readSuppliersFile(path)
	if err != nil {
		return nil, err
	}
	for i, s := range out {
		if err := ValidateSupplier(s); err != nil {
			return nil, fmt.Errorf("%s row %d: %w", filepath.Base(path), i+1, err)
		}
	}
	return out, nil
}

// ValidateSupplier checks a directory row. Absent optional fields pass.
func ValidateSupplier(s entity.Supplier) error {
	return common.NewValidator().
		Field("name", s.Name, common.Required, common.MaxLength(512)).
		Field("inn", s.INN, common.TaxID).
		Field("kpp", s.KPP, common.KPP).
		Field("category", s.Category, common.CategoryKey).
		Error()
}

func readSuppliersFile(path string) ([]entity.Supplier, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read suppliers: %w", err)
		}
		var out []entity.Supplier
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, fmt.Errorf("decode suppliers: %w", err)
		}
		return out, nil
	case ".xlsx", ".xlsm":
		return loadSuppliersXLSX(path)
	}
	return nil, fmt.Errorf("unsupported supplier file %q", path)
}

var headerAliases = map[string]string{
	"id": "id", "name": "name", "наименование": "name", "название": "name",
	"inn": "inn", "инн": "inn", "kpp": "kpp", "кпп": "kpp",
	"category": "category", "категория": "category",
	"phone": "phone", "телефон": "phone", "email": "email", "e-mail": "email",
	"legal_address": "legal_address", "адрес": "legal_address", "юридический адрес": "legal_address",
}

func loadSuppliersXLSX(path string) ([]entity.Supplier, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open suppliers workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read suppliers sheet: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols := make(map[string]int)
	for i, h := range rows[0] {
		if key, ok := headerAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			cols[key] = i
		}
	}
	if _, ok := cols["name"]; !ok {
		return nil, fmt.Errorf("suppliers sheet %q has no name column", sheets[0])
	}

	cell := func(row []string, key string) string {
		i, ok := cols[key]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	var out []entity.Supplier
	for _, row := range rows[1:] {
		name := cell(row, "name")
		if name == "" {
			continue
		}
		s := entity.Supplier{
			Name:         name,
			INN:          entity.StringPtr(cell(row, "inn")),
			KPP:          entity.StringPtr(cell(row, "kpp")),
			Category:     entity.StringPtr(cell(row, "category")),
			Phone:        entity.StringPtr(cell(row, "phone")),
			Email:        entity.StringPtr(cell(row, "email")),
			LegalAddress: entity.StringPtr(cell(row, "legal_address")),
		}
		if id, err := strconv.ParseInt(cell(row, "id"), 10, 64); err == nil {
			s.ID = id
		}
		out = append(out, s)
	}
	return out, nil
}

// Seed migrates the table and inserts suppliers in order.
func Seed(ctx context.Context, repo SupplierRepository, suppliers []entity.Supplier) error {
	if err := repo.Migrate(ctx); err != nil {
		return err
	}
	for i, s := range suppliers {
		if _, err := repo.Insert(ctx, s); err != nil {
			return fmt.Errorf("seed supplier %d (%s): %w", i+1, s.Name, err)
		}
	}
	return nil
}
