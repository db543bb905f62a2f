package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

const (
	invoicesSheet = "Invoices"
	itemsSheet    = "Items"
)

// Service renders batch results as XLSX workbooks and JSON reports.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

var invoiceHeaders = []string{
	"#", "File", "Format", "Status", "Error",
	"Invoice No", "Issue Date", "Due Date",
	"Contractor", "INN", "KPP",
	"Total", "VAT", "VAT Rate", "Has VAT",
	"Category", "Category Method", "Notes",
}

var itemHeaders = []string{"#", "File", "Position", "Name", "Quantity", "Unit", "Unit Price", "Line Total"}

// BatchXLSX returns a workbook with one Invoices row per outcome, in batch
// order, and one Items row per extracted line item.
func (s *Service) BatchXLSX(_ context.Context, res entity.BatchResult) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", invoicesSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(invoicesSheet)
	f.SetActiveSheet(activeIndex)

	writeRow(f, invoicesSheet, 1, toAny(invoiceHeaders))
	writeRow(f, itemsSheet, 1, toAny(itemHeaders))

	itemRow := 2
	for i, o := range res.Outcomes {
		writeRow(f, invoicesSheet, i+2, invoiceRow(o))
		if o.Invoice == nil {
			continue
		}
		for _, it := range o.Invoice.Items {
			writeRow(f, itemsSheet, itemRow, []any{
				o.Index + 1, o.Provenance.Filename, it.Position, it.Name,
				num(it.Quantity), entity.Deref(it.Unit), num(it.UnitPrice), num(it.LineTotal),
			})
			itemRow++
		}
	}

	_ = f.SetColWidth(invoicesSheet, "B", "B", 32) // file
	_ = f.SetColWidth(invoicesSheet, "E", "E", 40) // error
	_ = f.SetColWidth(invoicesSheet, "I", "I", 36) // contractor
	_ = f.SetColWidth(invoicesSheet, "L", "N", 14) // amounts
	_ = f.SetColWidth(invoicesSheet, "R", "R", 60) // notes
	_ = f.SetColWidth(itemsSheet, "D", "D", 48)    // item name

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"batch_id", res.ID.String(),
		"rows", len(res.Outcomes),
		"items", itemRow-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func invoiceRow(o entity.DocumentOutcome) []any {
	row := []any{o.Index + 1, o.Provenance.Filename, string(o.Provenance.Format), string(o.Status)}
	if o.Error != nil {
		return append(row, o.Error.Kind+": "+truncate(o.Error.Message, 200))
	}
	row = append(row, "")
	if o.Invoice == nil {
		return row
	}
	inv := o.Invoice
	row = append(row,
		entity.Deref(inv.Invoice.Number),
		entity.Deref(inv.Invoice.IssueDate),
		entity.Deref(inv.Invoice.DueDate),
		entity.Deref(inv.Contractor.Name),
		entity.Deref(inv.Contractor.INN),
		entity.Deref(inv.Contractor.KPP),
		num(inv.Invoice.TotalAmount),
		num(inv.Invoice.VATAmount),
		num(inv.Invoice.VATRate),
		inv.Invoice.HasVAT,
	)
	if o.Category != nil {
		row = append(row, o.Category.DisplayName, string(o.Category.Method))
	} else {
		row = append(row, "", "")
	}
	return append(row, strings.Join(inv.Notes, "; "))
}

// num keeps empty cells empty instead of writing zero.
func num(d *decimal.Decimal) any {
	if d == nil {
		return ""
	}
	return d.InexactFloat64()
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	cell, _ := excelize.CoordinatesToCellName(1, row)
	_ = f.SetSheetRow(sheet, cell, &values)
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// WriteBatch stores the workbook and a JSON report for res under dir and
// returns their paths.
func (s *Service) WriteBatch(ctx context.Context, dir string, res entity.BatchResult) (xlsxPath, jsonPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create output dir: %w", err)
	}
	base := filepath.Join(dir, "batch-"+res.ID.String())

	wb, err := s.BatchXLSX(ctx, res)
	if err != nil {
		return "", "", err
	}
	if err := os.WriteFile(base+".xlsx", wb, 0o644); err != nil {
		return "", "", fmt.Errorf("write xlsx: %w", err)
	}

	js, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(base+".json", js, 0o644); err != nil {
		return "", "", fmt.Errorf("write report: %w", err)
	}
	return base + ".xlsx", base + ".json", nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
