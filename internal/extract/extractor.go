// Package extract turns normalized invoice text into structured fields.
//
// Extraction is pure and total: it never fails, and a field that cannot be
// recognized is left nil. Matching is line oriented and uses Unicode-aware
// patterns, since Go's \b only understands ASCII word characters.
package extract

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// Options configure an Extractor.
type Options struct {
	// OwnINNs are tax IDs of the receiving company. They are reported in all_inns
	// but never chosen as the contractor's INN.
	OwnINNs []string
	Logger  *slog.Logger
}

// Extractor is safe for concurrent use; it holds no per-document state.
type Extractor struct {
	own    map[string]struct{}
	logger *slog.Logger
}

func NewExtractor(opts Options) *Extractor {
	own := make(map[string]struct{}, len(opts.OwnINNs))
	for _, inn := range opts.OwnINNs {
		if d := digitsOf(inn); d != "" {
			own[d] = struct{}{}
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{own: own, logger: logger}
}

// extraction carries per-document working state.
type extraction struct {
	lines    []string
	masked   []string
	amounts  [][]amount
	conv     numberConv
	itemRows map[int]bool
	own      map[string]struct{}
	notes    []string
}

func (x *extraction) note(format string, args ...any) {
	x.notes = append(x.notes, fmt.Sprintf(format, args...))
}

// Extract parses text into a ParsedInvoice. langHint selects the number convention ("ru" or "en").
func (e *Extractor) Extract(text entity.NormalizedText, langHint string) (out entity.ParsedInvoice) {
	out = entity.NewParsedInvoice()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("extract.panic", "panic", r)
			out = entity.NewParsedInvoice()
			out.Notes = append(out.Notes, "extraction aborted on unexpected input")
		}
	}()

	x := newExtraction(text.Lines, langHint, e.own)
	out.LooksLikeInvoice = x.looksLikeInvoice()
	if !out.LooksLikeInvoice {
		x.note("document does not look like an invoice")
	}

	x.itemRows = map[int]bool{}
	out.Items = x.findItems()

	parties := x.findParties()
	out.Contractor = parties.contractor()
	if s := parties.seller(); s != nil && s.role != roleSeller && len(out.Contractor.AllINNs) > 1 {
		x.note("contractor inn %s chosen without a seller label", s.inn)
	}
	inns := parties.allINNs()

	numLine := -1
	if number, line, ok := x.findNumber(inns); ok {
		out.Invoice.Number = entity.StringPtr(number)
		numLine = line
	}
	issue, due := x.findDates(numLine)
	out.Invoice.IssueDate = entity.StringPtr(issue)
	out.Invoice.DueDate = entity.StringPtr(due)

	if total, ok := x.findTotal(); ok {
		out.Invoice.TotalAmount = entity.DecimalPtr(total)
	}
	vat := x.findVAT(out.Invoice.TotalAmount)
	out.Invoice.HasVAT = vat.hasVAT
	out.Invoice.VATAmount = vat.amount
	out.Invoice.VATRate = vat.rate

	out.Notes = append(out.Notes, x.notes...)
	e.logger.Debug("extract.ok",
		"lines", len(x.lines),
		"items", len(out.Items),
		"has_number", out.Invoice.Number != nil,
		"has_total", out.Invoice.TotalAmount != nil,
		"has_inn", out.Contractor.INN != nil,
	)
	return out
}

func newExtraction(raw []string, langHint string, own map[string]struct{}) *extraction {
	x := &extraction{
		conv: convFor(langHint),
		own:  own,
	}
	for _, l := range raw {
		for _, part := range strings.Split(l, "\n") {
			x.lines = append(x.lines, cleanLine(part))
		}
	}
	x.masked = make([]string, len(x.lines))
	x.amounts = make([][]amount, len(x.lines))
	for i, l := range x.lines {
		x.masked[i] = maskNonMoney(l)
		x.amounts[i] = scanAmounts(x.masked[i], x.conv)
	}
	return x
}
