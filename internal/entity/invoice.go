package entity

import (
	"github.com/shopspring/decimal"
)

func init() {
	// Amounts are JSON numbers in API responses and exports.
	decimal.MarshalJSONWithoutQuotes = true
}

// ParsedInvoice is the structured result of field extraction.
// Unknown values are nil; strings are never empty.
type ParsedInvoice struct {
	Invoice    InvoiceFields `json:"invoice"`
	Contractor Contractor    `json:"contractor"`
	Items      []LineItem    `json:"items"`

	// Notes describe reconstructions and ambiguities met while extracting.
	Notes []string `json:"notes,omitempty"`
	// LooksLikeInvoice is false for questionnaires, requisites cards and similar paperwork.
	LooksLikeInvoice bool `json:"looks_like_invoice"`
}

type InvoiceFields struct {
	Number      *string          `json:"number"`
	IssueDate   *string          `json:"issue_date"`
	DueDate     *string          `json:"due_date"`
	TotalAmount *decimal.Decimal `json:"total_amount"`
	VATAmount   *decimal.Decimal `json:"vat_amount"`
	VATRate     *decimal.Decimal `json:"vat_rate"`
	HasVAT      bool             `json:"has_vat"`
}

type Contractor struct {
	Name    *string  `json:"name"`
	INN     *string  `json:"inn"`
	AllINNs []string `json:"all_inns"`
	KPP     *string  `json:"kpp"`
	Address *string  `json:"address"`
}

type LineItem struct {
	Position  int              `json:"position"`
	Name      string           `json:"name"`
	Quantity  *decimal.Decimal `json:"quantity"`
	Unit      *string          `json:"unit"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
	LineTotal *decimal.Decimal `json:"line_total"`
}

// NewParsedInvoice returns an empty result with non-nil collections.
func NewParsedInvoice() ParsedInvoice {
	return ParsedInvoice{
		Items:      []LineItem{},
		Contractor: Contractor{AllINNs: []string{}},
	}
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func DecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
