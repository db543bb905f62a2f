package entity

import "github.com/joseph-ayodele/invoice-pipeline/constants"

// Supplier is a row of the supplier directory.
type Supplier struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	INN          *string `json:"inn,omitempty"`
	KPP          *string `json:"kpp,omitempty"`
	Category     *string `json:"category,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	Email        *string `json:"email,omitempty"`
	LegalAddress *string `json:"legal_address,omitempty"`
}

// CategoryKey converts the stored category, which may be a key or a display name.
// Empty and unknown values map to the default category.
func (s Supplier) CategoryKey() constants.Category {
	if s.Category == nil {
		return constants.DefaultCategory
	}
	cat, _ := constants.Canonicalize(*s.Category)
	return cat
}

// CategoryAssignment is the resolved category of a document and how it was chosen.
type CategoryAssignment struct {
	Category    constants.Category `json:"category"`
	DisplayName string             `json:"category_name"`
	Method      constants.Method   `json:"method"`
	SupplierID  *int64             `json:"supplier_id,omitempty"`
	MatchedOn   string             `json:"matched_on,omitempty"`
}
