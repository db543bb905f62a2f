package constants

// Method records which resolution stage produced a category.
type Method string

// Stable values, reported in API responses and reports.
const (
	MethodExactINN       Method = "exact_inn"
	MethodExactName      Method = "exact_name"
	MethodFuzzyName      Method = "fuzzy_name"
	MethodKnownCompany   Method = "keyword_known_company"
	MethodKeywordGeneric Method = "keyword_generic"
	MethodDefault        Method = "default"
)

// OutcomeStatus is the per-document status of a batch run.
type OutcomeStatus string

const (
	OutcomeOK     OutcomeStatus = "OK"
	OutcomeFailed OutcomeStatus = "FAILED"
)

// Extraction methods recorded in provenance.
const (
	ExtractionOCR       = "ocr"
	ExtractionTextLayer = "text_layer"
	ExtractionOffice    = "office"
	ExtractionPlain     = "plain"
)
