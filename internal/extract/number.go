package extract

import (
	"regexp"
	"strings"
)

var (
	// Title with a number sign: "Счет на оплату № 145", "Счет-фактура № А-17", "Invoice No. 88".
	reInvoiceTitle = regexp.MustCompile(`(?i)(?:^|[^\p{L}/])(?:сч[её]т(?:[\s-]*(?:фактура|договор|оферта))?(?:\s+на\s+оплату)?|invoice)\s*(?:№|n[o°]\.?|#|nr\.?)\s*`)
	// Same title without a number sign: "Счет 145 от 15.09.2025".
	reInvoiceTitleBare = regexp.MustCompile(`(?i)(?:^|[^\p{L}/])сч[её]т(?:\s+на\s+оплату)?\s+(\d[\p{L}\p{N}/-]*)\s+от\s+\d`)
	// Loose fallback: "№ 145 от 15.09.2025".
	reNumberFrom = regexp.MustCompile(`(?i)№\s*([\p{L}\p{N}][\p{L}\p{N}/-]*)\s+от\s+[«"]?\d`)

	reNumberToken = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N}/_.-]*`)
	reBankContext = regexp.MustCompile(`(?i)р/с|р/сч|к/с|к/сч|расч[её]тн|корр|бик|лицев|банк`)
	reBIK         = regexp.MustCompile(`^04\d{7}$`)
)

// findNumber returns the invoice number and the index of the line it came from.
// inns are excluded so a tax ID next to a number sign is never taken.
func (x *extraction) findNumber(inns []string) (string, int, bool) {
	innSet := make(map[string]bool, len(inns))
	for _, inn := range inns {
		innSet[inn] = true
	}
	accept := func(line, tok string) (string, bool) {
		tok = strings.TrimRight(tok, ".,:;-/")
		if tok == "" || !strings.ContainsAny(tok, "0123456789") {
			return "", false
		}
		if reBankContext.MatchString(line) && onlyDigits(tok) && len(tok) >= 9 {
			return "", false
		}
		if onlyDigits(tok) && (len(tok) == 20 || reBIK.MatchString(tok) || innSet[tok]) {
			return "", false
		}
		return tok, true
	}

	for i, line := range x.lines {
		loc := reInvoiceTitle.FindStringIndex(line)
		if loc == nil {
			continue
		}
		rest := line[loc[1]:]
		if strings.TrimSpace(rest) == "" && i+1 < len(x.lines) {
			// Number sign at the end of the line; the number starts the next one.
			if tok, ok := accept(x.lines[i+1], reNumberToken.FindString(x.lines[i+1])); ok {
				return tok, i + 1, true
			}
			continue
		}
		if tok, ok := accept(line, reNumberToken.FindString(rest)); ok {
			return tok, i, true
		}
	}

	for i, line := range x.lines {
		if m := reInvoiceTitleBare.FindStringSubmatch(line); m != nil {
			if tok, ok := accept(line, m[1]); ok {
				return tok, i, true
			}
		}
	}

	for i, line := range x.lines {
		if reBankContext.MatchString(line) || reContractWord.MatchString(line) {
			continue
		}
		if m := reNumberFrom.FindStringSubmatch(line); m != nil {
			if tok, ok := accept(line, m[1]); ok {
				return tok, i, true
			}
		}
	}
	return "", -1, false
}

var reContractWord = regexp.MustCompile(`(?i)договор|контракт|доверенност|заказ|спецификац|накладн|упд`)
