package extract

import (
	"regexp"

	"github.com/shopspring/decimal"
)

var (
	reVATLabel  = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(?:ндс|vat)(?:[^\p{L}]|$)`)
	reVATRate   = regexp.MustCompile(`^[\s:(]*(\d{1,2}(?:[.,]\d{1,2})?)\s*%\s*\)?`)
	reRateFirst = regexp.MustCompile(`(\d{1,2}(?:[.,]\d{1,2})?)\s*%\s*\)?\s*$`)
	reVATExempt = regexp.MustCompile(`(?i)без\s+(?:ндс|налога\s*\(?\s*ндс)|ндс\s+не\s+облагается|не\s+облагается\s+ндс|не\s+являемся\s+плательщик|освобожд\p{L}*\s+от\s+(?:уплаты\s+)?ндс|упрощ\p{L}*\s+систем|vat\s+exempt|no\s+vat`)
	reSubtotal  = regexp.MustCompile(`(?i)(?:итого|всего|сумма)\s+без\s+(?:ндс|налога)`)
	reVATHeader = regexp.MustCompile(`(?i)ставка\s+ндс|сумма\s+ндс\s*$`)
	// "Итого без НДС: X" is a net amount and "Итого с НДС: X" a gross one; neither is tax.
	reGrossLabel  = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(?:с|включая|с\s+уч[её]том)\s+ндс`)
	reIncludedVAT = regexp.MustCompile(`(?i)в\s*т\.\s*ч\.?\s*ндс|в\s+том\s+числе\s+ндс`)

	statutoryRates = []int64{22, 20, 10, 7, 5}
)

type vatInfo struct {
	hasVAT bool
	amount *decimal.Decimal
	rate   *decimal.Decimal
}

// findVAT reads the tax line. The last labelled line with an amount wins, since totals blocks close the document.
// total is used to derive a missing rate.
func (x *extraction) findVAT(total *decimal.Decimal) vatInfo {
	var info vatInfo
	exempt := false

	for i, line := range x.lines {
		if x.isItemRow(i) || reVATHeader.MatchString(line) {
			continue
		}
		if reVATExempt.MatchString(line) && !reSubtotal.MatchString(line) {
			exempt = true
			continue
		}
		loc := reVATLabel.FindStringIndex(line)
		if loc == nil || reSubtotal.MatchString(line) {
			continue
		}
		if reGrossLabel.MatchString(line) && !reVATIncludedPrefix.MatchString(line) && !reIncludedVAT.MatchString(line) {
			// "Итого с НДС: X" is the gross total.
			continue
		}

		var rate *decimal.Decimal
		from := loc[1]
		if m := reVATRate.FindStringSubmatchIndex(line[from:]); m != nil {
			rate = parseRate(line[from+m[2] : from+m[3]])
			from += m[1]
		} else if m := reRateFirst.FindStringSubmatchIndex(line[:loc[0]+1]); m != nil {
			rate = parseRate(line[m[2]:m[3]])
		}

		amt, ok := pickAmount(x.amountsAfter(i, from))
		if !ok {
			amt, ok = x.amountOnlyLine(i + 1)
		}
		switch {
		case ok && amt.value.LessThan(maxAmount):
			info.hasVAT = true
			info.amount = decimalPtr(amt.value)
			info.rate = rate
		case rate != nil && rate.IsZero():
			info.hasVAT = true
			info.amount = decimalPtr(decimal.Zero)
			info.rate = rate
		case rate != nil && info.amount == nil:
			info.hasVAT = true
			info.rate = rate
		}
	}

	if info.hasVAT && info.rate == nil && info.amount != nil && total != nil {
		info.rate = deriveRate(*info.amount, *total)
		if info.rate != nil {
			x.note("vat rate %s%% derived from vat amount and total", info.rate.String())
		}
	}
	if !info.hasVAT && exempt {
		x.note("document states it is not subject to vat")
	}
	return info
}

func parseRate(s string) *decimal.Decimal {
	v, ok := ParseAmount(s, "ru")
	if !ok {
		return nil
	}
	return decimalPtr(v)
}

// deriveRate snaps the implied rate to a statutory one when it is within one point.
// VAT is usually included in the total, so that reading is tried first.
func deriveRate(vat, total decimal.Decimal) *decimal.Decimal {
	if !vat.IsPositive() || !total.GreaterThan(vat) {
		return nil
	}
	hundred := decimal.NewFromInt(100)
	candidates := []decimal.Decimal{
		vat.Div(total.Sub(vat)).Mul(hundred),
		vat.Div(total).Mul(hundred),
	}
	for _, implied := range candidates {
		for _, r := range statutoryRates {
			rate := decimal.NewFromInt(r)
			if implied.Sub(rate).Abs().LessThanOrEqual(decimal.NewFromInt(1)) {
				return &rate
			}
		}
	}
	return nil
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal { return &d }
