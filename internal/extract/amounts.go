package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// numberConv is the decimal convention selected by the language hint.
type numberConv struct {
	groupSeps   string
	decimalSeps string
}

var (
	convRU = numberConv{groupSeps: " .", decimalSeps: ",."}
	convEN = numberConv{groupSeps: " ,", decimalSeps: "."}
)

func convFor(lang string) numberConv {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(lang)), "en") {
		return convEN
	}
	return convRU
}

func (c numberConv) isGroupSep(b byte) bool   { return strings.IndexByte(c.groupSeps, b) >= 0 }
func (c numberConv) isDecimalSep(b byte) bool { return strings.IndexByte(c.decimalSeps, b) >= 0 }

var (
	reRubKop  = regexp.MustCompile(`(?i)^\s*(?:руб(?:лей|ля|ль)?\.?|р\.)\s*(\d{1,2})\s*(?:коп(?:еек|ейки|ейка)?\.?|к\.)`)
	reDashKop = regexp.MustCompile(`^-(\d{2})(?:[^\d\-./]|$)`)

	maxAmount = decimal.NewFromInt(1_000_000_000)
)

// amount is a money-looking token found in a line.
type amount struct {
	start, end int
	value      decimal.Decimal
	fraction   bool
}

// scanAmounts finds money tokens in s. s should already be masked with maskNonMoney.
func scanAmounts(s string, conv numberConv) []amount {
	var out []amount
	i := 0
	for i < len(s) {
		if !isDigit(s[i]) {
			i++
			continue
		}
		j := i
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		// Digits glued to letters are article codes or unit suffixes like "м2".
		if prevIsLetter(s, i) || nextIsLetter(s, j) {
			i = j
			continue
		}
		a, end := readAmount(s, i, j, conv)
		out = append(out, a)
		i = end
	}
	return out
}

// readAmount reads the amount whose leading digit run is s[i:j].
func readAmount(s string, i, j int, conv numberConv) (amount, int) {
	var intPart strings.Builder
	intPart.WriteString(s[i:j])
	end := j

	if j-i <= 3 {
		for end+4 <= len(s) && conv.isGroupSep(s[end]) && onlyDigits(s[end+1:end+4]) &&
			(end+4 == len(s) || !isDigit(s[end+4])) {
			intPart.WriteString(s[end+1 : end+4])
			end += 4
		}
	}

	frac := ""
	if end+1 < len(s) && conv.isDecimalSep(s[end]) {
		k := end + 1
		for k < len(s) && isDigit(s[k]) {
			k++
		}
		if n := k - end - 1; n >= 1 && n <= 2 && !nextIsLetter(s, k) {
			frac = s[end+1 : k]
			end = k
		}
	}
	if frac == "" {
		if m := reRubKop.FindStringSubmatchIndex(s[end:]); m != nil {
			frac = s[end+m[2] : end+m[3]]
			end += m[1]
		} else if m := reDashKop.FindStringSubmatchIndex(s[end:]); m != nil {
			frac = s[end+m[2] : end+m[3]]
			end += m[3]
		}
	}
	if len(frac) == 1 {
		frac += "0"
	}

	text := intPart.String()
	if frac != "" {
		text += "." + frac
	}
	v, err := decimal.NewFromString(text)
	if err != nil {
		v = decimal.Zero
	}
	return amount{start: i, end: end, value: v, fraction: frac != ""}, end
}

// ParseAmount parses a single money string such as "125 000,50" or "9 161 руб. 86 коп.".
func ParseAmount(s, lang string) (decimal.Decimal, bool) {
	line := cleanLine(s)
	found := scanAmounts(line, convFor(lang))
	if len(found) != 1 {
		return decimal.Zero, false
	}
	return found[0].value, true
}

// pickAmount prefers the first amount with kopeks, else the first amount.
func pickAmount(list []amount) (amount, bool) {
	if len(list) == 0 {
		return amount{}, false
	}
	for _, a := range list {
		if a.fraction {
			return a, true
		}
	}
	return list[0], true
}

// amountsAfter returns amounts in the masked line that start at or after byte offset from.
func (x *extraction) amountsAfter(lineIdx, from int) []amount {
	var out []amount
	for _, a := range x.amounts[lineIdx] {
		if a.start >= from {
			out = append(out, a)
		}
	}
	return out
}

// amountOnlyLine reports whether line idx carries an amount and no other words except currency.
func (x *extraction) amountOnlyLine(idx int) (amount, bool) {
	if idx >= len(x.lines) || len(x.amounts[idx]) == 0 {
		return amount{}, false
	}
	rest := x.masked[idx]
	for _, a := range x.amounts[idx] {
		rest = rest[:a.start] + strings.Repeat(" ", a.end-a.start) + rest[a.end:]
	}
	rest = reCurrencyWords.ReplaceAllString(rest, " ")
	if hasLetter(rest) {
		return amount{}, false
	}
	return pickAmount(x.amounts[idx])
}

var reCurrencyWords = regexp.MustCompile(`(?i)руб(?:лей|ля|ль)?\.?|коп(?:еек|ейки|ейка)?\.?|rub|rur|₽|р\.`)

// Total labels in priority order. Earlier labels win regardless of position.
var totalLabels = []*regexp.Regexp{
	regexp.MustCompile(`(?i)всего\s+к\s+оплате`),
	regexp.MustCompile(`(?i)итого\s+к\s+оплате`),
	regexp.MustCompile(`(?i)сумма\s+к\s+оплате`),
	regexp.MustCompile(`(?i)к\s+оплате`),
	regexp.MustCompile(`(?i)итого\s+с\s+ндс`),
	regexp.MustCompile(`(?i)всего\s+наименований.*?на\s+сумму`),
	regexp.MustCompile(`(?i)(?:^|[^\p{L}])итого`),
	regexp.MustCompile(`(?i)(?:^|[^\p{L}])всего`),
	regexp.MustCompile(`(?i)на\s+сумму`),
	regexp.MustCompile(`(?i)(?:^|[^\p{L}])(?:grand\s+)?total(?:\s+due)?`),
	regexp.MustCompile(`(?i)сумма\s+к\s+доплате`),
	regexp.MustCompile(`(?i)к\s+доплате`),
	regexp.MustCompile(`(?i)общая\s+стоимость`),
}

var (
	reVATIncludedPrefix = regexp.MustCompile(`(?i)^\s*(?:в\s*т\.\s*ч\.?|в\s+том\s+числе|включая)`)
	reWithVAT           = regexp.MustCompile(`(?i)^[\s:]*(?:\(?\s*с\s+ндс|\(?\s*включая\s+ндс|с\s+учетом\s+ндс)`)
	reWithoutVAT        = regexp.MustCompile(`(?i)^[\s:]*\(?\s*без\s+(?:ндс|налога)`)
	reVATWord           = regexp.MustCompile(`(?i)ндс|vat`)
)

// findTotal returns the invoice total following the label priority.
func (x *extraction) findTotal() (decimal.Decimal, bool) {
	for _, label := range totalLabels {
		var found *amount
		for i, line := range x.lines {
			if reVATIncludedPrefix.MatchString(line) || x.isItemRow(i) {
				continue
			}
			loc := label.FindStringIndex(line)
			if loc == nil {
				continue
			}
			tail := line[loc[1]:]
			if reWithoutVAT.MatchString(tail) {
				continue
			}
			cands := x.amountsAfter(i, loc[1])
			if len(cands) > 0 {
				// A VAT figure between the label and the amount means this line is a tax line.
				between := line[loc[1]:cands[0].start]
				if reVATWord.MatchString(between) && !reWithVAT.MatchString(tail) {
					continue
				}
			}
			a, ok := pickAmount(validTotals(cands))
			if !ok {
				a, ok = x.amountOnlyLine(i + 1)
				if ok && !validTotal(a) {
					ok = false
				}
			}
			if ok {
				found = &a
			}
		}
		if found != nil {
			return found.value, true
		}
	}
	return decimal.Zero, false
}

func validTotal(a amount) bool {
	return a.value.IsPositive() && a.value.LessThan(maxAmount)
}

func validTotals(list []amount) []amount {
	var out []amount
	for _, a := range list {
		if validTotal(a) {
			out = append(out, a)
		}
	}
	return out
}
