package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

var (
	reItemStart  = regexp.MustCompile(`^(\d{1,3})[.)]?\s+(\S.*)$`)
	reUnitToken  = regexp.MustCompile(`(?i)^(?:шт|штук[аи]?|ед|компл|комплект|к-т|кг|г|т|тн|м2|м²|кв\.?м|м3|м³|мп|м\.п|п\.м|пог\.?м|м|л|уп|упак|рейс|час|ч|смена|усл|услуга|рулон|лист|пара|день|дн|сут|мес|км|pcs|pc|ea|hr|set)\.?$`)
	reSkipToken  = regexp.MustCompile(`(?i)^(?:\d{1,2}(?:[.,]\d{1,2})?%|-|—|х|x|руб\.?|₽|rub)$`)
	reNumToken   = regexp.MustCompile(`^\d[\d.,]*$`)
	reItemsClose = regexp.MustCompile(`(?i)^(?:итого|всего|к\s+оплате|сумма\s+к\s+оплате|total)`)
)

const (
	maxPartitions = 512
	// Rows with more numeric chunks than this are read greedily.
	maxRowChunks = 16
	// "1 234 567 890,00" is the longest space-grouped number read as one.
	maxJoinTokens = 5
	maxWalkSteps  = 20000
)

// findItems reads numbered table rows. Rows must be numbered 1, 2, 3... and end at a totals line.
func (x *extraction) findItems() []entity.LineItem {
	items := []entity.LineItem{}
	next := 1
	for i, line := range x.lines {
		if len(items) > 0 && reItemsClose.MatchString(line) {
			break
		}
		m := reItemStart.FindStringSubmatch(line)
		if m == nil || m[1] != strconv.Itoa(next) {
			continue
		}
		item, ok := x.parseItemRow(next, m[2])
		if !ok {
			continue
		}
		items = append(items, item)
		x.itemRows[i] = true
		next++
	}
	return items
}

func (x *extraction) isItemRow(i int) bool {
	return x.itemRows != nil && x.itemRows[i]
}

func isUnit(tok string) bool  { return reUnitToken.MatchString(tok) }
func isNumber(tok string) bool { return reNumToken.MatchString(tok) }

// parseItemRow splits "name [qty] unit [qty] price total" into fields.
func (x *extraction) parseItemRow(pos int, rest string) (entity.LineItem, bool) {
	tokens := strings.Fields(maskDatesOnly(rest))
	orig := strings.Fields(rest)
	if len(tokens) != len(orig) {
		tokens = orig
	}

	// The tail is the longest suffix made only of numbers, units and filler tokens.
	k := len(tokens)
	for k > 0 {
		t := tokens[k-1]
		if isNumber(t) || isUnit(t) || reSkipToken.MatchString(t) {
			k--
			continue
		}
		break
	}
	if k == 0 || k == len(tokens) {
		return entity.LineItem{}, false
	}

	unitIdx := -1
	for j := k; j < len(tokens); j++ {
		if isUnit(tokens[j]) && !isNumber(tokens[j]) {
			unitIdx = j
			break
		}
	}

	var qty *decimal.Decimal
	var chunks []string
	nameEnd := k
	if unitIdx >= 0 {
		if unitIdx-1 >= k && isNumber(tokens[unitIdx-1]) {
			// Quantity precedes the unit; numbers before it belong to the name ("Профиль 6060 10 шт").
			if q, ok := ParseAmount(tokens[unitIdx-1], "ru"); ok {
				qty = &q
			}
			nameEnd = unitIdx - 1
		} else {
			nameEnd = unitIdx
		}
		chunks = numericTokens(tokens[unitIdx+1:])
	} else {
		chunks = numericTokens(tokens[k:])
	}

	name := strings.Trim(strings.Join(orig[:nameEnd], " "), " ,;:-")
	if !hasLetter(name) || len(chunks) == 0 {
		return entity.LineItem{}, false
	}

	item := entity.LineItem{Position: pos, Name: name}
	if unitIdx >= 0 {
		item.Unit = entity.StringPtr(strings.TrimSuffix(strings.ToLower(tokens[unitIdx]), "."))
	}

	q, p, t, ok := solveRow(qty, chunks, x.conv)
	if !ok {
		q, p, t = greedyRow(qty, chunks, x.conv)
	}
	item.Quantity, item.UnitPrice, item.LineTotal = q, p, t

	switch {
	case q != nil && p != nil && t == nil:
		total := q.Mul(*p).Round(2)
		item.LineTotal = &total
		x.note("item %d: line total reconstructed from quantity and unit price", pos)
	case q != nil && p != nil && t != nil && !withinTolerance(q.Mul(*p), *t):
		x.note("item %d: quantity × unit price differs from line total %s", pos, t.StringFixed(2))
	}
	if item.UnitPrice == nil && item.LineTotal == nil {
		return entity.LineItem{}, false
	}
	return item, true
}

// maskDatesOnly blanks dates so a delivery date is not read as numbers.
func maskDatesOnly(s string) string {
	for _, re := range maskPatterns[:3] {
		s = blankOut(s, re)
	}
	return s
}

func numericTokens(tokens []string) []string {
	var out []string
	for _, t := range tokens {
		if isNumber(t) {
			out = append(out, t)
		}
	}
	return out
}

func withinTolerance(a, b decimal.Decimal) bool {
	tol := b.Abs().Mul(decimal.NewFromFloat(0.001))
	if floor := decimal.NewFromFloat(0.05); tol.LessThan(floor) {
		tol = floor
	}
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}

// canJoin reports whether tokens form one space-grouped number: "1 250,00", "12 500".
func canJoin(tokens []string) bool {
	if len(tokens) == 1 {
		return true
	}
	if !onlyDigits(tokens[0]) || len(tokens[0]) > 3 {
		return false
	}
	for i, t := range tokens[1:] {
		last := i == len(tokens)-2
		if onlyDigits(t) && len(t) == 3 {
			continue
		}
		if last && len(t) > 4 && onlyDigits(t[:3]) && (t[3] == ',' || t[3] == '.') && onlyDigits(t[4:]) && len(t) <= 6 {
			continue
		}
		return false
	}
	return true
}

type span struct {
	end   int
	value decimal.Decimal
}

// partitions enumerates the ways to read tokens as a sequence of numbers, fewest numbers first.
// The search is bounded; rows too long to search return nil.
func partitions(tokens []string, conv numberConv) [][]decimal.Decimal {
	n := len(tokens)
	if n == 0 || n > maxRowChunks {
		return nil
	}

	// spans[s] lists the numbers that can start at token s, longest first.
	spans := make([][]span, n)
	for start := 0; start < n; start++ {
		for end := min(n, start+maxJoinTokens); end > start; end-- {
			part := tokens[start:end]
			if !canJoin(part) {
				continue
			}
			if found := scanAmounts(strings.Join(part, " "), conv); len(found) == 1 {
				spans[start] = append(spans[start], span{end: end, value: found[0].value})
			}
		}
	}

	var all [][]decimal.Decimal
	dead := make([]bool, n)
	steps := 0
	var walk func(start int, acc []decimal.Decimal) bool
	walk = func(start int, acc []decimal.Decimal) bool {
		if start == n {
			all = append(all, append([]decimal.Decimal(nil), acc...))
			return true
		}
		if dead[start] {
			return false
		}
		completed := false
		for _, sp := range spans[start] {
			if len(all) >= maxPartitions || steps >= maxWalkSteps {
				// unexplored branches may still complete
				return true
			}
			steps++
			if walk(sp.end, append(acc, sp.value)) {
				completed = true
			}
		}
		if !completed {
			dead[start] = true
		}
		return completed
	}
	walk(0, nil)
	sort.SliceStable(all, func(i, j int) bool { return len(all[i]) < len(all[j]) })
	return all
}

// solveRow finds quantity, price and total such that quantity × price matches the total.
func solveRow(qty *decimal.Decimal, chunks []string, conv numberConv) (q, p, t *decimal.Decimal, ok bool) {
	for _, nums := range partitions(chunks, conv) {
		if qty != nil {
			for j := len(nums) - 1; j >= 1; j-- {
				for i := j - 1; i >= 0; i-- {
					if nums[j].IsPositive() && withinTolerance(qty.Mul(nums[i]), nums[j]) {
						return qty, decimalPtr(nums[i]), decimalPtr(nums[j]), true
					}
				}
			}
			continue
		}
		for c := len(nums) - 1; c >= 2; c-- {
			for a := 0; a < c-1; a++ {
				for b := a + 1; b < c; b++ {
					if nums[a].IsPositive() && nums[c].IsPositive() && withinTolerance(nums[a].Mul(nums[b]), nums[c]) {
						return decimalPtr(nums[a]), decimalPtr(nums[b]), decimalPtr(nums[c]), true
					}
				}
			}
		}
	}
	return nil, nil, nil, false
}

// greedyRow reads the row left to right when no consistent reading exists.
func greedyRow(qty *decimal.Decimal, chunks []string, conv numberConv) (q, p, t *decimal.Decimal) {
	found := scanAmounts(strings.Join(chunks, " "), conv)
	q = qty
	switch {
	case len(found) == 0:
	case len(found) == 1:
		if qty != nil {
			p = decimalPtr(found[0].value)
		} else {
			t = decimalPtr(found[0].value)
		}
	case qty == nil && len(found) >= 3:
		q = decimalPtr(found[0].value)
		p = decimalPtr(found[len(found)-2].value)
		t = decimalPtr(found[len(found)-1].value)
	default:
		p = decimalPtr(found[len(found)-2].value)
		t = decimalPtr(found[len(found)-1].value)
	}
	return q, p, t
}
