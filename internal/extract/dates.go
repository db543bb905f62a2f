package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var months = map[string]int{
	"января": 1, "февраля": 2, "марта": 3, "апреля": 4, "мая": 5, "июня": 6,
	"июля": 7, "августа": 8, "сентября": 9, "октября": 10, "ноября": 11, "декабря": 12,
	"январь": 1, "февраль": 2, "март": 3, "апрель": 4, "май": 5, "июнь": 6,
	"июль": 7, "август": 8, "сентябрь": 9, "октябрь": 10, "ноябрь": 11, "декабрь": 12,
	"january": 1, "february": 2, "march": 3, "april": 4, "june": 6,
	"july": 7, "august": 8, "september": 9, "october": 10, "november": 11, "december": 12,
}

var (
	reDateNumeric = regexp.MustCompile(`(\d{1,2})[./](\d{1,2})[./](\d{2,4})`)
	reDateISO     = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	reDateText    = regexp.MustCompile(`(?i)«?(\d{1,2})»?\s*(января|февраля|марта|апреля|мая|июня|июля|августа|сентября|октября|ноября|декабря|январь|февраль|март|апрель|май|июнь|июль|август|сентябрь|октябрь|ноябрь|декабрь|january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{4})`)
	reDateTextEN  = regexp.MustCompile(`(?i)(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2}),?\s+(\d{4})`)

	reDueLabel   = regexp.MustCompile(`(?i)оплатить\s+до|оплата\s+до|срок\s+оплаты|не\s+позднее|действителен\s+до|due\s*date|payment\s+due|pay\s+by`)
	reIssueLabel = regexp.MustCompile(`(?i)дата\s+(?:сч[её]та|выставления|документа)|(?:^|[^\p{L}])дата\s*:|invoice\s+date|(?:^|[^\p{L}])date\s*:`)
)

// dateHit is a validated date found in a line.
type dateHit struct {
	iso        string
	start, end int
}

func monthNumber(name string) int {
	name = strings.ToLower(name)
	if name == "may" {
		return 5
	}
	return months[name]
}

// isoDate validates the parts and formats them as YYYY-MM-DD.
func isoDate(y, m, d int) (string, bool) {
	if y < 100 {
		y += 2000
	}
	if y < 1990 || y > 2100 || m < 1 || m > 12 || d < 1 || d > 31 {
		return "", false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != m {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d), true
}

// findDatesInLine returns all valid dates in s, in order of position.
func findDatesInLine(s string) []dateHit {
	var hits []dateHit
	bounded := func(start, end int) bool {
		return (start == 0 || !isDigit(s[start-1])) && (end == len(s) || !isDigit(s[end]))
	}
	for _, m := range reDateNumeric.FindAllStringSubmatchIndex(s, -1) {
		if !bounded(m[0], m[1]) || (m[1] < len(s) && s[m[1]] == '.' && m[1]+1 < len(s) && isDigit(s[m[1]+1])) {
			continue
		}
		yearLen := m[7] - m[6]
		if yearLen == 3 {
			continue
		}
		d, _ := strconv.Atoi(s[m[2]:m[3]])
		mo, _ := strconv.Atoi(s[m[4]:m[5]])
		y, _ := strconv.Atoi(s[m[6]:m[7]])
		if iso, ok := isoDate(y, mo, d); ok {
			hits = append(hits, dateHit{iso: iso, start: m[0], end: m[1]})
		}
	}
	for _, m := range reDateISO.FindAllStringSubmatchIndex(s, -1) {
		if !bounded(m[0], m[1]) {
			continue
		}
		y, _ := strconv.Atoi(s[m[2]:m[3]])
		mo, _ := strconv.Atoi(s[m[4]:m[5]])
		d, _ := strconv.Atoi(s[m[6]:m[7]])
		if iso, ok := isoDate(y, mo, d); ok {
			hits = append(hits, dateHit{iso: iso, start: m[0], end: m[1]})
		}
	}
	for _, m := range reDateText.FindAllStringSubmatchIndex(s, -1) {
		d, _ := strconv.Atoi(s[m[2]:m[3]])
		y, _ := strconv.Atoi(s[m[6]:m[7]])
		if iso, ok := isoDate(y, monthNumber(s[m[4]:m[5]]), d); ok {
			hits = append(hits, dateHit{iso: iso, start: m[0], end: m[1]})
		}
	}
	for _, m := range reDateTextEN.FindAllStringSubmatchIndex(s, -1) {
		d, _ := strconv.Atoi(s[m[4]:m[5]])
		y, _ := strconv.Atoi(s[m[6]:m[7]])
		if iso, ok := isoDate(y, monthNumber(s[m[2]:m[3]]), d); ok {
			hits = append(hits, dateHit{iso: iso, start: m[0], end: m[1]})
		}
	}
	sortHits(hits)
	return hits
}

func sortHits(h []dateHit) {
	for i := 1; i < len(h); i++ {
		for j := i; j > 0 && h[j].start < h[j-1].start; j-- {
			h[j], h[j-1] = h[j-1], h[j]
		}
	}
}

// NormalizeDate converts a single date in any supported form to YYYY-MM-DD.
// ISO input is returned unchanged, so the function is idempotent.
func NormalizeDate(s string) (string, bool) {
	hits := findDatesInLine(strings.TrimSpace(s))
	if len(hits) == 0 {
		return "", false
	}
	return hits[0].iso, true
}

// findDates returns the issue and due dates. numLine is the line of the invoice number, or -1.
func (x *extraction) findDates(numLine int) (issue, due string) {
	dueLines := map[int]bool{}
	for i, line := range x.lines {
		loc := reDueLabel.FindStringIndex(line)
		if loc == nil {
			continue
		}
		dueLines[i] = true
		if due != "" {
			continue
		}
		for _, h := range findDatesInLine(line) {
			if h.start >= loc[0] {
				due = h.iso
				break
			}
		}
		if due == "" && i+1 < len(x.lines) {
			if hits := findDatesInLine(x.lines[i+1]); len(hits) > 0 {
				due = hits[0].iso
				dueLines[i+1] = true
			}
		}
	}

	if numLine >= 0 {
		if hits := findDatesInLine(x.lines[numLine]); len(hits) > 0 {
			return hits[0].iso, due
		}
	}
	for i, line := range x.lines {
		if dueLines[i] {
			continue
		}
		if reInvoiceTitle.MatchString(line) || reIssueLabel.MatchString(line) {
			if hits := findDatesInLine(line); len(hits) > 0 {
				return hits[0].iso, due
			}
		}
	}
	for i, line := range x.lines {
		if dueLines[i] || reContractWord.MatchString(line) {
			continue
		}
		if hits := findDatesInLine(line); len(hits) > 0 {
			return hits[0].iso, due
		}
	}
	return "", due
}
