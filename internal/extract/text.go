package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	reSpaces = regexp.MustCompile(`[ \t\x{00A0}\x{2007}\x{202F}\x{2009}]+`)

	// Tokens that contain digits but are never money: dates, rates, identifiers, phones, document numbers.
	maskPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)«?\d{1,2}»?\s*(?:января|февраля|марта|апреля|мая|июня|июля|августа|сентября|октября|ноября|декабря)\s+\d{4}(?:\s*г(?:ода|\.)?)?`),
		regexp.MustCompile(`\d{1,2}[./]\d{1,2}[./]\d{2,4}(?:\s*г\.)?`),
		regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
		regexp.MustCompile(`\d{1,2}(?:[.,]\d{1,2})?\s*%`),
		regexp.MustCompile(`\d{9,}`),
		regexp.MustCompile(`(?:\+7|8)\s*\(?\d{3}\)?[\s-]*\d{3}[\s-]*\d{2}[\s-]*\d{2}`),
		regexp.MustCompile(`№\s*\S+`),
	}
)

// cleanLine collapses whitespace variants and trims the line.
func cleanLine(s string) string {
	s = strings.ReplaceAll(s, "\f", " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// maskNonMoney blanks tokens that look numeric but are not amounts. Byte offsets are preserved.
func maskNonMoney(s string) string {
	for _, re := range maskPatterns {
		s = blankOut(s, re)
	}
	return s
}

func blankOut(s string, re *regexp.Regexp) string {
	locs := re.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return s
	}
	b := []byte(s)
	for _, loc := range locs {
		for i := loc[0]; i < loc[1]; i++ {
			b[i] = ' '
		}
	}
	return string(b)
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// prevIsLetter reports whether the rune ending just before byte offset i is a letter.
func prevIsLetter(s string, i int) bool {
	if i <= 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return unicode.IsLetter(r)
}

// nextIsLetter reports whether the rune starting at byte offset i is a letter.
func nextIsLetter(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return unicode.IsLetter(r)
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func onlyDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

func digitsOf(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if isDigit(s[i]) {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// word builds a pattern that matches alternatives only as whole words, Cyrillic included.
// The first capture group holds the matched word.
func word(alternatives string) string {
	return `(?:^|[^\p{L}\p{N}])(` + alternatives + `)(?:[^\p{L}\p{N}]|$)`
}

// findWord returns the byte span of the first whole-word match of re (built with word) in s.
func findWord(re *regexp.Regexp, s string) (start, end int, ok bool) {
	m := re.FindStringSubmatchIndex(s)
	if m == nil {
		return 0, 0, false
	}
	return m[2], m[3], true
}

func containsWord(re *regexp.Regexp, s string) bool {
	return re.MatchString(s)
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
