package ocr

import (
	"regexp"
	"strings"

	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

var (
	reSpaces   = regexp.MustCompile(`[\t\x{00A0}\x{2007}\x{202F}\x{2009} ]+`)
	reBoxNoise = regexp.MustCompile(`^[_\-=|]{3,}$`)
)

// cleanLines normalizes whitespace and drops rule lines left by table borders.
// Runs of blank lines collapse to one; leading and trailing blanks are removed.
func cleanLines(in []string) []string {
	out := make([]string, 0, len(in))
	blank := true
	for _, raw := range in {
		raw = strings.ReplaceAll(raw, "\r", "")
		for _, l := range strings.Split(raw, "\f") {
			l = strings.TrimSpace(reSpaces.ReplaceAllString(l, " "))
			if reBoxNoise.MatchString(l) {
				continue
			}
			if l == "" {
				if !blank {
					out = append(out, "")
				}
				blank = true
				continue
			}
			out = append(out, l)
			blank = false
		}
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

// splitText splits on any newline convention.
func splitText(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}

// assemble cleans each page and concatenates them, recording the page ranges.
// Pages that clean down to nothing are skipped.
func assemble(pages [][]string) ([]string, []entity.PageRange) {
	var lines []string
	var ranges []entity.PageRange
	for i, p := range pages {
		cleaned := cleanLines(p)
		if len(cleaned) == 0 {
			continue
		}
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		start := len(lines)
		lines = append(lines, cleaned...)
		ranges = append(ranges, entity.PageRange{Page: i + 1, Start: start, End: len(lines)})
	}
	return lines, ranges
}

func hasText(lines []string) bool {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return true
		}
	}
	return false
}
