package ocr

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	reDate    = regexp.MustCompile(`\d{1,2}[./]\d{1,2}[./]\d{2,4}|\d{4}-\d{2}-\d{2}`)
	reCurr    = regexp.MustCompile(`руб|₽|rub|коп`)
	reAmount  = regexp.MustCompile(`\d[\d  ]*[.,]\d{2}`)
	reInvoice = regexp.MustCompile(`сч[её]т|инн|итого|invoice`)
)

// minTextLayerLetters is the letter count below which an embedded text layer
// is treated as a scan stub and the PDF is OCRed instead.
const minTextLayerLetters = 40

// heuristicConfidence scores how much decoded text looks like an invoice, in 0..1.
func heuristicConfidence(txt string) float32 {
	txtL := strings.ToLower(txt)
	score := float32(0.2)
	if reDate.MatchString(txtL) {
		score += 0.2
	}
	if reCurr.MatchString(txtL) {
		score += 0.15
	}
	if reAmount.MatchString(txtL) {
		score += 0.15
	}
	if reInvoice.MatchString(txtL) {
		score += 0.2
	}
	if score > 1 {
		score = 1
	}
	return score
}

func countLetters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

// textLayerUsable reports whether an embedded PDF text layer can stand in for OCR.
func textLayerUsable(txt string) bool {
	return countLetters(txt) >= minTextLayerLetters && heuristicConfidence(txt) >= 0.5
}
