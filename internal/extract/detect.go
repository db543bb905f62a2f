package extract

import (
	"regexp"
	"strings"
)

var (
	reInvoiceKeywords = regexp.MustCompile(`(?i)сч[её]т|invoice|итого|всего\s+к\s+оплате|к\s+доплате|общая\s+стоимость|к\s+оплате`)

	// Paperwork that mentions money but is not a bill.
	reNotInvoice = regexp.MustCompile(`(?i)информационная\s+карта|участника\s+торгов|анкета|заявка\s+на\s+участие|справка\s+о\s+деятельности|карточка\s+(?:организации|предприятия|контрагента)|реквизиты\s+организации`)
)

// looksLikeInvoice reports whether text reads like a bill rather than a requisites card or questionnaire.
func (x *extraction) looksLikeInvoice() bool {
	text := strings.Join(x.lines, "\n")
	if reNotInvoice.MatchString(text) && !reInvoiceTitle.MatchString(text) {
		return false
	}
	return reInvoiceKeywords.MatchString(text)
}
