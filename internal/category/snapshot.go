package category

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// minFuzzyRunes keeps short fragments such as "ИП" from matching every supplier.
const minFuzzyRunes = 3

var quoteStripper = strings.NewReplacer(`"`, " ", "«", " ", "»", " ", "“", " ", "”", " ", "„", " ", "'", " ")

// normalizeName lowercases, folds ё to е, drops quotes and collapses whitespace.
func normalizeName(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "ё", "е")
	s = quoteStripper.Replace(s)
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// Snapshot is an immutable in-memory copy of the supplier directory. Lookups
// return the first supplier in load order when several match.
type Snapshot struct {
	suppliers []entity.Supplier
	byINN     map[string]int
	byName    map[string]int
	folded    []string
}

// NewSnapshot indexes suppliers. The slice is copied.
func NewSnapshot(suppliers []entity.Supplier) *Snapshot {
	s := &Snapshot{
		suppliers: append([]entity.Supplier(nil), suppliers...),
		byINN:     make(map[string]int, len(suppliers)),
		byName:    make(map[string]int, len(suppliers)),
	}
	s.folded = make([]string, len(s.suppliers))
	for i, sup := range s.suppliers {
		if sup.INN != nil && *sup.INN != "" {
			if _, dup := s.byINN[*sup.INN]; !dup {
				s.byINN[*sup.INN] = i
			}
		}
		name := strings.TrimSpace(sup.Name)
		if _, dup := s.byName[name]; !dup && name != "" {
			s.byName[name] = i
		}
		s.folded[i] = normalizeName(sup.Name)
	}
	return s
}

// EmptySnapshot is used when the directory cannot be loaded.
func EmptySnapshot() *Snapshot { return NewSnapshot(nil) }

func (s *Snapshot) Len() int { return len(s.suppliers) }

func (s *Snapshot) FindByTaxID(inn string) (entity.Supplier, bool) {
	if i, ok := s.byINN[strings.TrimSpace(inn)]; ok {
		return s.suppliers[i], true
	}
	return entity.Supplier{}, false
}

func (s *Snapshot) FindByExactName(name string) (entity.Supplier, bool) {
	if i, ok := s.byName[strings.TrimSpace(name)]; ok {
		return s.suppliers[i], true
	}
	return entity.Supplier{}, false
}

// FindByNameSubstring matches when either normalized name contains the other.
// Both sides must be at least minFuzzyRunes long.
func (s *Snapshot) FindByNameSubstring(name string) (entity.Supplier, bool) {
	q := normalizeName(name)
	if utf8.RuneCountInString(q) < minFuzzyRunes {
		return entity.Supplier{}, false
	}
	for i, f := range s.folded {
		if utf8.RuneCountInString(f) < minFuzzyRunes {
			continue
		}
		if strings.Contains(f, q) || strings.Contains(q, f) {
			return s.suppliers[i], true
		}
	}
	return entity.Supplier{}, false
}
