// Package category assigns an expense category to an invoice's contractor.
package category

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// Directory is the read side of the supplier directory.
type Directory interface {
	FindByTaxID(inn string) (entity.Supplier, bool)
	FindByExactName(name string) (entity.Supplier, bool)
	FindByNameSubstring(name string) (entity.Supplier, bool)
}

// Query is what the resolver knows about the contractor.
type Query struct {
	Name string
	INN  string
}

// Strategy is one resolution stage.
type Strategy func(q Query, dir Directory) (entity.CategoryAssignment, bool)

// FirstMatch runs strategies in order and returns the first success.
func FirstMatch(strategies ...Strategy) Strategy {
	return func(q Query, dir Directory) (entity.CategoryAssignment, bool) {
		for _, s := range strategies {
			if a, ok := s(q, dir); ok {
				return a, true
			}
		}
		return entity.CategoryAssignment{}, false
	}
}

func fromSupplier(s entity.Supplier, method constants.Method, matchedOn string) entity.CategoryAssignment {
	cat := s.CategoryKey()
	id := s.ID
	return entity.CategoryAssignment{
		Category:    cat,
		DisplayName: cat.DisplayName(),
		Method:      method,
		SupplierID:  &id,
		MatchedOn:   matchedOn,
	}
}

func assignment(cat constants.Category, method constants.Method, matchedOn string) entity.CategoryAssignment {
	return entity.CategoryAssignment{
		Category:    cat,
		DisplayName: cat.DisplayName(),
		Method:      method,
		MatchedOn:   matchedOn,
	}
}

// ByTaxID matches the directory on INN.
func ByTaxID(q Query, dir Directory) (entity.CategoryAssignment, bool) {
	if q.INN == "" || dir == nil {
		return entity.CategoryAssignment{}, false
	}
	s, ok := dir.FindByTaxID(q.INN)
	if !ok {
		return entity.CategoryAssignment{}, false
	}
	return fromSupplier(s, constants.MethodExactINN, s.Name), true
}

// ByExactName matches the directory on the name as written, case-sensitively.
func ByExactName(q Query, dir Directory) (entity.CategoryAssignment, bool) {
	name := strings.TrimSpace(q.Name)
	if name == "" || dir == nil {
		return entity.CategoryAssignment{}, false
	}
	s, ok := dir.FindByExactName(name)
	if !ok {
		return entity.CategoryAssignment{}, false
	}
	return fromSupplier(s, constants.MethodExactName, s.Name), true
}

// ByNameContainment matches when either name contains the other, ignoring case.
func ByNameContainment(q Query, dir Directory) (entity.CategoryAssignment, bool) {
	if utf8.RuneCountInString(normalizeName(q.Name)) < minFuzzyRunes || dir == nil {
		return entity.CategoryAssignment{}, false
	}
	s, ok := dir.FindByNameSubstring(q.Name)
	if !ok {
		return entity.CategoryAssignment{}, false
	}
	return fromSupplier(s, constants.MethodFuzzyName, s.Name), true
}

// KnownCompanies matches the name against the known company fragments.
func KnownCompanies(t *Tables) Strategy {
	return func(q Query, _ Directory) (entity.CategoryAssignment, bool) {
		name := normalizeName(q.Name)
		if name == "" {
			return entity.CategoryAssignment{}, false
		}
		for _, kc := range t.KnownCompanies {
			if strings.Contains(name, kc.Pattern) {
				return assignment(kc.Category, constants.MethodKnownCompany, kc.Pattern), true
			}
		}
		return entity.CategoryAssignment{}, false
	}
}

// Keywords matches the name against keyword groups; earlier groups win ties.
func Keywords(t *Tables) Strategy {
	return func(q Query, _ Directory) (entity.CategoryAssignment, bool) {
		name := normalizeName(q.Name)
		if name == "" {
			return entity.CategoryAssignment{}, false
		}
		for _, g := range t.Keywords {
			for _, w := range g.Words {
				if strings.Contains(name, w) {
					return assignment(g.Category, constants.MethodKeywordGeneric, w), true
				}
			}
		}
		return entity.CategoryAssignment{}, false
	}
}

// Default always succeeds with the tables' default category.
func Default(t *Tables) Strategy {
	return func(Query, Directory) (entity.CategoryAssignment, bool) {
		cat := t.Default
		if !cat.Valid() {
			cat = constants.DefaultCategory
		}
		return assignment(cat, constants.MethodDefault, ""), true
	}
}

// Resolver runs the resolution cascade. It never fails.
type Resolver struct {
	tables *Tables
	chain  Strategy
	logger *slog.Logger
}

func NewResolver(tables *Tables, logger *slog.Logger) *Resolver {
	if tables == nil {
		tables = DefaultTables()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		tables: tables,
		chain: FirstMatch(
			ByTaxID,
			ByExactName,
			ByNameContainment,
			KnownCompanies(tables),
			Keywords(tables),
			Default(tables),
		),
		logger: logger,
	}
}

// Resolve returns the category for a contractor. name and inn may be empty; dir may be nil.
func (r *Resolver) Resolve(dir Directory, name, inn string) entity.CategoryAssignment {
	a, ok := r.chain(Query{Name: name, INN: inn}, dir)
	if !ok {
		a = assignment(constants.DefaultCategory, constants.MethodDefault, "")
	}
	r.logger.Debug("category.resolved", "category", a.Category, "method", a.Method, "matched_on", a.MatchedOn)
	return a
}

func (r *Resolver) Tables() *Tables { return r.tables }
