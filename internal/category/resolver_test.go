package category

import (
	"testing"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

func strPtr(s string) *string { return &s }

func testDirectory() *Snapshot {
	return NewSnapshot([]entity.Supplier{
		{ID: 1, Name: "ООО Ромашка", INN: strPtr("7712345678"), Category: strPtr("profiles")},
		{ID: 2, Name: "ООО Лютик", INN: strPtr("7799999999"), Category: strPtr("Логистика")},
		{ID: 3, Name: "ИП Сидоров"},
		{ID: 4, Name: "ООО Дубль", INN: strPtr("7712345678"), Category: strPtr("painting")},
	})
}

func TestResolver_Cascade(t *testing.T) {
	r := NewResolver(DefaultTables(), nil)
	dir := testDirectory()

	tests := []struct {
		name       string
		qName      string
		qINN       string
		wantCat    constants.Category
		wantMethod constants.Method
	}{
		{"inn beats name", "ООО Лютик", "7712345678", constants.Profiles, constants.MethodExactINN},
		{"exact name", "ООО Лютик", "", constants.Logistics, constants.MethodExactName},
		{"exact name is case sensitive", "ооо лютик", "", constants.Logistics, constants.MethodFuzzyName},
		{"query contains supplier", `ООО "Ромашка" г. Москва`, "", constants.Profiles, constants.MethodFuzzyName},
		{"supplier contains query", "Ромашка", "", constants.Profiles, constants.MethodFuzzyName},
		{"unknown inn falls through", "ООО Лютик", "1111111111", constants.Logistics, constants.MethodExactName},
		{"supplier without category", "ИП Сидоров", "", constants.General, constants.MethodExactName},
		{"known company", "ООО АлРус", "", constants.Profiles, constants.MethodKnownCompany},
		{"known company before keywords", "Петрович доставка", "", constants.Fasteners, constants.MethodKnownCompany},
		{"keyword", "ООО СтройДоставка", "", constants.Logistics, constants.MethodKeywordGeneric},
		{"keyword table order breaks ties", "Монтаж и доставка стекла", "", constants.Installation, constants.MethodKeywordGeneric},
		{"default", "Рога и копыта", "", constants.General, constants.MethodDefault},
		{"nothing known", "", "", constants.General, constants.MethodDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(dir, tt.qName, tt.qINN)
			if got.Category != tt.wantCat || got.Method != tt.wantMethod {
				t.Errorf("Resolve(%q, %q) = %s/%s, want %s/%s", tt.qName, tt.qINN, got.Category, got.Method, tt.wantCat, tt.wantMethod)
			}
			if got.DisplayName != tt.wantCat.DisplayName() {
				t.Errorf("DisplayName = %q, want %q", got.DisplayName, tt.wantCat.DisplayName())
			}
		})
	}
}

func TestResolver_DuplicateINNTakesFirst(t *testing.T) {
	got := NewResolver(nil, nil).Resolve(testDirectory(), "", "7712345678")
	if got.SupplierID == nil || *got.SupplierID != 1 {
		t.Errorf("SupplierID = %v, want 1", got.SupplierID)
	}
}

func TestResolver_NilDirectory(t *testing.T) {
	got := NewResolver(nil, nil).Resolve(nil, "ООО АлРус", "7712345678")
	if got.Category != constants.Profiles || got.Method != constants.MethodKnownCompany {
		t.Errorf("Resolve() = %s/%s, want profiles/keyword_known_company", got.Category, got.Method)
	}
}

func TestSnapshot_FuzzyMinimumLength(t *testing.T) {
	dir := testDirectory()
	if _, ok := dir.FindByNameSubstring("ИП"); ok {
		t.Error("FindByNameSubstring(\"ИП\") matched, want no match for short fragments")
	}
	if s, ok := dir.FindByNameSubstring("лютик"); !ok || s.ID != 2 {
		t.Errorf("FindByNameSubstring(\"лютик\") = %v, %v, want supplier 2", s.ID, ok)
	}
}

func TestFirstMatch_Order(t *testing.T) {
	var calls []string
	stage := func(name string, ok bool) Strategy {
		return func(Query, Directory) (entity.CategoryAssignment, bool) {
			calls = append(calls, name)
			return entity.CategoryAssignment{MatchedOn: name}, ok
		}
	}
	got, ok := FirstMatch(stage("a", false), stage("b", true), stage("c", true))(Query{}, nil)
	if !ok || got.MatchedOn != "b" {
		t.Fatalf("FirstMatch() = %q, %v, want b", got.MatchedOn, ok)
	}
	if len(calls) != 2 {
		t.Errorf("stages called = %v, want [a b]", calls)
	}
}

func TestParseTables(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"valid", `{"default":"general","known_companies":[{"pattern":"Альфа","category":"design"}],"keywords":[]}`, false},
		{"unknown category", `{"default":"general","known_companies":[{"pattern":"альфа","category":"snacks"}],"keywords":[]}`, true},
		{"missing default", `{"known_companies":[],"keywords":[]}`, true},
		{"extra field", `{"default":"general","known_companies":[],"keywords":[],"x":1}`, true},
		{"not json", `{`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTables([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTables() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got.KnownCompanies[0].Pattern != "альфа" {
				t.Errorf("pattern = %q, want normalized альфа", got.KnownCompanies[0].Pattern)
			}
		})
	}
}

func TestDefaultTables(t *testing.T) {
	tables := DefaultTables()
	if len(tables.KnownCompanies) != 10 {
		t.Errorf("known companies = %d, want 10", len(tables.KnownCompanies))
	}
	if len(tables.Keywords) != len(constants.AllCategories()) {
		t.Errorf("keyword groups = %d, want %d", len(tables.Keywords), len(constants.AllCategories()))
	}
	if tables.Default != constants.General {
		t.Errorf("default = %s, want general", tables.Default)
	}
}
