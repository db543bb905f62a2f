package constants

import (
	"strings"
)

// Category is the key of an expense category. Keys are stable and stored as-is.
type Category string

const (
	Profiles       Category = "profiles"
	GlassUnits     Category = "glass_units"
	Fittings       Category = "fittings"
	Accessories    Category = "accessories"
	Lifting        Category = "lifting"
	Installation   Category = "installation"
	Logistics      Category = "logistics"
	Manufacturing  Category = "manufacturing"
	Fasteners      Category = "fasteners"
	Painting       Category = "painting"
	TrimStrips     Category = "trim_strips"
	Design         Category = "design"
	Brackets       Category = "brackets"
	Other          Category = "other"
	AdditionalWork Category = "additional_work"
	General        Category = "general"
)

// DefaultCategory is assigned when nothing else matches.
const DefaultCategory = General

var allCategories = []Category{
	Profiles,
	GlassUnits,
	Fittings,
	Accessories,
	Lifting,
	Installation,
	Logistics,
	Manufacturing,
	Fasteners,
	Painting,
	TrimStrips,
	Design,
	Brackets,
	Other,
	AdditionalWork,
	General,
}

var displayNames = map[Category]string{
	Profiles:       "Профили",
	GlassUnits:     "Стеклопакеты",
	Fittings:       "Фурнитура",
	Accessories:    "Комплектация",
	Lifting:        "Подъемное оборудование",
	Installation:   "Монтаж",
	Logistics:      "Логистика",
	Manufacturing:  "Производство",
	Fasteners:      "Крепеж",
	Painting:       "Покраска",
	TrimStrips:     "Нащельники",
	Design:         "Проектирование",
	Brackets:       "Кронштейны",
	Other:          "Прочее",
	AdditionalWork: "Доп работы",
	General:        "Общее",
}

// AllCategories returns the enumeration in its canonical order.
func AllCategories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// DisplayName returns the Russian label shown to users.
func (c Category) DisplayName() string {
	if name, ok := displayNames[c]; ok {
		return name
	}
	return displayNames[General]
}

func (c Category) Valid() bool {
	_, ok := displayNames[c]
	return ok
}

// Canonicalize maps a key, a display name or a known synonym to a Category.
// Supplier rows written by older tools store display names, so both are accepted.
func Canonicalize(input string) (Category, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return General, false
	}
	normalized = strings.ReplaceAll(normalized, "ё", "е")

	// synonyms map
	synonyms := map[string]Category{
		"подъемное":          Lifting,
		"подъем":             Lifting,
		"доп. работы":        AdditionalWork,
		"дополнительные":     AdditionalWork,
		"комплектующие":      Accessories,
		"метизы":             Fasteners,
		"крепёж":             Fasteners,
		"доставка":           Logistics,
		"проект":             Design,
		"остекление":         GlassUnits,
		"стекло":             GlassUnits,
		"общие":              General,
		"additional work":    AdditionalWork,
		"glass units":        GlassUnits,
		"trim strips":        TrimStrips,
		"lifting equipment":  Lifting,
	}

	if cat, ok := synonyms[normalized]; ok {
		return cat, true
	}

	for _, cat := range allCategories {
		if normalized == string(cat) || normalized == strings.ToLower(displayNames[cat]) {
			return cat, true
		}
	}

	return General, false
}
