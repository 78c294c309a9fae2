package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Category groups spending. The identifier is part of the domain; the
// display metadata in CategoryInfo is presentation only.
type Category string

const (
	CategoryLeisure   Category = "leisure"
	CategoryFood      Category = "food"
	CategoryTransport Category = "transport"
	CategoryShopping  Category = "shopping"
	CategoryHealth    Category = "health"
	CategoryEducation Category = "education"
	CategoryHousing   Category = "housing"
	CategoryVehicle   Category = "vehicle"
	CategoryOther     Category = "other"
)

type CategoryInfo struct {
	ID    Category `json:"id"`
	Name  string   `json:"name"`
	Icon  string   `json:"icon"`
	Color string   `json:"color"`
}

var categoryTable = []CategoryInfo{
	{CategoryLeisure, "Leisure", "🎉", "#f472b6"},
	{CategoryFood, "Food", "🍔", "#fb923c"},
	{CategoryTransport, "Transport", "🚗", "#60a5fa"},
	{CategoryShopping, "Shopping", "🛍️", "#a78bfa"},
	{CategoryHealth, "Health", "💪", "#34d399"},
	{CategoryEducation, "Education", "📚", "#fbbf24"},
	{CategoryHousing, "Housing", "🏠", "#8b5cf6"},
	{CategoryVehicle, "Vehicle", "🚙", "#ec4899"},
	{CategoryOther, "Other", "📦", "#94a3b8"},
}

// legacyCategoryIDs maps identifiers written by the local edition.
var legacyCategoryIDs = map[string]Category{
	"lazer":       CategoryLeisure,
	"alimentacao": CategoryFood,
	"transporte":  CategoryTransport,
	"compras":     CategoryShopping,
	"saude":       CategoryHealth,
	"educacao":    CategoryEducation,
	"moradia":     CategoryHousing,
	"veiculo":     CategoryVehicle,
	"outros":      CategoryOther,
}

// Categories returns every category in display order.
func Categories() []Category {
	out := make([]Category, len(categoryTable))
	for i, info := range categoryTable {
		out[i] = info.ID
	}
	return out
}

// AllCategoryInfo returns the metadata table in display order.
func AllCategoryInfo() []CategoryInfo {
	out := make([]CategoryInfo, len(categoryTable))
	copy(out, categoryTable)
	return out
}

func (c Category) Valid() bool {
	for _, info := range categoryTable {
		if info.ID == c {
			return true
		}
	}
	return false
}

// Info returns display metadata. Unknown categories are described as Other.
func (c Category) Info() CategoryInfo {
	for _, info := range categoryTable {
		if info.ID == c {
			return info
		}
	}
	other := categoryTable[len(categoryTable)-1]
	other.ID = c
	return other
}

// ParseCategory accepts canonical and legacy identifiers.
func ParseCategory(s string) (Category, error) {
	c := normalizeCategory(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
	return c, nil
}

func normalizeCategory(s string) Category {
	if c, ok := legacyCategoryIDs[s]; ok {
		return c
	}
	folded := foldCategoryID(s)
	if c, ok := legacyCategoryIDs[folded]; ok {
		return c
	}
	if Category(folded).Valid() {
		return Category(folded)
	}
	return Category(s)
}

// foldCategoryID lowercases s and strips diacritics, so "Alimentação"
// becomes "alimentacao".
func foldCategoryID(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		return s
	}
	return strings.ToLower(folded)
}

// UnmarshalJSON normalizes legacy identifiers. Unknown identifiers are kept
// so that Validate can report them.
func (c *Category) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*c = normalizeCategory(s)
	return nil
}
