package enums

import "fmt"

// ProviderCategory separates payment processors from tax calculators.
type ProviderCategory string

const (
	ProviderCategoryPayment ProviderCategory = "payment"
	ProviderCategoryTax     ProviderCategory = "tax"
)

var validProviderCategories = []ProviderCategory{
	ProviderCategoryPayment,
	ProviderCategoryTax,
}

// IsValid reports whether the value matches the canonical provider category enum.
func (p ProviderCategory) IsValid() bool {
	for _, candidate := range validProviderCategories {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProviderCategory converts the raw string to ProviderCategory.
func ParseProviderCategory(value string) (ProviderCategory, error) {
	for _, candidate := range validProviderCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid provider category %q", value)
}
