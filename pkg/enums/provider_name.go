package enums

import (
	"fmt"
	"strings"
)

// ProviderName identifies a configured vendor implementation.
type ProviderName string

const (
	ProviderNameStripe ProviderName = "stripe"
	ProviderNameSquare ProviderName = "square"
)

var validProviderNames = []ProviderName{
	ProviderNameStripe,
	ProviderNameSquare,
}

// String implements fmt.Stringer.
func (p ProviderName) String() string {
	return string(p)
}

// IsValid reports whether the value matches a known vendor.
func (p ProviderName) IsValid() bool {
	for _, candidate := range validProviderNames {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProviderName converts the raw string to a ProviderName, case-insensitively.
func ParseProviderName(value string) (ProviderName, error) {
	normalized := ProviderName(strings.ToLower(strings.TrimSpace(value)))
	for _, candidate := range validProviderNames {
		if candidate == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid provider name %q", value)
}
