package enums

import "fmt"

// TaxRateStatus gates whether a fallback rate row can be used.
type TaxRateStatus string

const (
	TaxRateStatusActive   TaxRateStatus = "active"
	TaxRateStatusInactive TaxRateStatus = "inactive"
)

var validTaxRateStatuses = []TaxRateStatus{
	TaxRateStatusActive,
	TaxRateStatusInactive,
}

// IsValid reports whether the value matches the canonical tax rate status enum.
func (t TaxRateStatus) IsValid() bool {
	for _, candidate := range validTaxRateStatuses {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTaxRateStatus converts the raw string to TaxRateStatus.
func ParseTaxRateStatus(value string) (TaxRateStatus, error) {
	for _, candidate := range validTaxRateStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid tax rate status %q", value)
}
