package enums

import "fmt"

// PayoutStatus tracks the payout sub-document independently of the transaction status.
type PayoutStatus string

const (
	PayoutStatusNotApplicable PayoutStatus = "not_applicable"
	PayoutStatusPending       PayoutStatus = "pending"
	PayoutStatusInTransit     PayoutStatus = "in_transit"
	PayoutStatusPaid          PayoutStatus = "paid"
	PayoutStatusFailed        PayoutStatus = "failed"
	PayoutStatusCanceled      PayoutStatus = "canceled"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusNotApplicable,
	PayoutStatusPending,
	PayoutStatusInTransit,
	PayoutStatusPaid,
	PayoutStatusFailed,
	PayoutStatusCanceled,
}

// IsValid reports whether the value matches the canonical payout status enum.
func (p PayoutStatus) IsValid() bool {
	for _, candidate := range validPayoutStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePayoutStatus converts the raw string to PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	for _, candidate := range validPayoutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout status %q", value)
}
