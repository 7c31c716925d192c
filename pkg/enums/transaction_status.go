package enums

import "fmt"

// TransactionStatus is the ledger's finite state machine position for a transaction.
type TransactionStatus string

const (
	TransactionStatusPending           TransactionStatus = "pending"
	TransactionStatusProcessing        TransactionStatus = "processing"
	TransactionStatusSucceeded         TransactionStatus = "succeeded"
	TransactionStatusFailed            TransactionStatus = "failed"
	TransactionStatusCanceled          TransactionStatus = "canceled"
	TransactionStatusRequiresAction    TransactionStatus = "requires_action"
	TransactionStatusRefunded          TransactionStatus = "refunded"
	TransactionStatusPartiallyRefunded TransactionStatus = "partially_refunded"
	TransactionStatusDisputed          TransactionStatus = "disputed"
	TransactionStatusChargeback        TransactionStatus = "chargeback"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusProcessing,
	TransactionStatusSucceeded,
	TransactionStatusFailed,
	TransactionStatusCanceled,
	TransactionStatusRequiresAction,
	TransactionStatusRefunded,
	TransactionStatusPartiallyRefunded,
	TransactionStatusDisputed,
	TransactionStatusChargeback,
}

// String implements fmt.Stringer.
func (s TransactionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value matches the canonical transaction status enum.
func (s TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseTransactionStatus converts the raw string to TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}
