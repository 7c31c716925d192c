package ledger

import "github.com/angelmondragon/ledgercore-backend/pkg/enums"

// transitions encodes the forward-only status machine. A status missing from
// the map is terminal.
var transitions = map[enums.TransactionStatus][]enums.TransactionStatus{
	enums.TransactionStatusPending: {
		enums.TransactionStatusProcessing,
		enums.TransactionStatusSucceeded,
		enums.TransactionStatusFailed,
		enums.TransactionStatusCanceled,
		enums.TransactionStatusRequiresAction,
	},
	enums.TransactionStatusProcessing: {
		enums.TransactionStatusSucceeded,
		enums.TransactionStatusFailed,
		enums.TransactionStatusCanceled,
		enums.TransactionStatusRequiresAction,
	},
	enums.TransactionStatusRequiresAction: {
		enums.TransactionStatusProcessing,
		enums.TransactionStatusSucceeded,
		enums.TransactionStatusFailed,
		enums.TransactionStatusCanceled,
	},
	enums.TransactionStatusSucceeded: {
		enums.TransactionStatusRefunded,
		enums.TransactionStatusPartiallyRefunded,
		enums.TransactionStatusDisputed,
		enums.TransactionStatusChargeback,
	},
	enums.TransactionStatusPartiallyRefunded: {
		enums.TransactionStatusPartiallyRefunded,
		enums.TransactionStatusRefunded,
		enums.TransactionStatusDisputed,
		enums.TransactionStatusChargeback,
	},
	enums.TransactionStatusRefunded: {
		enums.TransactionStatusDisputed,
		enums.TransactionStatusChargeback,
	},
	enums.TransactionStatusDisputed: {
		enums.TransactionStatusChargeback,
	},
}

// CanTransition reports whether the status machine allows from → to.
func CanTransition(from, to enums.TransactionStatus) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further status transition is possible.
func IsTerminal(status enums.TransactionStatus) bool {
	return len(transitions[status]) == 0
}

// IsRefundable reports whether a refund may be appended in this status.
func IsRefundable(status enums.TransactionStatus) bool {
	return status == enums.TransactionStatusSucceeded ||
		status == enums.TransactionStatusPartiallyRefunded
}

// IsSettleable reports whether the transaction can still be marked
// succeeded or failed by vendor confirmation.
func IsSettleable(status enums.TransactionStatus) bool {
	return status == enums.TransactionStatusPending ||
		status == enums.TransactionStatusProcessing ||
		status == enums.TransactionStatusRequiresAction
}

// payoutTransitions encodes the forward-only payout sub-machine.
var payoutTransitions = map[enums.PayoutStatus][]enums.PayoutStatus{
	enums.PayoutStatusNotApplicable: {
		enums.PayoutStatusPending,
	},
	enums.PayoutStatusPending: {
		enums.PayoutStatusInTransit,
		enums.PayoutStatusPaid,
		enums.PayoutStatusFailed,
		enums.PayoutStatusCanceled,
	},
	enums.PayoutStatusInTransit: {
		enums.PayoutStatusPaid,
		enums.PayoutStatusFailed,
		enums.PayoutStatusCanceled,
	},
	enums.PayoutStatusFailed: {
		enums.PayoutStatusPending,
	},
}

// CanTransitionPayout reports whether the payout sub-machine allows from → to.
func CanTransitionPayout(from, to enums.PayoutStatus) bool {
	if from == "" {
		from = enums.PayoutStatusNotApplicable
	}
	for _, candidate := range payoutTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
