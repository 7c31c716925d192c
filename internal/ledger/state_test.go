package ledger

import (
	"testing"

	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name string
		from enums.TransactionStatus
		to   enums.TransactionStatus
		want bool
	}{
		{"pending to processing", enums.TransactionStatusPending, enums.TransactionStatusProcessing, true},
		{"pending to succeeded", enums.TransactionStatusPending, enums.TransactionStatusSucceeded, true},
		{"processing to requires_action", enums.TransactionStatusProcessing, enums.TransactionStatusRequiresAction, true},
		{"requires_action back to processing", enums.TransactionStatusRequiresAction, enums.TransactionStatusProcessing, true},
		{"succeeded to partially_refunded", enums.TransactionStatusSucceeded, enums.TransactionStatusPartiallyRefunded, true},
		{"partially_refunded to refunded", enums.TransactionStatusPartiallyRefunded, enums.TransactionStatusRefunded, true},
		{"refunded to disputed", enums.TransactionStatusRefunded, enums.TransactionStatusDisputed, true},
		{"disputed to chargeback", enums.TransactionStatusDisputed, enums.TransactionStatusChargeback, true},
		{"failed is terminal", enums.TransactionStatusFailed, enums.TransactionStatusPending, false},
		{"canceled is terminal", enums.TransactionStatusCanceled, enums.TransactionStatusProcessing, false},
		{"succeeded cannot go back to pending", enums.TransactionStatusSucceeded, enums.TransactionStatusPending, false},
		{"refunded cannot be re-refunded", enums.TransactionStatusRefunded, enums.TransactionStatusRefunded, false},
		{"chargeback is terminal", enums.TransactionStatusChargeback, enums.TransactionStatusDisputed, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanTransition(tc.from, tc.to); got != tc.want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []enums.TransactionStatus{
		enums.TransactionStatusFailed,
		enums.TransactionStatusCanceled,
		enums.TransactionStatusChargeback,
	}
	for _, status := range terminal {
		if !IsTerminal(status) {
			t.Errorf("expected %s to be terminal", status)
		}
	}

	open := []enums.TransactionStatus{
		enums.TransactionStatusPending,
		enums.TransactionStatusSucceeded,
		enums.TransactionStatusDisputed,
	}
	for _, status := range open {
		if IsTerminal(status) {
			t.Errorf("expected %s not to be terminal", status)
		}
	}
}

func TestIsRefundable(t *testing.T) {
	if !IsRefundable(enums.TransactionStatusSucceeded) {
		t.Error("succeeded must be refundable")
	}
	if !IsRefundable(enums.TransactionStatusPartiallyRefunded) {
		t.Error("partially_refunded must be refundable")
	}
	for _, status := range []enums.TransactionStatus{
		enums.TransactionStatusPending,
		enums.TransactionStatusFailed,
		enums.TransactionStatusRefunded,
		enums.TransactionStatusDisputed,
	} {
		if IsRefundable(status) {
			t.Errorf("%s must not be refundable", status)
		}
	}
}

func TestCanTransitionPayout(t *testing.T) {
	cases := []struct {
		from enums.PayoutStatus
		to   enums.PayoutStatus
		want bool
	}{
		{enums.PayoutStatusNotApplicable, enums.PayoutStatusPending, true},
		{enums.PayoutStatusPending, enums.PayoutStatusInTransit, true},
		{enums.PayoutStatusInTransit, enums.PayoutStatusPaid, true},
		{enums.PayoutStatusFailed, enums.PayoutStatusPending, true},
		{enums.PayoutStatusPaid, enums.PayoutStatusPending, false},
		{enums.PayoutStatusCanceled, enums.PayoutStatusPending, false},
		{enums.PayoutStatusNotApplicable, enums.PayoutStatusPaid, false},
	}
	for _, tc := range cases {
		if got := CanTransitionPayout(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransitionPayout(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}

	// The zero value behaves like not_applicable.
	if !CanTransitionPayout("", enums.PayoutStatusPending) {
		t.Error("empty payout status should allow moving to pending")
	}
}
