package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNetIdentityHoldsAfterEveryMutation(t *testing.T) {
	a := New(5000)
	if a.NetCents != 5000 {
		t.Fatalf("fresh amount net = %d", a.NetCents)
	}

	if err := a.ApplyFee(150); err != nil {
		t.Fatalf("apply fee: %v", err)
	}
	if a.NetCents != 4850 {
		t.Fatalf("net after fee = %d, want 4850", a.NetCents)
	}

	if err := a.ApplyTax(413); err != nil {
		t.Fatalf("apply tax: %v", err)
	}
	if err := a.ApplyDiscount(100); err != nil {
		t.Fatalf("apply discount: %v", err)
	}
	if want := int64(5000 - 150 - 413 + 100); a.NetCents != want {
		t.Fatalf("net = %d, want %d", a.NetCents, want)
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRejectsNegativesAndBrokenIdentity(t *testing.T) {
	tests := []struct {
		name string
		a    Amount
	}{
		{"negative gross", Amount{GrossCents: -1}},
		{"negative fee", Amount{GrossCents: 100, FeeCents: -5, NetCents: 105}},
		{"negative tax", Amount{GrossCents: 100, TaxCents: -5, NetCents: 105}},
		{"negative discount", Amount{GrossCents: 100, DiscountCents: -5, NetCents: 95}},
		{"broken identity", Amount{GrossCents: 100, FeeCents: 10, NetCents: 100}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.a.Validate(); err == nil {
				t.Fatalf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestApplyRejectsNegativeComponents(t *testing.T) {
	a := New(1000)
	if err := a.ApplyFee(-1); err == nil {
		t.Fatal("expected negative fee rejection")
	}
	if err := a.ApplyTax(-1); err == nil {
		t.Fatal("expected negative tax rejection")
	}
	if err := a.ApplyDiscount(-1); err == nil {
		t.Fatal("expected negative discount rejection")
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("rejected mutations must leave the amount intact: %v", err)
	}
}

func TestTaxFor(t *testing.T) {
	tests := []struct {
		gross int64
		rate  string
		want  int64
	}{
		{5000, "0.0825", 413},  // 412.5 rounds half away from zero
		{10000, "0.0825", 825},
		{10000, "0.19", 1900},
		{0, "0.0825", 0},
		{5000, "0", 0},
		{5000, "-0.1", 0},
	}
	for _, tc := range tests {
		rate, err := decimal.NewFromString(tc.rate)
		if err != nil {
			t.Fatalf("parse rate %q: %v", tc.rate, err)
		}
		if got := TaxFor(tc.gross, rate); got != tc.want {
			t.Fatalf("TaxFor(%d, %s) = %d, want %d", tc.gross, tc.rate, got, tc.want)
		}
	}
}
