package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount decomposes a monetary value in minor currency units.
// Net is always derived: net = gross - fee - tax + discount.
type Amount struct {
	GrossCents    int64 `json:"gross_cents"`
	FeeCents      int64 `json:"fee_cents"`
	TaxCents      int64 `json:"tax_cents"`
	DiscountCents int64 `json:"discount_cents"`
	NetCents      int64 `json:"net_cents"`
}

// New returns an Amount with the derived net already computed.
func New(grossCents int64) Amount {
	a := Amount{GrossCents: grossCents}
	a.Recompute()
	return a
}

// Recompute rederives net from the other components.
func (a *Amount) Recompute() {
	a.NetCents = a.GrossCents - a.FeeCents - a.TaxCents + a.DiscountCents
}

// Validate rejects negative components and a broken net identity.
func (a Amount) Validate() error {
	if a.GrossCents < 0 {
		return fmt.Errorf("gross cannot be negative, got %d", a.GrossCents)
	}
	if a.FeeCents < 0 {
		return fmt.Errorf("fee cannot be negative, got %d", a.FeeCents)
	}
	if a.TaxCents < 0 {
		return fmt.Errorf("tax cannot be negative, got %d", a.TaxCents)
	}
	if a.DiscountCents < 0 {
		return fmt.Errorf("discount cannot be negative, got %d", a.DiscountCents)
	}
	if want := a.GrossCents - a.FeeCents - a.TaxCents + a.DiscountCents; a.NetCents != want {
		return fmt.Errorf("net %d does not balance, want %d", a.NetCents, want)
	}
	return nil
}

// ApplyFee replaces the fee component and recomputes net.
func (a *Amount) ApplyFee(feeCents int64) error {
	if feeCents < 0 {
		return fmt.Errorf("fee cannot be negative, got %d", feeCents)
	}
	a.FeeCents = feeCents
	a.Recompute()
	return nil
}

// ApplyTax replaces the tax component and recomputes net.
func (a *Amount) ApplyTax(taxCents int64) error {
	if taxCents < 0 {
		return fmt.Errorf("tax cannot be negative, got %d", taxCents)
	}
	a.TaxCents = taxCents
	a.Recompute()
	return nil
}

// ApplyDiscount replaces the discount component and recomputes net.
func (a *Amount) ApplyDiscount(discountCents int64) error {
	if discountCents < 0 {
		return fmt.Errorf("discount cannot be negative, got %d", discountCents)
	}
	a.DiscountCents = discountCents
	a.Recompute()
	return nil
}

// TaxFor computes the tax owed on grossCents at the given decimal rate
// (0.0825 for 8.25%), rounded half away from zero to whole minor units.
func TaxFor(grossCents int64, rate decimal.Decimal) int64 {
	if grossCents <= 0 || rate.IsZero() || rate.IsNegative() {
		return 0
	}
	return decimal.NewFromInt(grossCents).Mul(rate).Round(0).IntPart()
}
