package tax

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	"github.com/angelmondragon/ledgercore-backend/pkg/logger"
	"github.com/angelmondragon/ledgercore-backend/pkg/metrics"
	pkgstripe "github.com/angelmondragon/ledgercore-backend/pkg/stripe"
)

// Address is the billing address tax is computed against.
type Address struct {
	Country    string
	State      string
	City       string
	PostalCode string
	Line1      string
}

// LineItem is one taxable line of the request.
type LineItem struct {
	AmountCents int64
	Reference   string
}

// Input is a normalized tax calculation request.
type Input struct {
	AmountCents int64
	Currency    enums.Currency
	Address     Address
	LineItems   []LineItem
}

// Result is the normalized calculation outcome. Callers cannot tell whether
// it came from a live provider or the fallback table.
type Result struct {
	OriginalAmountCents int64
	TaxAmountCents      int64
	TotalAmountCents    int64
	Rate                decimal.Decimal
	Jurisdiction        string
	Provider            string
	IsDefault           bool
}

// Provider is a vendor tax calculation backend.
type Provider interface {
	Name() string
	Calculate(ctx context.Context, input Input) (*Result, error)
}

// HealthTracker mirrors the payment-side tracker for tax vendors.
type HealthTracker interface {
	RecordSuccess(ctx context.Context, category enums.ProviderCategory, vendor enums.ProviderName, latency time.Duration)
	RecordFailure(ctx context.Context, category enums.ProviderCategory, vendor enums.ProviderName, latency time.Duration)
}

type stripeTaxProvider struct {
	client  *pkgstripe.Client
	tracker HealthTracker
	metrics *metrics.ProviderCallMetrics
	logg    *logger.Logger
}

// NewStripeTaxProvider wraps Stripe Tax in the Provider surface.
func NewStripeTaxProvider(client *pkgstripe.Client, tracker HealthTracker, m *metrics.ProviderCallMetrics, logg *logger.Logger) (Provider, error) {
	if client == nil {
		return nil, errors.New("stripe client required")
	}
	return &stripeTaxProvider{client: client, tracker: tracker, metrics: m, logg: logg}, nil
}

func (p *stripeTaxProvider) Name() string { return string(enums.ProviderNameStripe) }

func (p *stripeTaxProvider) Calculate(ctx context.Context, input Input) (*Result, error) {
	lineItems := make([]pkgstripe.TaxLineItem, 0, len(input.LineItems))
	for _, li := range input.LineItems {
		lineItems = append(lineItems, pkgstripe.TaxLineItem{
			AmountCents: li.AmountCents,
			Reference:   li.Reference,
		})
	}
	if len(lineItems) == 0 {
		lineItems = append(lineItems, pkgstripe.TaxLineItem{
			AmountCents: input.AmountCents,
			Reference:   "total",
		})
	}

	start := time.Now()
	calc, err := p.client.CalculateTax(ctx, pkgstripe.TaxCalculationParams{
		Currency: string(input.Currency),
		Address: pkgstripe.TaxAddress{
			Country:    input.Address.Country,
			State:      input.Address.State,
			City:       input.Address.City,
			PostalCode: input.Address.PostalCode,
			Line1:      input.Address.Line1,
		},
		LineItems: lineItems,
	})
	latency := time.Since(start)

	p.metrics.ObserveDuration(p.Name(), "calculate_tax", latency)
	if err != nil {
		p.metrics.IncFailure(p.Name(), "calculate_tax")
		if p.tracker != nil {
			p.tracker.RecordFailure(ctx, enums.ProviderCategoryTax, enums.ProviderNameStripe, latency)
		}
		return nil, err
	}
	p.metrics.IncSuccess(p.Name(), "calculate_tax")
	if p.tracker != nil {
		p.tracker.RecordSuccess(ctx, enums.ProviderCategoryTax, enums.ProviderNameStripe, latency)
	}

	taxCents := calc.TaxAmountExclusive
	rate := decimal.Zero
	if input.AmountCents > 0 {
		rate = decimal.NewFromInt(taxCents).
			Div(decimal.NewFromInt(input.AmountCents)).
			Round(6)
	}
	return &Result{
		OriginalAmountCents: input.AmountCents,
		TaxAmountCents:      taxCents,
		TotalAmountCents:    input.AmountCents + taxCents,
		Rate:                rate,
		Jurisdiction:        jurisdictionLabel(input.Address.Country, input.Address.State),
		Provider:            p.Name(),
	}, nil
}

func jurisdictionLabel(country, state string) string {
	if state != "" {
		return country + "-" + state
	}
	return country
}
