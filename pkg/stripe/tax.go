package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	taxcalculation "github.com/stripe/stripe-go/v84/tax/calculation"
)

// TaxAddress is the billing address a calculation is sourced from.
type TaxAddress struct {
	Country    string
	State      string
	City       string
	PostalCode string
	Line1      string
}

// TaxLineItem is one taxable line in a calculation request.
type TaxLineItem struct {
	AmountCents int64
	Reference   string
}

// TaxCalculationParams describes a Stripe Tax calculation request.
type TaxCalculationParams struct {
	Currency  string
	Address   TaxAddress
	LineItems []TaxLineItem
}

// CalculateTax runs a Stripe Tax calculation over the line items.
func (c *Client) CalculateTax(ctx context.Context, params TaxCalculationParams) (*stripe.TaxCalculation, error) {
	req := &stripe.TaxCalculationParams{
		Currency: stripe.String(params.Currency),
		CustomerDetails: &stripe.TaxCalculationCustomerDetailsParams{
			Address: &stripe.AddressParams{
				Country:    stripe.String(params.Address.Country),
				State:      stripe.String(params.Address.State),
				City:       stripe.String(params.Address.City),
				PostalCode: stripe.String(params.Address.PostalCode),
				Line1:      stripe.String(params.Address.Line1),
			},
			AddressSource: stripe.String("billing"),
		},
	}
	req.Context = ctx
	for _, li := range params.LineItems {
		req.LineItems = append(req.LineItems, &stripe.TaxCalculationLineItemParams{
			Amount:    stripe.Int64(li.AmountCents),
			Reference: stripe.String(li.Reference),
		})
	}
	c.log(ctx, "request", "calculate_tax", map[string]any{
		"currency": params.Currency,
		"country":  params.Address.Country,
	})

	calc, err := taxcalculation.New(req)
	if err != nil {
		c.log(ctx, "error", "calculate_tax", map[string]any{"error": err.Error()})
		return nil, c.mapStripeError(err, "calculate tax")
	}

	c.log(ctx, "response", "calculate_tax", map[string]any{
		"tax_amount_exclusive": calc.TaxAmountExclusive,
		"amount_total":         calc.AmountTotal,
	})
	return calc, nil
}
