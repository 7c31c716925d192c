package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v84"
)

// CustomerCreateParams describes a new Stripe customer.
type CustomerCreateParams struct {
	Email          string
	Name           string
	ReferenceID    string
	IdempotencyKey string
}

func (p CustomerCreateParams) toStripeParams(ctx context.Context) *stripe.CustomerParams {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if p.Email != "" {
		params.Email = stripe.String(p.Email)
	}
	if p.Name != "" {
		params.Name = stripe.String(p.Name)
	}
	if p.ReferenceID != "" {
		params.AddMetadata("reference_id", p.ReferenceID)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	return params
}

// PaymentMethodAttachParams binds a vaulted payment method to a customer.
type PaymentMethodAttachParams struct {
	PaymentMethodID string
	CustomerID      string
}

// SubscriptionCreateParams describes a recurring billing subscription.
type SubscriptionCreateParams struct {
	CustomerID     string
	PriceID        string
	PaymentMethod  string
	IdempotencyKey string
}

func (p SubscriptionCreateParams) toStripeParams(ctx context.Context) *stripe.SubscriptionParams {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(p.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(p.PriceID)},
		},
	}
	params.Context = ctx
	if p.PaymentMethod != "" {
		params.DefaultPaymentMethod = stripe.String(p.PaymentMethod)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	return params
}

// InvoiceCreateParams describes a one-off invoice.
type InvoiceCreateParams struct {
	CustomerID     string
	Description    string
	AutoAdvance    bool
	IdempotencyKey string
}

func (p InvoiceCreateParams) toStripeParams(ctx context.Context) *stripe.InvoiceParams {
	params := &stripe.InvoiceParams{
		Customer:    stripe.String(p.CustomerID),
		AutoAdvance: stripe.Bool(p.AutoAdvance),
	}
	params.Context = ctx
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	return params
}

// PaymentCreateParams describes a one-time charge via payment intent.
type PaymentCreateParams struct {
	AmountCents     int64
	Currency        string
	CustomerID      string
	PaymentMethodID string
	Description     string
	Confirm         bool
	IdempotencyKey  string
	Metadata        map[string]string
}

func (p PaymentCreateParams) toStripeParams(ctx context.Context) *stripe.PaymentIntentParams {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.AmountCents),
		Currency: stripe.String(p.Currency),
	}
	params.Context = ctx
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	}
	if p.PaymentMethodID != "" {
		params.PaymentMethod = stripe.String(p.PaymentMethodID)
	}
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	if p.Confirm {
		params.Confirm = stripe.Bool(true)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	return params
}

// RefundCreateParams describes a refund against an earlier payment.
type RefundCreateParams struct {
	PaymentIntentID string
	AmountCents     int64
	Reason          string
	IdempotencyKey  string
}

func (p RefundCreateParams) toStripeParams(ctx context.Context) *stripe.RefundParams {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(p.PaymentIntentID),
	}
	params.Context = ctx
	if p.AmountCents > 0 {
		params.Amount = stripe.Int64(p.AmountCents)
	}
	if p.Reason != "" {
		params.Reason = stripe.String(p.Reason)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	return params
}
