package payments

import (
	"context"
	"errors"
	"time"

	stripesdk "github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgercore-backend/pkg/errors"
	"github.com/angelmondragon/ledgercore-backend/pkg/logger"
	"github.com/angelmondragon/ledgercore-backend/pkg/metrics"
	pkgstripe "github.com/angelmondragon/ledgercore-backend/pkg/stripe"
)

type stripeProcessor struct {
	instrumented
	client *pkgstripe.Client
	now    func() time.Time
}

// NewStripeProcessor wraps the Stripe client in the uniform Processor surface.
func NewStripeProcessor(client *pkgstripe.Client, tracker HealthTracker, m *metrics.ProviderCallMetrics, logg *logger.Logger, timeout time.Duration) (Processor, error) {
	if client == nil {
		return nil, errors.New("stripe client required")
	}
	return &stripeProcessor{
		instrumented: instrumented{
			vendor:  enums.ProviderNameStripe,
			tracker: tracker,
			metrics: m,
			logg:    logg,
			timeout: timeout,
		},
		client: client,
		now:    time.Now,
	}, nil
}

func (p *stripeProcessor) Name() enums.ProviderName { return enums.ProviderNameStripe }

func (p *stripeProcessor) CreateCustomer(ctx context.Context, input CustomerInput) (*CustomerResult, error) {
	var out *CustomerResult
	err := p.observe(ctx, "create_customer", func(ctx context.Context) error {
		cust, err := p.client.CreateCustomer(ctx, pkgstripe.CustomerCreateParams{
			Email:          input.Email,
			Name:           input.Name,
			ReferenceID:    input.ReferenceID,
			IdempotencyKey: DeriveIdempotencyKey("customer.create", input, p.now()),
		})
		if err != nil {
			return err
		}
		out = &CustomerResult{VendorCustomerID: cust.ID}
		return nil
	})
	return out, err
}

func (p *stripeProcessor) CreatePaymentMethod(ctx context.Context, input PaymentMethodInput) (*PaymentMethodResult, error) {
	var out *PaymentMethodResult
	err := p.observe(ctx, "create_payment_method", func(ctx context.Context) error {
		pm, err := p.client.AttachPaymentMethod(ctx, pkgstripe.PaymentMethodAttachParams{
			PaymentMethodID: input.Token,
			CustomerID:      input.VendorCustomerID,
		})
		if err != nil {
			return err
		}
		out = &PaymentMethodResult{VendorPaymentMethodID: pm.ID}
		if pm.Card != nil {
			out.Brand = string(pm.Card.Brand)
			out.Last4 = pm.Card.Last4
		}
		return nil
	})
	return out, err
}

func (p *stripeProcessor) CreateSubscription(ctx context.Context, input SubscriptionInput) (*SubscriptionResult, error) {
	var out *SubscriptionResult
	err := p.observe(ctx, "create_subscription", func(ctx context.Context) error {
		sub, err := p.client.CreateSubscription(ctx, pkgstripe.SubscriptionCreateParams{
			CustomerID:     input.VendorCustomerID,
			PriceID:        input.PlanID,
			PaymentMethod:  input.VendorPaymentMethodID,
			IdempotencyKey: DeriveIdempotencyKey("subscription.create", input, p.now()),
		})
		if err != nil {
			return err
		}
		out = &SubscriptionResult{VendorSubscriptionID: sub.ID, Status: string(sub.Status)}
		return nil
	})
	return out, err
}

func (p *stripeProcessor) CancelSubscription(ctx context.Context, vendorSubscriptionID string) error {
	return p.observe(ctx, "cancel_subscription", func(ctx context.Context) error {
		_, err := p.client.CancelSubscription(ctx, vendorSubscriptionID)
		return err
	})
}

func (p *stripeProcessor) CreateInvoice(ctx context.Context, input InvoiceInput) (*InvoiceResult, error) {
	var out *InvoiceResult
	err := p.observe(ctx, "create_invoice", func(ctx context.Context) error {
		inv, err := p.client.CreateInvoice(ctx, pkgstripe.InvoiceCreateParams{
			CustomerID:     input.VendorCustomerID,
			Description:    input.Description,
			AutoAdvance:    true,
			IdempotencyKey: DeriveIdempotencyKey("invoice.create", input, p.now()),
		})
		if err != nil {
			return err
		}
		out = &InvoiceResult{VendorInvoiceID: inv.ID}
		return nil
	})
	return out, err
}

func (p *stripeProcessor) ProcessPayment(ctx context.Context, input ChargeInput) (*ChargeResult, error) {
	var out *ChargeResult
	err := p.observe(ctx, "process_payment", func(ctx context.Context) error {
		intent, err := p.client.CreatePayment(ctx, pkgstripe.PaymentCreateParams{
			AmountCents:     input.AmountCents,
			Currency:        string(input.Currency),
			CustomerID:      input.VendorCustomerID,
			PaymentMethodID: input.VendorPaymentMethodID,
			Description:     input.Description,
			Confirm:         input.VendorPaymentMethodID != "",
			Metadata:        input.Metadata,
			IdempotencyKey:  DeriveIdempotencyKey("payment.create", input, p.now()),
		})
		if err != nil {
			return err
		}
		out = &ChargeResult{
			VendorPaymentID: intent.ID,
			Status:          stripeIntentStatus(intent.Status),
		}
		return nil
	})
	return out, err
}

func (p *stripeProcessor) RefundPayment(ctx context.Context, input RefundInput) (*RefundResult, error) {
	var out *RefundResult
	err := p.observe(ctx, "refund_payment", func(ctx context.Context) error {
		ref, err := p.client.RefundPayment(ctx, pkgstripe.RefundCreateParams{
			PaymentIntentID: input.VendorPaymentID,
			AmountCents:     input.AmountCents,
			Reason:          input.Reason,
			IdempotencyKey:  DeriveIdempotencyKey("refund.create", input, p.now()),
		})
		if err != nil {
			return err
		}
		out = &RefundResult{
			VendorRefundID: ref.ID,
			Status:         stripeRefundStatus(ref.Status),
		}
		return nil
	})
	return out, err
}

func (p *stripeProcessor) VerifyWebhook(payload []byte, signature string) error {
	if _, err := webhook.ConstructEvent(payload, signature, p.client.SigningSecret()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "stripe webhook signature rejected")
	}
	return nil
}

func stripeIntentStatus(status stripesdk.PaymentIntentStatus) enums.TransactionStatus {
	switch status {
	case stripesdk.PaymentIntentStatusSucceeded:
		return enums.TransactionStatusSucceeded
	case stripesdk.PaymentIntentStatusProcessing:
		return enums.TransactionStatusProcessing
	case stripesdk.PaymentIntentStatusCanceled:
		return enums.TransactionStatusCanceled
	case stripesdk.PaymentIntentStatusRequiresAction,
		stripesdk.PaymentIntentStatusRequiresConfirmation,
		stripesdk.PaymentIntentStatusRequiresPaymentMethod:
		return enums.TransactionStatusRequiresAction
	default:
		return enums.TransactionStatusPending
	}
}

func stripeRefundStatus(status stripesdk.RefundStatus) enums.RefundStatus {
	switch status {
	case stripesdk.RefundStatusSucceeded:
		return enums.RefundStatusSucceeded
	case stripesdk.RefundStatusFailed, stripesdk.RefundStatusCanceled:
		return enums.RefundStatusFailed
	default:
		return enums.RefundStatusPending
	}
}
