package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"

	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgercore-backend/pkg/errors"
	"github.com/angelmondragon/ledgercore-backend/pkg/logger"
	"github.com/angelmondragon/ledgercore-backend/pkg/metrics"
	pkgsquare "github.com/angelmondragon/ledgercore-backend/pkg/square"
)

type squareProcessor struct {
	instrumented
	client     *pkgsquare.Client
	locationID string
	now        func() time.Time
}

// NewSquareProcessor wraps the Square client in the uniform Processor surface.
func NewSquareProcessor(client *pkgsquare.Client, locationID string, tracker HealthTracker, m *metrics.ProviderCallMetrics, logg *logger.Logger, timeout time.Duration) (Processor, error) {
	if client == nil {
		return nil, errors.New("square client required")
	}
	return &squareProcessor{
		instrumented: instrumented{
			vendor:  enums.ProviderNameSquare,
			tracker: tracker,
			metrics: m,
			logg:    logg,
			timeout: timeout,
		},
		client:     client,
		locationID: locationID,
		now:        time.Now,
	}, nil
}

func (p *squareProcessor) Name() enums.ProviderName { return enums.ProviderNameSquare }

func (p *squareProcessor) CreateCustomer(ctx context.Context, input CustomerInput) (*CustomerResult, error) {
	var out *CustomerResult
	err := p.observe(ctx, "create_customer", func(ctx context.Context) error {
		// Square has no vendor-side idempotent create for customers, so an
		// existing customer with the same reference is reused.
		if input.ReferenceID != "" {
			existing, err := p.client.SearchCustomer(ctx, pkgsquare.CustomerSearchParams{
				ReferenceID: input.ReferenceID,
			})
			if err == nil && existing != nil && existing.GetID() != nil {
				out = &CustomerResult{VendorCustomerID: *existing.GetID()}
				return nil
			}
		}
		cust, err := p.client.CreateCustomer(ctx, pkgsquare.CustomerCreateParams{
			Email:          input.Email,
			GivenName:      input.Name,
			ReferenceID:    input.ReferenceID,
			IdempotencyKey: DeriveIdempotencyKey("customer.create", input, p.now()),
		})
		if err != nil {
			return err
		}
		out = &CustomerResult{VendorCustomerID: deref(cust.GetID())}
		return nil
	})
	return out, err
}

func (p *squareProcessor) CreatePaymentMethod(ctx context.Context, input PaymentMethodInput) (*PaymentMethodResult, error) {
	var out *PaymentMethodResult
	err := p.observe(ctx, "create_payment_method", func(ctx context.Context) error {
		card, err := p.client.CreateCard(ctx, pkgsquare.CardCreateParams{
			CustomerID:     input.VendorCustomerID,
			SourceID:       input.Token,
			CardholderName: input.CardholderName,
			IdempotencyKey: DeriveIdempotencyKey("card.create", input, p.now()),
		})
		if err != nil {
			return err
		}
		out = &PaymentMethodResult{VendorPaymentMethodID: deref(card.GetID())}
		if brand := card.GetCardBrand(); brand != nil {
			out.Brand = string(*brand)
		}
		out.Last4 = deref(card.GetLast4())
		return nil
	})
	return out, err
}

func (p *squareProcessor) CreateSubscription(ctx context.Context, input SubscriptionInput) (*SubscriptionResult, error) {
	var out *SubscriptionResult
	err := p.observe(ctx, "create_subscription", func(ctx context.Context) error {
		sub, err := p.client.CreateSubscription(ctx, pkgsquare.SubscriptionCreateParams{
			LocationID:      p.locationID,
			PlanVariationID: input.PlanID,
			CustomerID:      input.VendorCustomerID,
			CardID:          input.VendorPaymentMethodID,
			IdempotencyKey:  DeriveIdempotencyKey("subscription.create", input, p.now()),
		})
		if err != nil {
			return err
		}
		out = &SubscriptionResult{VendorSubscriptionID: deref(sub.GetID())}
		if status := sub.GetStatus(); status != nil {
			out.Status = string(*status)
		}
		return nil
	})
	return out, err
}

func (p *squareProcessor) CancelSubscription(ctx context.Context, vendorSubscriptionID string) error {
	return p.observe(ctx, "cancel_subscription", func(ctx context.Context) error {
		_, err := p.client.CancelSubscription(ctx, vendorSubscriptionID)
		return err
	})
}

func (p *squareProcessor) CreateInvoice(ctx context.Context, input InvoiceInput) (*InvoiceResult, error) {
	var out *InvoiceResult
	err := p.observe(ctx, "create_invoice", func(ctx context.Context) error {
		inv, err := p.client.CreateInvoice(ctx, pkgsquare.InvoiceCreateParams{
			LocationID:     p.locationID,
			OrderID:        input.ReferenceID,
			Title:          input.Description,
			IdempotencyKey: DeriveIdempotencyKey("invoice.create", input, p.now()),
		})
		if err != nil {
			return err
		}
		out = &InvoiceResult{VendorInvoiceID: deref(inv.GetID())}
		return nil
	})
	return out, err
}

func (p *squareProcessor) ProcessPayment(ctx context.Context, input ChargeInput) (*ChargeResult, error) {
	var out *ChargeResult
	err := p.observe(ctx, "process_payment", func(ctx context.Context) error {
		payment, err := p.client.CreatePayment(ctx, pkgsquare.PaymentCreateParams{
			AmountCents:    input.AmountCents,
			Currency:       string(input.Currency),
			LocationID:     p.locationID,
			CustomerID:     input.VendorCustomerID,
			SourceID:       input.VendorPaymentMethodID,
			Note:           input.Description,
			ReferenceID:    input.ReferenceID,
			IdempotencyKey: DeriveIdempotencyKey("payment.create", input, p.now()),
		})
		if err != nil {
			return err
		}
		out = &ChargeResult{
			VendorPaymentID: deref(payment.GetID()),
			Status:          squarePaymentStatus(deref(payment.GetStatus())),
		}
		return nil
	})
	return out, err
}

func (p *squareProcessor) RefundPayment(ctx context.Context, input RefundInput) (*RefundResult, error) {
	var out *RefundResult
	err := p.observe(ctx, "refund_payment", func(ctx context.Context) error {
		ref, err := p.client.RefundPayment(ctx, pkgsquare.RefundCreateParams{
			PaymentID:      input.VendorPaymentID,
			AmountCents:    input.AmountCents,
			Currency:       string(input.Currency),
			Reason:         input.Reason,
			IdempotencyKey: DeriveIdempotencyKey("refund.create", input, p.now()),
		})
		if err != nil {
			return err
		}
		out = &RefundResult{
			VendorRefundID: ref.GetID(),
			Status:         squareRefundStatus(deref(ref.GetStatus())),
		}
		return nil
	})
	return out, err
}

// VerifyWebhook checks the Square HMAC-SHA256 signature over the raw body.
func (p *squareProcessor) VerifyWebhook(payload []byte, signature string) error {
	if !validSquareSignature(payload, p.client.SigningSecret(), signature) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "square webhook signature rejected")
	}
	return nil
}

func validSquareSignature(payload []byte, secret, header string) bool {
	if secret == "" || header == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}

func squarePaymentStatus(status string) enums.TransactionStatus {
	switch status {
	case "COMPLETED":
		return enums.TransactionStatusSucceeded
	case "APPROVED", "PENDING":
		return enums.TransactionStatusProcessing
	case "CANCELED":
		return enums.TransactionStatusCanceled
	case "FAILED":
		return enums.TransactionStatusFailed
	default:
		return enums.TransactionStatusPending
	}
}

func squareRefundStatus(status string) enums.RefundStatus {
	switch status {
	case "COMPLETED":
		return enums.RefundStatusSucceeded
	case "REJECTED", "FAILED":
		return enums.RefundStatusFailed
	default:
		return enums.RefundStatusPending
	}
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
