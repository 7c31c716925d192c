package payments

import (
	"context"
	"time"

	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	"github.com/angelmondragon/ledgercore-backend/pkg/logger"
	"github.com/angelmondragon/ledgercore-backend/pkg/metrics"
)

// Processor is the uniform vendor capability set. Adapters normalize vendor
// errors into the domain taxonomy and report every call to the health tracker.
type Processor interface {
	Name() enums.ProviderName
	CreateCustomer(ctx context.Context, input CustomerInput) (*CustomerResult, error)
	CreatePaymentMethod(ctx context.Context, input PaymentMethodInput) (*PaymentMethodResult, error)
	CreateSubscription(ctx context.Context, input SubscriptionInput) (*SubscriptionResult, error)
	CancelSubscription(ctx context.Context, vendorSubscriptionID string) error
	CreateInvoice(ctx context.Context, input InvoiceInput) (*InvoiceResult, error)
	ProcessPayment(ctx context.Context, input ChargeInput) (*ChargeResult, error)
	RefundPayment(ctx context.Context, input RefundInput) (*RefundResult, error)
	VerifyWebhook(payload []byte, signature string) error
}

// CustomerInput identifies a buyer at the vendor.
type CustomerInput struct {
	Email       string
	Name        string
	ReferenceID string
}

// CustomerResult carries the vendor's customer handle.
type CustomerResult struct {
	VendorCustomerID string
}

// PaymentMethodInput vaults a tokenized instrument against a vendor customer.
type PaymentMethodInput struct {
	VendorCustomerID string
	Token            string
	CardholderName   string
}

// PaymentMethodResult carries the vendor's stored-instrument handle.
type PaymentMethodResult struct {
	VendorPaymentMethodID string
	Brand                 string
	Last4                 string
}

// SubscriptionInput starts recurring billing.
type SubscriptionInput struct {
	VendorCustomerID      string
	PlanID                string
	VendorPaymentMethodID string
}

// SubscriptionResult carries the vendor subscription handle and state.
type SubscriptionResult struct {
	VendorSubscriptionID string
	Status               string
}

// InvoiceInput creates a one-off invoice.
type InvoiceInput struct {
	VendorCustomerID string
	ReferenceID      string
	Description      string
}

// InvoiceResult carries the vendor invoice handle.
type InvoiceResult struct {
	VendorInvoiceID string
}

// ChargeInput is a one-time payment request.
type ChargeInput struct {
	AmountCents           int64
	Currency              enums.Currency
	VendorCustomerID      string
	VendorPaymentMethodID string
	Description           string
	ReferenceID           string
	Metadata              map[string]string
}

// ChargeResult is the normalized outcome of a vendor charge.
type ChargeResult struct {
	VendorPaymentID string
	Status          enums.TransactionStatus
	FeeCents        int64
}

// RefundInput reverses all or part of an earlier vendor payment.
type RefundInput struct {
	VendorPaymentID string
	AmountCents     int64
	Currency        enums.Currency
	Reason          string
	ReferenceID     string
}

// RefundResult is the normalized outcome of a vendor refund.
type RefundResult struct {
	VendorRefundID string
	Status         enums.RefundStatus
}

// HealthTracker receives the outcome of every vendor call.
type HealthTracker interface {
	RecordSuccess(ctx context.Context, category enums.ProviderCategory, vendor enums.ProviderName, latency time.Duration)
	RecordFailure(ctx context.Context, category enums.ProviderCategory, vendor enums.ProviderName, latency time.Duration)
}

// instrumented is shared by the adapters: timeout, latency measurement,
// health reporting, and metrics around every vendor call.
type instrumented struct {
	vendor  enums.ProviderName
	tracker HealthTracker
	metrics *metrics.ProviderCallMetrics
	logg    *logger.Logger
	timeout time.Duration
}

func (i *instrumented) observe(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	callCtx := ctx
	var cancel context.CancelFunc
	if i.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(callCtx)
	latency := time.Since(start)

	i.metrics.ObserveDuration(string(i.vendor), operation, latency)
	if err != nil {
		i.metrics.IncFailure(string(i.vendor), operation)
		if i.tracker != nil {
			i.tracker.RecordFailure(ctx, enums.ProviderCategoryPayment, i.vendor, latency)
		}
		return err
	}
	i.metrics.IncSuccess(string(i.vendor), operation)
	if i.tracker != nil {
		i.tracker.RecordSuccess(ctx, enums.ProviderCategoryPayment, i.vendor, latency)
	}
	return nil
}
