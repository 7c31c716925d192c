package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/invoice"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/paymentmethod"
	"github.com/stripe/stripe-go/v84/refund"
	"github.com/stripe/stripe-go/v84/subscription"

	"github.com/angelmondragon/ledgercore-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/ledgercore-backend/pkg/errors"
	"github.com/angelmondragon/ledgercore-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errLoggerRequired   = errors.New("stripe logger is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client exposes the Stripe operations the platform needs, with centralized
// logging, idempotency, and error mapping.
type Client struct {
	environment   string
	signingSecret string
	logger        *logger.Logger
}

// NewClient initializes Stripe once with the configured secrets and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	signingSecret := strings.TrimSpace(cfg.WebhookSecret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}

	stripe.Key = apiKey

	c := &Client{
		environment:   env,
		signingSecret: signingSecret,
		logger:        logg,
	}
	logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	return c, nil
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// Customer operations
func (c *Client) CreateCustomer(ctx context.Context, params CustomerCreateParams) (*stripe.Customer, error) {
	req := params.toStripeParams(ctx)
	c.log(ctx, "request", "create_customer", map[string]any{"reference_id": params.ReferenceID})

	cust, err := customer.New(req)
	if err != nil {
		c.log(ctx, "error", "create_customer", map[string]any{"error": err.Error()})
		return nil, c.mapStripeError(err, "create customer")
	}

	c.log(ctx, "response", "create_customer", map[string]any{"customer_id": cust.ID})
	return cust, nil
}

// Payment method operations
func (c *Client) AttachPaymentMethod(ctx context.Context, params PaymentMethodAttachParams) (*stripe.PaymentMethod, error) {
	req := &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(params.CustomerID),
	}
	req.Context = ctx
	c.log(ctx, "request", "attach_payment_method", map[string]any{"customer_id": params.CustomerID})

	pm, err := paymentmethod.Attach(params.PaymentMethodID, req)
	if err != nil {
		c.log(ctx, "error", "attach_payment_method", map[string]any{"error": err.Error()})
		return nil, c.mapStripeError(err, "attach payment method")
	}

	c.log(ctx, "response", "attach_payment_method", map[string]any{"payment_method_id": pm.ID})
	return pm, nil
}

// Subscription operations
func (c *Client) CreateSubscription(ctx context.Context, params SubscriptionCreateParams) (*stripe.Subscription, error) {
	req := params.toStripeParams(ctx)
	c.log(ctx, "request", "create_subscription", map[string]any{
		"customer_id": params.CustomerID,
		"price_id":    params.PriceID,
	})

	sub, err := subscription.New(req)
	if err != nil {
		c.log(ctx, "error", "create_subscription", map[string]any{"error": err.Error()})
		return nil, c.mapStripeError(err, "create subscription")
	}

	c.log(ctx, "response", "create_subscription", map[string]any{
		"subscription_id": sub.ID,
		"status":          string(sub.Status),
	})
	return sub, nil
}

func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	req := &stripe.SubscriptionCancelParams{}
	req.Context = ctx
	c.log(ctx, "request", "cancel_subscription", map[string]any{"subscription_id": subscriptionID})

	sub, err := subscription.Cancel(subscriptionID, req)
	if err != nil {
		c.log(ctx, "error", "cancel_subscription", map[string]any{"error": err.Error()})
		return nil, c.mapStripeError(err, "cancel subscription")
	}

	c.log(ctx, "response", "cancel_subscription", map[string]any{
		"subscription_id": sub.ID,
		"status":          string(sub.Status),
	})
	return sub, nil
}

// Invoice operations
func (c *Client) CreateInvoice(ctx context.Context, params InvoiceCreateParams) (*stripe.Invoice, error) {
	req := params.toStripeParams(ctx)
	c.log(ctx, "request", "create_invoice", map[string]any{"customer_id": params.CustomerID})

	inv, err := invoice.New(req)
	if err != nil {
		c.log(ctx, "error", "create_invoice", map[string]any{"error": err.Error()})
		return nil, c.mapStripeError(err, "create invoice")
	}

	c.log(ctx, "response", "create_invoice", map[string]any{"invoice_id": inv.ID})
	return inv, nil
}

// Payment operations
func (c *Client) CreatePayment(ctx context.Context, params PaymentCreateParams) (*stripe.PaymentIntent, error) {
	req := params.toStripeParams(ctx)
	c.log(ctx, "request", "create_payment", map[string]any{
		"customer_id": params.CustomerID,
		"amount":      params.AmountCents,
		"currency":    params.Currency,
	})

	intent, err := paymentintent.New(req)
	if err != nil {
		c.log(ctx, "error", "create_payment", map[string]any{"error": err.Error()})
		return nil, c.mapStripeError(err, "create payment")
	}

	c.log(ctx, "response", "create_payment", map[string]any{
		"payment_intent_id": intent.ID,
		"status":            string(intent.Status),
	})
	return intent, nil
}

func (c *Client) GetPayment(ctx context.Context, paymentIntentID string) (*stripe.PaymentIntent, error) {
	req := &stripe.PaymentIntentParams{}
	req.Context = ctx

	intent, err := paymentintent.Get(paymentIntentID, req)
	if err != nil {
		c.log(ctx, "error", "get_payment", map[string]any{"error": err.Error()})
		return nil, c.mapStripeError(err, "get payment")
	}
	return intent, nil
}

// Refund operations
func (c *Client) RefundPayment(ctx context.Context, params RefundCreateParams) (*stripe.Refund, error) {
	req := params.toStripeParams(ctx)
	c.log(ctx, "request", "refund_payment", map[string]any{
		"payment_intent_id": params.PaymentIntentID,
		"amount":            params.AmountCents,
	})

	ref, err := refund.New(req)
	if err != nil {
		c.log(ctx, "error", "refund_payment", map[string]any{"error": err.Error()})
		return nil, c.mapStripeError(err, "refund payment")
	}

	c.log(ctx, "response", "refund_payment", map[string]any{
		"refund_id": ref.ID,
		"status":    string(ref.Status),
	})
	return ref, nil
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("stripe %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("stripe %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"card", "token", "cvv", "cvc", "secret", "email", "phone"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func (c *Client) mapStripeError(err error, op string) error {
	if err == nil {
		return nil
	}
	var apiErr *stripe.Error
	if errors.As(err, &apiErr) {
		code := domainCodeForStatus(apiErr.HTTPStatusCode)
		if apiErr.Code == stripe.ErrorCodeIdempotencyKeyInUse {
			code = pkgerrors.CodeIdempotency
		}
		if apiErr.Type == stripe.ErrorType("authentication_error") {
			code = pkgerrors.CodeUnauthorized
		}
		return pkgerrors.Wrap(code, err, fmt.Sprintf("stripe %s failed", op))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("stripe %s failed", op))
}

// DeclineDetail extracts the vendor decline code and message from a payment
// failure, when present.
func DeclineDetail(err error) (code, declineCode, message string) {
	var apiErr *stripe.Error
	if errors.As(err, &apiErr) {
		return string(apiErr.Code), string(apiErr.DeclineCode), apiErr.Msg
	}
	return "", "", ""
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusPaymentRequired:
		return pkgerrors.CodeValidation
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
