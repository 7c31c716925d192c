package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	"github.com/angelmondragon/ledgercore-backend/pkg/money"
)

// Transaction is the ledger's primary entity: one row per monetary event.
// Sub-lists (refunds, disputes, webhook events, audit changes) live on the
// row as jsonb so every mutation is a single-document update.
type Transaction struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TransactionID string    `gorm:"column:transaction_id;not null;unique"`

	Type   enums.TransactionType   `gorm:"column:type;not null"`
	Status enums.TransactionStatus `gorm:"column:status;not null;default:'pending';index"`

	GrossCents    int64          `gorm:"column:gross_cents;not null"`
	FeeCents      int64          `gorm:"column:fee_cents;not null;default:0"`
	TaxCents      int64          `gorm:"column:tax_cents;not null;default:0"`
	DiscountCents int64          `gorm:"column:discount_cents;not null;default:0"`
	NetCents      int64          `gorm:"column:net_cents;not null"`
	Currency      enums.Currency `gorm:"column:currency;not null;default:'usd'"`

	Provider   enums.ProviderName `gorm:"column:provider;index"`
	VendorRefs VendorRefs         `gorm:"column:vendor_refs;type:jsonb"`

	PaymentMethod PaymentMethod `gorm:"column:payment_method;type:jsonb"`
	Timeline      Timeline      `gorm:"column:timeline;type:jsonb"`
	Failure       *FailureInfo  `gorm:"column:failure;type:jsonb"`

	Refunds       RefundList       `gorm:"column:refunds;type:jsonb"`
	Disputes      DisputeList      `gorm:"column:disputes;type:jsonb"`
	Payout        PayoutInfo       `gorm:"column:payout;type:jsonb"`
	WebhookEvents WebhookEventList `gorm:"column:webhook_events;type:jsonb"`
	AuditChanges  AuditChangeList  `gorm:"column:audit_changes;type:jsonb"`

	// OriginalTransactionID links a refund/chargeback row back to the charge
	// it annotates. The annotating row never owns the original.
	OriginalTransactionID *string `gorm:"column:original_transaction_id;index"`

	Metadata MetadataMap `gorm:"column:metadata;type:jsonb"`

	// Version backs optimistic concurrency on refund/webhook appends.
	Version int `gorm:"column:version;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Amount assembles the money decomposition from the flat columns.
func (t *Transaction) Amount() money.Amount {
	return money.Amount{
		GrossCents:    t.GrossCents,
		FeeCents:      t.FeeCents,
		TaxCents:      t.TaxCents,
		DiscountCents: t.DiscountCents,
		NetCents:      t.NetCents,
	}
}

// SetAmount writes the decomposition back to the flat columns.
func (t *Transaction) SetAmount(a money.Amount) {
	t.GrossCents = a.GrossCents
	t.FeeCents = a.FeeCents
	t.TaxCents = a.TaxCents
	t.DiscountCents = a.DiscountCents
	t.NetCents = a.NetCents
}

// RefundedCents sums the succeeded refunds attached to the transaction.
func (t *Transaction) RefundedCents() int64 {
	var total int64
	for _, r := range t.Refunds {
		if r.Status == enums.RefundStatusSucceeded {
			total += r.AmountCents
		}
	}
	return total
}

// RemainingRefundableCents is the gross amount not yet refunded.
func (t *Transaction) RemainingRefundableCents() int64 {
	remaining := t.GrossCents - t.RefundedCents()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// HasWebhookEvent reports whether the vendor event id was already recorded.
func (t *Transaction) HasWebhookEvent(eventID string) bool {
	for _, e := range t.WebhookEvents {
		if e.EventID == eventID {
			return true
		}
	}
	return false
}

// Timeline holds monotonically-filled lifecycle timestamps. A field is
// written once and never rewritten.
type Timeline struct {
	InitiatedAt  *time.Time `json:"initiated_at,omitempty"`
	AuthorizedAt *time.Time `json:"authorized_at,omitempty"`
	CapturedAt   *time.Time `json:"captured_at,omitempty"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
	SettledAt    *time.Time `json:"settled_at,omitempty"`
	RefundedAt   *time.Time `json:"refunded_at,omitempty"`
	DisputedAt   *time.Time `json:"disputed_at,omitempty"`
}

func (t *Timeline) Scan(src any) error  { return scanJSONB(src, t) }
func (t Timeline) Value() (driver.Value, error) {
	b, err := json.Marshal(t)
	return string(b), err
}

// CardDetails describes a card payment method.
type CardDetails struct {
	Brand    string `json:"brand,omitempty"`
	Last4    string `json:"last4,omitempty"`
	ExpMonth int    `json:"exp_month,omitempty"`
	ExpYear  int    `json:"exp_year,omitempty"`
}

// BankDetails describes a bank/ACH payment method.
type BankDetails struct {
	BankName    string `json:"bank_name,omitempty"`
	Last4       string `json:"last4,omitempty"`
	AccountType string `json:"account_type,omitempty"`
}

// WalletDetails describes a digital wallet payment method.
type WalletDetails struct {
	WalletType string `json:"wallet_type,omitempty"`
	Handle     string `json:"handle,omitempty"`
}

// PaymentMethod is discriminated by Type; only the matching detail is set.
type PaymentMethod struct {
	Type   enums.PaymentMethodType `json:"type"`
	Card   *CardDetails            `json:"card,omitempty"`
	Bank   *BankDetails            `json:"bank,omitempty"`
	Wallet *WalletDetails          `json:"wallet,omitempty"`
	Label  string                  `json:"label,omitempty"`
}

func (p *PaymentMethod) Scan(src any) error { return scanJSONB(src, p) }
func (p PaymentMethod) Value() (driver.Value, error) {
	b, err := json.Marshal(p)
	return string(b), err
}

// FailureInfo captures the vendor's decline detail for a failed transaction.
type FailureInfo struct {
	Code        string `json:"code,omitempty"`
	Message     string `json:"message,omitempty"`
	DeclineCode string `json:"decline_code,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func (f *FailureInfo) Scan(src any) error { return scanJSONB(src, f) }
func (f FailureInfo) Value() (driver.Value, error) {
	b, err := json.Marshal(f)
	return string(b), err
}

// RefundRecord is the embedded summary of one refund against the transaction.
type RefundRecord struct {
	RefundID       string             `json:"refund_id"`
	AmountCents    int64              `json:"amount_cents"`
	Reason         string             `json:"reason,omitempty"`
	Status         enums.RefundStatus `json:"status"`
	IssuedBy       string             `json:"issued_by,omitempty"`
	VendorRefundID string             `json:"vendor_refund_id,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

type RefundList []RefundRecord

func (l *RefundList) Scan(src any) error { return scanJSONB(src, l) }
func (l RefundList) Value() (driver.Value, error) {
	if l == nil {
		l = RefundList{}
	}
	b, err := json.Marshal(l)
	return string(b), err
}

// DisputeRecord is the embedded chargeback/dispute entry with its own lifecycle.
type DisputeRecord struct {
	DisputeID       string              `json:"dispute_id"`
	AmountCents     int64               `json:"amount_cents"`
	Reason          string              `json:"reason,omitempty"`
	Status          enums.DisputeStatus `json:"status"`
	VendorDisputeID string              `json:"vendor_dispute_id,omitempty"`
	OpenedAt        time.Time           `json:"opened_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

type DisputeList []DisputeRecord

func (l *DisputeList) Scan(src any) error { return scanJSONB(src, l) }
func (l DisputeList) Value() (driver.Value, error) {
	if l == nil {
		l = DisputeList{}
	}
	b, err := json.Marshal(l)
	return string(b), err
}

// PayoutInfo tracks payout progress independently of the outer status.
type PayoutInfo struct {
	Status         enums.PayoutStatus `json:"status,omitempty"`
	VendorPayoutID string             `json:"vendor_payout_id,omitempty"`
	ArrivalDate    *time.Time         `json:"arrival_date,omitempty"`
	FailureMessage string             `json:"failure_message,omitempty"`
	UpdatedAt      *time.Time         `json:"updated_at,omitempty"`
}

func (p *PayoutInfo) Scan(src any) error { return scanJSONB(src, p) }
func (p PayoutInfo) Value() (driver.Value, error) {
	b, err := json.Marshal(p)
	return string(b), err
}

// WebhookEventRecord is an append-only inbound vendor event reference.
type WebhookEventRecord struct {
	EventID    string          `json:"event_id"`
	Type       string          `json:"type"`
	Provider   string          `json:"provider,omitempty"`
	Processed  bool            `json:"processed"`
	ReceivedAt time.Time       `json:"received_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type WebhookEventList []WebhookEventRecord

func (l *WebhookEventList) Scan(src any) error { return scanJSONB(src, l) }
func (l WebhookEventList) Value() (driver.Value, error) {
	if l == nil {
		l = WebhookEventList{}
	}
	b, err := json.Marshal(l)
	return string(b), err
}

// AuditChange is one field-level mutation kept for compliance.
type AuditChange struct {
	Field     string    `json:"field"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
	Actor     string    `json:"actor,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

type AuditChangeList []AuditChange

func (l *AuditChangeList) Scan(src any) error { return scanJSONB(src, l) }
func (l AuditChangeList) Value() (driver.Value, error) {
	if l == nil {
		l = AuditChangeList{}
	}
	b, err := json.Marshal(l)
	return string(b), err
}

// VendorRefs stores opaque vendor reference identifiers (charge id,
// payment-intent id, order id, balance-transaction id).
type VendorRefs map[string]string

func (v *VendorRefs) Scan(src any) error { return scanJSONB(src, v) }
func (v VendorRefs) Value() (driver.Value, error) {
	if v == nil {
		v = VendorRefs{}
	}
	b, err := json.Marshal(v)
	return string(b), err
}

// MetadataMap is a flat key/value map of primitives; fields the core reads
// are promoted to typed columns instead of living here.
type MetadataMap map[string]string

func (m *MetadataMap) Scan(src any) error { return scanJSONB(src, m) }
func (m MetadataMap) Value() (driver.Value, error) {
	if m == nil {
		m = MetadataMap{}
	}
	b, err := json.Marshal(m)
	return string(b), err
}
