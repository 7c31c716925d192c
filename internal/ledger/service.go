package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/angelmondragon/ledgercore-backend/pkg/config"
	"github.com/angelmondragon/ledgercore-backend/pkg/db/models"
	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgercore-backend/pkg/errors"
	"github.com/angelmondragon/ledgercore-backend/pkg/logger"
	"github.com/angelmondragon/ledgercore-backend/pkg/money"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"
)

const refundLockScope = "refund"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Locker serializes refund mutations across instances. Nil is fine; the
// optimistic version check is the actual correctness guarantee.
type Locker interface {
	AcquireLock(ctx context.Context, scope, id string, ttl time.Duration) (func(context.Context) error, bool, error)
}

// Service exposes every ledger mutation. All writes go through the version
// check so concurrent mutations of the same row never both land.
type Service interface {
	CreateCharge(ctx context.Context, input CreateChargeInput) (*models.Transaction, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error)
	GetByVendorRef(ctx context.Context, key, value string) (*models.Transaction, error)
	List(ctx context.Context, filter ListFilter) ([]models.Transaction, error)

	MarkAsProcessing(ctx context.Context, transactionID string) (*models.Transaction, error)
	AttachVendorRefs(ctx context.Context, transactionID string, refs models.VendorRefs) (*models.Transaction, error)
	MarkAsSucceeded(ctx context.Context, transactionID string, input SettlementInput) (*models.Transaction, error)
	MarkAsFailed(ctx context.Context, transactionID string, failure models.FailureInfo) (*models.Transaction, error)
	Cancel(ctx context.Context, transactionID, reason, actor string) (*models.Transaction, error)

	AddRefund(ctx context.Context, transactionID string, input RefundInput) (*models.Transaction, error)
	CreateRefund(ctx context.Context, transactionID string, input RefundInput) (*RefundResult, error)
	UpdateRefundStatus(ctx context.Context, transactionID string, input RefundStatusInput) (*models.Transaction, error)

	AddDispute(ctx context.Context, transactionID string, input DisputeInput) (*models.Transaction, error)
	ResolveDispute(ctx context.Context, transactionID, disputeID string, status enums.DisputeStatus) (*models.Transaction, error)

	UpdatePayoutStatus(ctx context.Context, transactionID string, input PayoutUpdateInput) (*models.Transaction, error)
	AddWebhookEvent(ctx context.Context, transactionID string, event models.WebhookEventRecord) (*models.Transaction, error)
	UpdateTransactionWithTax(ctx context.Context, transactionID string, input TaxUpdateInput) (*models.Transaction, error)
}

// ServiceParams wires the ledger service dependencies.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Locker  Locker
	Logger  *logger.Logger
	Refunds config.RefundConfig
}

type service struct {
	repo    Repository
	tx      txRunner
	locker  Locker
	logg    *logger.Logger
	refunds config.RefundConfig
	now     func() time.Time
}

// NewService validates dependencies and returns the ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("ledger repository required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Refunds.MaxConflictRetries <= 0 {
		params.Refunds.MaxConflictRetries = 3
	}
	if params.Refunds.ConflictBackoff <= 0 {
		params.Refunds.ConflictBackoff = 25 * time.Millisecond
	}
	if params.Refunds.LockTTL <= 0 {
		params.Refunds.LockTTL = 30 * time.Second
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		locker:  params.Locker,
		logg:    params.Logger,
		refunds: params.Refunds,
		now:     time.Now,
	}, nil
}

// CreateChargeInput captures everything needed to open a ledger row.
type CreateChargeInput struct {
	Type          enums.TransactionType
	GrossCents    int64
	FeeCents      int64
	TaxCents      int64
	DiscountCents int64
	Currency      enums.Currency
	Provider      enums.ProviderName
	PaymentMethod models.PaymentMethod
	VendorRefs    models.VendorRefs
	Metadata      models.MetadataMap

	// OriginalTransactionID is set for refund/chargeback rows that annotate
	// an earlier charge.
	OriginalTransactionID *string
}

// SettlementInput carries vendor confirmation detail for a succeeded charge.
type SettlementInput struct {
	VendorRefs models.VendorRefs
	// FeeCents, when non-nil, replaces the estimated fee with the vendor's
	// actual processing fee and rebalances net.
	FeeCents *int64
	Actor    string
}

// RefundInput describes one refund to append against a charge.
type RefundInput struct {
	AmountCents    int64
	Reason         string
	IssuedBy       string
	VendorRefundID string
	// Status defaults to succeeded; pending refunds do not count against the
	// refundable remainder until confirmed.
	Status enums.RefundStatus
}

// RefundStatusInput advances an embedded refund, matched by the vendor's
// refund id, out of pending once the vendor reports the terminal state.
type RefundStatusInput struct {
	VendorRefundID string
	Status         enums.RefundStatus
	Actor          string
}

// TaxUpdateInput retroactively corrects a transaction's tax amount. The
// provenance fields record where the corrected number came from.
type TaxUpdateInput struct {
	TaxCents     int64
	Provider     string
	Rate         string
	Jurisdiction string
	IsDefault    bool
	Actor        string
}

// RefundResult pairs the updated charge with the standalone refund row.
type RefundResult struct {
	Original *models.Transaction
	Refund   *models.Transaction
}

// DisputeInput describes a newly opened dispute.
type DisputeInput struct {
	AmountCents     int64
	Reason          string
	VendorDisputeID string
}

// PayoutUpdateInput advances the payout sub-machine.
type PayoutUpdateInput struct {
	Status         enums.PayoutStatus
	VendorPayoutID string
	ArrivalDate    *time.Time
	FailureMessage string
}

func (s *service) CreateCharge(ctx context.Context, input CreateChargeInput) (*models.Transaction, error) {
	txn, err := s.buildTransaction(input)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, txn); err != nil {
		return nil, err
	}
	ctx = s.logg.WithTransactionID(ctx, txn.TransactionID)
	s.logg.Info(ctx, "ledger transaction created")
	return txn, nil
}

func (s *service) buildTransaction(input CreateChargeInput) (*models.Transaction, error) {
	txnType := input.Type
	if txnType == "" {
		txnType = enums.TransactionTypeCharge
	}
	if !txnType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction type").
			WithDetails(map[string]any{"type": string(input.Type)})
	}

	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyUSD
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency").
			WithDetails(map[string]any{"currency": string(input.Currency)})
	}

	if input.GrossCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gross amount must be positive").
			WithDetails(map[string]any{"gross_cents": input.GrossCents})
	}

	if input.PaymentMethod.Type != "" && !input.PaymentMethod.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unrecognized payment method type").
			WithDetails(map[string]any{"payment_method_type": string(input.PaymentMethod.Type)})
	}

	amount := money.Amount{
		GrossCents:    input.GrossCents,
		FeeCents:      input.FeeCents,
		TaxCents:      input.TaxCents,
		DiscountCents: input.DiscountCents,
	}
	amount.Recompute()
	if err := amount.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount decomposition")
	}

	now := s.now()
	txn := &models.Transaction{
		TransactionID:         NewTransactionID(),
		Type:                  txnType,
		Status:                enums.TransactionStatusPending,
		Currency:              currency,
		Provider:              input.Provider,
		VendorRefs:            input.VendorRefs,
		PaymentMethod:         input.PaymentMethod,
		Timeline:              models.Timeline{InitiatedAt: &now},
		Payout:                models.PayoutInfo{Status: enums.PayoutStatusNotApplicable},
		Metadata:              input.Metadata,
		OriginalTransactionID: input.OriginalTransactionID,
	}
	txn.SetAmount(amount)
	return txn, nil
}

func (s *service) GetByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	return s.repo.FindByTransactionID(ctx, transactionID)
}

func (s *service) GetByVendorRef(ctx context.Context, key, value string) (*models.Transaction, error) {
	return s.repo.FindByVendorRef(ctx, key, value)
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]models.Transaction, error) {
	return s.repo.List(ctx, filter)
}

func (s *service) MarkAsProcessing(ctx context.Context, transactionID string) (*models.Transaction, error) {
	return s.mutate(ctx, s.repo, transactionID, func(txn *models.Transaction) error {
		if txn.Status == enums.TransactionStatusProcessing {
			return errNoop
		}
		return s.transition(txn, enums.TransactionStatusProcessing, "")
	})
}

// AttachVendorRefs persists vendor reference ids learned mid-flight, e.g.
// the vendor payment id of a charge that is still processing.
func (s *service) AttachVendorRefs(ctx context.Context, transactionID string, refs models.VendorRefs) (*models.Transaction, error) {
	if len(refs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor refs required")
	}
	return s.mutate(ctx, s.repo, transactionID, func(txn *models.Transaction) error {
		changed := false
		for k, v := range refs {
			if txn.VendorRefs[k] != v {
				changed = true
				break
			}
		}
		if !changed {
			return errNoop
		}
		mergeVendorRefs(txn, refs)
		return nil
	})
}

func (s *service) MarkAsSucceeded(ctx context.Context, transactionID string, input SettlementInput) (*models.Transaction, error) {
	return s.mutate(ctx, s.repo, transactionID, func(txn *models.Transaction) error {
		// Replays of the vendor confirmation leave the row untouched.
		if txn.Status == enums.TransactionStatusSucceeded {
			return errNoop
		}
		if !IsSettleable(txn.Status) {
			return stateConflict(txn, enums.TransactionStatusSucceeded)
		}
		if err := s.transition(txn, enums.TransactionStatusSucceeded, input.Actor); err != nil {
			return err
		}

		now := s.now()
		if txn.Timeline.CapturedAt == nil {
			txn.Timeline.CapturedAt = &now
		}
		if txn.Timeline.SettledAt == nil {
			txn.Timeline.SettledAt = &now
		}
		mergeVendorRefs(txn, input.VendorRefs)

		if input.FeeCents != nil {
			amount := txn.Amount()
			if err := amount.ApplyFee(*input.FeeCents); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid settlement fee")
			}
			appendAudit(txn, "fee_cents", fmt.Sprint(txn.FeeCents), fmt.Sprint(*input.FeeCents), input.Actor, now)
			txn.SetAmount(amount)
		}

		if txn.Payout.Status == "" || txn.Payout.Status == enums.PayoutStatusNotApplicable {
			txn.Payout.Status = enums.PayoutStatusPending
			txn.Payout.UpdatedAt = &now
		}
		return nil
	})
}

func (s *service) MarkAsFailed(ctx context.Context, transactionID string, failure models.FailureInfo) (*models.Transaction, error) {
	return s.mutate(ctx, s.repo, transactionID, func(txn *models.Transaction) error {
		if txn.Status == enums.TransactionStatusFailed {
			return errNoop
		}
		if !IsSettleable(txn.Status) {
			return stateConflict(txn, enums.TransactionStatusFailed)
		}
		if err := s.transition(txn, enums.TransactionStatusFailed, ""); err != nil {
			return err
		}
		now := s.now()
		if txn.Timeline.FailedAt == nil {
			txn.Timeline.FailedAt = &now
		}
		txn.Failure = &failure
		return nil
	})
}

func (s *service) Cancel(ctx context.Context, transactionID, reason, actor string) (*models.Transaction, error) {
	return s.mutate(ctx, s.repo, transactionID, func(txn *models.Transaction) error {
		if txn.Status == enums.TransactionStatusCanceled {
			return errNoop
		}
		if err := s.transition(txn, enums.TransactionStatusCanceled, actor); err != nil {
			return err
		}
		if reason != "" {
			txn.Failure = &models.FailureInfo{Reason: reason}
		}
		return nil
	})
}

func (s *service) AddRefund(ctx context.Context, transactionID string, input RefundInput) (*models.Transaction, error) {
	release, err := s.lockRefund(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.mutate(ctx, s.repo, transactionID, func(txn *models.Transaction) error {
		_, err := s.appendRefund(txn, input)
		return err
	})
}

// CreateRefund appends the embedded refund record and writes the standalone
// refund row in one database transaction, so the pair is all-or-nothing.
func (s *service) CreateRefund(ctx context.Context, transactionID string, input RefundInput) (*RefundResult, error) {
	release, err := s.lockRefund(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	defer release()

	var result RefundResult
	err = s.withConflictRetry(ctx, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			txn, err := repo.FindByTransactionID(ctx, transactionID)
			if err != nil {
				return err
			}

			record, err := s.appendRefund(txn, input)
			if err != nil {
				return err
			}
			if err := repo.UpdateWithVersion(ctx, txn); err != nil {
				return err
			}

			refundRow, err := s.buildTransaction(CreateChargeInput{
				Type:                  enums.TransactionTypeRefund,
				GrossCents:            record.AmountCents,
				Currency:              txn.Currency,
				Provider:              txn.Provider,
				PaymentMethod:         txn.PaymentMethod,
				Metadata:              models.MetadataMap{"refund_id": record.RefundID},
				OriginalTransactionID: &txn.TransactionID,
			})
			if err != nil {
				return err
			}
			if record.VendorRefundID != "" {
				refundRow.VendorRefs = models.VendorRefs{"refund_id": record.VendorRefundID}
			}
			if record.Status == enums.RefundStatusSucceeded {
				refundRow.Status = enums.TransactionStatusSucceeded
				now := s.now()
				refundRow.Timeline.SettledAt = &now
			}
			if err := repo.Create(ctx, refundRow); err != nil {
				return err
			}

			result = RefundResult{Original: txn, Refund: refundRow}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithTransactionID(ctx, transactionID)
	s.logg.Info(ctx, "refund recorded")
	return &result, nil
}

// appendRefund mutates txn in place: cap check, record append, status and
// timeline maintenance. Returns the appended record.
func (s *service) appendRefund(txn *models.Transaction, input RefundInput) (*models.RefundRecord, error) {
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive").
			WithDetails(map[string]any{"amount_cents": input.AmountCents})
	}
	if !IsRefundable(txn.Status) {
		return nil, stateConflict(txn, enums.TransactionStatusPartiallyRefunded)
	}
	if remaining := txn.RemainingRefundableCents(); input.AmountCents > remaining {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund exceeds refundable remainder").
			WithDetails(map[string]any{
				"amount_cents":    input.AmountCents,
				"remaining_cents": remaining,
			})
	}

	status := input.Status
	if status == "" {
		status = enums.RefundStatusSucceeded
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid refund status").
			WithDetails(map[string]any{"status": string(input.Status)})
	}

	now := s.now()
	record := models.RefundRecord{
		RefundID:       NewRefundID(),
		AmountCents:    input.AmountCents,
		Reason:         input.Reason,
		Status:         status,
		IssuedBy:       input.IssuedBy,
		VendorRefundID: input.VendorRefundID,
		CreatedAt:      now,
	}
	txn.Refunds = append(txn.Refunds, record)

	if status == enums.RefundStatusSucceeded {
		next := enums.TransactionStatusPartiallyRefunded
		if txn.RefundedCents() >= txn.GrossCents {
			next = enums.TransactionStatusRefunded
		}
		if err := s.transition(txn, next, input.IssuedBy); err != nil {
			return nil, err
		}
		if txn.Timeline.RefundedAt == nil {
			txn.Timeline.RefundedAt = &now
		}
	}
	return &txn.Refunds[len(txn.Refunds)-1], nil
}

// UpdateRefundStatus confirms or fails a pending refund once the vendor
// reports its terminal state. Async vendors deliver refunds as a pending
// create followed by a completed or failed update; the amount only counts
// against the refundable remainder when it confirms here.
func (s *service) UpdateRefundStatus(ctx context.Context, transactionID string, input RefundStatusInput) (*models.Transaction, error) {
	if input.VendorRefundID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor refund id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid refund status").
			WithDetails(map[string]any{"status": string(input.Status)})
	}

	release, err := s.lockRefund(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.mutate(ctx, s.repo, transactionID, func(txn *models.Transaction) error {
		var record *models.RefundRecord
		for i := range txn.Refunds {
			if txn.Refunds[i].VendorRefundID == input.VendorRefundID {
				record = &txn.Refunds[i]
				break
			}
		}
		if record == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "refund not found").
				WithDetails(map[string]any{"vendor_refund_id": input.VendorRefundID})
		}
		if record.Status == input.Status {
			return errNoop
		}
		if record.Status != enums.RefundStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "refund already finalized").
				WithDetails(map[string]any{
					"refund_id": record.RefundID,
					"from":      string(record.Status),
					"to":        string(input.Status),
				})
		}

		now := s.now()
		if input.Status == enums.RefundStatusSucceeded {
			if txn.RefundedCents()+record.AmountCents > txn.GrossCents {
				return pkgerrors.New(pkgerrors.CodeValidation, "refund exceeds refundable remainder").
					WithDetails(map[string]any{
						"amount_cents":    record.AmountCents,
						"remaining_cents": txn.RemainingRefundableCents(),
					})
			}
			record.Status = enums.RefundStatusSucceeded
			next := enums.TransactionStatusPartiallyRefunded
			if txn.RefundedCents() >= txn.GrossCents {
				next = enums.TransactionStatusRefunded
			}
			if txn.Status != next {
				if err := s.transition(txn, next, input.Actor); err != nil {
					return err
				}
			}
			if txn.Timeline.RefundedAt == nil {
				txn.Timeline.RefundedAt = &now
			}
		} else {
			record.Status = input.Status
		}
		appendAudit(txn, "refund_status", string(enums.RefundStatusPending), string(input.Status), input.Actor, now)
		return nil
	})
}

func (s *service) AddDispute(ctx context.Context, transactionID string, input DisputeInput) (*models.Transaction, error) {
	return s.mutate(ctx, s.repo, transactionID, func(txn *models.Transaction) error {
		if input.AmountCents <= 0 || input.AmountCents > txn.GrossCents {
			return pkgerrors.New(pkgerrors.CodeValidation, "dispute amount out of range").
				WithDetails(map[string]any{
					"amount_cents": input.AmountCents,
					"gross_cents":  txn.GrossCents,
				})
		}
		if input.VendorDisputeID != "" {
			for _, d := range txn.Disputes {
				if d.VendorDisputeID == input.VendorDisputeID {
					return errNoop
				}
			}
		}

		now := s.now()
		txn.Disputes = append(txn.Disputes, models.DisputeRecord{
			DisputeID:       NewDisputeID(),
			AmountCents:     input.AmountCents,
			Reason:          input.Reason,
			Status:          enums.DisputeStatusNeedsResponse,
			VendorDisputeID: input.VendorDisputeID,
			OpenedAt:        now,
			UpdatedAt:       now,
		})

		// A vendor-initiated dispute overrides the ordinary machine: the row
		// moves to disputed no matter what state it was in.
		if txn.Status != enums.TransactionStatusDisputed {
			appendAudit(txn, "status", string(txn.Status), string(enums.TransactionStatusDisputed), "", now)
			txn.Status = enums.TransactionStatusDisputed
		}
		if txn.Timeline.DisputedAt == nil {
			txn.Timeline.DisputedAt = &now
		}
		return nil
	})
}

func (s *service) ResolveDispute(ctx context.Context, transactionID, disputeID string, status enums.DisputeStatus) (*models.Transaction, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid dispute status").
			WithDetails(map[string]any{"status": string(status)})
	}
	return s.mutate(ctx, s.repo, transactionID, func(txn *models.Transaction) error {
		idx := -1
		for i, d := range txn.Disputes {
			if d.DisputeID == disputeID || d.VendorDisputeID == disputeID {
				idx = i
				break
			}
		}
		if idx == -1 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "dispute not found").
				WithDetails(map[string]any{"dispute_id": disputeID})
		}
		if txn.Disputes[idx].Status == status {
			return errNoop
		}

		now := s.now()
		txn.Disputes[idx].Status = status
		txn.Disputes[idx].UpdatedAt = now

		// A lost dispute means the funds are gone.
		if status == enums.DisputeStatusLost && txn.Status != enums.TransactionStatusChargeback {
			appendAudit(txn, "status", string(txn.Status), string(enums.TransactionStatusChargeback), "", now)
			txn.Status = enums.TransactionStatusChargeback
		}
		return nil
	})
}

func (s *service) UpdatePayoutStatus(ctx context.Context, transactionID string, input PayoutUpdateInput) (*models.Transaction, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payout status").
			WithDetails(map[string]any{"status": string(input.Status)})
	}
	return s.mutate(ctx, s.repo, transactionID, func(txn *models.Transaction) error {
		if txn.Payout.Status == input.Status {
			return errNoop
		}
		if !CanTransitionPayout(txn.Payout.Status, input.Status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payout transition disallowed").
				WithDetails(map[string]any{
					"from": string(txn.Payout.Status),
					"to":   string(input.Status),
				})
		}
		now := s.now()
		txn.Payout.Status = input.Status
		txn.Payout.UpdatedAt = &now
		if input.VendorPayoutID != "" {
			txn.Payout.VendorPayoutID = input.VendorPayoutID
		}
		if input.ArrivalDate != nil {
			txn.Payout.ArrivalDate = input.ArrivalDate
		}
		if input.FailureMessage != "" {
			txn.Payout.FailureMessage = input.FailureMessage
		}
		return nil
	})
}

// AddWebhookEvent records an inbound vendor event once. A replay with the
// same event id is a silent no-op, which is what makes webhook delivery
// at-least-once safe.
func (s *service) AddWebhookEvent(ctx context.Context, transactionID string, event models.WebhookEventRecord) (*models.Transaction, error) {
	if event.EventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook event id required")
	}
	return s.mutate(ctx, s.repo, transactionID, func(txn *models.Transaction) error {
		if txn.HasWebhookEvent(event.EventID) {
			return errNoop
		}
		if event.ReceivedAt.IsZero() {
			event.ReceivedAt = s.now()
		}
		txn.WebhookEvents = append(txn.WebhookEvents, event)
		return nil
	})
}

// UpdateTransactionWithTax corrects a transaction's tax after the fact, e.g.
// when a charge settled on the fallback rate and the real figure arrives
// later. Succeeded charges stay correctable; only refund-touched and terminal
// rows are frozen.
func (s *service) UpdateTransactionWithTax(ctx context.Context, transactionID string, input TaxUpdateInput) (*models.Transaction, error) {
	return s.mutate(ctx, s.repo, transactionID, func(txn *models.Transaction) error {
		if txn.TaxCents == input.TaxCents {
			return errNoop
		}
		if !IsSettleable(txn.Status) && txn.Status != enums.TransactionStatusSucceeded {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "tax cannot change in this status").
				WithDetails(map[string]any{"status": string(txn.Status)})
		}
		amount := txn.Amount()
		if err := amount.ApplyTax(input.TaxCents); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tax amount")
		}
		appendAudit(txn, "tax_cents", fmt.Sprint(txn.TaxCents), fmt.Sprint(input.TaxCents), input.Actor, s.now())
		txn.SetAmount(amount)
		recordTaxProvenance(txn, input, s.now())
		return nil
	})
}

// recordTaxProvenance notes on the row which source produced the corrected
// tax figure, so a later audit can tell a live quote from a fallback rate.
func recordTaxProvenance(txn *models.Transaction, input TaxUpdateInput, at time.Time) {
	if txn.Metadata == nil {
		txn.Metadata = models.MetadataMap{}
	}
	if input.Provider != "" {
		txn.Metadata["tax_provider"] = input.Provider
	}
	if input.Rate != "" {
		txn.Metadata["tax_rate"] = input.Rate
	}
	if input.Jurisdiction != "" {
		txn.Metadata["tax_jurisdiction"] = input.Jurisdiction
	}
	txn.Metadata["tax_is_default"] = strconv.FormatBool(input.IsDefault)
	txn.Metadata["tax_corrected_at"] = at.UTC().Format(time.RFC3339)
}

// errNoop short-circuits a mutation that found nothing to change. The loaded
// row is returned unchanged and nothing is written.
var errNoop = errors.New("ledger: no-op mutation")

// mutate loads the row, applies fn, and writes it back under the version
// check, retrying the whole load-apply-write cycle on conflict.
func (s *service) mutate(ctx context.Context, repo Repository, transactionID string, fn func(*models.Transaction) error) (*models.Transaction, error) {
	var out *models.Transaction
	err := s.withConflictRetry(ctx, func(ctx context.Context) error {
		txn, err := repo.FindByTransactionID(ctx, transactionID)
		if err != nil {
			return err
		}
		if err := fn(txn); err != nil {
			if errors.Is(err, errNoop) {
				out = txn
				return nil
			}
			return err
		}
		if err := repo.UpdateWithVersion(ctx, txn); err != nil {
			return err
		}
		out = txn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) withConflictRetry(ctx context.Context, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(uint64(s.refunds.MaxConflictRetries), retry.NewConstant(s.refunds.ConflictBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// lockRefund takes the per-transaction refund lock when a locker is wired.
// The returned release func is always safe to call.
func (s *service) lockRefund(ctx context.Context, transactionID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	release, ok, err := s.locker.AcquireLock(ctx, refundLockScope, transactionID, s.refunds.LockTTL)
	if err != nil {
		// Lock service trouble must not block refunds; the version check
		// still protects the row.
		s.logg.Warn(ctx, "refund lock unavailable, relying on version check")
		return func() {}, nil
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "refund already in progress").
			WithDetails(map[string]any{"transaction_id": transactionID})
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Warn(ctx, "failed to release refund lock")
		}
	}, nil
}

func (s *service) transition(txn *models.Transaction, to enums.TransactionStatus, actor string) error {
	if !CanTransition(txn.Status, to) {
		return stateConflict(txn, to)
	}
	appendAudit(txn, "status", string(txn.Status), string(to), actor, s.now())
	txn.Status = to
	return nil
}

func stateConflict(txn *models.Transaction, to enums.TransactionStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "status transition disallowed").
		WithDetails(map[string]any{
			"transaction_id": txn.TransactionID,
			"from":           string(txn.Status),
			"to":             string(to),
		})
}

func appendAudit(txn *models.Transaction, field, oldValue, newValue, actor string, at time.Time) {
	txn.AuditChanges = append(txn.AuditChanges, models.AuditChange{
		Field:     field,
		OldValue:  oldValue,
		NewValue:  newValue,
		Actor:     actor,
		ChangedAt: at,
	})
}

func mergeVendorRefs(txn *models.Transaction, refs models.VendorRefs) {
	if len(refs) == 0 {
		return
	}
	if txn.VendorRefs == nil {
		txn.VendorRefs = models.VendorRefs{}
	}
	for k, v := range refs {
		txn.VendorRefs[k] = v
	}
}
