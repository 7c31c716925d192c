package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/ledgercore-backend/internal/ledger"
	"github.com/angelmondragon/ledgercore-backend/pkg/db/models"
	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgercore-backend/pkg/errors"
	"github.com/angelmondragon/ledgercore-backend/pkg/logger"
)

const actor = "stripe_webhook"

type ServiceParams struct {
	Ledger ledger.Service
	Logger *logger.Logger
}

// Service applies inbound Stripe events to the ledger. Delivery is
// at-least-once and unordered, so every handler routes through the ledger's
// idempotent mutations and out-of-order arrivals are tolerated.
type Service struct {
	ledger ledger.Service
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Ledger == nil {
		return nil, errors.New("ledger service required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	return &Service{ledger: params.Ledger, logg: params.Logger}, nil
}

// HandleEvent resolves the ledger transaction the event refers to, applies
// the matching mutation, and records the event on the row. Events that do
// not reference a ledger transaction are acknowledged and dropped.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	transactionID := event.GetObjectValue("metadata", "transaction_id")
	if transactionID == "" {
		s.logg.Info(s.logg.WithField(ctx, "event_type", string(event.Type)),
			"stripe event carries no transaction reference, skipping")
		return nil
	}
	ctx = s.logg.WithTransactionID(ctx, transactionID)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":   event.ID,
		"event_type": string(event.Type),
	})

	txn, err := s.ledger.GetByTransactionID(ctx, transactionID)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			s.logg.Warn(ctx, "stripe event references unknown transaction")
			return nil
		}
		return err
	}
	if txn.HasWebhookEvent(event.ID) {
		s.logg.Info(ctx, "stripe event already recorded, skipping replay")
		return nil
	}

	dispatchErr := s.dispatch(ctx, txn, event)
	if dispatchErr != nil && !permanent(dispatchErr) {
		// Transient trouble: do not record the event, so the vendor retry
		// gets a clean second attempt.
		return dispatchErr
	}

	if _, err := s.ledger.AddWebhookEvent(ctx, transactionID, models.WebhookEventRecord{
		EventID:   event.ID,
		Type:      string(event.Type),
		Provider:  string(enums.ProviderNameStripe),
		Processed: dispatchErr == nil,
		Payload:   event.Data.Raw,
	}); err != nil {
		return err
	}

	if dispatchErr != nil {
		s.logg.Warn(ctx, "stripe event could not be applied, recorded as unprocessed")
		s.logg.Error(ctx, "stripe event dispatch detail", dispatchErr)
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, txn *models.Transaction, event *stripe.Event) error {
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
		}
		refs := models.VendorRefs{"payment_intent_id": intent.ID}
		if intent.LatestCharge != nil {
			refs["charge_id"] = intent.LatestCharge.ID
		}
		_, err := s.ledger.MarkAsSucceeded(ctx, txn.TransactionID, ledger.SettlementInput{
			VendorRefs: refs,
			Actor:      actor,
		})
		return err

	case stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
		}
		failure := models.FailureInfo{Reason: "payment failed"}
		if intent.LastPaymentError != nil {
			failure.Code = string(intent.LastPaymentError.Code)
			failure.DeclineCode = string(intent.LastPaymentError.DeclineCode)
			failure.Message = intent.LastPaymentError.Msg
		}
		_, err := s.ledger.MarkAsFailed(ctx, txn.TransactionID, failure)
		return err

	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge event")
		}
		return s.applyRefunds(ctx, txn, &charge)

	case stripe.EventTypeChargeDisputeCreated:
		var dispute stripe.Dispute
		if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode dispute event")
		}
		_, err := s.ledger.AddDispute(ctx, txn.TransactionID, ledger.DisputeInput{
			AmountCents:     dispute.Amount,
			Reason:          string(dispute.Reason),
			VendorDisputeID: dispute.ID,
		})
		return err

	case stripe.EventTypeChargeDisputeClosed:
		var dispute stripe.Dispute
		if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode dispute event")
		}
		_, err := s.ledger.ResolveDispute(ctx, txn.TransactionID, dispute.ID, disputeOutcome(dispute.Status))
		return err

	case stripe.EventTypePayoutPaid:
		return s.applyPayout(ctx, txn, event, enums.PayoutStatusPaid)

	case stripe.EventTypePayoutFailed:
		return s.applyPayout(ctx, txn, event, enums.PayoutStatusFailed)

	default:
		s.logg.Info(ctx, "unhandled stripe event type, recording only")
		return nil
	}
}

// applyRefunds walks the full refund list Stripe resends with every
// charge.refunded delivery: unseen refunds are appended, and refunds the
// ledger recorded as pending are advanced to the status Stripe now reports.
func (s *Service) applyRefunds(ctx context.Context, txn *models.Transaction, charge *stripe.Charge) error {
	if charge.Refunds == nil {
		return nil
	}
	current := txn
	for _, refund := range charge.Refunds.Data {
		if refund == nil || refund.ID == "" {
			continue
		}
		status := refundStatus(refund.Status)

		if existing := findVendorRefund(current, refund.ID); existing != nil {
			if existing.Status != enums.RefundStatusPending || status == enums.RefundStatusPending {
				continue
			}
			updated, err := s.ledger.UpdateRefundStatus(ctx, current.TransactionID, ledger.RefundStatusInput{
				VendorRefundID: refund.ID,
				Status:         status,
				Actor:          actor,
			})
			if err != nil {
				return err
			}
			current = updated
			continue
		}

		updated, err := s.ledger.AddRefund(ctx, current.TransactionID, ledger.RefundInput{
			AmountCents:    refund.Amount,
			Reason:         string(refund.Reason),
			IssuedBy:       actor,
			VendorRefundID: refund.ID,
			Status:         status,
		})
		if err != nil {
			return err
		}
		current = updated
	}
	return nil
}

func refundStatus(status stripe.RefundStatus) enums.RefundStatus {
	switch status {
	case stripe.RefundStatusSucceeded:
		return enums.RefundStatusSucceeded
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		return enums.RefundStatusFailed
	default:
		return enums.RefundStatusPending
	}
}

func (s *Service) applyPayout(ctx context.Context, txn *models.Transaction, event *stripe.Event, status enums.PayoutStatus) error {
	var payout stripe.Payout
	if err := json.Unmarshal(event.Data.Raw, &payout); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payout event")
	}
	input := ledger.PayoutUpdateInput{
		Status:         status,
		VendorPayoutID: payout.ID,
		FailureMessage: payout.FailureMessage,
	}
	if payout.ArrivalDate > 0 {
		arrival := time.Unix(payout.ArrivalDate, 0).UTC()
		input.ArrivalDate = &arrival
	}
	_, err := s.ledger.UpdatePayoutStatus(ctx, txn.TransactionID, input)
	return err
}

func findVendorRefund(txn *models.Transaction, vendorRefundID string) *models.RefundRecord {
	for i := range txn.Refunds {
		if txn.Refunds[i].VendorRefundID == vendorRefundID {
			return &txn.Refunds[i]
		}
	}
	return nil
}

func disputeOutcome(status stripe.DisputeStatus) enums.DisputeStatus {
	switch status {
	case stripe.DisputeStatusWon:
		return enums.DisputeStatusWon
	case stripe.DisputeStatusLost:
		return enums.DisputeStatusLost
	default:
		return enums.DisputeStatusClosed
	}
}

// permanent reports whether retrying the event could never succeed.
func permanent(err error) bool {
	return pkgerrors.HasCode(err, pkgerrors.CodeValidation) ||
		pkgerrors.HasCode(err, pkgerrors.CodeStateConflict)
}
