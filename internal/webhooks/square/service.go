package squarewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/angelmondragon/ledgercore-backend/internal/ledger"
	"github.com/angelmondragon/ledgercore-backend/pkg/db/models"
	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgercore-backend/pkg/errors"
	"github.com/angelmondragon/ledgercore-backend/pkg/logger"
)

const actor = "square_webhook"

// Event is the Square webhook envelope. The object payload stays raw until
// the type switch knows what to decode it as.
type Event struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    struct {
		Type   string          `json:"type"`
		ID     string          `json:"id"`
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type paymentObject struct {
	Payment struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		ReferenceID string `json:"reference_id"`
		AmountMoney money  `json:"amount_money"`
	} `json:"payment"`
}

type refundObject struct {
	Refund struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		PaymentID   string `json:"payment_id"`
		Reason      string `json:"reason"`
		AmountMoney money  `json:"amount_money"`
	} `json:"refund"`
}

type disputeObject struct {
	Dispute struct {
		ID              string `json:"id"`
		State           string `json:"state"`
		Reason          string `json:"reason"`
		AmountMoney     money  `json:"amount_money"`
		DisputedPayment struct {
			PaymentID string `json:"payment_id"`
		} `json:"disputed_payment"`
	} `json:"dispute"`
}

type ServiceParams struct {
	Ledger ledger.Service
	Logger *logger.Logger
}

// Service applies inbound Square events to the ledger. Square payments carry
// our transaction id as reference_id; refund and dispute events only carry
// the vendor payment id, so those resolve through the vendor-ref lookup.
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

// HandleEvent decodes the envelope, resolves the ledger row, applies the
// mutation, and records the event on the row.
func (s *Service) HandleEvent(ctx context.Context, payload []byte) error {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode square event")
	}
	if event.EventID == "" || event.Type == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event id and type required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":   event.EventID,
		"event_type": event.Type,
	})

	txn, err := s.resolveTransaction(ctx, &event)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			s.logg.Warn(ctx, "square event references unknown transaction")
			return nil
		}
		return err
	}
	if txn == nil {
		s.logg.Info(ctx, "square event carries no transaction reference, skipping")
		return nil
	}
	ctx = s.logg.WithTransactionID(ctx, txn.TransactionID)
	if txn.HasWebhookEvent(event.EventID) {
		s.logg.Info(ctx, "square event already recorded, skipping replay")
		return nil
	}

	dispatchErr := s.dispatch(ctx, txn, &event)
	if dispatchErr != nil && !permanent(dispatchErr) {
		return dispatchErr
	}

	if _, err := s.ledger.AddWebhookEvent(ctx, txn.TransactionID, models.WebhookEventRecord{
		EventID:   event.EventID,
		Type:      event.Type,
		Provider:  string(enums.ProviderNameSquare),
		Processed: dispatchErr == nil,
		Payload:   event.Data.Object,
	}); err != nil {
		return err
	}

	if dispatchErr != nil {
		s.logg.Warn(ctx, "square event could not be applied, recorded as unprocessed")
		s.logg.Error(ctx, "square event dispatch detail", dispatchErr)
	}
	return nil
}

// resolveTransaction finds the ledger row the event belongs to. A nil
// transaction with nil error means the event has no ledger reference at all.
func (s *Service) resolveTransaction(ctx context.Context, event *Event) (*models.Transaction, error) {
	switch {
	case strings.HasPrefix(event.Type, "payment."):
		var obj paymentObject
		if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment object")
		}
		if obj.Payment.ReferenceID != "" {
			return s.ledger.GetByTransactionID(ctx, obj.Payment.ReferenceID)
		}
		if obj.Payment.ID != "" {
			return s.ledger.GetByVendorRef(ctx, "payment_id", obj.Payment.ID)
		}
		return nil, nil

	case strings.HasPrefix(event.Type, "refund."):
		var obj refundObject
		if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode refund object")
		}
		if obj.Refund.PaymentID == "" {
			return nil, nil
		}
		return s.ledger.GetByVendorRef(ctx, "payment_id", obj.Refund.PaymentID)

	case strings.HasPrefix(event.Type, "dispute."):
		var obj disputeObject
		if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode dispute object")
		}
		if obj.Dispute.DisputedPayment.PaymentID == "" {
			return nil, nil
		}
		return s.ledger.GetByVendorRef(ctx, "payment_id", obj.Dispute.DisputedPayment.PaymentID)

	default:
		return nil, nil
	}
}

func (s *Service) dispatch(ctx context.Context, txn *models.Transaction, event *Event) error {
	switch event.Type {
	case "payment.created", "payment.updated":
		var obj paymentObject
		if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment object")
		}
		return s.applyPayment(ctx, txn, &obj)

	case "refund.created", "refund.updated":
		var obj refundObject
		if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode refund object")
		}
		return s.applyRefund(ctx, txn, &obj)

	case "dispute.created":
		var obj disputeObject
		if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode dispute object")
		}
		_, err := s.ledger.AddDispute(ctx, txn.TransactionID, ledger.DisputeInput{
			AmountCents:     obj.Dispute.AmountMoney.Amount,
			Reason:          obj.Dispute.Reason,
			VendorDisputeID: obj.Dispute.ID,
		})
		return err

	case "dispute.state.updated":
		var obj disputeObject
		if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode dispute object")
		}
		outcome, terminal := disputeOutcome(obj.Dispute.State)
		if !terminal {
			s.logg.Info(ctx, "square dispute still open, recording only")
			return nil
		}
		_, err := s.ledger.ResolveDispute(ctx, txn.TransactionID, obj.Dispute.ID, outcome)
		return err

	default:
		s.logg.Info(ctx, "unhandled square event type, recording only")
		return nil
	}
}

func (s *Service) applyPayment(ctx context.Context, txn *models.Transaction, obj *paymentObject) error {
	switch obj.Payment.Status {
	case "COMPLETED":
		_, err := s.ledger.MarkAsSucceeded(ctx, txn.TransactionID, ledger.SettlementInput{
			VendorRefs: models.VendorRefs{"payment_id": obj.Payment.ID},
			Actor:      actor,
		})
		return err
	case "FAILED":
		_, err := s.ledger.MarkAsFailed(ctx, txn.TransactionID, models.FailureInfo{
			Code:    "payment_failed",
			Message: "square reported the payment as failed",
		})
		return err
	case "CANCELED":
		_, err := s.ledger.Cancel(ctx, txn.TransactionID, "square reported the payment as canceled", actor)
		return err
	default:
		// APPROVED and PENDING are intermediate; the terminal event follows.
		return nil
	}
}

// applyRefund records a refund the ledger has not seen, or advances a
// pending one: Square delivers refund.created as PENDING and the terminal
// COMPLETED/FAILED state arrives later on refund.updated.
func (s *Service) applyRefund(ctx context.Context, txn *models.Transaction, obj *refundObject) error {
	if obj.Refund.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "square refund id required")
	}
	status := enums.RefundStatusPending
	switch obj.Refund.Status {
	case "COMPLETED":
		status = enums.RefundStatusSucceeded
	case "FAILED", "REJECTED":
		status = enums.RefundStatusFailed
	}

	for _, r := range txn.Refunds {
		if r.VendorRefundID != obj.Refund.ID {
			continue
		}
		if r.Status != enums.RefundStatusPending || status == enums.RefundStatusPending {
			return nil
		}
		_, err := s.ledger.UpdateRefundStatus(ctx, txn.TransactionID, ledger.RefundStatusInput{
			VendorRefundID: obj.Refund.ID,
			Status:         status,
			Actor:          actor,
		})
		return err
	}

	_, err := s.ledger.AddRefund(ctx, txn.TransactionID, ledger.RefundInput{
		AmountCents:    obj.Refund.AmountMoney.Amount,
		Reason:         obj.Refund.Reason,
		IssuedBy:       actor,
		VendorRefundID: obj.Refund.ID,
		Status:         status,
	})
	return err
}

func disputeOutcome(state string) (enums.DisputeStatus, bool) {
	switch state {
	case "WON":
		return enums.DisputeStatusWon, true
	case "LOST", "ACCEPTED":
		return enums.DisputeStatusLost, true
	default:
		return "", false
	}
}

func permanent(err error) bool {
	return pkgerrors.HasCode(err, pkgerrors.CodeValidation) ||
		pkgerrors.HasCode(err, pkgerrors.CodeStateConflict)
}
