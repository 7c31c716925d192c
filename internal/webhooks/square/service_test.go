package squarewebhook

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/angelmondragon/ledgercore-backend/internal/ledger"
	"github.com/angelmondragon/ledgercore-backend/pkg/db/models"
	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgercore-backend/pkg/errors"
	"github.com/angelmondragon/ledgercore-backend/pkg/logger"
)

type stubLedger struct {
	txn *models.Transaction

	succeeded     []ledger.SettlementInput
	failed        []models.FailureInfo
	canceled      []string
	refunds       []ledger.RefundInput
	refundUpdates []ledger.RefundStatusInput
	disputes      []ledger.DisputeInput
	resolved      []enums.DisputeStatus
	events        []models.WebhookEventRecord
}

func (s *stubLedger) CreateCharge(ctx context.Context, input ledger.CreateChargeInput) (*models.Transaction, error) {
	return s.txn, nil
}

func (s *stubLedger) GetByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	if s.txn == nil || s.txn.TransactionID != transactionID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	return s.txn, nil
}

func (s *stubLedger) GetByVendorRef(ctx context.Context, key, value string) (*models.Transaction, error) {
	if s.txn == nil || s.txn.VendorRefs[key] != value {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	return s.txn, nil
}

func (s *stubLedger) List(ctx context.Context, filter ledger.ListFilter) ([]models.Transaction, error) {
	return nil, nil
}

func (s *stubLedger) MarkAsProcessing(ctx context.Context, transactionID string) (*models.Transaction, error) {
	return s.txn, nil
}

func (s *stubLedger) AttachVendorRefs(ctx context.Context, transactionID string, refs models.VendorRefs) (*models.Transaction, error) {
	return s.txn, nil
}

func (s *stubLedger) MarkAsSucceeded(ctx context.Context, transactionID string, input ledger.SettlementInput) (*models.Transaction, error) {
	s.succeeded = append(s.succeeded, input)
	return s.txn, nil
}

func (s *stubLedger) MarkAsFailed(ctx context.Context, transactionID string, failure models.FailureInfo) (*models.Transaction, error) {
	s.failed = append(s.failed, failure)
	return s.txn, nil
}

func (s *stubLedger) Cancel(ctx context.Context, transactionID, reason, actor string) (*models.Transaction, error) {
	s.canceled = append(s.canceled, reason)
	return s.txn, nil
}

func (s *stubLedger) AddRefund(ctx context.Context, transactionID string, input ledger.RefundInput) (*models.Transaction, error) {
	s.refunds = append(s.refunds, input)
	s.txn.Refunds = append(s.txn.Refunds, models.RefundRecord{
		RefundID:       "ref_stub",
		AmountCents:    input.AmountCents,
		Status:         input.Status,
		VendorRefundID: input.VendorRefundID,
	})
	return s.txn, nil
}

func (s *stubLedger) UpdateRefundStatus(ctx context.Context, transactionID string, input ledger.RefundStatusInput) (*models.Transaction, error) {
	s.refundUpdates = append(s.refundUpdates, input)
	for i := range s.txn.Refunds {
		if s.txn.Refunds[i].VendorRefundID == input.VendorRefundID {
			s.txn.Refunds[i].Status = input.Status
		}
	}
	return s.txn, nil
}

func (s *stubLedger) CreateRefund(ctx context.Context, transactionID string, input ledger.RefundInput) (*ledger.RefundResult, error) {
	return &ledger.RefundResult{Original: s.txn}, nil
}

func (s *stubLedger) AddDispute(ctx context.Context, transactionID string, input ledger.DisputeInput) (*models.Transaction, error) {
	s.disputes = append(s.disputes, input)
	return s.txn, nil
}

func (s *stubLedger) ResolveDispute(ctx context.Context, transactionID, disputeID string, status enums.DisputeStatus) (*models.Transaction, error) {
	s.resolved = append(s.resolved, status)
	return s.txn, nil
}

func (s *stubLedger) UpdatePayoutStatus(ctx context.Context, transactionID string, input ledger.PayoutUpdateInput) (*models.Transaction, error) {
	return s.txn, nil
}

func (s *stubLedger) AddWebhookEvent(ctx context.Context, transactionID string, event models.WebhookEventRecord) (*models.Transaction, error) {
	s.events = append(s.events, event)
	return s.txn, nil
}

func (s *stubLedger) UpdateTransactionWithTax(ctx context.Context, transactionID string, input ledger.TaxUpdateInput) (*models.Transaction, error) {
	return s.txn, nil
}

func newTestService(t *testing.T, stub *stubLedger) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Ledger: stub,
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func chargeRow(transactionID string) *models.Transaction {
	return &models.Transaction{
		TransactionID: transactionID,
		Type:          enums.TransactionTypeCharge,
		Status:        enums.TransactionStatusProcessing,
		GrossCents:    5000,
		NetCents:      5000,
		Currency:      enums.CurrencyUSD,
		Provider:      enums.ProviderNameSquare,
		VendorRefs:    models.VendorRefs{"payment_id": "sq_pay_1"},
	}
}

func buildPayload(t *testing.T, eventID, eventType string, object any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"event_id": eventID,
		"type":     eventType,
		"data": map[string]any{
			"type":   "object",
			"object": object,
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func TestHandleEventPaymentCompleted(t *testing.T) {
	stub := &stubLedger{txn: chargeRow("txn_1")}
	svc := newTestService(t, stub)

	payload := buildPayload(t, "evt_1", "payment.updated", map[string]any{
		"payment": map[string]any{
			"id":           "sq_pay_1",
			"status":       "COMPLETED",
			"reference_id": "txn_1",
		},
	})
	if err := svc.HandleEvent(context.Background(), payload); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	if len(stub.succeeded) != 1 {
		t.Fatalf("MarkAsSucceeded called %d times, want 1", len(stub.succeeded))
	}
	if stub.succeeded[0].VendorRefs["payment_id"] != "sq_pay_1" {
		t.Errorf("unexpected vendor refs: %v", stub.succeeded[0].VendorRefs)
	}
	if len(stub.events) != 1 || !stub.events[0].Processed {
		t.Fatalf("expected one processed webhook record, got %+v", stub.events)
	}
	if stub.events[0].Provider != string(enums.ProviderNameSquare) {
		t.Errorf("provider = %s, want square", stub.events[0].Provider)
	}
}

func TestHandleEventPaymentFailed(t *testing.T) {
	stub := &stubLedger{txn: chargeRow("txn_1")}
	svc := newTestService(t, stub)

	payload := buildPayload(t, "evt_2", "payment.updated", map[string]any{
		"payment": map[string]any{
			"id":           "sq_pay_1",
			"status":       "FAILED",
			"reference_id": "txn_1",
		},
	})
	if err := svc.HandleEvent(context.Background(), payload); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(stub.failed) != 1 {
		t.Fatalf("MarkAsFailed called %d times, want 1", len(stub.failed))
	}
}

func TestHandleEventPendingPaymentIsRecordedOnly(t *testing.T) {
	stub := &stubLedger{txn: chargeRow("txn_1")}
	svc := newTestService(t, stub)

	payload := buildPayload(t, "evt_3", "payment.updated", map[string]any{
		"payment": map[string]any{
			"id":           "sq_pay_1",
			"status":       "PENDING",
			"reference_id": "txn_1",
		},
	})
	if err := svc.HandleEvent(context.Background(), payload); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(stub.succeeded)+len(stub.failed) != 0 {
		t.Error("intermediate payment status must not mutate the ledger")
	}
	if len(stub.events) != 1 {
		t.Fatalf("expected the event to be recorded, got %+v", stub.events)
	}
}

func TestHandleEventRefundResolvesByPaymentID(t *testing.T) {
	txn := chargeRow("txn_1")
	txn.Status = enums.TransactionStatusSucceeded
	stub := &stubLedger{txn: txn}
	svc := newTestService(t, stub)

	payload := buildPayload(t, "evt_4", "refund.updated", map[string]any{
		"refund": map[string]any{
			"id":           "sq_ref_1",
			"status":       "COMPLETED",
			"payment_id":   "sq_pay_1",
			"reason":       "requested by customer",
			"amount_money": map[string]any{"amount": 1500, "currency": "USD"},
		},
	})
	if err := svc.HandleEvent(context.Background(), payload); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	if len(stub.refunds) != 1 {
		t.Fatalf("AddRefund called %d times, want 1", len(stub.refunds))
	}
	input := stub.refunds[0]
	if input.AmountCents != 1500 || input.VendorRefundID != "sq_ref_1" || input.Status != enums.RefundStatusSucceeded {
		t.Errorf("unexpected refund input: %+v", input)
	}
}

func TestHandleEventRefundReplayIsSkipped(t *testing.T) {
	txn := chargeRow("txn_1")
	txn.Status = enums.TransactionStatusPartiallyRefunded
	txn.Refunds = models.RefundList{{
		RefundID:       "ref_1",
		AmountCents:    1500,
		Status:         enums.RefundStatusSucceeded,
		VendorRefundID: "sq_ref_1",
	}}
	stub := &stubLedger{txn: txn}
	svc := newTestService(t, stub)

	payload := buildPayload(t, "evt_5", "refund.updated", map[string]any{
		"refund": map[string]any{
			"id":           "sq_ref_1",
			"status":       "COMPLETED",
			"payment_id":   "sq_pay_1",
			"amount_money": map[string]any{"amount": 1500, "currency": "USD"},
		},
	})
	if err := svc.HandleEvent(context.Background(), payload); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(stub.refunds) != 0 {
		t.Error("known vendor refund must not be appended twice")
	}
	if len(stub.events) != 1 {
		t.Error("the delivery itself must still be recorded")
	}
}

func TestHandleEventRefundPendingThenCompleted(t *testing.T) {
	txn := chargeRow("txn_1")
	txn.Status = enums.TransactionStatusSucceeded
	stub := &stubLedger{txn: txn}
	svc := newTestService(t, stub)

	created := buildPayload(t, "evt_6", "refund.created", map[string]any{
		"refund": map[string]any{
			"id":           "sq_ref_1",
			"status":       "PENDING",
			"payment_id":   "sq_pay_1",
			"amount_money": map[string]any{"amount": 5000, "currency": "USD"},
		},
	})
	if err := svc.HandleEvent(context.Background(), created); err != nil {
		t.Fatalf("HandleEvent created: %v", err)
	}
	if len(stub.refunds) != 1 || stub.refunds[0].Status != enums.RefundStatusPending {
		t.Fatalf("expected one pending refund, got %+v", stub.refunds)
	}

	updated := buildPayload(t, "evt_7", "refund.updated", map[string]any{
		"refund": map[string]any{
			"id":           "sq_ref_1",
			"status":       "COMPLETED",
			"payment_id":   "sq_pay_1",
			"amount_money": map[string]any{"amount": 5000, "currency": "USD"},
		},
	})
	if err := svc.HandleEvent(context.Background(), updated); err != nil {
		t.Fatalf("HandleEvent updated: %v", err)
	}

	if len(stub.refunds) != 1 {
		t.Errorf("completed update must not append a second record, got %d", len(stub.refunds))
	}
	if len(stub.refundUpdates) != 1 {
		t.Fatalf("UpdateRefundStatus called %d times, want 1", len(stub.refundUpdates))
	}
	update := stub.refundUpdates[0]
	if update.VendorRefundID != "sq_ref_1" || update.Status != enums.RefundStatusSucceeded {
		t.Errorf("unexpected refund status update: %+v", update)
	}
}

func TestHandleEventDisputeCreatedAndResolved(t *testing.T) {
	txn := chargeRow("txn_1")
	txn.Status = enums.TransactionStatusSucceeded
	stub := &stubLedger{txn: txn}
	svc := newTestService(t, stub)

	created := buildPayload(t, "evt_6", "dispute.created", map[string]any{
		"dispute": map[string]any{
			"id":               "sq_dp_1",
			"state":            "EVIDENCE_REQUIRED",
			"reason":           "NO_KNOWLEDGE",
			"amount_money":     map[string]any{"amount": 5000, "currency": "USD"},
			"disputed_payment": map[string]any{"payment_id": "sq_pay_1"},
		},
	})
	if err := svc.HandleEvent(context.Background(), created); err != nil {
		t.Fatalf("HandleEvent created: %v", err)
	}
	if len(stub.disputes) != 1 || stub.disputes[0].VendorDisputeID != "sq_dp_1" {
		t.Fatalf("unexpected dispute input: %+v", stub.disputes)
	}

	accepted := buildPayload(t, "evt_7", "dispute.state.updated", map[string]any{
		"dispute": map[string]any{
			"id":               "sq_dp_1",
			"state":            "ACCEPTED",
			"disputed_payment": map[string]any{"payment_id": "sq_pay_1"},
		},
	})
	if err := svc.HandleEvent(context.Background(), accepted); err != nil {
		t.Fatalf("HandleEvent accepted: %v", err)
	}
	if len(stub.resolved) != 1 || stub.resolved[0] != enums.DisputeStatusLost {
		t.Errorf("accepted dispute must resolve as lost, got %v", stub.resolved)
	}
}

func TestHandleEventOpenDisputeStateIsRecordedOnly(t *testing.T) {
	txn := chargeRow("txn_1")
	stub := &stubLedger{txn: txn}
	svc := newTestService(t, stub)

	payload := buildPayload(t, "evt_8", "dispute.state.updated", map[string]any{
		"dispute": map[string]any{
			"id":               "sq_dp_1",
			"state":            "PROCESSING",
			"disputed_payment": map[string]any{"payment_id": "sq_pay_1"},
		},
	})
	if err := svc.HandleEvent(context.Background(), payload); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(stub.resolved) != 0 {
		t.Error("non-terminal dispute state must not resolve the dispute")
	}
	if len(stub.events) != 1 {
		t.Error("the delivery must still be recorded")
	}
}

func TestHandleEventUnknownPaymentIsAcknowledged(t *testing.T) {
	stub := &stubLedger{txn: chargeRow("txn_other")}
	svc := newTestService(t, stub)

	payload := buildPayload(t, "evt_9", "refund.updated", map[string]any{
		"refund": map[string]any{
			"id":           "sq_ref_9",
			"status":       "COMPLETED",
			"payment_id":   "sq_pay_unknown",
			"amount_money": map[string]any{"amount": 100, "currency": "USD"},
		},
	})
	if err := svc.HandleEvent(context.Background(), payload); err != nil {
		t.Fatalf("unknown payment must not error: %v", err)
	}
	if len(stub.refunds)+len(stub.events) != 0 {
		t.Error("unknown payment must not touch the ledger")
	}
}

func TestHandleEventRejectsMalformedPayload(t *testing.T) {
	stub := &stubLedger{txn: chargeRow("txn_1")}
	svc := newTestService(t, stub)

	if err := svc.HandleEvent(context.Background(), []byte("{not json")); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if err := svc.HandleEvent(context.Background(), []byte(`{"type":"payment.updated"}`)); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Errorf("missing event id: expected validation error, got %v", err)
	}
}
