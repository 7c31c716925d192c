package charges

import (
	"context"
	"io"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ledgercore-backend/internal/ledger"
	"github.com/angelmondragon/ledgercore-backend/internal/payments"
	"github.com/angelmondragon/ledgercore-backend/internal/tax"
	"github.com/angelmondragon/ledgercore-backend/pkg/db/models"
	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgercore-backend/pkg/errors"
	"github.com/angelmondragon/ledgercore-backend/pkg/logger"
)

// stubLedger keeps a single in-memory row and applies mutations directly, so
// the orchestration tests can assert on the final row state.
type stubLedger struct {
	txn      *models.Transaction
	created  []ledger.CreateChargeInput
	settled  []ledger.SettlementInput
	refunded []ledger.RefundInput
}

func (s *stubLedger) CreateCharge(ctx context.Context, input ledger.CreateChargeInput) (*models.Transaction, error) {
	s.created = append(s.created, input)
	s.txn = &models.Transaction{
		TransactionID: "txn_test",
		Type:          enums.TransactionTypeCharge,
		Status:        enums.TransactionStatusPending,
		GrossCents:    input.GrossCents,
		TaxCents:      input.TaxCents,
		Currency:      input.Currency,
		Provider:      input.Provider,
		Metadata:      input.Metadata,
	}
	return s.txn, nil
}

func (s *stubLedger) GetByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	if s.txn == nil || s.txn.TransactionID != transactionID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	return s.txn, nil
}

func (s *stubLedger) GetByVendorRef(ctx context.Context, key, value string) (*models.Transaction, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
}

func (s *stubLedger) List(ctx context.Context, filter ledger.ListFilter) ([]models.Transaction, error) {
	return nil, nil
}

func (s *stubLedger) MarkAsProcessing(ctx context.Context, transactionID string) (*models.Transaction, error) {
	s.txn.Status = enums.TransactionStatusProcessing
	return s.txn, nil
}

func (s *stubLedger) AttachVendorRefs(ctx context.Context, transactionID string, refs models.VendorRefs) (*models.Transaction, error) {
	if s.txn.VendorRefs == nil {
		s.txn.VendorRefs = models.VendorRefs{}
	}
	for k, v := range refs {
		s.txn.VendorRefs[k] = v
	}
	return s.txn, nil
}

func (s *stubLedger) MarkAsSucceeded(ctx context.Context, transactionID string, input ledger.SettlementInput) (*models.Transaction, error) {
	s.settled = append(s.settled, input)
	s.txn.Status = enums.TransactionStatusSucceeded
	if s.txn.VendorRefs == nil {
		s.txn.VendorRefs = models.VendorRefs{}
	}
	for k, v := range input.VendorRefs {
		s.txn.VendorRefs[k] = v
	}
	return s.txn, nil
}

func (s *stubLedger) MarkAsFailed(ctx context.Context, transactionID string, failure models.FailureInfo) (*models.Transaction, error) {
	s.txn.Status = enums.TransactionStatusFailed
	s.txn.Failure = &failure
	return s.txn, nil
}

func (s *stubLedger) Cancel(ctx context.Context, transactionID, reason, actor string) (*models.Transaction, error) {
	s.txn.Status = enums.TransactionStatusCanceled
	return s.txn, nil
}

func (s *stubLedger) AddRefund(ctx context.Context, transactionID string, input ledger.RefundInput) (*models.Transaction, error) {
	s.refunded = append(s.refunded, input)
	return s.txn, nil
}

func (s *stubLedger) CreateRefund(ctx context.Context, transactionID string, input ledger.RefundInput) (*ledger.RefundResult, error) {
	s.refunded = append(s.refunded, input)
	return &ledger.RefundResult{Original: s.txn}, nil
}

func (s *stubLedger) AddDispute(ctx context.Context, transactionID string, input ledger.DisputeInput) (*models.Transaction, error) {
	return s.txn, nil
}

func (s *stubLedger) ResolveDispute(ctx context.Context, transactionID, disputeID string, status enums.DisputeStatus) (*models.Transaction, error) {
	return s.txn, nil
}

func (s *stubLedger) UpdatePayoutStatus(ctx context.Context, transactionID string, input ledger.PayoutUpdateInput) (*models.Transaction, error) {
	return s.txn, nil
}

func (s *stubLedger) AddWebhookEvent(ctx context.Context, transactionID string, event models.WebhookEventRecord) (*models.Transaction, error) {
	return s.txn, nil
}

func (s *stubLedger) UpdateRefundStatus(ctx context.Context, transactionID string, input ledger.RefundStatusInput) (*models.Transaction, error) {
	return s.txn, nil
}

func (s *stubLedger) UpdateTransactionWithTax(ctx context.Context, transactionID string, input ledger.TaxUpdateInput) (*models.Transaction, error) {
	return s.txn, nil
}

type stubProcessor struct {
	vendor    enums.ProviderName
	charge    *payments.ChargeResult
	chargeErr error
	charges   []payments.ChargeInput

	refund    *payments.RefundResult
	refundErr error
	refunds   []payments.RefundInput
}

func (s *stubProcessor) Name() enums.ProviderName { return s.vendor }

func (s *stubProcessor) CreateCustomer(ctx context.Context, input payments.CustomerInput) (*payments.CustomerResult, error) {
	return nil, nil
}

func (s *stubProcessor) CreatePaymentMethod(ctx context.Context, input payments.PaymentMethodInput) (*payments.PaymentMethodResult, error) {
	return nil, nil
}

func (s *stubProcessor) CreateSubscription(ctx context.Context, input payments.SubscriptionInput) (*payments.SubscriptionResult, error) {
	return nil, nil
}

func (s *stubProcessor) CancelSubscription(ctx context.Context, vendorSubscriptionID string) error {
	return nil
}

func (s *stubProcessor) CreateInvoice(ctx context.Context, input payments.InvoiceInput) (*payments.InvoiceResult, error) {
	return nil, nil
}

func (s *stubProcessor) ProcessPayment(ctx context.Context, input payments.ChargeInput) (*payments.ChargeResult, error) {
	s.charges = append(s.charges, input)
	if s.chargeErr != nil {
		return nil, s.chargeErr
	}
	return s.charge, nil
}

func (s *stubProcessor) RefundPayment(ctx context.Context, input payments.RefundInput) (*payments.RefundResult, error) {
	s.refunds = append(s.refunds, input)
	if s.refundErr != nil {
		return nil, s.refundErr
	}
	return s.refund, nil
}

func (s *stubProcessor) VerifyWebhook(payload []byte, signature string) error { return nil }

type stubFactory struct {
	primary  payments.Processor
	byVendor map[enums.ProviderName]payments.Processor

	byNameCalls  []enums.ProviderName
	primaryCalls int
}

func (s *stubFactory) ByName(ctx context.Context, vendor enums.ProviderName) (payments.Processor, error) {
	s.byNameCalls = append(s.byNameCalls, vendor)
	if proc, ok := s.byVendor[vendor]; ok {
		return proc, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeProviderNotConfigured, "payment provider not configured")
}

func (s *stubFactory) Primary(ctx context.Context) (payments.Processor, error) {
	s.primaryCalls++
	if s.primary == nil {
		return nil, pkgerrors.New(pkgerrors.CodeProviderNotConfigured, "payment provider not configured")
	}
	return s.primary, nil
}

type stubTax struct {
	result *tax.Result
	calls  []tax.Input
}

func (s *stubTax) Calculate(ctx context.Context, input tax.Input) (*tax.Result, error) {
	s.calls = append(s.calls, input)
	if s.result != nil {
		return s.result, nil
	}
	return &tax.Result{OriginalAmountCents: input.AmountCents, TotalAmountCents: input.AmountCents}, nil
}

func newTestService(t *testing.T, stubs ...any) (Service, *stubLedger, *stubFactory, *stubTax) {
	t.Helper()
	led := &stubLedger{}
	proc := &stubProcessor{
		vendor: enums.ProviderNameStripe,
		charge: &payments.ChargeResult{VendorPaymentID: "pi_1", Status: enums.TransactionStatusSucceeded},
	}
	factory := &stubFactory{
		primary:  proc,
		byVendor: map[enums.ProviderName]payments.Processor{enums.ProviderNameStripe: proc},
	}
	taxes := &stubTax{}
	for _, s := range stubs {
		switch v := s.(type) {
		case *stubLedger:
			led = v
		case *stubFactory:
			factory = v
		case *stubTax:
			taxes = v
		}
	}
	svc, err := NewService(ServiceParams{
		Ledger:  led,
		Factory: factory,
		Tax:     taxes,
		Logger:  logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, led, factory, taxes
}

func TestChargeSettlesOnVendorSuccess(t *testing.T) {
	proc := &stubProcessor{
		vendor: enums.ProviderNameStripe,
		charge: &payments.ChargeResult{VendorPaymentID: "pi_1", Status: enums.TransactionStatusSucceeded, FeeCents: 175},
	}
	factory := &stubFactory{primary: proc}
	svc, led, _, _ := newTestService(t, factory)

	txn, err := svc.Charge(context.Background(), ChargeRequest{
		AmountCents: 5000,
		Currency:    enums.CurrencyUSD,
	})
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if txn.Status != enums.TransactionStatusSucceeded {
		t.Errorf("status = %s, want succeeded", txn.Status)
	}
	if txn.VendorRefs["payment_id"] != "pi_1" {
		t.Errorf("vendor refs = %v, want payment_id pi_1", txn.VendorRefs)
	}
	if len(led.settled) != 1 || led.settled[0].FeeCents == nil || *led.settled[0].FeeCents != 175 {
		t.Errorf("settlement must carry the vendor fee, got %+v", led.settled)
	}
	if len(proc.charges) != 1 || proc.charges[0].ReferenceID != "txn_test" {
		t.Errorf("vendor charge must reference the ledger row, got %+v", proc.charges)
	}
	if proc.charges[0].Metadata["transaction_id"] != "txn_test" {
		t.Error("vendor metadata must carry the transaction id for webhook resolution")
	}
}

func TestChargeComputesTaxFromBillingAddress(t *testing.T) {
	taxes := &stubTax{result: &tax.Result{
		OriginalAmountCents: 5000,
		TaxAmountCents:      413,
		TotalAmountCents:    5413,
		Rate:                decimal.NewFromFloat(0.0825),
		Jurisdiction:        "US-CA",
		Provider:            "stripe",
	}}
	svc, led, _, _ := newTestService(t, taxes)

	txn, err := svc.Charge(context.Background(), ChargeRequest{
		AmountCents:    5000,
		Currency:       enums.CurrencyUSD,
		BillingAddress: &tax.Address{Country: "US", State: "CA"},
	})
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if len(taxes.calls) != 1 {
		t.Fatalf("tax calculated %d times, want 1", len(taxes.calls))
	}
	if txn.TaxCents != 413 {
		t.Errorf("tax = %d, want 413", txn.TaxCents)
	}
	if led.created[0].Metadata["tax_jurisdiction"] != "US-CA" {
		t.Errorf("metadata missing jurisdiction: %v", led.created[0].Metadata)
	}
}

func TestChargeMarksFailedOnVendorError(t *testing.T) {
	proc := &stubProcessor{
		vendor:    enums.ProviderNameStripe,
		chargeErr: pkgerrors.New(pkgerrors.CodeDependency, "card declined"),
	}
	factory := &stubFactory{primary: proc}
	svc, led, _, _ := newTestService(t, factory)

	txn, err := svc.Charge(context.Background(), ChargeRequest{
		AmountCents: 5000,
		Currency:    enums.CurrencyUSD,
	})
	if err != nil {
		t.Fatalf("a vendor decline is an outcome, not an error: %v", err)
	}
	if txn.Status != enums.TransactionStatusFailed {
		t.Errorf("status = %s, want failed", txn.Status)
	}
	if led.txn.Failure == nil || led.txn.Failure.Code != string(pkgerrors.CodeDependency) {
		t.Errorf("failure detail not captured: %+v", led.txn.Failure)
	}
}

func TestChargeKeepsProcessingRowWithVendorRef(t *testing.T) {
	proc := &stubProcessor{
		vendor: enums.ProviderNameSquare,
		charge: &payments.ChargeResult{VendorPaymentID: "sq_pay_1", Status: enums.TransactionStatusProcessing},
	}
	factory := &stubFactory{primary: proc}
	svc, led, _, _ := newTestService(t, factory)

	txn, err := svc.Charge(context.Background(), ChargeRequest{
		AmountCents: 5000,
		Currency:    enums.CurrencyUSD,
	})
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if txn.Status != enums.TransactionStatusProcessing {
		t.Errorf("status = %s, want processing", txn.Status)
	}
	if txn.VendorRefs["payment_id"] != "sq_pay_1" {
		t.Error("vendor handle must be attached for webhook resolution")
	}
	if len(led.settled) != 0 {
		t.Error("a processing result must not settle the row")
	}
}

func TestChargeRoutesExplicitVendor(t *testing.T) {
	stripeProc := &stubProcessor{
		vendor: enums.ProviderNameStripe,
		charge: &payments.ChargeResult{VendorPaymentID: "pi_1", Status: enums.TransactionStatusSucceeded},
	}
	squareProc := &stubProcessor{
		vendor: enums.ProviderNameSquare,
		charge: &payments.ChargeResult{VendorPaymentID: "sq_1", Status: enums.TransactionStatusSucceeded},
	}
	factory := &stubFactory{
		primary: stripeProc,
		byVendor: map[enums.ProviderName]payments.Processor{
			enums.ProviderNameStripe: stripeProc,
			enums.ProviderNameSquare: squareProc,
		},
	}
	svc, _, _, _ := newTestService(t, factory)

	txn, err := svc.Charge(context.Background(), ChargeRequest{
		AmountCents: 1000,
		Currency:    enums.CurrencyUSD,
		Vendor:      enums.ProviderNameSquare,
	})
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if txn.Provider != enums.ProviderNameSquare {
		t.Errorf("provider = %s, want square", txn.Provider)
	}
	if len(squareProc.charges) != 1 || len(stripeProc.charges) != 0 {
		t.Error("explicit vendor must bypass the primary")
	}
	if factory.primaryCalls != 0 {
		t.Error("explicit vendor must not consult the primary")
	}
}

func TestRefundExecutesAtVendorThenRecords(t *testing.T) {
	proc := &stubProcessor{
		vendor: enums.ProviderNameStripe,
		refund: &payments.RefundResult{VendorRefundID: "re_1", Status: enums.RefundStatusSucceeded},
	}
	factory := &stubFactory{
		byVendor: map[enums.ProviderName]payments.Processor{enums.ProviderNameStripe: proc},
	}
	led := &stubLedger{txn: &models.Transaction{
		TransactionID: "txn_test",
		Status:        enums.TransactionStatusSucceeded,
		GrossCents:    5000,
		NetCents:      5000,
		Currency:      enums.CurrencyUSD,
		Provider:      enums.ProviderNameStripe,
		VendorRefs:    models.VendorRefs{"payment_intent_id": "pi_1"},
	}}
	svc, _, _, _ := newTestService(t, factory, led)

	result, err := svc.Refund(context.Background(), "txn_test", RefundRequest{
		AmountCents: 2000,
		Reason:      "requested_by_customer",
		IssuedBy:    "admin",
	})
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if result == nil {
		t.Fatal("expected a refund result")
	}
	if len(proc.refunds) != 1 || proc.refunds[0].VendorPaymentID != "pi_1" {
		t.Errorf("vendor refund input = %+v, want payment ref pi_1", proc.refunds)
	}
	if len(led.refunded) != 1 || led.refunded[0].VendorRefundID != "re_1" {
		t.Errorf("ledger refund input = %+v, want vendor refund re_1", led.refunded)
	}
}

func TestRefundRejectsOverCapBeforeVendorCall(t *testing.T) {
	proc := &stubProcessor{vendor: enums.ProviderNameStripe}
	factory := &stubFactory{
		byVendor: map[enums.ProviderName]payments.Processor{enums.ProviderNameStripe: proc},
	}
	led := &stubLedger{txn: &models.Transaction{
		TransactionID: "txn_test",
		Status:        enums.TransactionStatusSucceeded,
		GrossCents:    5000,
		NetCents:      5000,
		Provider:      enums.ProviderNameStripe,
		VendorRefs:    models.VendorRefs{"payment_id": "pi_1"},
	}}
	svc, _, _, _ := newTestService(t, factory, led)

	_, err := svc.Refund(context.Background(), "txn_test", RefundRequest{AmountCents: 6000})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(proc.refunds) != 0 {
		t.Error("over-cap refund must never reach the vendor")
	}
}

func TestRefundRequiresVendorReference(t *testing.T) {
	led := &stubLedger{txn: &models.Transaction{
		TransactionID: "txn_test",
		Status:        enums.TransactionStatusSucceeded,
		GrossCents:    5000,
		Provider:      enums.ProviderNameStripe,
	}}
	svc, _, _, _ := newTestService(t, led)

	_, err := svc.Refund(context.Background(), "txn_test", RefundRequest{AmountCents: 1000})
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}
