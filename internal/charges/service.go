package charges

import (
	"context"
	"errors"

	"github.com/angelmondragon/ledgercore-backend/internal/ledger"
	"github.com/angelmondragon/ledgercore-backend/internal/payments"
	"github.com/angelmondragon/ledgercore-backend/internal/tax"
	"github.com/angelmondragon/ledgercore-backend/pkg/db/models"
	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgercore-backend/pkg/errors"
	"github.com/angelmondragon/ledgercore-backend/pkg/logger"
	pkgstripe "github.com/angelmondragon/ledgercore-backend/pkg/stripe"
)

type processorFactory interface {
	ByName(ctx context.Context, vendor enums.ProviderName) (payments.Processor, error)
	Primary(ctx context.Context) (payments.Processor, error)
}

type taxCalculator interface {
	Calculate(ctx context.Context, input tax.Input) (*tax.Result, error)
}

// Service runs the full charge and refund flows: tax, ledger row, vendor
// call, settlement. The ledger row always ends in a definite state; a vendor
// failure marks it failed rather than leaving it pending.
type Service interface {
	Charge(ctx context.Context, input ChargeRequest) (*models.Transaction, error)
	Refund(ctx context.Context, transactionID string, input RefundRequest) (*ledger.RefundResult, error)
}

// ChargeRequest is one payment to execute end to end.
type ChargeRequest struct {
	AmountCents int64
	Currency    enums.Currency
	// Vendor selects an explicit processor; empty means the configured primary.
	Vendor                enums.ProviderName
	VendorCustomerID      string
	VendorPaymentMethodID string
	Description           string
	PaymentMethod         models.PaymentMethod
	// BillingAddress, when present, triggers tax calculation before the
	// vendor call. The charge proceeds with the fallback rate when the tax
	// provider is down.
	BillingAddress *tax.Address
	Metadata       models.MetadataMap
}

// RefundRequest reverses part or all of a settled charge at the vendor and
// records it in the ledger.
type RefundRequest struct {
	AmountCents int64
	Reason      string
	IssuedBy    string
}

// ServiceParams wires the charge orchestration dependencies.
type ServiceParams struct {
	Ledger  ledger.Service
	Factory processorFactory
	Tax     taxCalculator
	Logger  *logger.Logger
}

type service struct {
	ledger  ledger.Service
	factory processorFactory
	tax     taxCalculator
	logg    *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Ledger == nil {
		return nil, errors.New("ledger service required")
	}
	if params.Factory == nil {
		return nil, errors.New("processor factory required")
	}
	if params.Tax == nil {
		return nil, errors.New("tax calculator required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	return &service{
		ledger:  params.Ledger,
		factory: params.Factory,
		tax:     params.Tax,
		logg:    params.Logger,
	}, nil
}

func (s *service) Charge(ctx context.Context, input ChargeRequest) (*models.Transaction, error) {
	processor, err := s.resolveProcessor(ctx, input.Vendor)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithProvider(ctx, string(processor.Name()))

	metadata := models.MetadataMap{}
	for k, v := range input.Metadata {
		metadata[k] = v
	}

	var taxCents int64
	if input.BillingAddress != nil {
		taxResult, err := s.tax.Calculate(ctx, tax.Input{
			AmountCents: input.AmountCents,
			Currency:    input.Currency,
			Address:     *input.BillingAddress,
		})
		if err != nil {
			return nil, err
		}
		taxCents = taxResult.TaxAmountCents
		metadata["tax_rate"] = taxResult.Rate.String()
		metadata["tax_jurisdiction"] = taxResult.Jurisdiction
		metadata["tax_source"] = taxResult.Provider
	}

	txn, err := s.ledger.CreateCharge(ctx, ledger.CreateChargeInput{
		Type:          enums.TransactionTypeCharge,
		GrossCents:    input.AmountCents,
		TaxCents:      taxCents,
		Currency:      input.Currency,
		Provider:      processor.Name(),
		PaymentMethod: input.PaymentMethod,
		Metadata:      metadata,
	})
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithTransactionID(ctx, txn.TransactionID)

	if _, err := s.ledger.MarkAsProcessing(ctx, txn.TransactionID); err != nil {
		return nil, err
	}

	result, err := processor.ProcessPayment(ctx, payments.ChargeInput{
		AmountCents:           txn.GrossCents + txn.TaxCents,
		Currency:              txn.Currency,
		VendorCustomerID:      input.VendorCustomerID,
		VendorPaymentMethodID: input.VendorPaymentMethodID,
		Description:           input.Description,
		ReferenceID:           txn.TransactionID,
		Metadata:              map[string]string{"transaction_id": txn.TransactionID},
	})
	if err != nil {
		// A vendor failure is a definite outcome for the ledger row, not a
		// pending one. The decline detail rides along for reconciliation.
		s.logg.Warn(ctx, "vendor charge failed, marking transaction failed")
		failed, markErr := s.ledger.MarkAsFailed(ctx, txn.TransactionID, failureFrom(err))
		if markErr != nil {
			s.logg.Error(ctx, "failed to mark transaction failed after vendor error", markErr)
			return nil, markErr
		}
		return failed, nil
	}

	refs := models.VendorRefs{"payment_id": result.VendorPaymentID}
	switch result.Status {
	case enums.TransactionStatusSucceeded:
		settlement := ledger.SettlementInput{VendorRefs: refs, Actor: "charge_flow"}
		if result.FeeCents > 0 {
			fee := result.FeeCents
			settlement.FeeCents = &fee
		}
		return s.ledger.MarkAsSucceeded(ctx, txn.TransactionID, settlement)
	case enums.TransactionStatusFailed:
		return s.ledger.MarkAsFailed(ctx, txn.TransactionID, models.FailureInfo{
			Code:    "vendor_declined",
			Message: "vendor reported the payment as failed",
		})
	case enums.TransactionStatusCanceled:
		return s.ledger.Cancel(ctx, txn.TransactionID, "vendor reported the payment as canceled", "charge_flow")
	default:
		// Still processing or waiting on the customer; the webhook finishes
		// the row. Persist the vendor handle so the webhook can find it.
		return s.ledger.AttachVendorRefs(ctx, txn.TransactionID, refs)
	}
}

func (s *service) Refund(ctx context.Context, transactionID string, input RefundRequest) (*ledger.RefundResult, error) {
	txn, err := s.ledger.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive").
			WithDetails(map[string]any{"amount_cents": input.AmountCents})
	}
	if remaining := txn.RemainingRefundableCents(); input.AmountCents > remaining {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund exceeds refundable remainder").
			WithDetails(map[string]any{
				"amount_cents":    input.AmountCents,
				"remaining_cents": remaining,
			})
	}

	vendorPaymentID := paymentRef(txn)
	if vendorPaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "transaction has no vendor payment reference").
			WithDetails(map[string]any{"transaction_id": transactionID})
	}

	processor, err := s.factory.ByName(ctx, txn.Provider)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithProvider(ctx, string(processor.Name()))
	ctx = s.logg.WithTransactionID(ctx, transactionID)

	vendorResult, err := processor.RefundPayment(ctx, payments.RefundInput{
		VendorPaymentID: vendorPaymentID,
		AmountCents:     input.AmountCents,
		Currency:        txn.Currency,
		Reason:          input.Reason,
		ReferenceID:     transactionID,
	})
	if err != nil {
		return nil, err
	}

	return s.ledger.CreateRefund(ctx, transactionID, ledger.RefundInput{
		AmountCents:    input.AmountCents,
		Reason:         input.Reason,
		IssuedBy:       input.IssuedBy,
		VendorRefundID: vendorResult.VendorRefundID,
		Status:         vendorResult.Status,
	})
}

func (s *service) resolveProcessor(ctx context.Context, vendor enums.ProviderName) (payments.Processor, error) {
	if vendor != "" {
		return s.factory.ByName(ctx, vendor)
	}
	return s.factory.Primary(ctx)
}

// paymentRef finds the vendor payment handle regardless of which vendor
// settled the charge.
func paymentRef(txn *models.Transaction) string {
	for _, key := range []string{"payment_id", "payment_intent_id", "charge_id"} {
		if id := txn.VendorRefs[key]; id != "" {
			return id
		}
	}
	return ""
}

func failureFrom(err error) models.FailureInfo {
	failure := models.FailureInfo{Message: err.Error()}
	if typed := pkgerrors.As(err); typed != nil {
		failure.Code = string(typed.Code())
		failure.Message = typed.Message()
	}
	if code, declineCode, msg := pkgstripe.DeclineDetail(err); code != "" {
		failure.Code = code
		failure.DeclineCode = declineCode
		if msg != "" {
			failure.Message = msg
		}
	}
	return failure
}
