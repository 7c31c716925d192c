package admin

import (
	"net/http"

	"github.com/angelmondragon/ledgercore-backend/api/middleware"
	"github.com/angelmondragon/ledgercore-backend/api/responses"
	"github.com/angelmondragon/ledgercore-backend/api/validators"
	"github.com/angelmondragon/ledgercore-backend/internal/charges"
	"github.com/angelmondragon/ledgercore-backend/internal/tax"
	"github.com/angelmondragon/ledgercore-backend/pkg/db/models"
	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgercore-backend/pkg/errors"
	"github.com/angelmondragon/ledgercore-backend/pkg/logger"
)

type billingAddressRequest struct {
	Country    string `json:"country" validate:"required,len=2"`
	State      string `json:"state"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Line1      string `json:"line1"`
}

type createChargeRequest struct {
	AmountCents           int64                  `json:"amount_cents" validate:"required,gt=0"`
	Currency              string                 `json:"currency" validate:"required"`
	Vendor                string                 `json:"vendor"`
	VendorCustomerID      string                 `json:"vendor_customer_id"`
	VendorPaymentMethodID string                 `json:"vendor_payment_method_id" validate:"required"`
	Description           string                 `json:"description"`
	PaymentMethodType     string                 `json:"payment_method_type" validate:"required"`
	PaymentMethodLabel    string                 `json:"payment_method_label"`
	BillingAddress        *billingAddressRequest `json:"billing_address"`
	Metadata              map[string]string      `json:"metadata"`
}

// CreateCharge runs the full charge flow: tax, vendor call, ledger record.
func CreateCharge(svc charges.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req createChargeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		currency, err := enums.ParseCurrency(req.Currency)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency"))
			return
		}
		methodType, err := enums.ParsePaymentMethodType(req.PaymentMethodType)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method type"))
			return
		}

		input := charges.ChargeRequest{
			AmountCents:           req.AmountCents,
			Currency:              currency,
			VendorCustomerID:      req.VendorCustomerID,
			VendorPaymentMethodID: req.VendorPaymentMethodID,
			Description:           req.Description,
			PaymentMethod: models.PaymentMethod{
				Type:  methodType,
				Label: req.PaymentMethodLabel,
			},
			Metadata: models.MetadataMap(req.Metadata),
		}
		if req.Vendor != "" {
			vendor, err := enums.ParseProviderName(req.Vendor)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vendor"))
				return
			}
			input.Vendor = vendor
		}
		if req.BillingAddress != nil {
			input.BillingAddress = &tax.Address{
				Country:    req.BillingAddress.Country,
				State:      req.BillingAddress.State,
				City:       req.BillingAddress.City,
				PostalCode: req.BillingAddress.PostalCode,
				Line1:      req.BillingAddress.Line1,
			}
		}

		txn, err := svc.Charge(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, txn)
	}
}

type createRefundRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"required,gt=0"`
	Reason      string `json:"reason" validate:"required"`
}

// CreateRefund reverses part or all of a settled charge at the vendor, then
// records the refund against the ledger row.
func CreateRefund(svc charges.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		transactionID, ok := transactionIDParam(w, r, logg)
		if !ok {
			return
		}
		var req createRefundRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.Refund(ctx, transactionID, charges.RefundRequest{
			AmountCents: req.AmountCents,
			Reason:      req.Reason,
			IssuedBy:    middleware.ActorFromContext(ctx),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
