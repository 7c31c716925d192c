package admin

import (
	"net/http"
	"time"

	"github.com/angelmondragon/ledgercore-backend/api/responses"
	"github.com/angelmondragon/ledgercore-backend/api/validators"
	"github.com/angelmondragon/ledgercore-backend/internal/ledger"
	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgercore-backend/pkg/errors"
	"github.com/angelmondragon/ledgercore-backend/pkg/logger"
)

type updatePayoutRequest struct {
	Status         string     `json:"status" validate:"required"`
	VendorPayoutID string     `json:"vendor_payout_id"`
	ArrivalDate    *time.Time `json:"arrival_date"`
	FailureMessage string     `json:"failure_message"`
}

// UpdatePayout advances the payout status of a payout-type transaction, for
// manual reconciliation against the vendor's payout report.
func UpdatePayout(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		transactionID, ok := transactionIDParam(w, r, logg)
		if !ok {
			return
		}
		var req updatePayoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		status, err := enums.ParsePayoutStatus(req.Status)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payout status"))
			return
		}
		txn, err := svc.UpdatePayoutStatus(ctx, transactionID, ledger.PayoutUpdateInput{
			Status:         status,
			VendorPayoutID: req.VendorPayoutID,
			ArrivalDate:    req.ArrivalDate,
			FailureMessage: req.FailureMessage,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, txn)
	}
}
