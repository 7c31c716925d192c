package admin

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/ledgercore-backend/api/responses"
	"github.com/angelmondragon/ledgercore-backend/api/validators"
	"github.com/angelmondragon/ledgercore-backend/internal/ledger"
	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgercore-backend/pkg/errors"
	"github.com/angelmondragon/ledgercore-backend/pkg/logger"
)

type openDisputeRequest struct {
	AmountCents     int64  `json:"amount_cents" validate:"required,gt=0"`
	Reason          string `json:"reason" validate:"required"`
	VendorDisputeID string `json:"vendor_dispute_id"`
}

// OpenDispute records a dispute against a settled charge, for disputes raised
// out of band rather than through a vendor webhook.
func OpenDispute(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		transactionID, ok := transactionIDParam(w, r, logg)
		if !ok {
			return
		}
		var req openDisputeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		txn, err := svc.AddDispute(ctx, transactionID, ledger.DisputeInput{
			AmountCents:     req.AmountCents,
			Reason:          req.Reason,
			VendorDisputeID: req.VendorDisputeID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, txn)
	}
}

type resolveDisputeRequest struct {
	Status string `json:"status" validate:"required"`
}

// ResolveDispute closes an open dispute with a terminal status. A lost
// dispute deducts the disputed amount from net.
func ResolveDispute(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		transactionID, ok := transactionIDParam(w, r, logg)
		if !ok {
			return
		}
		disputeID := strings.TrimSpace(chi.URLParam(r, "disputeID"))
		if disputeID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "dispute id is required"))
			return
		}
		var req resolveDisputeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		status, err := enums.ParseDisputeStatus(req.Status)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid dispute status"))
			return
		}
		txn, err := svc.ResolveDispute(ctx, transactionID, disputeID, status)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, txn)
	}
}
