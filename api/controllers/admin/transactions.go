package admin

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/ledgercore-backend/api/middleware"
	"github.com/angelmondragon/ledgercore-backend/api/responses"
	"github.com/angelmondragon/ledgercore-backend/api/validators"
	"github.com/angelmondragon/ledgercore-backend/internal/ledger"
	"github.com/angelmondragon/ledgercore-backend/pkg/db/models"
	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgercore-backend/pkg/errors"
	"github.com/angelmondragon/ledgercore-backend/pkg/logger"
)

const maxListLimit = 200

// ListTransactions returns the filtered ledger listing for back-office
// reconciliation.
func ListTransactions(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, maxListLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1_000_000)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		filter := ledger.ListFilter{Limit: limit, Offset: offset}
		if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
			parsed, err := enums.ParseTransactionType(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid type filter"))
				return
			}
			filter.Type = parsed
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParseTransactionStatus(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filter.Status = parsed
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("provider")); raw != "" {
			parsed, err := enums.ParseProviderName(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid provider filter"))
				return
			}
			filter.Provider = parsed
		}

		txns, err := svc.List(ctx, filter)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, txns)
	}
}

// GetTransaction returns one ledger row by its external id.
func GetTransaction(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		transactionID, ok := transactionIDParam(w, r, logg)
		if !ok {
			return
		}
		txn, err := svc.GetByTransactionID(ctx, transactionID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, txn)
	}
}

type settleTransactionRequest struct {
	VendorRefs map[string]string `json:"vendor_refs"`
	FeeCents   *int64            `json:"fee_cents" validate:"omitempty,min=0"`
}

// SettleTransaction manually confirms a charge, for reconciliation when the
// vendor confirmation never arrived as a webhook.
func SettleTransaction(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		transactionID, ok := transactionIDParam(w, r, logg)
		if !ok {
			return
		}
		var req settleTransactionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		txn, err := svc.MarkAsSucceeded(ctx, transactionID, ledger.SettlementInput{
			VendorRefs: models.VendorRefs(req.VendorRefs),
			FeeCents:   req.FeeCents,
			Actor:      middleware.ActorFromContext(ctx),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, txn)
	}
}

type failTransactionRequest struct {
	Code    string `json:"code"`
	Message string `json:"message" validate:"required"`
}

// FailTransaction manually marks a charge failed.
func FailTransaction(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		transactionID, ok := transactionIDParam(w, r, logg)
		if !ok {
			return
		}
		var req failTransactionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		txn, err := svc.MarkAsFailed(ctx, transactionID, models.FailureInfo{
			Code:    req.Code,
			Message: req.Message,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, txn)
	}
}

type cancelTransactionRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// CancelTransaction cancels a pending charge.
func CancelTransaction(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		transactionID, ok := transactionIDParam(w, r, logg)
		if !ok {
			return
		}
		var req cancelTransactionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		txn, err := svc.Cancel(ctx, transactionID, req.Reason, middleware.ActorFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, txn)
	}
}

type updateTaxRequest struct {
	TaxCents     int64  `json:"tax_cents" validate:"min=0"`
	Provider     string `json:"provider,omitempty"`
	Rate         string `json:"rate,omitempty"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
	IsDefault    bool   `json:"is_default,omitempty"`
}

// UpdateTransactionTax retroactively corrects a charge's tax, typically after
// a fallback-rate settlement once the authoritative figure is known.
func UpdateTransactionTax(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		transactionID, ok := transactionIDParam(w, r, logg)
		if !ok {
			return
		}
		var req updateTaxRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		txn, err := svc.UpdateTransactionWithTax(ctx, transactionID, ledger.TaxUpdateInput{
			TaxCents:     req.TaxCents,
			Provider:     req.Provider,
			Rate:         req.Rate,
			Jurisdiction: req.Jurisdiction,
			IsDefault:    req.IsDefault,
			Actor:        middleware.ActorFromContext(ctx),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, txn)
	}
}

func transactionIDParam(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (string, bool) {
	transactionID := strings.TrimSpace(chi.URLParam(r, "transactionID"))
	if transactionID == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required"))
		return "", false
	}
	return transactionID, true
}
