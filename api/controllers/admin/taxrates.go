package admin

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ledgercore-backend/api/responses"
	"github.com/angelmondragon/ledgercore-backend/api/validators"
	"github.com/angelmondragon/ledgercore-backend/internal/tax"
	"github.com/angelmondragon/ledgercore-backend/pkg/db/models"
	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgercore-backend/pkg/errors"
	"github.com/angelmondragon/ledgercore-backend/pkg/logger"
)

// ListTaxRates returns the configured rates, optionally scoped to a country.
func ListTaxRates(repo tax.RateRepository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		country := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("country")))
		rates, err := repo.List(ctx, country)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, rates)
	}
}

type createTaxRateRequest struct {
	Country string `json:"country" validate:"required,len=2"`
	State   string `json:"state"`
	Rate    string `json:"rate" validate:"required"`
	Type    string `json:"type"`
}

// CreateTaxRate registers a fallback jurisdiction rate used when the external
// tax provider is unavailable.
func CreateTaxRate(repo tax.RateRepository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req createTaxRateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		rate, err := decimal.NewFromString(req.Rate)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid rate"))
			return
		}
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "rate must be between 0 and 1"))
			return
		}

		row := &models.TaxRate{
			Country: strings.ToUpper(req.Country),
			Rate:    rate,
			Type:    req.Type,
			Status:  enums.TaxRateStatusActive,
		}
		if row.Type == "" {
			row.Type = "sales_tax"
		}
		if state := strings.ToUpper(strings.TrimSpace(req.State)); state != "" {
			row.State = &state
		}

		if err := repo.Create(ctx, row); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, row)
	}
}

type setTaxRateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// SetTaxRateStatus activates or retires a rate without deleting its history.
func SetTaxRateStatus(repo tax.RateRepository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rateID, err := uuid.Parse(chi.URLParam(r, "rateID"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid rate id"))
			return
		}
		var req setTaxRateStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		status, err := enums.ParseTaxRateStatus(req.Status)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}
		if err := repo.SetStatus(ctx, rateID, status); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		rate, err := repo.FindByID(ctx, rateID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, rate)
	}
}
