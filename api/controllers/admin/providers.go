package admin

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/ledgercore-backend/api/responses"
	"github.com/angelmondragon/ledgercore-backend/api/validators"
	"github.com/angelmondragon/ledgercore-backend/internal/providers"
	"github.com/angelmondragon/ledgercore-backend/pkg/db/models"
	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgercore-backend/pkg/errors"
	"github.com/angelmondragon/ledgercore-backend/pkg/logger"
)

// providerView is the API projection of a provider config. Credentials stay
// sealed in the row and never leave the service.
type providerView struct {
	Category        enums.ProviderCategory     `json:"category"`
	Vendor          enums.ProviderName         `json:"vendor"`
	Enabled         bool                       `json:"enabled"`
	Primary         bool                       `json:"primary"`
	Priority        int                        `json:"priority"`
	HealthStatus    enums.ProviderHealthStatus `json:"health_status"`
	HealthErrorRate float64                    `json:"health_error_rate"`
	LastLatencyMS   int64                      `json:"last_latency_ms"`
	LastCallFailed  bool                       `json:"last_call_failed"`
	LastCheckedAt   *time.Time                 `json:"last_checked_at,omitempty"`
	CredentialKeys  []string                   `json:"credential_keys"`
	UpdatedAt       time.Time                  `json:"updated_at"`
}

func viewOf(cfg *models.ProviderConfig) providerView {
	keys := make([]string, 0, len(cfg.Credentials))
	for k := range cfg.Credentials {
		keys = append(keys, k)
	}
	return providerView{
		Category:        cfg.Category,
		Vendor:          cfg.Vendor,
		Enabled:         cfg.Enabled,
		Primary:         cfg.Primary,
		Priority:        cfg.Priority,
		HealthStatus:    cfg.HealthStatus,
		HealthErrorRate: cfg.HealthErrorRate,
		LastLatencyMS:   cfg.LastLatencyMS,
		LastCallFailed:  cfg.LastCallFailed,
		LastCheckedAt:   cfg.LastCheckedAt,
		CredentialKeys:  keys,
		UpdatedAt:       cfg.UpdatedAt,
	}
}

// ListProviders returns the configured providers for a category, without
// credential material.
func ListProviders(svc providers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		category, ok := categoryQuery(w, r, logg)
		if !ok {
			return
		}
		configs, err := svc.List(ctx, category)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		views := make([]providerView, 0, len(configs))
		for i := range configs {
			views = append(views, viewOf(&configs[i]))
		}
		responses.WriteSuccess(w, views)
	}
}

type configureProviderRequest struct {
	Category    string            `json:"category" validate:"required"`
	Vendor      string            `json:"vendor" validate:"required"`
	Credentials map[string]string `json:"credentials" validate:"required,min=1"`
	Enabled     bool              `json:"enabled"`
	Priority    int               `json:"priority" validate:"min=0"`
}

// ConfigureProvider registers or replaces a provider's credentials and
// routing settings. The response never echoes the submitted secrets.
func ConfigureProvider(svc providers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req configureProviderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		category, err := enums.ParseProviderCategory(req.Category)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category"))
			return
		}
		vendor, err := enums.ParseProviderName(req.Vendor)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vendor"))
			return
		}
		cfg, err := svc.Configure(ctx, providers.ConfigureInput{
			Category:    category,
			Vendor:      vendor,
			Credentials: req.Credentials,
			Enabled:     req.Enabled,
			Priority:    req.Priority,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, viewOf(cfg))
	}
}

type setProviderEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// SetProviderEnabled toggles a provider in or out of the routing pool.
func SetProviderEnabled(svc providers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		category, vendor, ok := providerParams(w, r, logg)
		if !ok {
			return
		}
		var req setProviderEnabledRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := svc.SetEnabled(ctx, category, vendor, req.Enabled); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		cfg, err := svc.Get(ctx, category, vendor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, viewOf(cfg))
	}
}

// SetPrimaryProvider promotes a vendor to primary for its category. The
// service demotes the previous primary in the same transaction.
func SetPrimaryProvider(svc providers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		category, vendor, ok := providerParams(w, r, logg)
		if !ok {
			return
		}
		if err := svc.SetPrimary(ctx, category, vendor); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		cfg, err := svc.Get(ctx, category, vendor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, viewOf(cfg))
	}
}

func categoryQuery(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (enums.ProviderCategory, bool) {
	raw := r.URL.Query().Get("category")
	if raw == "" {
		raw = string(enums.ProviderCategoryPayment)
	}
	category, err := enums.ParseProviderCategory(raw)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category"))
		return "", false
	}
	return category, true
}

func providerParams(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (enums.ProviderCategory, enums.ProviderName, bool) {
	category, err := enums.ParseProviderCategory(chi.URLParam(r, "category"))
	if err != nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category"))
		return "", "", false
	}
	vendor, err := enums.ParseProviderName(chi.URLParam(r, "vendor"))
	if err != nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vendor"))
		return "", "", false
	}
	return category, vendor, true
}
