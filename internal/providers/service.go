package providers

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/ledgercore-backend/pkg/config"
	"github.com/angelmondragon/ledgercore-backend/pkg/db/models"
	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgercore-backend/pkg/errors"
	"github.com/angelmondragon/ledgercore-backend/pkg/logger"
	"gorm.io/gorm"
)

// Health classification thresholds on the decayed error rate.
const (
	degradedThreshold  = 0.10
	unhealthyThreshold = 0.50
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Sealer encrypts credential values before persistence.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(encoded string) (string, error)
}

// Service manages provider configuration, routing, and health tracking.
type Service interface {
	Configure(ctx context.Context, input ConfigureInput) (*models.ProviderConfig, error)
	SetEnabled(ctx context.Context, category enums.ProviderCategory, vendor enums.ProviderName, enabled bool) error
	SetPrimary(ctx context.Context, category enums.ProviderCategory, vendor enums.ProviderName) error
	Primary(ctx context.Context, category enums.ProviderCategory) (*models.ProviderConfig, error)
	Get(ctx context.Context, category enums.ProviderCategory, vendor enums.ProviderName) (*models.ProviderConfig, error)
	List(ctx context.Context, category enums.ProviderCategory) ([]models.ProviderConfig, error)
	Credentials(ctx context.Context, category enums.ProviderCategory, vendor enums.ProviderName) (map[string]string, error)
	BootstrapCredentials(ctx context.Context, category enums.ProviderCategory, vendor enums.ProviderName, seed map[string]string) (map[string]string, error)
	RecordSuccess(ctx context.Context, category enums.ProviderCategory, vendor enums.ProviderName, latency time.Duration)
	RecordFailure(ctx context.Context, category enums.ProviderCategory, vendor enums.ProviderName, latency time.Duration)
}

// ServiceParams wires the provider service dependencies.
type ServiceParams struct {
	Repo   Repository
	Tx     txRunner
	Sealer Sealer
	Logger *logger.Logger
	Config config.ProvidersConfig
}

type service struct {
	repo   Repository
	tx     txRunner
	sealer Sealer
	logg   *logger.Logger
	decay  float64
	now    func() time.Time
}

// NewService validates dependencies and returns the provider service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("providers repository required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Sealer == nil {
		return nil, errors.New("credential sealer required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	decay := params.Config.HealthErrorDecay
	if decay <= 0 || decay >= 1 {
		decay = 0.2
	}
	return &service{
		repo:   params.Repo,
		tx:     params.Tx,
		sealer: params.Sealer,
		logg:   params.Logger,
		decay:  decay,
		now:    time.Now,
	}, nil
}

// ConfigureInput registers or updates a provider. Credential values arrive in
// plaintext and are sealed before they reach the row.
type ConfigureInput struct {
	Category    enums.ProviderCategory
	Vendor      enums.ProviderName
	Credentials map[string]string
	Enabled     bool
	Priority    int
}

func (s *service) Configure(ctx context.Context, input ConfigureInput) (*models.ProviderConfig, error) {
	if !input.Category.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid provider category").
			WithDetails(map[string]any{"category": string(input.Category)})
	}
	if !input.Vendor.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown vendor").
			WithDetails(map[string]any{"vendor": string(input.Vendor)})
	}
	if len(input.Credentials) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credentials are required")
	}

	sealed := make(models.CredentialMap, len(input.Credentials))
	for name, value := range input.Credentials {
		if value == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "credential value cannot be empty").
				WithDetails(map[string]any{"credential": name})
		}
		enc, err := s.sealer.Seal(value)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sealing credential")
		}
		sealed[name] = enc
	}

	cfg := &models.ProviderConfig{
		Category:     input.Category,
		Vendor:       input.Vendor,
		Credentials:  sealed,
		Enabled:      input.Enabled,
		Priority:     input.Priority,
		HealthStatus: enums.ProviderHealthStatusHealthy,
	}
	if err := s.repo.Upsert(ctx, cfg); err != nil {
		return nil, err
	}

	ctx = s.logg.WithProvider(ctx, string(input.Vendor))
	s.logg.Info(ctx, "provider configured")
	return s.repo.Find(ctx, input.Category, input.Vendor)
}

func (s *service) SetEnabled(ctx context.Context, category enums.ProviderCategory, vendor enums.ProviderName, enabled bool) error {
	fields := map[string]any{"enabled": enabled}
	if !enabled {
		// A disabled provider cannot stay primary; routing would dead-end.
		fields["is_primary"] = false
	}
	return s.repo.UpdateFields(ctx, category, vendor, fields)
}

// SetPrimary promotes one vendor and demotes the rest of the category in a
// single database transaction.
func (s *service) SetPrimary(ctx context.Context, category enums.ProviderCategory, vendor enums.ProviderName) error {
	cfg, err := s.repo.Find(ctx, category, vendor)
	if err != nil {
		return err
	}
	if !cfg.Enabled {
		return pkgerrors.New(pkgerrors.CodeValidation, "cannot promote a disabled provider").
			WithDetails(map[string]any{"vendor": string(vendor)})
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.ClearPrimary(ctx, category); err != nil {
			return err
		}
		return repo.UpdateFields(ctx, category, vendor, map[string]any{"is_primary": true})
	})
}

// Primary resolves the provider a new operation should route to: the primary
// if one is enabled, otherwise the highest-priority enabled fallback.
func (s *service) Primary(ctx context.Context, category enums.ProviderCategory) (*models.ProviderConfig, error) {
	configs, err := s.repo.ListByCategory(ctx, category)
	if err != nil {
		return nil, err
	}
	for i := range configs {
		if configs[i].Enabled && configs[i].Primary {
			return &configs[i], nil
		}
	}
	for i := range configs {
		if configs[i].Enabled {
			return &configs[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeProviderNotConfigured, "no enabled provider for category").
		WithDetails(map[string]any{"category": string(category)})
}

func (s *service) Get(ctx context.Context, category enums.ProviderCategory, vendor enums.ProviderName) (*models.ProviderConfig, error) {
	return s.repo.Find(ctx, category, vendor)
}

func (s *service) List(ctx context.Context, category enums.ProviderCategory) ([]models.ProviderConfig, error) {
	if category == "" {
		return s.repo.List(ctx)
	}
	return s.repo.ListByCategory(ctx, category)
}

// Credentials returns the unsealed credential map for adapter construction.
// The plaintext values never leave process memory.
func (s *service) Credentials(ctx context.Context, category enums.ProviderCategory, vendor enums.ProviderName) (map[string]string, error) {
	cfg, err := s.repo.Find(ctx, category, vendor)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(cfg.Credentials))
	for name, sealed := range cfg.Credentials {
		plain, err := s.sealer.Open(sealed)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unsealing credential").
				WithDetails(map[string]any{"credential": name})
		}
		out[name] = plain
	}
	return out, nil
}

// BootstrapCredentials resolves the credentials a vendor adapter is built
// from. The sealed configuration row is the source of truth; the seed (env
// configuration) only registers the vendor on first boot and is ignored once
// a row exists.
func (s *service) BootstrapCredentials(ctx context.Context, category enums.ProviderCategory, vendor enums.ProviderName, seed map[string]string) (map[string]string, error) {
	creds, err := s.Credentials(ctx, category, vendor)
	if err == nil {
		return creds, nil
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}

	filtered := make(map[string]string, len(seed))
	for name, value := range seed {
		if value != "" {
			filtered[name] = value
		}
	}
	if len(filtered) == 0 {
		return nil, err
	}
	if _, err := s.Configure(ctx, ConfigureInput{
		Category:    category,
		Vendor:      vendor,
		Credentials: filtered,
		Enabled:     true,
	}); err != nil {
		return nil, err
	}
	return filtered, nil
}

// RecordSuccess folds a successful vendor call into the decayed error rate.
// Health writes are best-effort; a failed write never fails the caller.
func (s *service) RecordSuccess(ctx context.Context, category enums.ProviderCategory, vendor enums.ProviderName, latency time.Duration) {
	s.recordOutcome(ctx, category, vendor, latency, false)
}

// RecordFailure folds a failed vendor call into the decayed error rate.
func (s *service) RecordFailure(ctx context.Context, category enums.ProviderCategory, vendor enums.ProviderName, latency time.Duration) {
	s.recordOutcome(ctx, category, vendor, latency, true)
}

func (s *service) recordOutcome(ctx context.Context, category enums.ProviderCategory, vendor enums.ProviderName, latency time.Duration, failed bool) {
	cfg, err := s.repo.Find(ctx, category, vendor)
	if err != nil {
		s.logg.Warn(s.logg.WithProvider(ctx, string(vendor)), "health update skipped, provider config unavailable")
		return
	}

	outcome := 0.0
	if failed {
		outcome = 1.0
	}
	rate := cfg.HealthErrorRate*(1-s.decay) + outcome*s.decay
	now := s.now()

	fields := map[string]any{
		"health_error_rate": rate,
		"health_status":     string(ClassifyHealth(rate)),
		"last_latency_ms":   latency.Milliseconds(),
		"last_call_failed":  failed,
		"last_checked_at":   now,
	}
	if err := s.repo.UpdateFields(ctx, category, vendor, fields); err != nil {
		s.logg.Warn(s.logg.WithProvider(ctx, string(vendor)), "health update write failed")
	}
}

// ClassifyHealth maps a decayed error rate to the health enum.
func ClassifyHealth(errorRate float64) enums.ProviderHealthStatus {
	switch {
	case errorRate >= unhealthyThreshold:
		return enums.ProviderHealthStatusUnhealthy
	case errorRate >= degradedThreshold:
		return enums.ProviderHealthStatusDegraded
	default:
		return enums.ProviderHealthStatusHealthy
	}
}
