package providers

import (
	"context"

	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgercore-backend/pkg/errors"
)

// Resolver adapts the provider service to the routing questions the payment
// factory asks.
type Resolver struct {
	svc Service
}

// NewResolver wraps the provider service for factory consumption.
func NewResolver(svc Service) *Resolver {
	return &Resolver{svc: svc}
}

// PrimaryVendor names the vendor new operations in the category route to.
func (r *Resolver) PrimaryVendor(ctx context.Context, category enums.ProviderCategory) (enums.ProviderName, error) {
	cfg, err := r.svc.Primary(ctx, category)
	if err != nil {
		return "", err
	}
	return cfg.Vendor, nil
}

// IsEnabled reports whether an enabled configuration exists for the vendor.
func (r *Resolver) IsEnabled(ctx context.Context, category enums.ProviderCategory, vendor enums.ProviderName) (bool, error) {
	cfg, err := r.svc.Get(ctx, category, vendor)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return cfg.Enabled, nil
}
