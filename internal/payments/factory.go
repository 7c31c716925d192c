package payments

import (
	"context"
	"errors"

	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgercore-backend/pkg/errors"
)

// ProviderResolver answers which vendor is configured for a category.
type ProviderResolver interface {
	PrimaryVendor(ctx context.Context, category enums.ProviderCategory) (enums.ProviderName, error)
	IsEnabled(ctx context.Context, category enums.ProviderCategory, vendor enums.ProviderName) (bool, error)
}

// Factory hands out the processor for an explicit vendor or for the payment
// category's configured primary.
type Factory struct {
	processors map[enums.ProviderName]Processor
	resolver   ProviderResolver
}

// NewFactory registers the available processors. A vendor whose client was
// never initialized simply stays unregistered.
func NewFactory(resolver ProviderResolver, processors ...Processor) (*Factory, error) {
	if resolver == nil {
		return nil, errors.New("provider resolver required")
	}
	registry := make(map[enums.ProviderName]Processor, len(processors))
	for _, p := range processors {
		if p == nil {
			continue
		}
		registry[p.Name()] = p
	}
	return &Factory{processors: registry, resolver: resolver}, nil
}

// ByName returns the processor for an explicit vendor, enforcing that an
// enabled configuration exists.
func (f *Factory) ByName(ctx context.Context, vendor enums.ProviderName) (Processor, error) {
	if !vendor.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown vendor").
			WithDetails(map[string]any{"vendor": string(vendor)})
	}
	enabled, err := f.resolver.IsEnabled(ctx, enums.ProviderCategoryPayment, vendor)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, notConfigured(vendor)
	}
	proc, ok := f.processors[vendor]
	if !ok {
		return nil, notConfigured(vendor)
	}
	return proc, nil
}

// Primary returns the processor for the payment category's configured
// primary. Health never reroutes here; primary selection is admin policy.
func (f *Factory) Primary(ctx context.Context) (Processor, error) {
	vendor, err := f.resolver.PrimaryVendor(ctx, enums.ProviderCategoryPayment)
	if err != nil {
		return nil, err
	}
	proc, ok := f.processors[vendor]
	if !ok {
		return nil, notConfigured(vendor)
	}
	return proc, nil
}

func notConfigured(vendor enums.ProviderName) error {
	return pkgerrors.New(pkgerrors.CodeProviderNotConfigured, "payment provider not configured").
		WithDetails(map[string]any{"vendor": string(vendor)})
}
