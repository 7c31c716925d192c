package tax

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/angelmondragon/ledgercore-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/ledgercore-backend/pkg/errors"
	"github.com/angelmondragon/ledgercore-backend/pkg/logger"
	"github.com/angelmondragon/ledgercore-backend/pkg/money"
)

// Engine computes tax through the vendor provider with a fallback chain:
// provider → rates table → built-in defaults → zero. The fallback path never
// returns an error; availability beats precision because an under-taxed
// charge can be corrected retroactively, a blocked charge cannot.
type Engine struct {
	provider Provider
	rates    RateRepository
	logg     *logger.Logger
	timeout  time.Duration
}

// EngineParams wires the tax engine dependencies. Provider may be nil when
// no tax vendor is configured; the engine then starts at the table.
type EngineParams struct {
	Provider Provider
	Rates    RateRepository
	Logger   *logger.Logger
	Config   config.TaxConfig
}

// NewEngine validates dependencies and returns the tax engine.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.Rates == nil {
		return nil, errors.New("tax rate repository required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	timeout := params.Config.ProviderTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Engine{
		provider: params.Provider,
		rates:    params.Rates,
		logg:     params.Logger,
		timeout:  timeout,
	}, nil
}

// Calculate returns a usable (possibly zero) tax amount for every valid
// input. Only malformed input errors; infrastructure trouble falls back.
func (e *Engine) Calculate(ctx context.Context, input Input) (*Result, error) {
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive").
			WithDetails(map[string]any{"amount_cents": input.AmountCents})
	}
	if input.Address.Country == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "billing country is required")
	}

	var fallbackCause error
	if e.provider != nil {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		result, err := e.provider.Calculate(callCtx, input)
		cancel()
		if err == nil {
			return result, nil
		}
		fallbackCause = err
	}

	result := e.fallback(ctx, input, fallbackCause)
	return result, nil
}

// fallback resolves a rate from the table, then the defaults, then zero.
func (e *Engine) fallback(ctx context.Context, input Input, cause error) *Result {
	country, state := input.Address.Country, input.Address.State

	if row, err := e.rates.FindActiveRate(ctx, country, state); err == nil {
		jurisdiction := row.Country
		if row.State != nil {
			jurisdiction = jurisdictionLabel(row.Country, *row.State)
		}
		return e.buildFallbackResult(ctx, input, row.Rate, jurisdiction, "fallback_table", cause)
	} else if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		cause = multierr.Append(cause, err)
	}

	if rate, ok := defaultRate(country, state); ok {
		return e.buildFallbackResult(ctx, input, rate, jurisdictionLabel(country, state), "default_table", cause)
	}

	return e.buildFallbackResult(ctx, input, decimal.Zero, jurisdictionLabel(country, state), "zero", cause)
}

func (e *Engine) buildFallbackResult(ctx context.Context, input Input, rate decimal.Decimal, jurisdiction, source string, cause error) *Result {
	if cause != nil {
		ctx = e.logg.WithFields(ctx, map[string]any{
			"jurisdiction":    jurisdiction,
			"fallback_source": source,
		})
		e.logg.Warn(ctx, "tax provider unavailable, using fallback rate")
		e.logg.Error(ctx, "tax provider error detail", cause)
	}

	taxCents := money.TaxFor(input.AmountCents, rate)
	return &Result{
		OriginalAmountCents: input.AmountCents,
		TaxAmountCents:      taxCents,
		TotalAmountCents:    input.AmountCents + taxCents,
		Rate:                rate,
		Jurisdiction:        jurisdiction,
		Provider:            source,
		IsDefault:           true,
	}
}
