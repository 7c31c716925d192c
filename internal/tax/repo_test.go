package tax

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/ledgercore-backend/pkg/db/models"
	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgercore-backend/pkg/errors"
)

func setupTaxTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS tax_rates (
  id TEXT PRIMARY KEY,
  country TEXT NOT NULL,
  state TEXT,
  rate NUMERIC NOT NULL,
  type TEXT NOT NULL DEFAULT 'sales_tax',
  status TEXT NOT NULL DEFAULT 'active',
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func newRate(country string, state *string, rate string, status enums.TaxRateStatus) *models.TaxRate {
	return &models.TaxRate{
		ID:      uuid.New(),
		Country: country,
		State:   state,
		Rate:    decimal.RequireFromString(rate),
		Type:    "sales_tax",
		Status:  status,
	}
}

func strPtr(s string) *string { return &s }

func TestCreateNormalizesJurisdiction(t *testing.T) {
	repo := NewRateRepository(setupTaxTestDB(t))
	ctx := context.Background()

	rate := newRate(" us ", strPtr(" ca "), "0.0825", enums.TaxRateStatusActive)
	require.NoError(t, repo.Create(ctx, rate))

	stored, err := repo.FindByID(ctx, rate.ID)
	require.NoError(t, err)
	assert.Equal(t, "US", stored.Country)
	require.NotNil(t, stored.State)
	assert.Equal(t, "CA", *stored.State)
}

func TestCreateTreatsBlankStateAsCountryWide(t *testing.T) {
	repo := NewRateRepository(setupTaxTestDB(t))
	ctx := context.Background()

	rate := newRate("US", strPtr("  "), "0.05", enums.TaxRateStatusActive)
	require.NoError(t, repo.Create(ctx, rate))

	stored, err := repo.FindByID(ctx, rate.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.State)
}

func TestFindByIDNotFound(t *testing.T) {
	repo := NewRateRepository(setupTaxTestDB(t))

	_, err := repo.FindByID(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestFindActiveRatePrefersStateRow(t *testing.T) {
	repo := NewRateRepository(setupTaxTestDB(t))
	ctx := context.Background()

	countryWide := newRate("US", nil, "0.05", enums.TaxRateStatusActive)
	stateScoped := newRate("US", strPtr("CA"), "0.0825", enums.TaxRateStatusActive)
	require.NoError(t, repo.Create(ctx, countryWide))
	require.NoError(t, repo.Create(ctx, stateScoped))

	found, err := repo.FindActiveRate(ctx, "us", "ca")
	require.NoError(t, err)
	assert.Equal(t, stateScoped.ID, found.ID)
	assert.True(t, found.Rate.Equal(decimal.RequireFromString("0.0825")))
}

func TestFindActiveRateFallsBackToCountryRow(t *testing.T) {
	repo := NewRateRepository(setupTaxTestDB(t))
	ctx := context.Background()

	countryWide := newRate("US", nil, "0.05", enums.TaxRateStatusActive)
	require.NoError(t, repo.Create(ctx, countryWide))

	found, err := repo.FindActiveRate(ctx, "US", "NY")
	require.NoError(t, err)
	assert.Equal(t, countryWide.ID, found.ID)
}

func TestFindActiveRateSkipsInactiveRows(t *testing.T) {
	repo := NewRateRepository(setupTaxTestDB(t))
	ctx := context.Background()

	retired := newRate("US", strPtr("CA"), "0.09", enums.TaxRateStatusInactive)
	require.NoError(t, repo.Create(ctx, retired))

	_, err := repo.FindActiveRate(ctx, "US", "CA")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestSetStatusDeactivatesRate(t *testing.T) {
	repo := NewRateRepository(setupTaxTestDB(t))
	ctx := context.Background()

	rate := newRate("US", strPtr("CA"), "0.0825", enums.TaxRateStatusActive)
	require.NoError(t, repo.Create(ctx, rate))

	require.NoError(t, repo.SetStatus(ctx, rate.ID, enums.TaxRateStatusInactive))

	stored, err := repo.FindByID(ctx, rate.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TaxRateStatusInactive, stored.Status)

	err = repo.SetStatus(ctx, uuid.New(), enums.TaxRateStatusInactive)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestListFiltersByCountry(t *testing.T) {
	repo := NewRateRepository(setupTaxTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newRate("US", strPtr("CA"), "0.0825", enums.TaxRateStatusActive)))
	require.NoError(t, repo.Create(ctx, newRate("US", nil, "0.05", enums.TaxRateStatusActive)))
	require.NoError(t, repo.Create(ctx, newRate("CA", nil, "0.13", enums.TaxRateStatusActive)))

	usRates, err := repo.List(ctx, "us")
	require.NoError(t, err)
	assert.Len(t, usRates, 2)

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
