package tax

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/ledgercore-backend/pkg/db/models"
	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgercore-backend/pkg/errors"
)

// RateRepository manages the fallback tax-rate table.
type RateRepository interface {
	Create(ctx context.Context, rate *models.TaxRate) error
	Update(ctx context.Context, rate *models.TaxRate) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.TaxRate, error)
	// FindActiveRate prefers a state-scoped row and falls back to the
	// country-wide row (state IS NULL).
	FindActiveRate(ctx context.Context, country, state string) (*models.TaxRate, error)
	List(ctx context.Context, country string) ([]models.TaxRate, error)
	SetStatus(ctx context.Context, id uuid.UUID, status enums.TaxRateStatus) error
}

type rateRepository struct {
	db *gorm.DB
}

// NewRateRepository returns a tax-rate repository bound to the database.
func NewRateRepository(db *gorm.DB) RateRepository {
	return &rateRepository{db: db}
}

func (r *rateRepository) Create(ctx context.Context, rate *models.TaxRate) error {
	rate.Country = strings.ToUpper(strings.TrimSpace(rate.Country))
	if rate.State != nil {
		normalized := strings.ToUpper(strings.TrimSpace(*rate.State))
		if normalized == "" {
			rate.State = nil
		} else {
			rate.State = &normalized
		}
	}
	return r.db.WithContext(ctx).Create(rate).Error
}

func (r *rateRepository) Update(ctx context.Context, rate *models.TaxRate) error {
	return r.db.WithContext(ctx).Save(rate).Error
}

func (r *rateRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.TaxRate, error) {
	var rate models.TaxRate
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tax rate not found")
		}
		return nil, err
	}
	return &rate, nil
}

func (r *rateRepository) FindActiveRate(ctx context.Context, country, state string) (*models.TaxRate, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	state = strings.ToUpper(strings.TrimSpace(state))

	if state != "" {
		var rate models.TaxRate
		err := r.db.WithContext(ctx).
			Where("country = ? AND state = ? AND status = ?", country, state, enums.TaxRateStatusActive).
			First(&rate).Error
		if err == nil {
			return &rate, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	var rate models.TaxRate
	err := r.db.WithContext(ctx).
		Where("country = ? AND state IS NULL AND status = ?", country, enums.TaxRateStatusActive).
		First(&rate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active rate for jurisdiction").
				WithDetails(map[string]any{"country": country, "state": state})
		}
		return nil, err
	}
	return &rate, nil
}

func (r *rateRepository) List(ctx context.Context, country string) ([]models.TaxRate, error) {
	query := r.db.WithContext(ctx).Model(&models.TaxRate{})
	if country != "" {
		query = query.Where("country = ?", strings.ToUpper(strings.TrimSpace(country)))
	}
	var rates []models.TaxRate
	err := query.Order("country ASC, state ASC").Find(&rates).Error
	return rates, err
}

func (r *rateRepository) SetStatus(ctx context.Context, id uuid.UUID, status enums.TaxRateStatus) error {
	res := r.db.WithContext(ctx).
		Model(&models.TaxRate{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "tax rate not found")
	}
	return nil
}
