package providers

import (
	"context"
	"errors"

	"github.com/angelmondragon/ledgercore-backend/pkg/db/models"
	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgercore-backend/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository manages provider configuration rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Upsert(ctx context.Context, cfg *models.ProviderConfig) error
	Find(ctx context.Context, category enums.ProviderCategory, vendor enums.ProviderName) (*models.ProviderConfig, error)
	ListByCategory(ctx context.Context, category enums.ProviderCategory) ([]models.ProviderConfig, error)
	List(ctx context.Context) ([]models.ProviderConfig, error)
	ClearPrimary(ctx context.Context, category enums.ProviderCategory) error
	UpdateFields(ctx context.Context, category enums.ProviderCategory, vendor enums.ProviderName, fields map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a provider-config repository bound to the database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Upsert(ctx context.Context, cfg *models.ProviderConfig) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "category"}, {Name: "vendor"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"credentials", "enabled", "priority", "updated_at",
			}),
		}).
		Create(cfg).Error
}

func (r *repository) Find(ctx context.Context, category enums.ProviderCategory, vendor enums.ProviderName) (*models.ProviderConfig, error) {
	var cfg models.ProviderConfig
	err := r.db.WithContext(ctx).
		Where("category = ? AND vendor = ?", category, vendor).
		First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider config not found").
				WithDetails(map[string]any{
					"category": string(category),
					"vendor":   string(vendor),
				})
		}
		return nil, err
	}
	return &cfg, nil
}

func (r *repository) ListByCategory(ctx context.Context, category enums.ProviderCategory) ([]models.ProviderConfig, error) {
	var configs []models.ProviderConfig
	err := r.db.WithContext(ctx).
		Where("category = ?", category).
		Order("is_primary DESC, priority DESC, vendor ASC").
		Find(&configs).Error
	return configs, err
}

func (r *repository) List(ctx context.Context) ([]models.ProviderConfig, error) {
	var configs []models.ProviderConfig
	err := r.db.WithContext(ctx).
		Order("category ASC, is_primary DESC, priority DESC").
		Find(&configs).Error
	return configs, err
}

func (r *repository) ClearPrimary(ctx context.Context, category enums.ProviderCategory) error {
	return r.db.WithContext(ctx).
		Model(&models.ProviderConfig{}).
		Where("category = ? AND is_primary = ?", category, true).
		Update("is_primary", false).Error
}

func (r *repository) UpdateFields(ctx context.Context, category enums.ProviderCategory, vendor enums.ProviderName, fields map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&models.ProviderConfig{}).
		Where("category = ? AND vendor = ?", category, vendor).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "provider config not found").
			WithDetails(map[string]any{
				"category": string(category),
				"vendor":   string(vendor),
			})
	}
	return nil
}
