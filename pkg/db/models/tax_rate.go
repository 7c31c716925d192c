package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
)

// TaxRate is a fallback jurisdiction rate row, consulted only when the
// primary tax provider is unreachable.
type TaxRate struct {
	ID      uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Country string              `gorm:"column:country;not null;index:idx_tax_rates_jurisdiction"`
	State   *string             `gorm:"column:state;index:idx_tax_rates_jurisdiction"`
	Rate    decimal.Decimal     `gorm:"column:rate;type:numeric(8,6);not null"`
	Type    string              `gorm:"column:type;not null;default:'sales_tax'"`
	Status  enums.TaxRateStatus `gorm:"column:status;not null;default:'active'"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
