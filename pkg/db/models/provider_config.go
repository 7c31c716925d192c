package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
)

// ProviderConfig is one record per (category, vendor) pair. Credential values
// are sealed before they reach this struct; plaintext never touches the row.
type ProviderConfig struct {
	ID       uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Category enums.ProviderCategory `gorm:"column:category;not null;uniqueIndex:idx_provider_category_vendor"`
	Vendor   enums.ProviderName     `gorm:"column:vendor;not null;uniqueIndex:idx_provider_category_vendor"`

	Credentials CredentialMap `gorm:"column:credentials;type:jsonb"`

	Enabled  bool `gorm:"column:enabled;not null;default:false"`
	Primary  bool `gorm:"column:is_primary;not null;default:false"`
	Priority int  `gorm:"column:priority;not null;default:0"`

	HealthStatus    enums.ProviderHealthStatus `gorm:"column:health_status;not null;default:'healthy'"`
	HealthErrorRate float64                    `gorm:"column:health_error_rate;not null;default:0"`
	LastLatencyMS   int64                      `gorm:"column:last_latency_ms;not null;default:0"`
	LastCallFailed  bool                       `gorm:"column:last_call_failed;not null;default:false"`
	LastCheckedAt   *time.Time                 `gorm:"column:last_checked_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// CredentialMap holds sealed credential values keyed by credential name.
type CredentialMap map[string]string

func (m *CredentialMap) Scan(src any) error { return scanJSONB(src, m) }
func (m CredentialMap) Value() (driver.Value, error) {
	if m == nil {
		m = CredentialMap{}
	}
	b, err := json.Marshal(m)
	return string(b), err
}
