package enums

import "fmt"

// ProviderHealthStatus classifies a provider's rolling health.
type ProviderHealthStatus string

const (
	ProviderHealthStatusHealthy   ProviderHealthStatus = "healthy"
	ProviderHealthStatusDegraded  ProviderHealthStatus = "degraded"
	ProviderHealthStatusUnhealthy ProviderHealthStatus = "unhealthy"
)

var validProviderHealthStatuses = []ProviderHealthStatus{
	ProviderHealthStatusHealthy,
	ProviderHealthStatusDegraded,
	ProviderHealthStatusUnhealthy,
}

// IsValid reports whether the value matches the canonical provider health enum.
func (p ProviderHealthStatus) IsValid() bool {
	for _, candidate := range validProviderHealthStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProviderHealthStatus converts the raw string to ProviderHealthStatus.
func ParseProviderHealthStatus(value string) (ProviderHealthStatus, error) {
	for _, candidate := range validProviderHealthStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid provider health status %q", value)
}
