// internal/models/provider.go
package models

import "time"

type ProviderConfig struct {
	ID           int64             `json:"id"`
	FacilityID   int64             `json:"facilityId"`
	ProviderType string            `json:"providerType"`
	BaseURL      string            `json:"baseUrl"`
	Settings     map[string]string `json:"settings"`
	LinkTemplate string            `json:"linkTemplate"`
	Enabled      bool              `json:"enabled"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

func (c ProviderConfig) Setting(key, fallback string) string {
	if value, ok := c.Settings[key]; ok && value != "" {
		return value
	}
	return fallback
}
