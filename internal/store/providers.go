package store

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/codr1/courtbook/internal/models"
)

var providerColumns = []string{
	"id", "facility_id", "provider_type", "base_url", "settings", "link_template", "enabled", "updated_at",
}

func scanProviderConfig(row scanner) (models.ProviderConfig, error) {
	var c models.ProviderConfig
	var settings string
	if err := row.Scan(&c.ID, &c.FacilityID, &c.ProviderType, &c.BaseURL, &settings, &c.LinkTemplate, &c.Enabled, &c.UpdatedAt); err != nil {
		return models.ProviderConfig{}, err
	}
	if settings != "" {
		if err := json.Unmarshal([]byte(settings), &c.Settings); err != nil {
			return models.ProviderConfig{}, fmt.Errorf("decode provider settings: %w", err)
		}
	}
	return c, nil
}

func encodeSettings(settings map[string]string) (string, error) {
	if settings == nil {
		settings = map[string]string{}
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("encode provider settings: %w", err)
	}
	return string(data), nil
}

func (s *Store) CreateProviderConfig(ctx context.Context, c models.ProviderConfig) (models.ProviderConfig, error) {
	settings, err := encodeSettings(c.Settings)
	if err != nil {
		return models.ProviderConfig{}, err
	}
	c.UpdatedAt = s.now()
	id, err := s.insertReturningID(ctx, s.sql().Insert("provider_configs").
		Columns("facility_id", "provider_type", "base_url", "settings", "link_template", "enabled", "updated_at").
		Values(c.FacilityID, c.ProviderType, c.BaseURL, settings, c.LinkTemplate, c.Enabled, c.UpdatedAt))
	if err != nil {
		return models.ProviderConfig{}, fmt.Errorf("insert provider config: %w", err)
	}
	c.ID = id
	return c, nil
}

func (s *Store) GetProviderConfig(ctx context.Context, id int64) (models.ProviderConfig, error) {
	row, err := s.queryRow(ctx, s.sql().Select(providerColumns...).From("provider_configs").Where(sq.Eq{"id": id}))
	if err != nil {
		return models.ProviderConfig{}, err
	}
	c, err := scanProviderConfig(row)
	if err != nil {
		return models.ProviderConfig{}, fmt.Errorf("get provider config %d: %w", id, notFound(err))
	}
	return c, nil
}

// ListProviderConfigs returns the enabled provider configs of a facility.
func (s *Store) ListProviderConfigs(ctx context.Context, facilityID int64) ([]models.ProviderConfig, error) {
	rows, err := s.query(ctx, s.sql().Select(providerColumns...).
		From("provider_configs").
		Where(sq.Eq{"facility_id": facilityID, "enabled": true}).
		OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("list provider configs: %w", err)
	}
	defer rows.Close()

	var configs []models.ProviderConfig
	for rows.Next() {
		c, err := scanProviderConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provider config: %w", err)
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

func (s *Store) UpdateProviderConfig(ctx context.Context, c models.ProviderConfig) (models.ProviderConfig, error) {
	settings, err := encodeSettings(c.Settings)
	if err != nil {
		return models.ProviderConfig{}, err
	}
	c.UpdatedAt = s.now()
	res, err := s.exec(ctx, s.sql().Update("provider_configs").
		Set("provider_type", c.ProviderType).
		Set("base_url", c.BaseURL).
		Set("settings", settings).
		Set("link_template", c.LinkTemplate).
		Set("enabled", c.Enabled).
		Set("updated_at", c.UpdatedAt).
		Where(sq.Eq{"id": c.ID}))
	if err != nil {
		return models.ProviderConfig{}, fmt.Errorf("update provider config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ProviderConfig{}, fmt.Errorf("update provider config %d: %w", c.ID, ErrNotFound)
	}
	return s.GetProviderConfig(ctx, c.ID)
}
