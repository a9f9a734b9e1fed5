package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/codr1/courtbook/internal/models"
)

// GetCancellationPolicy falls back to the default policy when the
// organization has none.
func (s *Store) GetCancellationPolicy(ctx context.Context, organizationID int64) (models.CancellationPolicy, error) {
	row, err := s.queryRow(ctx, s.sql().
		Select("free_cancellation_hours", "partial_refund_hours", "partial_refund_percent", "no_refund_hours").
		From("cancellation_policies").
		Where(sq.Eq{"organization_id": organizationID}))
	if err != nil {
		return models.CancellationPolicy{}, err
	}
	p := models.CancellationPolicy{OrganizationID: organizationID}
	err = row.Scan(&p.FreeCancellationHours, &p.PartialRefundHours, &p.PartialRefundPercent, &p.NoRefundHours)
	if errors.Is(err, sql.ErrNoRows) {
		p = models.DefaultCancellationPolicy()
		p.OrganizationID = organizationID
		return p, nil
	}
	if err != nil {
		return models.CancellationPolicy{}, fmt.Errorf("get cancellation policy: %w", err)
	}
	return p, nil
}

func (s *Store) UpsertCancellationPolicy(ctx context.Context, p models.CancellationPolicy) error {
	_, err := s.exec(ctx, s.sql().Insert("cancellation_policies").
		Columns("organization_id", "free_cancellation_hours", "partial_refund_hours", "partial_refund_percent", "no_refund_hours").
		Values(p.OrganizationID, p.FreeCancellationHours, p.PartialRefundHours, p.PartialRefundPercent, p.NoRefundHours).
		Suffix(`ON CONFLICT (organization_id) DO UPDATE SET
			free_cancellation_hours = excluded.free_cancellation_hours,
			partial_refund_hours = excluded.partial_refund_hours,
			partial_refund_percent = excluded.partial_refund_percent,
			no_refund_hours = excluded.no_refund_hours`))
	if err != nil {
		return fmt.Errorf("upsert cancellation policy: %w", err)
	}
	return nil
}

// GetOrganizationSettings falls back to DefaultOrganizationSettings when no row exists.
func (s *Store) GetOrganizationSettings(ctx context.Context, organizationID int64) (models.OrganizationSettings, error) {
	row, err := s.queryRow(ctx, s.sql().
		Select("same_day_booking_enabled", "min_notice_hours", "max_advance_days", "requires_approval").
		From("organization_settings").
		Where(sq.Eq{"organization_id": organizationID}))
	if err != nil {
		return models.OrganizationSettings{}, err
	}
	settings := models.OrganizationSettings{OrganizationID: organizationID}
	err = row.Scan(&settings.SameDayBookingEnabled, &settings.MinNoticeHours, &settings.MaxAdvanceDays, &settings.RequiresApproval)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultOrganizationSettings(organizationID), nil
	}
	if err != nil {
		return models.OrganizationSettings{}, fmt.Errorf("get organization settings: %w", err)
	}
	return settings, nil
}

func (s *Store) UpsertOrganizationSettings(ctx context.Context, settings models.OrganizationSettings) error {
	_, err := s.exec(ctx, s.sql().Insert("organization_settings").
		Columns("organization_id", "same_day_booking_enabled", "min_notice_hours", "max_advance_days", "requires_approval").
		Values(settings.OrganizationID, settings.SameDayBookingEnabled, settings.MinNoticeHours, settings.MaxAdvanceDays, settings.RequiresApproval).
		Suffix(`ON CONFLICT (organization_id) DO UPDATE SET
			same_day_booking_enabled = excluded.same_day_booking_enabled,
			min_notice_hours = excluded.min_notice_hours,
			max_advance_days = excluded.max_advance_days,
			requires_approval = excluded.requires_approval`))
	if err != nil {
		return fmt.Errorf("upsert organization settings: %w", err)
	}
	return nil
}

func (s *Store) CreatePlayerBlock(ctx context.Context, b models.PlayerBlock) (models.PlayerBlock, error) {
	id, err := s.insertReturningID(ctx, s.sql().Insert("organization_player_blocks").
		Columns("organization_id", "player_id", "blocked_until", "reason").
		Values(b.OrganizationID, b.PlayerID, nullTime(b.BlockedUntil), nullString(b.Reason)))
	if err != nil {
		return models.PlayerBlock{}, fmt.Errorf("insert player block: %w", err)
	}
	b.ID = id
	return b, nil
}

// ActivePlayerBlock returns the first block on (organization, player) still in
// force at now, or nil. Blocks whose blocked_until has passed are ignored.
func (s *Store) ActivePlayerBlock(ctx context.Context, organizationID, playerID int64, now time.Time) (*models.PlayerBlock, error) {
	rows, err := s.query(ctx, s.sql().
		Select("id", "blocked_until", "reason").
		From("organization_player_blocks").
		Where(sq.Eq{"organization_id": organizationID, "player_id": playerID}).
		OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("list player blocks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		b := models.PlayerBlock{OrganizationID: organizationID, PlayerID: playerID}
		var until sql.NullTime
		var reason sql.NullString
		if err := rows.Scan(&b.ID, &until, &reason); err != nil {
			return nil, fmt.Errorf("scan player block: %w", err)
		}
		b.BlockedUntil = timePtr(until)
		b.Reason = reason.String
		if b.ActiveAt(now) {
			return &b, nil
		}
	}
	return nil, rows.Err()
}
