package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/codr1/courtbook/internal/models"
)

func (s *Store) CreateOrganization(ctx context.Context, name string) (models.Organization, error) {
	id, err := s.insertReturningID(ctx, s.sql().Insert("organizations").
		Columns("name", "created_at").
		Values(name, s.now()))
	if err != nil {
		return models.Organization{}, fmt.Errorf("insert organization: %w", err)
	}
	return models.Organization{ID: id, Name: name}, nil
}

func (s *Store) CreateFacility(ctx context.Context, f models.Facility) (models.Facility, error) {
	if f.Timezone == "" {
		f.Timezone = "UTC"
	}
	if f.Currency == "" {
		f.Currency = "usd"
	}
	id, err := s.insertReturningID(ctx, s.sql().Insert("facilities").
		Columns("organization_id", "name", "timezone", "currency").
		Values(f.OrganizationID, f.Name, f.Timezone, f.Currency))
	if err != nil {
		return models.Facility{}, fmt.Errorf("insert facility: %w", err)
	}
	f.ID = id
	return f, nil
}

func (s *Store) GetFacility(ctx context.Context, id int64) (models.Facility, error) {
	row, err := s.queryRow(ctx, s.sql().
		Select("id", "organization_id", "name", "timezone", "currency").
		From("facilities").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return models.Facility{}, err
	}
	var f models.Facility
	if err := row.Scan(&f.ID, &f.OrganizationID, &f.Name, &f.Timezone, &f.Currency); err != nil {
		return models.Facility{}, fmt.Errorf("get facility %d: %w", id, notFound(err))
	}
	return f, nil
}

func (s *Store) ListFacilities(ctx context.Context) ([]models.Facility, error) {
	rows, err := s.query(ctx, s.sql().
		Select("id", "organization_id", "name", "timezone", "currency").
		From("facilities").
		OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("list facilities: %w", err)
	}
	defer rows.Close()

	var facilities []models.Facility
	for rows.Next() {
		var f models.Facility
		if err := rows.Scan(&f.ID, &f.OrganizationID, &f.Name, &f.Timezone, &f.Currency); err != nil {
			return nil, fmt.Errorf("scan facility: %w", err)
		}
		facilities = append(facilities, f)
	}
	return facilities, rows.Err()
}

var courtColumns = []string{"id", "facility_id", "name", "status", "slot_minutes", "price_per_hour_minor"}

func scanCourt(row scanner) (models.Court, error) {
	var c models.Court
	var status string
	if err := row.Scan(&c.ID, &c.FacilityID, &c.Name, &status, &c.SlotMinutes, &c.PricePerHourMinor); err != nil {
		return models.Court{}, err
	}
	c.Status = models.CourtStatus(status)
	return c, nil
}

func (s *Store) CreateCourt(ctx context.Context, c models.Court) (models.Court, error) {
	if c.Status == "" {
		c.Status = models.CourtAvailable
	}
	if c.SlotMinutes <= 0 {
		c.SlotMinutes = 60
	}
	id, err := s.insertReturningID(ctx, s.sql().Insert("courts").
		Columns("facility_id", "name", "status", "slot_minutes", "price_per_hour_minor").
		Values(c.FacilityID, c.Name, string(c.Status), c.SlotMinutes, c.PricePerHourMinor))
	if err != nil {
		return models.Court{}, fmt.Errorf("insert court: %w", err)
	}
	c.ID = id
	return c, nil
}

func (s *Store) GetCourt(ctx context.Context, id int64) (models.Court, error) {
	row, err := s.queryRow(ctx, s.sql().Select(courtColumns...).From("courts").Where(sq.Eq{"id": id}))
	if err != nil {
		return models.Court{}, err
	}
	c, err := scanCourt(row)
	if err != nil {
		return models.Court{}, fmt.Errorf("get court %d: %w", id, notFound(err))
	}
	return c, nil
}

func (s *Store) ListCourts(ctx context.Context, facilityID int64) ([]models.Court, error) {
	rows, err := s.query(ctx, s.sql().Select(courtColumns...).
		From("courts").
		Where(sq.Eq{"facility_id": facilityID}).
		OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("list courts: %w", err)
	}
	defer rows.Close()

	var courts []models.Court
	for rows.Next() {
		c, err := scanCourt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan court: %w", err)
		}
		courts = append(courts, c)
	}
	return courts, rows.Err()
}

func (s *Store) UpdateCourtStatus(ctx context.Context, id int64, status models.CourtStatus) error {
	res, err := s.exec(ctx, s.sql().Update("courts").
		Set("status", string(status)).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("update court status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update court %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) SetOperatingHours(ctx context.Context, h models.OperatingHours) error {
	_, err := s.exec(ctx, s.sql().Insert("operating_hours").
		Columns("facility_id", "weekday", "opens_minute", "closes_minute").
		Values(h.FacilityID, h.Weekday, h.Opens.Minutes(), h.Closes.Minutes()).
		Suffix("ON CONFLICT (facility_id, weekday) DO UPDATE SET opens_minute = excluded.opens_minute, closes_minute = excluded.closes_minute"))
	if err != nil {
		return fmt.Errorf("set operating hours: %w", err)
	}
	return nil
}

// GetOperatingHours returns ErrNotFound when the facility is closed on weekday.
func (s *Store) GetOperatingHours(ctx context.Context, facilityID int64, weekday int) (models.OperatingHours, error) {
	row, err := s.queryRow(ctx, s.sql().
		Select("opens_minute", "closes_minute").
		From("operating_hours").
		Where(sq.Eq{"facility_id": facilityID, "weekday": weekday}))
	if err != nil {
		return models.OperatingHours{}, err
	}
	h := models.OperatingHours{FacilityID: facilityID, Weekday: weekday}
	var opens, closes int
	if err := row.Scan(&opens, &closes); err != nil {
		return models.OperatingHours{}, notFound(err)
	}
	h.Opens = models.ClockTime(opens)
	h.Closes = models.ClockTime(closes)
	return h, nil
}

func (s *Store) CreatePlayer(ctx context.Context, p models.Player) (models.Player, error) {
	id, err := s.insertReturningID(ctx, s.sql().Insert("players").
		Columns("organization_id", "name", "email").
		Values(p.OrganizationID, p.Name, nullString(p.Email)))
	if err != nil {
		return models.Player{}, fmt.Errorf("insert player: %w", err)
	}
	p.ID = id
	return p, nil
}

func (s *Store) GetPlayer(ctx context.Context, id int64) (models.Player, error) {
	row, err := s.queryRow(ctx, s.sql().
		Select("id", "organization_id", "name", "email").
		From("players").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return models.Player{}, err
	}
	var p models.Player
	var email sql.NullString
	if err := row.Scan(&p.ID, &p.OrganizationID, &p.Name, &email); err != nil {
		return models.Player{}, fmt.Errorf("get player %d: %w", id, notFound(err))
	}
	p.Email = email.String
	return p, nil
}
