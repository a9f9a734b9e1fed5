package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/codr1/courtbook/internal/models"
)

var blockColumns = []string{
	"id", "facility_id", "court_id", "block_date", "start_minute", "end_minute",
	"block_type", "reason", "created_by", "created_at",
}

func scanBlock(row scanner) (models.AvailabilityBlock, error) {
	var (
		b                  models.AvailabilityBlock
		courtID, createdBy sql.NullInt64
		startMin, endMin   sql.NullInt64
		blockType          string
		reason             sql.NullString
	)
	if err := row.Scan(&b.ID, &b.FacilityID, &courtID, &b.Date, &startMin, &endMin,
		&blockType, &reason, &createdBy, &b.CreatedAt); err != nil {
		return models.AvailabilityBlock{}, err
	}
	b.CourtID = int64Ptr(courtID)
	b.CreatedBy = int64Ptr(createdBy)
	b.BlockType = models.BlockType(blockType)
	b.Reason = reason.String
	if startMin.Valid && endMin.Valid {
		start := models.ClockTime(startMin.Int64)
		end := models.ClockTime(endMin.Int64)
		b.Start, b.End = &start, &end
	}
	return b, nil
}

func clockMinutes(c *models.ClockTime) sql.NullInt64 {
	if c == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(c.Minutes()), Valid: true}
}

func (s *Store) CreateBlock(ctx context.Context, b models.AvailabilityBlock) (models.AvailabilityBlock, error) {
	if b.BlockType == "" {
		b.BlockType = models.BlockMaintenance
	}
	if b.AllDay() {
		b.Start, b.End = nil, nil
	}
	b.CreatedAt = s.now()

	id, err := s.insertReturningID(ctx, s.sql().Insert("availability_blocks").
		Columns("facility_id", "court_id", "block_date", "start_minute", "end_minute",
			"block_type", "reason", "created_by", "created_at").
		Values(b.FacilityID, nullInt64(b.CourtID), b.Date, clockMinutes(b.Start), clockMinutes(b.End),
			string(b.BlockType), nullString(b.Reason), nullInt64(b.CreatedBy), b.CreatedAt))
	if err != nil {
		return models.AvailabilityBlock{}, fmt.Errorf("insert availability block: %w", err)
	}
	b.ID = id
	return b, nil
}

// ListBlocks returns every block on (facility, date), facility-wide ones included.
func (s *Store) ListBlocks(ctx context.Context, facilityID int64, date string) ([]models.AvailabilityBlock, error) {
	rows, err := s.query(ctx, s.sql().Select(blockColumns...).
		From("availability_blocks").
		Where(sq.Eq{"facility_id": facilityID, "block_date": date}).
		OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("list availability blocks: %w", err)
	}
	defer rows.Close()

	var blocks []models.AvailabilityBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan availability block: %w", err)
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

func (s *Store) DeleteBlock(ctx context.Context, id int64) error {
	res, err := s.exec(ctx, s.sql().Delete("availability_blocks").Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("delete availability block: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete availability block %d: %w", id, ErrNotFound)
	}
	return nil
}
