package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/booking"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/store"
)

var blockTypes = map[models.BlockType]bool{
	models.BlockMaintenance: true,
	models.BlockClosure:     true,
	models.BlockEvent:       true,
	models.BlockOther:       true,
}

type CreateBlockRequest struct {
	FacilityID int64             `json:"facilityId"`
	CourtID    *int64            `json:"courtId,omitempty"`
	Date       string            `json:"date"`
	Start      *models.ClockTime `json:"startTime,omitempty"`
	End        *models.ClockTime `json:"endTime,omitempty"`
	BlockType  models.BlockType  `json:"blockType"`
	Reason     string            `json:"reason,omitempty"`
	CreatedBy  *int64            `json:"-"`
	// Force creates the block despite conflicts.
	Force bool `json:"force"`
}

type Service struct {
	store *store.Store
}

func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// CreateBlock refuses with *ConflictError when the block would overlap
// existing blocks or bookings, unless req.Force is set. A forced block is
// returned together with the conflicts it overrode.
func (s *Service) CreateBlock(ctx context.Context, req CreateBlockRequest) (models.AvailabilityBlock, Conflicts, error) {
	candidate, err := s.candidate(ctx, req)
	if err != nil {
		return models.AvailabilityBlock{}, Conflicts{}, err
	}

	var (
		created   models.AvailabilityBlock
		conflicts Conflicts
	)
	err = s.store.RunInTx(ctx, func(tx *store.Store) error {
		found, err := NewDetector(tx).Check(ctx, candidate)
		if err != nil {
			return err
		}
		conflicts = found
		if !found.Empty() && !req.Force {
			return &ConflictError{Conflicts: found}
		}
		created, err = tx.CreateBlock(ctx, candidate)
		return err
	})
	if err != nil {
		return models.AvailabilityBlock{}, conflicts, err
	}

	level := zerolog.InfoLevel
	if !conflicts.Empty() {
		level = zerolog.WarnLevel
	}
	log.Ctx(ctx).WithLevel(level).
		Int64("block_id", created.ID).
		Int64("facility_id", created.FacilityID).
		Str("date", created.Date).
		Bool("forced", req.Force).
		Int("conflicting_blocks", len(conflicts.Blocks)).
		Int("conflicting_bookings", len(conflicts.Bookings)).
		Msg("Availability block created")

	return created, conflicts, nil
}

func (s *Service) candidate(ctx context.Context, req CreateBlockRequest) (models.AvailabilityBlock, error) {
	invalid := func(reason string) error { return &booking.ValidationError{Reason: reason} }

	if _, err := models.ParseDate(req.Date); err != nil {
		return models.AvailabilityBlock{}, invalid(err.Error())
	}
	if (req.Start == nil) != (req.End == nil) {
		return models.AvailabilityBlock{}, invalid("Provide both start and end time, or neither for an all-day block")
	}
	if req.Start != nil {
		r := models.TimeRange{Start: *req.Start, End: *req.End}
		if !r.Valid() {
			return models.AvailabilityBlock{}, invalid("Block end time must be after its start time")
		}
	}
	blockType := req.BlockType
	if blockType == "" {
		blockType = models.BlockMaintenance
	}
	if !blockTypes[blockType] {
		return models.AvailabilityBlock{}, invalid(fmt.Sprintf("Unknown block type %q", blockType))
	}

	if _, err := s.store.GetFacility(ctx, req.FacilityID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.AvailabilityBlock{}, invalid("Facility not found")
		}
		return models.AvailabilityBlock{}, err
	}
	if req.CourtID != nil {
		court, err := s.store.GetCourt(ctx, *req.CourtID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && court.FacilityID != req.FacilityID) {
			return models.AvailabilityBlock{}, invalid("Court not found at this facility")
		}
		if err != nil {
			return models.AvailabilityBlock{}, err
		}
	}

	return models.AvailabilityBlock{
		FacilityID: req.FacilityID,
		CourtID:    req.CourtID,
		Date:       req.Date,
		Start:      req.Start,
		End:        req.End,
		BlockType:  blockType,
		Reason:     strings.TrimSpace(req.Reason),
		CreatedBy:  req.CreatedBy,
	}, nil
}

func (s *Service) ListBlocks(ctx context.Context, facilityID int64, date string) ([]models.AvailabilityBlock, error) {
	if _, err := models.ParseDate(date); err != nil {
		return nil, &booking.ValidationError{Reason: err.Error()}
	}
	return s.store.ListBlocks(ctx, facilityID, date)
}

func (s *Service) DeleteBlock(ctx context.Context, id int64) error {
	return s.store.DeleteBlock(ctx, id)
}
