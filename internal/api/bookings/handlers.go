// internal/api/bookings/handlers.go
package bookings

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/apiutil"
	"github.com/codr1/courtbook/internal/booking"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/refund"
)

// Writes may call the payment gateway, so they get more room than reads.
const (
	bookingsQueryTimeout = 5 * time.Second
	bookingsWriteTimeout = 20 * time.Second
)

type Handler struct {
	bookings *booking.Service
	refunds  *refund.Service
}

func NewHandler(bookings *booking.Service, refunds *refund.Service) *Handler {
	return &Handler{bookings: bookings, refunds: refunds}
}

// POST /api/v1/bookings
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor := apiutil.ActorFromContext(r.Context())

	var req booking.CreateRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest("invalid request body: %s", err.Error()))
		return
	}

	if !actor.Staff {
		if req.PlayerID != nil && !actor.Owns(req.PlayerID) {
			apiutil.WriteErrorMessage(w, http.StatusForbidden, "players can only book for themselves")
			return
		}
		if req.SkipPayment {
			apiutil.WriteErrorMessage(w, http.StatusForbidden, "only staff can skip payment")
			return
		}
		req.PlayerID = actor.ID
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingsWriteTimeout)
	defer cancel()

	result, err := h.bookings.Create(ctx, req)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := apiutil.WriteJSON(w, http.StatusCreated, result); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Int64("booking_id", result.Booking.ID).Msg("Failed to write booking response")
	}
}

// GET /api/v1/bookings
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor := apiutil.ActorFromContext(r.Context())

	filter, err := filterFromQuery(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if !actor.Staff {
		filter.PlayerID = actor.ID
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingsQueryTimeout)
	defer cancel()

	list, err := h.bookings.List(ctx, filter)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if list == nil {
		list = []models.Booking{}
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, map[string]any{"bookings": list})
}

func filterFromQuery(r *http.Request) (models.BookingFilter, error) {
	var (
		filter models.BookingFilter
		err    error
	)
	if filter.FacilityID, err = apiutil.OptionalInt64Query(r, "facility_id"); err != nil {
		return filter, err
	}
	if filter.CourtID, err = apiutil.OptionalInt64Query(r, "court_id"); err != nil {
		return filter, err
	}
	if filter.PlayerID, err = apiutil.OptionalInt64Query(r, "player_id"); err != nil {
		return filter, err
	}
	if filter.DateFrom, err = apiutil.DateQuery(r, "date_from"); err != nil {
		return filter, err
	}
	if filter.DateTo, err = apiutil.DateQuery(r, "date_to"); err != nil {
		return filter, err
	}
	for _, raw := range apiutil.ListQuery(r, "status") {
		filter.Statuses = append(filter.Statuses, models.BookingStatus(raw))
	}
	filter.BookingType = strings.TrimSpace(r.URL.Query().Get("booking_type"))

	limit, err := apiutil.IntQuery(r, "limit", 0, 0, 1000)
	if err != nil {
		return filter, err
	}
	offset, err := apiutil.IntQuery(r, "offset", 0, 0, 1<<30)
	if err != nil {
		return filter, err
	}
	filter.Limit, filter.Offset = uint64(limit), uint64(offset)
	return filter, nil
}

// GET /api/v1/bookings/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingsQueryTimeout)
	defer cancel()

	b, err := h.bookings.Get(ctx, id)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	// Other players' bookings are reported as missing rather than forbidden.
	if !apiutil.ActorFromContext(r.Context()).Owns(b.PlayerID) {
		apiutil.WriteErrorMessage(w, http.StatusNotFound, "not found")
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, b)
}

type cancelBody struct {
	Reason string `json:"reason"`
	Force  bool   `json:"force"`
}

// POST /api/v1/bookings/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var body cancelBody
	if r.ContentLength != 0 {
		if err := apiutil.DecodeJSON(r, &body); err != nil {
			apiutil.WriteError(w, r, apiutil.BadRequest("invalid request body: %s", err.Error()))
			return
		}
	}

	actor := apiutil.ActorFromContext(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), bookingsWriteTimeout)
	defer cancel()

	outcome, err := h.refunds.Cancel(ctx, refund.CancelRequest{
		BookingID: id,
		ActorID:   actor.ID,
		Staff:     actor.Staff,
		Reason:    strings.TrimSpace(body.Reason),
		Force:     body.Force,
	})
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, outcome)
}

type transitionBody struct {
	Status models.BookingStatus `json:"status"`
}

// POST /api/v1/bookings/{id}/transition
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var body transitionBody
	if err := apiutil.DecodeJSON(r, &body); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest("invalid request body: %s", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingsQueryTimeout)
	defer cancel()

	b, err := h.bookings.Transition(ctx, id, body.Status)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, b)
}
