// internal/api/blocks/handlers.go
package blocks

import (
	"context"
	"net/http"
	"time"

	"github.com/codr1/courtbook/internal/api/apiutil"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/schedule"
)

const blocksQueryTimeout = 5 * time.Second

type Handler struct {
	schedule *schedule.Service
}

func NewHandler(svc *schedule.Service) *Handler {
	return &Handler{schedule: svc}
}

type createResponse struct {
	Block models.AvailabilityBlock `json:"block"`
	// Overridden lists what a forced block was created over.
	Overridden *schedule.Conflicts `json:"overridden,omitempty"`
}

// POST /api/v1/blocks
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req schedule.CreateBlockRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest("invalid request body: %s", err.Error()))
		return
	}
	if r.URL.Query().Get("force") == "true" {
		req.Force = true
	}
	req.CreatedBy = apiutil.ActorFromContext(r.Context()).ID

	ctx, cancel := context.WithTimeout(r.Context(), blocksQueryTimeout)
	defer cancel()

	block, conflicts, err := h.schedule.CreateBlock(ctx, req)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	resp := createResponse{Block: block}
	if !conflicts.Empty() {
		resp.Overridden = &conflicts
	}
	_ = apiutil.WriteJSON(w, http.StatusCreated, resp)
}

// GET /api/v1/facilities/{id}/blocks?date=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	facilityID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	date, err := apiutil.DateQuery(r, "date")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if date == "" {
		apiutil.WriteError(w, r, apiutil.BadRequest("date is required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), blocksQueryTimeout)
	defer cancel()

	list, err := h.schedule.ListBlocks(ctx, facilityID, date)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if list == nil {
		list = []models.AvailabilityBlock{}
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, map[string]any{"blocks": list})
}

// DELETE /api/v1/blocks/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), blocksQueryTimeout)
	defer cancel()

	if err := h.schedule.DeleteBlock(ctx, id); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
