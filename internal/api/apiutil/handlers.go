package apiutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/booking"
	"github.com/codr1/courtbook/internal/provider"
	"github.com/codr1/courtbook/internal/refund"
	"github.com/codr1/courtbook/internal/schedule"
	"github.com/codr1/courtbook/internal/store"
)

const maxBodyBytes = 1 << 20

type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

type HandlerError struct {
	Status  int
	Message string
	Err     error
}

func (e HandlerError) Error() string {
	return e.Message
}

func (e HandlerError) Unwrap() error {
	return e.Err
}

func BadRequest(format string, args ...any) HandlerError {
	return HandlerError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// Actor is the caller forwarded by the authenticating proxy. A nil ID is an
// anonymous caller.
type Actor struct {
	ID    *int64
	Staff bool
}

type actorKey struct{}

func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorKey{}).(Actor)
	return actor
}

// Owns reports whether the actor is staff or the given player.
func (a Actor) Owns(playerID *int64) bool {
	if a.Staff {
		return true
	}
	return a.ID != nil && playerID != nil && *a.ID == *playerID
}

func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("missing request body")
		}
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(payload); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

type errorBody struct {
	Error     string              `json:"error"`
	Conflicts *schedule.Conflicts `json:"conflicts,omitempty"`
}

func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	_ = WriteJSON(w, status, errorBody{Error: message})
}

// WriteError maps engine errors onto HTTP statuses. Anything unrecognised is
// logged and reported as a 500 without leaking its text.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		handlerErr    HandlerError
		validationErr *booking.ValidationError
		transitionErr *booking.InvalidTransitionError
		conflictErr   *schedule.ConflictError
		unknownErr    *provider.UnknownProviderError
	)

	switch {
	case errors.As(err, &handlerErr):
		WriteErrorMessage(w, handlerErr.Status, handlerErr.Message)
	case errors.As(err, &conflictErr):
		_ = WriteJSON(w, http.StatusConflict, errorBody{Error: conflictErr.Error(), Conflicts: &conflictErr.Conflicts})
	case errors.As(err, &validationErr):
		WriteErrorMessage(w, http.StatusUnprocessableEntity, validationErr.Reason)
	case errors.As(err, &transitionErr):
		WriteErrorMessage(w, http.StatusUnprocessableEntity, transitionErr.Error())
	case errors.As(err, &unknownErr):
		WriteErrorMessage(w, http.StatusUnprocessableEntity, unknownErr.Error())
	case errors.Is(err, booking.ErrSlotTaken), errors.Is(err, booking.ErrStatusChanged):
		WriteErrorMessage(w, http.StatusConflict, sentinelMessage(err, booking.ErrSlotTaken, booking.ErrStatusChanged))
	case errors.Is(err, store.ErrNotFound):
		WriteErrorMessage(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrDuplicate):
		WriteErrorMessage(w, http.StatusConflict, store.ErrDuplicate.Error())
	case errors.Is(err, refund.ErrForbidden), errors.Is(err, refund.ErrForceNeedsStaff):
		WriteErrorMessage(w, http.StatusForbidden, sentinelMessage(err, refund.ErrForbidden, refund.ErrForceNeedsStaff))
	default:
		log.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

func sentinelMessage(err error, sentinels ...error) string {
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
