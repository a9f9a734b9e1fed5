package apiutil

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/codr1/courtbook/internal/models"
)

func ParseNonNegativeInt64Field(raw string, field string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", field)
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%s must be 0 or greater", field)
	}
	return value, nil
}

func ParsePositiveInt64Field(raw string, field string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", field)
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", field)
	}
	return value, nil
}

// PathID reads a positive integer route variable.
func PathID(r *http.Request, name string) (int64, error) {
	id, err := ParsePositiveInt64Field(mux.Vars(r)[name], name)
	if err != nil {
		return 0, BadRequest("%s", err.Error())
	}
	return id, nil
}

// OptionalInt64Query returns nil when the parameter is absent.
func OptionalInt64Query(r *http.Request, name string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	value, err := ParsePositiveInt64Field(raw, name)
	if err != nil {
		return nil, BadRequest("%s", err.Error())
	}
	return &value, nil
}

// IntQuery returns fallback when the parameter is absent and rejects values
// outside [min, max].
func IntQuery(r *http.Request, name string, fallback, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < min || value > max {
		return 0, BadRequest("%s must be between %d and %d", name, min, max)
	}
	return value, nil
}

// DateQuery validates a YYYY-MM-DD parameter; empty values are allowed.
func DateQuery(r *http.Request, name string) (string, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return "", nil
	}
	if _, err := models.ParseDate(raw); err != nil {
		return "", BadRequest("%s", err.Error())
	}
	return raw, nil
}

// ListQuery accepts both repeated and comma-separated values.
func ListQuery(r *http.Request, name string) []string {
	var values []string
	for _, raw := range r.URL.Query()[name] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				values = append(values, part)
			}
		}
	}
	return values
}
