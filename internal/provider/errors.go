package provider

import (
	"errors"
	"fmt"
)

var ErrTimeout = errors.New("provider request timed out")

type HTTPStatusError struct {
	Status int
	Body   string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("provider returned status %d", e.Status)
	}
	return fmt.Sprintf("provider returned status %d: %s", e.Status, e.Body)
}

type UnknownProviderError struct {
	Type string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider type %q", e.Type)
}
