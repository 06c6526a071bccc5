package watch

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the addressed watchlist or event does not exist.
	ErrNotFound = errors.New("not found")

	// ErrWatchlistNotFound is returned when an event references a missing watchlist.
	ErrWatchlistNotFound = errors.New("watchlist not found")
)

// ValidationError reports an invalid request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
