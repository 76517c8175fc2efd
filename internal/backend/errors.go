package backend

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrAuthRequired = errors.New("authentication required")
	ErrNotFound     = errors.New("not found")
)

// PersistenceError reports a rejected read or write. Message is the backend's
// own text, suitable for showing to the user. Status is 0 when the backend
// could not be reached at all.
type PersistenceError struct {
	Op      string
	Status  int
	Message string
}

func (e *PersistenceError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.Status)
}

func (e *PersistenceError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// Unreachable reports whether the request never got an answer.
func (e *PersistenceError) Unreachable() bool {
	return e.Status == 0
}

// IsUnreachable reports whether err is a PersistenceError caused by connectivity.
func IsUnreachable(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe) && pe.Unreachable()
}
