package store

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a requested row does not exist.
// The service layer translates this into a domain not-found error.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when a write loses a uniqueness race.
var ErrConflict = errors.New("store: conflict")

// IsNotFound reports whether err indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, pgx.ErrNoRows)
}
