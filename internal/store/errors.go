package store

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Sentinel errors surfaced to handlers. Handlers map these onto the
// not-found / conflict / transient reply kinds.
var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: unique violation")
	ErrTransient = errors.New("store: transient failure")
)

// mapError normalizes driver-level failures into the sentinel errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505": // unique_violation
			return ErrDuplicate
		case strings.HasPrefix(string(pqErr.Code), "08"): // connection exceptions
			return fmt.Errorf("%w: %v", ErrTransient, err)
		case pqErr.Code == "40001", pqErr.Code == "40P01": // serialization failure, deadlock
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
	}
	return err
}

// IsTransient reports whether the error is worth a single retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
