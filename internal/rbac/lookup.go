package rbac

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	platformdb "github.com/studentdesk/studentdesk/internal/platform/db"
	"github.com/studentdesk/studentdesk/internal/platform/httpx"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = fmt.Errorf("rbac: %w", httpx.ErrNotFound)
	// ErrStoreUnavailable marks a lookup source that cannot currently answer,
	// e.g. a permission table that has not been migrated yet.
	ErrStoreUnavailable = fmt.Errorf("rbac: store unavailable: %w", httpx.ErrUnavailable)
	// ErrInvalidInput rejects malformed admin writes.
	ErrInvalidInput = fmt.Errorf("rbac: invalid input: %w", httpx.ErrValidation)
	// ErrForbidden rejects admin writes from staff lacking the management permission.
	ErrForbidden = fmt.Errorf("rbac: %w", httpx.ErrForbidden)
)

// LookupStatus classifies the outcome of a read against a permission source.
type LookupStatus uint8

const (
	// StatusNotFound means the source answered and holds no matching row.
	StatusNotFound LookupStatus = iota
	// StatusFound means Value holds the row.
	StatusFound
	// StatusUnavailable means the source could not answer; the tier is skipped.
	StatusUnavailable
	// StatusFailed means the source answered with an unexpected error that must
	// be surfaced rather than degraded around.
	StatusFailed
)

func (s LookupStatus) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not_found"
	case StatusUnavailable:
		return "unavailable"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Lookup is the result of reading one permission source.
type Lookup[T any] struct {
	Value  T
	Status LookupStatus
	Err    error
}

// Found wraps a value that was read successfully.
func Found[T any](v T) Lookup[T] {
	return Lookup[T]{Value: v, Status: StatusFound}
}

// NotFound reports an absent row.
func NotFound[T any]() Lookup[T] {
	return Lookup[T]{Status: StatusNotFound}
}

// Unavailable reports a source that cannot answer right now.
func Unavailable[T any](err error) Lookup[T] {
	if err == nil {
		err = ErrStoreUnavailable
	} else if !errors.Is(err, ErrStoreUnavailable) {
		err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return Lookup[T]{Status: StatusUnavailable, Err: err}
}

// Failed reports an unexpected store error.
func Failed[T any](err error) Lookup[T] {
	return Lookup[T]{Status: StatusFailed, Err: err}
}

// IsFound reports whether the lookup produced a value.
func (l Lookup[T]) IsFound() bool {
	return l.Status == StatusFound
}

// LookupFromError classifies a store error: no rows become NotFound, missing
// tables and unreachable stores become Unavailable, everything else Failed.
func LookupFromError[T any](op string, err error) Lookup[T] {
	switch {
	case err == nil:
		return NotFound[T]()
	case errors.Is(err, pgx.ErrNoRows), errors.Is(err, ErrNotFound):
		return NotFound[T]()
	case errors.Is(err, ErrStoreUnavailable), platformdb.IsUnavailable(err):
		return Unavailable[T](fmt.Errorf("rbac: %s: %w", op, err))
	default:
		return Failed[T](fmt.Errorf("rbac: %s: %w", op, err))
	}
}

// writeError normalises store write errors so callers can match ErrStoreUnavailable.
func writeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if platformdb.IsUnavailable(err) && !errors.Is(err, ErrStoreUnavailable) {
		return fmt.Errorf("rbac: %s: %w: %w", op, ErrStoreUnavailable, err)
	}
	return fmt.Errorf("rbac: %s: %w", op, err)
}
