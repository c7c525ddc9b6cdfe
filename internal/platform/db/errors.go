package db

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes that mean the relation or schema has not been provisioned yet.
const (
	codeUndefinedTable  = "42P01"
	codeUndefinedColumn = "42703"
	codeInvalidSchema   = "3F000"
)

// IsUndefinedTable reports whether err comes from querying a table, column or
// schema that does not exist (typically a migration that has not run yet).
func IsUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeUndefinedTable, codeUndefinedColumn, codeInvalidSchema:
		return true
	}
	return false
}

// IsUnavailable reports whether err means the store could not be reached at all,
// as opposed to the store answering with an error.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if IsUndefinedTable(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return pgconn.SafeToRetry(err)
}
