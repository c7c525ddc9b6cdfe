package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUndefinedTable(t *testing.T) {
	missing := &pgconn.PgError{Code: "42P01", Message: `relation "staff_permission_overrides" does not exist`}
	assert.True(t, IsUndefinedTable(missing))
	assert.True(t, IsUndefinedTable(fmt.Errorf("rbac: get override: %w", missing)))
	assert.True(t, IsUndefinedTable(&pgconn.PgError{Code: "3F000"}))

	assert.False(t, IsUndefinedTable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUndefinedTable(errors.New("boom")))
	assert.False(t, IsUndefinedTable(nil))
}

func TestIsUnavailable(t *testing.T) {
	assert.True(t, IsUnavailable(&pgconn.PgError{Code: "42P01"}))
	assert.True(t, IsUnavailable(fmt.Errorf("query: %w", context.DeadlineExceeded)))

	assert.False(t, IsUnavailable(nil))
	assert.False(t, IsUnavailable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUnavailable(errors.New("syntax error")))
}
