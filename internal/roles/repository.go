package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studentdesk/studentdesk/internal/platform/httpx"
)

var (
	// ErrNotFound indicates the role type does not exist.
	ErrNotFound = fmt.Errorf("roles: %w", httpx.ErrNotFound)
	// ErrDuplicateName indicates the role type name is taken.
	ErrDuplicateName = fmt.Errorf("roles: name already exists: %w", httpx.ErrDuplicate)
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, name, COALESCE(description, ''), is_admin, created_at, updated_at`

func scanRole(row pgx.Row) (RoleType, error) {
	var role RoleType
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.IsAdmin, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

// ListRoles returns all role types.
func (r *Repository) ListRoles(ctx context.Context) ([]RoleType, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM role_types ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []RoleType
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// FindByID fetches one role type.
func (r *Repository) FindByID(ctx context.Context, id int64) (RoleType, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM role_types WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoleType{}, ErrNotFound
		}
		return RoleType{}, err
	}
	return role, nil
}

// Create inserts a role type.
func (r *Repository) Create(ctx context.Context, input CreateInput) (RoleType, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `
		INSERT INTO role_types (name, description, is_admin, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, NOW(), NOW())
		RETURNING `+roleColumns, input.Name, input.Description, input.IsAdmin))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return RoleType{}, ErrDuplicateName
		}
		return RoleType{}, err
	}
	return role, nil
}
