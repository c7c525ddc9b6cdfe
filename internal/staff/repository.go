package staff

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studentdesk/studentdesk/internal/platform/httpx"
	"github.com/studentdesk/studentdesk/internal/rbac"
)

var (
	// ErrNotFound indicates the staff account or role type does not exist.
	ErrNotFound = fmt.Errorf("staff: %w", httpx.ErrNotFound)
	// ErrDuplicateEmail indicates the email is taken.
	ErrDuplicateEmail = fmt.Errorf("staff: email already registered: %w", httpx.ErrDuplicate)
)

// Repository provides PostgreSQL backed persistence. It also serves as the
// resolver's staff directory.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ rbac.StaffDirectory = (*Repository)(nil)

const staffSelect = `
	SELECT s.id, s.email, s.name, s.role_type_id, COALESCE(rt.name, ''), COALESCE(rt.is_admin, FALSE),
	       s.is_super_admin, s.is_active, s.created_at, s.updated_at
	FROM staff s
	LEFT JOIN role_types rt ON rt.id = s.role_type_id`

func scanStaff(row pgx.Row) (Staff, error) {
	var s Staff
	err := row.Scan(&s.ID, &s.Email, &s.Name, &s.RoleTypeID, &s.RoleName, &s.RoleIsAdmin,
		&s.IsSuperAdmin, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// ListStaff returns all staff accounts.
func (r *Repository) ListStaff(ctx context.Context) ([]Staff, error) {
	rows, err := r.pool.Query(ctx, staffSelect+` ORDER BY s.name, s.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// FindByID fetches a single account.
func (r *Repository) FindByID(ctx context.Context, id int64) (Staff, error) {
	s, err := scanStaff(r.pool.QueryRow(ctx, staffSelect+` WHERE s.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Staff{}, ErrNotFound
		}
		return Staff{}, err
	}
	return s, nil
}

// GetStaff implements rbac.StaffDirectory. A missing staff or role_types
// table reports the directory as unavailable.
func (r *Repository) GetStaff(ctx context.Context, staffID int64) rbac.Lookup[rbac.StaffMember] {
	s, err := scanStaff(r.pool.QueryRow(ctx, staffSelect+` WHERE s.id = $1`, staffID))
	if err != nil {
		return rbac.LookupFromError[rbac.StaffMember]("get staff", err)
	}
	return rbac.Found(s.Member())
}

// RoleIsAdmin reports whether the role type is an administrator role.
func (r *Repository) RoleIsAdmin(ctx context.Context, roleTypeID int64) (bool, error) {
	var isAdmin bool
	err := r.pool.QueryRow(ctx, `SELECT is_admin FROM role_types WHERE id = $1`, roleTypeID).Scan(&isAdmin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	return isAdmin, nil
}

// Create inserts an account and returns its id.
func (r *Repository) Create(ctx context.Context, input CreateInput, passwordHash string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO staff (email, name, password_hash, role_type_id, is_super_admin, is_active, created_at, updated_at)
		VALUES (LOWER($1), $2, $3, $4, FALSE, TRUE, NOW(), NOW())
		RETURNING id`, input.Email, input.Name, passwordHash, input.RoleTypeID).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateEmail
		}
		return 0, err
	}
	return id, nil
}

// SetActive toggles the account's active flag.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE staff SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
