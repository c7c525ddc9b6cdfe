package staff

import (
	"time"

	"github.com/studentdesk/studentdesk/internal/rbac"
)

// Staff represents a back-office account.
type Staff struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	RoleTypeID   int64     `json:"role_type_id"`
	RoleName     string    `json:"role_name"`
	RoleIsAdmin  bool      `json:"role_is_admin"`
	IsSuperAdmin bool      `json:"is_super_admin"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Member projects the account onto the identity snapshot the resolver uses.
func (s Staff) Member() rbac.StaffMember {
	return rbac.StaffMember{
		ID:           s.ID,
		RoleTypeID:   s.RoleTypeID,
		IsSuperAdmin: s.IsSuperAdmin,
		IsAdminRole:  s.RoleIsAdmin,
		Active:       s.Active,
	}
}

// CreateInput is the payload for creating a staff account.
type CreateInput struct {
	Email      string `json:"email" validate:"required,email,max=255"`
	Name       string `json:"name" validate:"required,max=120"`
	Password   string `json:"password" validate:"required,min=8,max=72"`
	RoleTypeID int64  `json:"role_type_id" validate:"required,gt=0"`
}
