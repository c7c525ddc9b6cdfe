package roles

import (
	"time"

	"github.com/studentdesk/studentdesk/internal/rbac"
)

// RoleType groups staff who share default permissions.
type RoleType struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsAdmin     bool      `json:"is_admin"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Summary is a role type with the number of permissions it grants by default.
type Summary struct {
	RoleType
	GrantedDefaults int `json:"granted_defaults"`
}

// Detail is a role type with its full default table.
type Detail struct {
	RoleType
	Defaults []rbac.RoleDefault `json:"defaults"`
}

// CreateInput is the payload for a new role type.
type CreateInput struct {
	Name        string `json:"name" validate:"required,max=80"`
	Description string `json:"description" validate:"max=255"`
	IsAdmin     bool   `json:"is_admin"`
}
