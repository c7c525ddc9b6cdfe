package roles

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/studentdesk/studentdesk/internal/platform/httpx"
	"github.com/studentdesk/studentdesk/internal/rbac"
	"github.com/studentdesk/studentdesk/internal/shared"
)

var (
	// ErrForbidden rejects role changes the actor may not make.
	ErrForbidden = fmt.Errorf("roles: %w", httpx.ErrForbidden)
	// ErrInvalidInput rejects malformed payloads.
	ErrInvalidInput = fmt.Errorf("roles: invalid input: %w", httpx.ErrValidation)
)

// RepositoryPort defines data access methods for role types.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]RoleType, error)
	FindByID(ctx context.Context, id int64) (RoleType, error)
	Create(ctx context.Context, input CreateInput) (RoleType, error)
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles role business logic.
type Service struct {
	repo      RepositoryPort
	defaults  rbac.RoleDefaults
	authz     rbac.Authorizer
	audit     AuditRecorder
	logger    *slog.Logger
	validator *validator.Validate
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, defaults rbac.RoleDefaults, authz rbac.Authorizer, audit AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, defaults: defaults, authz: authz, audit: audit, logger: logger, validator: validator.New()}
}

// ListRoles returns all role types with their granted default counts. A role
// default table that cannot be read leaves the counts at zero.
func (s *Service) ListRoles(ctx context.Context) ([]Summary, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(roles))
	for _, role := range roles {
		summary := Summary{RoleType: role}
		lookup := s.defaults.RoleDefaults(ctx, role.ID)
		switch lookup.Status {
		case rbac.StatusFound:
			for _, d := range lookup.Value {
				if d.Allowed {
					summary.GrantedDefaults++
				}
			}
		case rbac.StatusNotFound:
		default:
			s.logger.WarnContext(ctx, "role defaults unavailable", slog.Int64("role_type_id", role.ID), slog.Any("error", lookup.Err))
		}
		out = append(out, summary)
	}
	return out, nil
}

// Get returns a role type with its default table.
func (s *Service) Get(ctx context.Context, id int64) (Detail, error) {
	role, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	detail := Detail{RoleType: role, Defaults: []rbac.RoleDefault{}}
	lookup := s.defaults.RoleDefaults(ctx, id)
	switch lookup.Status {
	case rbac.StatusFound:
		detail.Defaults = lookup.Value
	case rbac.StatusNotFound:
	default:
		return Detail{}, lookup.Err
	}
	return detail, nil
}

// Create adds a role type. Role types shape everyone's defaults, so creating
// one requires permissions.manage_role_defaults.
func (s *Service) Create(ctx context.Context, actorID int64, input CreateInput) (RoleType, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := s.validator.Struct(input); err != nil {
		return RoleType{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !s.authz.HasPermission(ctx, actorID, rbac.ModulePermissions, rbac.ActionManageRoleDefaults) {
		return RoleType{}, ErrForbidden
	}
	role, err := s.repo.Create(ctx, input)
	if err != nil {
		return RoleType{}, err
	}
	s.logger.InfoContext(ctx, "role type created", slog.Int64("actor_id", actorID), slog.Int64("role_type_id", role.ID), slog.Bool("is_admin", role.IsAdmin))
	if s.audit != nil {
		entry := shared.AuditLog{ActorID: actorID, Action: "role_type.create", Entity: "role_type", EntityID: strconv.FormatInt(role.ID, 10), Meta: map[string]any{"name": role.Name, "is_admin": role.IsAdmin}}
		if err := s.audit.Record(ctx, entry); err != nil {
			s.logger.ErrorContext(ctx, "audit record failed", slog.Any("error", err))
		}
	}
	return role, nil
}
