package staff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/studentdesk/studentdesk/internal/platform/httpx"
	"github.com/studentdesk/studentdesk/internal/rbac"
	"github.com/studentdesk/studentdesk/internal/shared"
)

var (
	// ErrForbidden rejects account changes the actor may not make.
	ErrForbidden = fmt.Errorf("staff: %w", httpx.ErrForbidden)
	// ErrInvalidInput rejects malformed payloads.
	ErrInvalidInput = fmt.Errorf("staff: invalid input: %w", httpx.ErrValidation)
)

// RepositoryPort defines data access methods for staff.
type RepositoryPort interface {
	ListStaff(ctx context.Context) ([]Staff, error)
	FindByID(ctx context.Context, id int64) (Staff, error)
	RoleIsAdmin(ctx context.Context, roleTypeID int64) (bool, error)
	Create(ctx context.Context, input CreateInput, passwordHash string) (int64, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles staff business logic.
type Service struct {
	repo      RepositoryPort
	authz     rbac.Authorizer
	audit     AuditRecorder
	logger    *slog.Logger
	validator *validator.Validate
	hashCost  int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, authz rbac.Authorizer, audit AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		authz:     authz,
		audit:     audit,
		logger:    logger,
		validator: validator.New(),
		hashCost:  bcrypt.DefaultCost,
	}
}

// ListStaff returns all staff accounts.
func (s *Service) ListStaff(ctx context.Context) ([]Staff, error) {
	return s.repo.ListStaff(ctx)
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, id int64) (Staff, error) {
	return s.repo.FindByID(ctx, id)
}

// Create adds an account. Accounts in an admin role type additionally require
// staff.create_admin_accounts, which only a SuperAdmin holds.
func (s *Service) Create(ctx context.Context, actorID int64, input CreateInput) (Staff, error) {
	input.Email = strings.TrimSpace(input.Email)
	input.Name = strings.TrimSpace(input.Name)
	if err := s.validator.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return Staff{}, fmt.Errorf("%w: %s", ErrInvalidInput, strings.ToLower(verrs[0].Field()))
		}
		return Staff{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !s.authz.HasPermission(ctx, actorID, "staff", "edit") {
		return Staff{}, ErrForbidden
	}
	isAdmin, err := s.repo.RoleIsAdmin(ctx, input.RoleTypeID)
	if err != nil {
		return Staff{}, err
	}
	if isAdmin && !s.authz.HasPermission(ctx, actorID, "staff", rbac.ActionCreateAdminAccounts) {
		return Staff{}, ErrForbidden
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.hashCost)
	if err != nil {
		return Staff{}, err
	}
	id, err := s.repo.Create(ctx, input, string(hash))
	if err != nil {
		return Staff{}, err
	}
	s.record(ctx, actorID, "staff.create", id, map[string]any{"role_type_id": input.RoleTypeID, "admin": isAdmin})
	return s.repo.FindByID(ctx, id)
}

// SetActive activates or deactivates an account. Staff cannot deactivate themselves.
func (s *Service) SetActive(ctx context.Context, actorID, id int64, active bool) error {
	if !s.authz.HasPermission(ctx, actorID, "staff", "edit") {
		return ErrForbidden
	}
	if actorID == id && !active {
		return fmt.Errorf("%w: cannot deactivate own account", ErrInvalidInput)
	}
	target, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if target.IsSuperAdmin && !s.authz.HasPermission(ctx, actorID, "staff", rbac.ActionCreateAdminAccounts) {
		return ErrForbidden
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	action := "staff.deactivate"
	if active {
		action = "staff.activate"
	}
	s.record(ctx, actorID, action, id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, staffID int64, meta map[string]any) {
	s.logger.InfoContext(ctx, "staff change", slog.Int64("actor_id", actorID), slog.String("action", action), slog.Int64("staff_id", staffID))
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{ActorID: actorID, Action: action, Entity: "staff", EntityID: strconv.FormatInt(staffID, 10), Meta: meta}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "audit record failed", slog.Any("error", err))
	}
}
