package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/studentdesk/studentdesk/internal/platform/httpx"
	"github.com/studentdesk/studentdesk/internal/shared"
	"github.com/studentdesk/studentdesk/internal/view"
)

// Handler exposes permission administration under /permissions.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authz     Authorizer
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      *Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authz Authorizer, templates *view.Engine, csrf *shared.CSRFManager, rbac *Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: authz, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me", h.myPermissions)
	r.Get("/me/student-tabs", h.myStudentTabs)

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(ModulePermissions, "view"))
		r.Get("/", h.listPermissions)
		r.Get("/staff/{id}", h.staffPermissions)
		r.Get("/staff/{id}/history", h.overrideHistory)
		r.Get("/roles/{id}/defaults", h.roleDefaults)
	})

	// Writes are authorized by the service, which also enforces the admin gate.
	r.Put("/staff/{id}/overrides", h.setOverride)
	r.Delete("/staff/{id}/overrides/{module}/{action}", h.removeOverride)
	r.Put("/roles/{id}/defaults", h.setRoleDefault)
	r.Delete("/roles/{id}/defaults/{module}/{action}", h.removeRoleDefault)
}

type formErrors map[string]string

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	defs, err := h.service.ListDefinitions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		h.render(w, r, "pages/permissions/list.html", map[string]any{"Errors": formErrors{"general": "Permissions are unavailable right now."}}, httpx.StatusFor(err))
		return
	}
	h.render(w, r, "pages/permissions/list.html", map[string]any{
		"Permissions": defs,
		"Restricted":  RestrictedAdminActions(),
	}, http.StatusOK)
}

func (h *Handler) myPermissions(w http.ResponseWriter, r *http.Request) {
	staffID, ok := CurrentStaffID(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	set, loaded := PermissionSetFromContext(r.Context())
	if !loaded {
		set = h.authz.PermissionSet(r.Context(), staffID)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"staff_id":    staffID,
		"permissions": set.Keys(),
		"degraded":    set.Degraded,
	})
}

func (h *Handler) myStudentTabs(w http.ResponseWriter, r *http.Request) {
	staffID, ok := CurrentStaffID(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	tabs := h.authz.EditableTabsForStudent(r.Context(), staffID)
	if tabs == nil {
		tabs = []string{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"staff_id": staffID, "editable_tabs": tabs})
}

func (h *Handler) staffPermissions(w http.ResponseWriter, r *http.Request) {
	staffID, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	perms, err := h.service.StaffPermissions(r.Context(), staffID)
	if err != nil {
		h.respondError(w, r, "staff permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) overrideHistory(w http.ResponseWriter, r *http.Request) {
	staffID, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	entries, err := h.service.OverrideHistory(r.Context(), staffID, limit)
	if err != nil {
		h.respondError(w, r, "override history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"staff_id": staffID, "entries": entries})
}

func (h *Handler) roleDefaults(w http.ResponseWriter, r *http.Request) {
	roleTypeID, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	defaults, err := h.service.RoleDefaults(r.Context(), roleTypeID)
	if err != nil {
		h.respondError(w, r, "role defaults", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role_type_id": roleTypeID, "defaults": defaults})
}

type grantRequest struct {
	Module  string `json:"module"`
	Action  string `json:"action"`
	Allowed bool   `json:"allowed"`
}

func (h *Handler) setOverride(w http.ResponseWriter, r *http.Request) {
	actorID, ok := CurrentStaffID(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	staffID, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := OverrideInput{StaffID: staffID, Module: req.Module, Action: req.Action, Allowed: req.Allowed}
	if err := h.service.SetOverride(r.Context(), actorID, input); err != nil {
		h.respondError(w, r, "set override", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeOverride(w http.ResponseWriter, r *http.Request) {
	actorID, ok := CurrentStaffID(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	staffID, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.RemoveOverride(r.Context(), actorID, staffID, chi.URLParam(r, "module"), chi.URLParam(r, "action")); err != nil {
		h.respondError(w, r, "remove override", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setRoleDefault(w http.ResponseWriter, r *http.Request) {
	actorID, ok := CurrentStaffID(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	roleTypeID, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := RoleDefaultInput{RoleTypeID: roleTypeID, Module: req.Module, Action: req.Action, Allowed: req.Allowed}
	if err := h.service.SetRoleDefault(r.Context(), actorID, input); err != nil {
		h.respondError(w, r, "set role default", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRoleDefault(w http.ResponseWriter, r *http.Request) {
	actorID, ok := CurrentStaffID(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	roleTypeID, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.RemoveRoleDefault(r.Context(), actorID, roleTypeID, chi.URLParam(r, "module"), chi.URLParam(r, "action")); err != nil {
		h.respondError(w, r, "remove role default", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	var csrfToken string
	if h.csrf != nil {
		csrfToken, _ = h.csrf.EnsureToken(r.Context(), sess)
	}
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	set, _ := PermissionSetFromContext(r.Context())
	viewData := view.TemplateData{Title: "Permissions", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Nav: set.Visible(), Data: data}
	if err := h.templates.Render(w, status, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Join(ErrInvalidInput, errors.New(name+" must be a positive integer"))
	}
	return id, nil
}
