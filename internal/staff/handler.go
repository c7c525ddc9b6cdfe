package staff

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/studentdesk/studentdesk/internal/platform/httpx"
	"github.com/studentdesk/studentdesk/internal/rbac"
	"github.com/studentdesk/studentdesk/internal/shared"
	"github.com/studentdesk/studentdesk/internal/view"
)

// Handler manages staff directory endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      *rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, rbac *rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac}
}

// MountRoutes registers staff routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.NavStaffList, shared.PermStaffView))
		r.Get("/", h.listStaff)
		r.Get("/{id}", h.showStaff)
	})
	// Create and activation checks live in the service.
	r.Post("/", h.createStaff)
	r.Post("/{id}/activate", h.setActive(true))
	r.Post("/{id}/deactivate", h.setActive(false))
}

type formErrors map[string]string

func (h *Handler) listStaff(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.ListStaff(r.Context())
	if err != nil {
		h.logger.Error("list staff failed", slog.Any("error", err))
		h.render(w, r, "pages/staff/list.html", map[string]any{"Errors": formErrors{"general": "Staff directory is unavailable right now."}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/staff/list.html", map[string]any{"Staff": members}, http.StatusOK)
}

func (h *Handler) showStaff(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, ErrInvalidInput)
		return
	}
	member, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, member)
}

func (h *Handler) createStaff(w http.ResponseWriter, r *http.Request) {
	actorID, ok := rbac.CurrentStaffID(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.Create(r.Context(), actorID, input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, ok := rbac.CurrentStaffID(r)
		if !ok {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.RespondError(w, ErrInvalidInput)
			return
		}
		if err := h.service.SetActive(r.Context(), actorID, id, active); err != nil {
			h.respondError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "staff request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	set, _ := rbac.PermissionSetFromContext(r.Context())
	viewData := view.TemplateData{Title: "Staff", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Nav: set.Visible(), Data: data}
	if err := h.templates.Render(w, status, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}
