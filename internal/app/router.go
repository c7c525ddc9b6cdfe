package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/studentdesk/studentdesk/internal/auth"
	"github.com/studentdesk/studentdesk/internal/observability"
	"github.com/studentdesk/studentdesk/internal/platform/httpx"
	"github.com/studentdesk/studentdesk/internal/rbac"
	"github.com/studentdesk/studentdesk/internal/roles"
	"github.com/studentdesk/studentdesk/internal/shared"
	"github.com/studentdesk/studentdesk/internal/staff"
	"github.com/studentdesk/studentdesk/internal/view"
	"github.com/studentdesk/studentdesk/jobs"
	"github.com/studentdesk/studentdesk/web"
)

// RouterParams groups dependencies for building the HTTP router. Nil
// feature handlers leave their routes unmounted.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Templates          *view.Engine
	SessionManager     *shared.SessionManager
	CSRFManager        *shared.CSRFManager
	AuthHandler        *auth.Handler
	StaffHandler       *staff.Handler
	RolesHandler       *roles.Handler
	PermissionsHandler *rbac.Handler
	RBACMiddleware     *rbac.Middleware
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

type mounter interface {
	MountRoutes(chi.Router)
}

// NewRouter builds the application router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
		Permissions:    params.RBACMiddleware,
	})...)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/", homeHandler(params))

	mounts := []struct {
		prefix string
		h      mounter
		ok     bool
	}{
		{"/auth", params.AuthHandler, params.AuthHandler != nil},
		{"/staff", params.StaffHandler, params.StaffHandler != nil},
		{"/roles", params.RolesHandler, params.RolesHandler != nil},
		{"/permissions", params.PermissionsHandler, params.PermissionsHandler != nil},
		{"/jobs", params.JobHandler, params.JobHandler != nil},
	}
	for _, m := range mounts {
		if m.ok {
			r.Route(m.prefix, m.h.MountRoutes)
		}
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if static, err := fs.Sub(web.Static, "static"); err != nil {
		params.Logger.Error("static assets unavailable", slog.Any("error", err))
	} else {
		files := http.StripPrefix("/static/", http.FileServer(http.FS(static)))
		r.Handle("/static/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600")
			files.ServeHTTP(w, r)
		}))
	}
	return r
}

// homeHandler renders the landing page with the staff member's navigation.
func homeHandler(params RouterParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if _, ok := sess.StaffID(); !ok {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		token, _ := params.CSRFManager.EnsureToken(r.Context(), sess)
		set, _ := rbac.PermissionSetFromContext(r.Context())
		err := params.Templates.Render(w, http.StatusOK, "pages/home.html", view.TemplateData{
			Title:       "StudentDesk",
			CSRFToken:   token,
			Flash:       sess.PopFlash(),
			CurrentPath: r.URL.Path,
			Nav:         set.Visible(),
			Data: map[string]any{
				"AppEnv":   params.Config.AppEnv,
				"Degraded": set.Degraded,
			},
		})
		if err != nil {
			params.Logger.ErrorContext(r.Context(), "render home", slog.Any("error", err))
		}
	}
}
