package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/studentdesk/studentdesk/internal/shared"
	"github.com/studentdesk/studentdesk/internal/view"
)

const loginTemplate = "pages/login.html"

// Handler serves the staff sign-in flow under /auth.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	sessions  *shared.SessionManager
	csrf      *shared.CSRFManager
	validate  *validator.Validate
}

// NewHandler constructs a Handler. A nil logger falls back to slog.Default.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		sessions:  sessions,
		csrf:      csrf,
		validate:  validator.New(),
	}
}

// MountRoutes registers auth routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	h.renderLogin(w, r, http.StatusOK, loginPageData{})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := loginForm{Email: r.PostFormValue("email"), Password: r.PostFormValue("password")}
	if problems := h.check(form); len(problems) > 0 {
		h.renderLogin(w, r, http.StatusBadRequest, loginPageData{Form: form, Errors: problems})
		return
	}

	user, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
	if err != nil {
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.ErrorContext(r.Context(), "authenticate", slog.Any("error", err))
		}
		form.Password = ""
		h.renderLogin(w, r, http.StatusBadRequest, loginPageData{
			Form:   form,
			Errors: map[string]string{"general": "Invalid email or password"},
		})
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.ErrorContext(r.Context(), "session missing during login", slog.Int64("staff_id", user.ID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	sess.SignIn(user.ID)
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Welcome back"})
	expiresAt := time.Now().Add(h.sessions.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.WarnContext(r.Context(), "register session", slog.Any("error", err))
	}
	h.logger.InfoContext(r.Context(), "staff signed in", slog.Int64("staff_id", user.ID))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.WarnContext(r.Context(), "remove session", slog.Any("error", err))
		}
		h.sessions.Destroy(sess)
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

func (h *Handler) check(form loginForm) map[string]string {
	err := h.validate.Struct(form)
	if err == nil {
		return nil
	}
	problems := make(map[string]string)
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			problems[fe.Field()] = fe.Error()
		}
	} else {
		problems["general"] = err.Error()
	}
	return problems
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, status int, data loginPageData) {
	sess := shared.SessionFromContext(r.Context())
	token, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	err := h.templates.Render(w, status, loginTemplate, view.TemplateData{
		Title:       "Sign in",
		CSRFToken:   token,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "render login", slog.Any("error", err))
	}
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}
