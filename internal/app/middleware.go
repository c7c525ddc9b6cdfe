package app

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/studentdesk/studentdesk/internal/observability"
	"github.com/studentdesk/studentdesk/internal/platform/httpx"
	"github.com/studentdesk/studentdesk/internal/rbac"
	"github.com/studentdesk/studentdesk/internal/shared"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics
	// Permissions loads the signed-in staff member's permission set per request.
	Permissions *rbac.Middleware
}

// MiddlewareStack returns the ordered chain applied to every route.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	chain := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		requestLogger(logger),
		middleware.Recoverer,
		withSession(cfg.SessionManager, logger),
		middleware.Timeout(timeout),
		secureHeaders(cfg.Config, logger),
		middleware.Compress(5),
		httprate.Limit(60, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
		verifyCSRF(cfg.CSRFManager, logger),
	}
	if cfg.Permissions != nil {
		chain = append(chain, cfg.Permissions.LoadPermissionSet)
	}
	if cfg.Metrics != nil {
		chain = append(chain, cfg.Metrics.Middleware)
	}
	return chain
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(r.Context(), level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// commitWriter persists the session right before the response headers go out.
type commitWriter struct {
	http.ResponseWriter
	ctx       context.Context
	req       *http.Request
	sess      *shared.Session
	sessions  *shared.SessionManager
	logger    *slog.Logger
	committed bool
}

func (w *commitWriter) commit() {
	if w.committed {
		return
	}
	w.committed = true
	if err := w.sessions.Commit(w.ctx, w.ResponseWriter, w.req, w.sess); err != nil {
		w.logger.ErrorContext(w.ctx, "commit session", slog.Any("error", err))
	}
}

func (w *commitWriter) WriteHeader(status int) {
	w.commit()
	w.ResponseWriter.WriteHeader(status)
}

func (w *commitWriter) Write(b []byte) (int, error) {
	if !w.committed {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func withSession(sessions *shared.SessionManager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessions.Load(r.Context(), r)
			if err != nil {
				logger.ErrorContext(r.Context(), "load session", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
			ctx := shared.ContextWithSession(r.Context(), sess)
			r = r.WithContext(ctx)
			cw := &commitWriter{ResponseWriter: w, ctx: ctx, req: r, sess: sess, sessions: sessions, logger: logger}
			next.ServeHTTP(cw, r)
			cw.commit()
		})
	}
}

func secureHeaders(cfg *Config, logger *slog.Logger) func(http.Handler) http.Handler {
	s := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'",
		SSLRedirect:           cfg != nil && cfg.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := s.Process(w, r); err != nil {
				logger.WarnContext(r.Context(), "secure headers rejected request", slog.Any("error", err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// verifyCSRF checks unsafe methods. Forms send the token as a field, JSON
// clients as a header.
func verifyCSRF(csrf *shared.CSRFManager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			token := r.Header.Get(shared.CSRFHeader)
			if token == "" && !wantsJSON(r) {
				token = r.PostFormValue(shared.CSRFFormField)
			}
			if err := csrf.VerifyToken(r.Context(), shared.SessionFromContext(r.Context()), token); err != nil {
				logger.WarnContext(r.Context(), "csrf validation failed",
					slog.String("path", r.URL.Path),
					slog.Any("error", err),
				)
				if wantsJSON(r) {
					httpx.RespondError(w, httpx.ErrForbidden)
					return
				}
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}
