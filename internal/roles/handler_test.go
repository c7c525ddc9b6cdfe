package roles

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentdesk/studentdesk/internal/rbac"
	"github.com/studentdesk/studentdesk/internal/shared"
	"github.com/studentdesk/studentdesk/internal/view"
	_ "github.com/studentdesk/studentdesk/testing"
)

func newRolesRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service, store := newService(t, nil)
	store.PutStaff(rbac.StaffMember{ID: 20, RoleTypeID: 7, Active: true})
	templates, err := view.NewEngine()
	require.NoError(t, err)

	resolver := rbac.NewResolver(rbac.ResolverConfig{Staff: store, Registry: store, Defaults: store, Overrides: store, Logger: logger})
	mw := rbac.NewMiddleware(resolver, logger)
	handler := NewHandler(logger, service, templates, shared.NewCSRFManager("csrfsecret"), mw)
	r := chi.NewRouter()
	r.Route("/roles", handler.MountRoutes)
	return mw.LoadPermissionSet(r)
}

func serve(t *testing.T, router http.Handler, method, target string, staffID int64, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	mr := miniredis.RunT(t)
	sessions := shared.NewSessionManager(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "studentdesk_session", time.Hour, false)
	sess, err := sessions.Load(req.Context(), req)
	require.NoError(t, err)
	sess.SignIn(staffID)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestListRolesPage(t *testing.T) {
	router := newRolesRouter(t)

	rr := serve(t, router, http.MethodGet, "/roles/", 1, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Bursar")
	assert.Contains(t, rr.Body.String(), "Administrator")

	rr = serve(t, router, http.MethodGet, "/roles/", 20, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestShowRoleEndpoint(t *testing.T) {
	router := newRolesRouter(t)

	rr := serve(t, router, http.MethodGet, "/roles/7", 1, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"name":"Bursar"`)

	rr = serve(t, router, http.MethodGet, "/roles/99", 1, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(t, router, http.MethodGet, "/roles/abc", 1, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateRoleEndpoint(t *testing.T) {
	router := newRolesRouter(t)

	rr := serve(t, router, http.MethodPost, "/roles/", 10, `{"name":"Registrar"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = serve(t, router, http.MethodPost, "/roles/", 1, `{"name":"Registrar"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), `"name":"Registrar"`)

	rr = serve(t, router, http.MethodPost, "/roles/", 1, `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
