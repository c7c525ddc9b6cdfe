package view

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestRenderHomeShowsOnlyVisibleNav(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	err = engine.Render(rr, http.StatusOK, "pages/home.html", TemplateData{
		Title: "Dashboard",
		Nav:   map[string]bool{"nav.dashboard": true, "nav.staff_list": true},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `href="/staff"`)
	assert.NotContains(t, body, `href="/permissions"`)
}

func TestRenderNilEngine(t *testing.T) {
	var engine *Engine
	err := engine.Render(httptest.NewRecorder(), http.StatusOK, "pages/home.html", TemplateData{})
	assert.Error(t, err)
}
