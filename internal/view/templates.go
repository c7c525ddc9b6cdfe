// Package view renders the server-side HTML pages.
package view

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/studentdesk/studentdesk/internal/shared"
	"github.com/studentdesk/studentdesk/web"
)

// Engine holds the parsed template set.
type Engine struct {
	set *template.Template
}

// TemplateData is the value every page template receives.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	// Nav holds the visible permission keys of the signed-in staff member.
	Nav  map[string]bool
	Data any
}

var funcs = template.FuncMap{
	"formatDate": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format("2 Jan 2006 15:04")
	},
	"can": func(nav map[string]bool, key string) bool { return nav[key] },
}

// NewEngine parses the embedded layouts, partials and pages.
func NewEngine() (*Engine, error) {
	set, err := template.New("studentdesk").Funcs(funcs).ParseFS(web.Templates,
		"templates/layouts/*.html",
		"templates/partials/*.html",
		"templates/pages/*.html",
	)
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Engine{set: set}, nil
}

// Render executes name into a buffer and writes it with status. Nothing is
// written when execution fails. A zero status means 200.
func (e *Engine) Render(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil || e.set == nil {
		return errors.New("view: engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.set.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
