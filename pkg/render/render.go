// Package render executes the embedded HTML page templates.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"time"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

const layoutFile = "layout.tmpl"

// Engine renders templates embedded in the package. Every page is parsed
// together with the shared layout into its own set.
type Engine struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"timefmt": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format("2006-01-02 15:04:05 UTC")
	},
}

// New initialises an Engine by parsing all embedded templates.
func New() (*Engine, error) {
	files, err := fs.Glob(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("glob templates: %w", err)
	}

	pages := make(map[string]*template.Template, len(files))
	for _, f := range files {
		name := path.Base(f)
		if name == layoutFile {
			continue
		}
		t, err := template.New(layoutFile).Funcs(funcs).ParseFS(templatesFS, "templates/"+layoutFile, f)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		pages[name] = t
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no page templates found")
	}
	return &Engine{pages: pages}, nil
}

// Render executes the named page inside the layout and returns the document.
func (e *Engine) Render(name string, data any) ([]byte, error) {
	if e == nil || e.pages == nil {
		return nil, fmt.Errorf("nil engine")
	}
	t, ok := e.pages[name]
	if !ok {
		return nil, fmt.Errorf("unknown template %q", name)
	}

	buf := bytes.NewBuffer(nil)
	if err := t.ExecuteTemplate(buf, "layout", data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
