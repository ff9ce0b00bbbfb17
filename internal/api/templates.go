package api

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"math"

	"github.com/bobarin/promptreel/internal/storage"
)

//go:embed templates/*.html
var templateFS embed.FS

var templateFuncs = template.FuncMap{
	"megabytes": func(size int64) string {
		return fmt.Sprintf("%.2f", math.Round(float64(size)/(1024*1024)*100)/100)
	},
	"videoURL": storage.GetPublicURL,
}

func parseTemplates() (*template.Template, error) {
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return tmpl, nil
}

func (h *Handler) render(w io.Writer, name string, data any) error {
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("execute template %q: %w", name, err)
	}
	return nil
}
