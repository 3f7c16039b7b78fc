package api

import (
	"embed"
	"html/template"

	"github.com/lox/brentwatch/internal/content"
	"github.com/lox/brentwatch/internal/report"
)

//go:embed templates/*
var templateFS embed.FS

// newTemplates creates and parses the HTML templates with custom functions.
func newTemplates() *template.Template {
	funcs := template.FuncMap{
		"price": report.FormatPrice,
		"num":   report.FormatNumber,
		"count": report.FormatCount,
		"date":  report.FormatDate,
		"percent": func(v float64) string {
			return report.FormatNumber(v*100) + "%"
		},
		"tabBlock": func(t content.Tab, id string) content.Block {
			b, _ := t.Block(id)
			return b
		},
	}
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}
