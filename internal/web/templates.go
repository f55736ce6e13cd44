package web

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = []string{"home.html", "login.html", "sheets.html", "topics.html"}

// templateSet holds one parsed tree per page, each layered over base.html.
type templateSet struct {
	pages map[string]*template.Template
}

var templateFuncs = template.FuncMap{
	"ago": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return humanize.Time(t)
	},
	"sources": func(n int) string {
		return fmt.Sprintf("%s %s", humanize.Comma(int64(n)), english.PluralWord(n, "source", ""))
	},
	"date": func(t time.Time) string {
		return t.Format("01/02/2006")
	},
	// rawJSON marks already-encoded JSON (json.Marshal escapes <, > and &) as script-safe.
	"rawJSON": func(encoded string) template.JS {
		return template.JS(encoded)
	},
	"json": func(v any) (template.JS, error) {
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return template.JS(encoded), nil
	},
}

func mustLoadTemplates() *templateSet {
	set := &templateSet{pages: make(map[string]*template.Template, len(pageTemplates))}
	for _, name := range pageTemplates {
		set.pages[name] = template.Must(
			template.New(name).Funcs(templateFuncs).ParseFS(templateFS, "templates/base.html", "templates/"+name),
		)
	}
	return set
}

type baseData struct {
	Title      string
	User       *viewerData
	CurrentURL string
}

type viewerData struct {
	ID   int64
	Name string
}

// render executes page inside base.html. Template failures fall back to a
// plain-text 500.
func (s *Server) render(c *gin.Context, status int, page string, data any) {
	tmpl, ok := s.templates.pages[page]
	if !ok {
		c.String(http.StatusInternalServerError, "Template error")
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(status)
	if err := tmpl.ExecuteTemplate(c.Writer, "base.html", data); err != nil {
		log.Printf("web: render %s: %v", page, err)
	}
}
