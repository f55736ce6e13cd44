package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var sheetTemplate = template.Must(template.New("sheet.html").Funcs(template.FuncMap{
	"markdown": MarkdownToHTML,
	"formatDate": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("Jan 2, 2006")
	},
}).ParseFS(templateFS, "templates/sheet.html"))

// RenderSheetHTML renders doc as a standalone HTML page.
func RenderSheetHTML(doc Document) (string, error) {
	var buf bytes.Buffer
	if err := sheetTemplate.Execute(&buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}
