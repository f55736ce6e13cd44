package export

import (
	"bytes"
	"encoding/json"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
	goldmark.WithParserOptions(parser.WithASTTransformers(
		util.Prioritized(&imageTextTransformer{}, 100),
	)),
)

// imageTextTransformer replaces images with their alt text so exported
// documents never reference remote resources.
type imageTextTransformer struct{}

func (t *imageTextTransformer) Transform(node *ast.Document, reader text.Reader, pc parser.Context) {
	var images []*ast.Image
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if img, ok := n.(*ast.Image); ok && entering {
			images = append(images, img)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	for _, img := range images {
		parent := img.Parent()
		if parent == nil {
			continue
		}
		for child := img.FirstChild(); child != nil; {
			next := child.NextSibling()
			parent.InsertBefore(parent, img, child)
			child = next
		}
		parent.RemoveChild(parent, img)
	}
}

// ParseSources decodes the stored source objects. Entries that are not
// objects are kept as empty sources so positions stay stable.
func ParseSources(raw []json.RawMessage) []Source {
	sources := make([]Source, 0, len(raw))
	for _, item := range raw {
		var source Source
		_ = json.Unmarshal(item, &source)
		sources = append(sources, source)
	}
	return sources
}

// MarkdownToHTML renders note text. Raw HTML in the input is dropped by
// goldmark's default renderer.
func MarkdownToHTML(text string) template.HTML {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String())
}
