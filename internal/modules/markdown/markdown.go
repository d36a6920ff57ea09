// Package markdown converts content bodies to HTML and plain-text summaries.
package markdown

import (
	"bytes"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

// Renderer turns markdown into trusted HTML.
type Renderer interface {
	Render(src string) (template.HTML, error)
}

// Goldmark is the default Renderer.
type Goldmark struct {
	md goldmark.Markdown
}

// New builds the goldmark pipeline used for every content body.
func New() *Goldmark {
	return &Goldmark{md: goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Table,
			extension.Strikethrough,
			extension.TaskList,
			extension.Linkify,
			extension.Typographer,
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			htmlrenderer.WithUnsafe(),
			htmlrenderer.WithXHTML(),
		),
	)}
}

// Render converts src to HTML. Authors are trusted, so raw HTML passes through.
func (g *Goldmark) Render(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := g.md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
