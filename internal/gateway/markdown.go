// ABOUTME: Markdown rendering for optional HTML responses
// ABOUTME: Raw HTML in engine output is dropped, not passed through

package gateway

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

func newMarkdown() goldmark.Markdown {
	return goldmark.New(goldmark.WithExtensions(extension.GFM))
}

func (g *Gateway) renderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := g.markdown.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
