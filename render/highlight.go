package render

import (
	"io"
	"strings"

	"github.com/alecthomas/chroma"
	chromahtml "github.com/alecthomas/chroma/formatters/html"
	"github.com/alecthomas/chroma/lexers"
	"github.com/alecthomas/chroma/styles"
	"github.com/russross/blackfriday/v2"
)

type highlightOptions struct {
	theme       string
	lineNumbers bool
}

// highlightingRenderer intercepts fenced code blocks and runs them through
// chroma. Everything else falls through to the wrapped HTML renderer.
type highlightingRenderer struct {
	html    *blackfriday.HTMLRenderer
	options highlightOptions
}

func newHighlightingRenderer(options highlightOptions, html *blackfriday.HTMLRenderer) *highlightingRenderer {
	return &highlightingRenderer{
		html:    html,
		options: options,
	}
}

func (r *highlightingRenderer) RenderNode(w io.Writer, node *blackfriday.Node, entering bool) blackfriday.WalkStatus {
	if node.Type == blackfriday.CodeBlock {
		if err := r.highlight(w, node); err != nil {
			return r.html.RenderNode(w, node, entering)
		}
		return blackfriday.GoToNext
	}
	return r.html.RenderNode(w, node, entering)
}

func (r *highlightingRenderer) RenderHeader(w io.Writer, ast *blackfriday.Node) {
	r.html.RenderHeader(w, ast)
}

func (r *highlightingRenderer) RenderFooter(w io.Writer, ast *blackfriday.Node) {
	r.html.RenderFooter(w, ast)
}

func (r *highlightingRenderer) highlight(w io.Writer, node *blackfriday.Node) error {
	language := languageOf(node)

	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get(r.options.theme)
	if style == nil {
		style = styles.Fallback
	}

	iterator, err := lexer.Tokenise(nil, string(node.Literal))
	if err != nil {
		return err
	}

	formatterOptions := []chromahtml.Option{
		chromahtml.TabWidth(4),
	}
	if r.options.lineNumbers {
		formatterOptions = append(formatterOptions, chromahtml.WithLineNumbers(true))
	}

	return chromahtml.New(formatterOptions...).Format(w, style, iterator)
}

func languageOf(node *blackfriday.Node) string {
	info := string(node.CodeBlockData.Info)
	if idx := strings.IndexAny(info, " \t"); idx >= 0 {
		info = info[:idx]
	}
	return strings.TrimSpace(info)
}
