// Package render turns Markdown documents into HTML. It owns path
// resolution under the docs root, frontmatter extraction and syntax
// highlighting of fenced code blocks.
package render

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/russross/blackfriday/v2"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-docs/types"
)

type MarkdownRenderer struct {
	root       string
	extensions []string
	theme      string
	indexFile  string
	logger     types.Logger
}

func NewMarkdownRenderer(logger types.Logger, config *types.DocsConfig) (*MarkdownRenderer, error) {
	if config == nil {
		return nil, types.ErrConfigIsNil
	}

	root, err := filepath.Abs(config.Root)
	if err != nil {
		return nil, types.WrapError(err, "failed to resolve docs root")
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, types.WrapError(err, "docs root not accessible: "+root)
	}
	if !info.IsDir() {
		return nil, types.Errorf(types.ErrWatcherRootInvalid, "docs root is not a directory: %s", root)
	}

	extensions := config.Extensions
	if len(extensions) == 0 {
		extensions = []string{".md", ".markdown"}
	}

	return &MarkdownRenderer{
		root:       root,
		extensions: extensions,
		theme:      config.Theme,
		indexFile:  config.IndexFile,
		logger:     logger,
	}, nil
}

func (r *MarkdownRenderer) Root() string {
	return r.root
}

func (r *MarkdownRenderer) IndexFile() string {
	return r.indexFile
}

// Supports reports whether the path carries a renderable extension.
func (r *MarkdownRenderer) Supports(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, supported := range r.extensions {
		if ext == supported {
			return true
		}
	}
	return false
}

// Resolve maps a request path onto an absolute file path inside the docs
// root. Anything escaping the root is rejected.
func (r *MarkdownRenderer) Resolve(requestPath string) (string, error) {
	cleaned := filepath.Clean("/" + requestPath)
	absolute := filepath.Join(r.root, cleaned)

	if absolute != r.root && !strings.HasPrefix(absolute, r.root+string(filepath.Separator)) {
		return "", types.Errorf(types.ErrDocumentOutsideRoot, "path: %s", requestPath)
	}

	info, err := os.Stat(absolute)
	if err != nil {
		return "", types.Errorf(types.ErrDocumentNotFound, "path: %s", requestPath)
	}

	if info.IsDir() {
		if r.indexFile == "" {
			return "", types.Errorf(types.ErrDocumentNotFound, "path: %s", requestPath)
		}
		absolute = filepath.Join(absolute, r.indexFile)
		if _, err := os.Stat(absolute); err != nil {
			return "", types.Errorf(types.ErrDocumentNotFound, "path: %s", requestPath)
		}
	}

	if !r.Supports(absolute) {
		return "", types.Errorf(types.ErrUnsupportedExtension, "path: %s", requestPath)
	}

	return absolute, nil
}

// Render reads the source file named by params.FilePath and produces HTML,
// along with the file's modification time observed just before the read.
// The cache records that time against the entry, so a write racing the
// render still invalidates. The frontmatter block is stripped before the
// Markdown pass.
func (r *MarkdownRenderer) Render(params types.CacheKeyParams) (string, time.Time, error) {
	if params.FilePath == "" {
		return "", time.Time{}, types.Errorf(types.ErrInvalidKeyParams, "file path is empty")
	}

	if params.FilePath != r.root && !strings.HasPrefix(params.FilePath, r.root+string(filepath.Separator)) {
		return "", time.Time{}, types.Errorf(types.ErrDocumentOutsideRoot, "path: %s", params.FilePath)
	}

	info, err := os.Stat(params.FilePath)
	if err != nil {
		return "", time.Time{}, types.Errorf(types.ErrDocumentNotFound, "path: %s", params.FilePath)
	}
	modifiedAt := info.ModTime()

	source, err := os.ReadFile(params.FilePath)
	if err != nil {
		return "", time.Time{}, types.Errorf(types.ErrDocumentNotFound, "path: %s", params.FilePath)
	}

	_, body := SplitFrontmatter(source)

	html, err := r.renderMarkdown(body, params)
	if err != nil {
		return "", time.Time{}, types.Errorf(types.ErrRenderFailed, "path %s: %v", params.FilePath, err)
	}

	if r.logger != nil {
		r.logger.Debug("Document rendered",
			zap.String("path", params.FilePath),
			zap.Int("source_bytes", len(source)),
			zap.Int("html_bytes", len(html)))
	}

	return html, modifiedAt, nil
}

// Frontmatter extracts the metadata block without rendering the body.
func (r *MarkdownRenderer) Frontmatter(absolutePath string) (types.Frontmatter, error) {
	source, err := os.ReadFile(absolutePath)
	if err != nil {
		return nil, types.Errorf(types.ErrDocumentNotFound, "path: %s", absolutePath)
	}

	matter, _ := SplitFrontmatter(source)
	return matter, nil
}

func (r *MarkdownRenderer) renderMarkdown(body []byte, params types.CacheKeyParams) (string, error) {
	extensions := blackfriday.CommonExtensions | blackfriday.AutoHeadingIDs
	if params.Options[types.OptionHardWraps] == "true" {
		extensions |= blackfriday.HardLineBreak
	}

	htmlFlags := blackfriday.CommonHTMLFlags
	if params.Options[types.OptionTOC] == "true" {
		htmlFlags |= blackfriday.TOC
	}

	theme := params.Theme
	if theme == "" {
		theme = r.theme
	}

	renderer := newHighlightingRenderer(highlightOptions{
		theme:       theme,
		lineNumbers: params.Options[types.OptionLineNumbers] == "true",
	}, blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: htmlFlags,
	}))

	output := blackfriday.Run(body,
		blackfriday.WithExtensions(extensions),
		blackfriday.WithRenderer(renderer))

	return string(output), nil
}
