package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-docs/types"
)

func newTestRenderer(t *testing.T) (*MarkdownRenderer, string) {
	t.Helper()
	root := t.TempDir()

	renderer, err := NewMarkdownRenderer(nil, &types.DocsConfig{
		Root:      root,
		Theme:     "monokai",
		IndexFile: "README.md",
	})
	require.NoError(t, err)
	return renderer, root
}

func writeDoc(t *testing.T, root, name, content string) string {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRenderBasicMarkdown(t *testing.T) {
	renderer, root := newTestRenderer(t)
	path := writeDoc(t, root, "guide.md", "# Title\n\nSome *emphasis* here.\n")

	html, modifiedAt, err := renderer.Render(types.CacheKeyParams{Source: "markdown file", FilePath: path})
	require.NoError(t, err)
	assert.Contains(t, html, "<h1")
	assert.Contains(t, html, "Title")
	assert.Contains(t, html, "<em>emphasis</em>")

	// The reported modification time is the one seen when the source was read.
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, modifiedAt.Equal(info.ModTime()))
}

func TestRenderStripsFrontmatter(t *testing.T) {
	renderer, root := newTestRenderer(t)
	path := writeDoc(t, root, "guide.md", "---\ntitle: Guide\ntags:\n  - intro\n---\n# Body\n")

	html, _, err := renderer.Render(types.CacheKeyParams{Source: "markdown file", FilePath: path})
	require.NoError(t, err)
	assert.NotContains(t, html, "title: Guide")
	assert.Contains(t, html, "Body")

	matter, err := renderer.Frontmatter(path)
	require.NoError(t, err)
	assert.Equal(t, "Guide", matter["title"])
}

func TestRenderHighlightsCode(t *testing.T) {
	renderer, root := newTestRenderer(t)
	path := writeDoc(t, root, "code.md", "```go\npackage main\n```\n")

	html, _, err := renderer.Render(types.CacheKeyParams{Source: "markdown file", FilePath: path})
	require.NoError(t, err)
	assert.Contains(t, html, "<pre")
	assert.Contains(t, html, "package")
}

func TestRenderMissingFile(t *testing.T) {
	renderer, root := newTestRenderer(t)

	_, _, err := renderer.Render(types.CacheKeyParams{
		Source:   "markdown file",
		FilePath: filepath.Join(root, "missing.md"),
	})
	assert.ErrorIs(t, err, types.ErrDocumentNotFound)
}

func TestRenderRejectsPathOutsideRoot(t *testing.T) {
	renderer, _ := newTestRenderer(t)

	_, _, err := renderer.Render(types.CacheKeyParams{
		Source:   "markdown file",
		FilePath: "/etc/passwd",
	})
	assert.ErrorIs(t, err, types.ErrDocumentOutsideRoot)
}

func TestResolve(t *testing.T) {
	renderer, root := newTestRenderer(t)
	writeDoc(t, root, "guide.md", "# Guide")
	writeDoc(t, root, "README.md", "# Index")
	writeDoc(t, root, "notes.txt", "plain")

	resolved, err := renderer.Resolve("guide.md")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "guide.md"), resolved)

	// A directory resolves to its index file.
	resolved, err = renderer.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "README.md"), resolved)

	_, err = renderer.Resolve("../../../etc/passwd")
	assert.Error(t, err)

	_, err = renderer.Resolve("notes.txt")
	assert.ErrorIs(t, err, types.ErrUnsupportedExtension)

	_, err = renderer.Resolve("nope.md")
	assert.ErrorIs(t, err, types.ErrDocumentNotFound)
}

func TestTreeAndPaths(t *testing.T) {
	renderer, root := newTestRenderer(t)
	writeDoc(t, root, "README.md", "# Index")
	writeDoc(t, root, "guides/setup.md", "# Setup")
	writeDoc(t, root, "guides/ignored.txt", "plain")
	writeDoc(t, root, ".hidden/secret.md", "# Secret")

	tree, err := renderer.Tree()
	require.NoError(t, err)
	require.Len(t, tree, 2)
	assert.True(t, tree[0].IsDir)
	assert.Equal(t, "guides", tree[0].Name)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, "guides/setup.md", tree[0].Children[0].Path)
	assert.Equal(t, "README.md", tree[1].Name)

	paths, err := renderer.Paths()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "guides", "setup.md"),
		filepath.Join(root, "README.md"),
	}, paths)
}

func TestSplitFrontmatterMalformed(t *testing.T) {
	matter, body := SplitFrontmatter([]byte("---\n: bad: [\n---\nbody"))
	assert.Nil(t, matter)
	assert.Contains(t, string(body), "---")

	matter, body = SplitFrontmatter([]byte("no frontmatter here"))
	assert.Nil(t, matter)
	assert.Equal(t, "no frontmatter here", string(body))
}
