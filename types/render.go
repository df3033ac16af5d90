package types

import (
	"time"
)

// Renderer turns raw document source into HTML, reporting the source file's
// modification time as observed during the read. The cache never inspects
// its internals; it only runs it inside a compute closure.
type Renderer interface {
	Render(params CacheKeyParams) (string, time.Time, error)
	Supports(path string) bool
}

// RenderOptions are the recognized keys of CacheKeyParams.Options.
const (
	OptionTOC         = "toc"
	OptionHardWraps   = "hard_wraps"
	OptionLineNumbers = "line_numbers"
)

type DocumentInfo struct {
	Path       string         `json:"path"`
	Name       string         `json:"name"`
	IsDir      bool           `json:"is_dir"`
	Size       int64          `json:"size"`
	ModifiedAt time.Time      `json:"modified_at"`
	Children   []DocumentInfo `json:"children,omitempty"`
}

// Frontmatter is the YAML block extracted from the head of a document.
type Frontmatter map[string]interface{}
