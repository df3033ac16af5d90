package render

import (
	"bytes"

	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-docs/types"
)

var frontmatterDelimiter = []byte("---")

// SplitFrontmatter separates an optional leading YAML block from the
// document body. A malformed block is treated as body text, not an error.
func SplitFrontmatter(source []byte) (types.Frontmatter, []byte) {
	trimmed := bytes.TrimPrefix(source, []byte("\xef\xbb\xbf"))

	if !bytes.HasPrefix(trimmed, frontmatterDelimiter) {
		return nil, trimmed
	}

	rest := trimmed[len(frontmatterDelimiter):]
	if len(rest) == 0 || (rest[0] != '\n' && !bytes.HasPrefix(rest, []byte("\r\n"))) {
		return nil, trimmed
	}

	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, trimmed
	}

	block := rest[:end]
	body := rest[end+len("\n---"):]
	body = bytes.TrimPrefix(body, []byte("\r"))
	body = bytes.TrimPrefix(body, []byte("\n"))

	matter := types.Frontmatter{}
	if err := yaml.Unmarshal(block, &matter); err != nil {
		return nil, trimmed
	}

	return matter, body
}
