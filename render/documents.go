package render

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/saiset-co/sai-docs/types"
)

// Tree lists the renderable documents under the docs root as a nested
// structure. Hidden entries and unsupported files are skipped.
func (r *MarkdownRenderer) Tree() ([]types.DocumentInfo, error) {
	return r.listDir(r.root, "")
}

func (r *MarkdownRenderer) listDir(absolute, relative string) ([]types.DocumentInfo, error) {
	entries, err := os.ReadDir(absolute)
	if err != nil {
		return nil, types.WrapError(err, "failed to list directory: "+absolute)
	}

	var infos []types.DocumentInfo
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		childRelative := name
		if relative != "" {
			childRelative = relative + "/" + name
		}

		if entry.IsDir() {
			children, err := r.listDir(filepath.Join(absolute, name), childRelative)
			if err != nil {
				return nil, err
			}
			if len(children) == 0 {
				continue
			}

			infos = append(infos, types.DocumentInfo{
				Path:     childRelative,
				Name:     name,
				IsDir:    true,
				Children: children,
			})
			continue
		}

		if !r.Supports(name) {
			continue
		}

		fileInfo, err := entry.Info()
		if err != nil {
			continue
		}

		infos = append(infos, types.DocumentInfo{
			Path:       childRelative,
			Name:       name,
			Size:       fileInfo.Size(),
			ModifiedAt: fileInfo.ModTime(),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].IsDir != infos[j].IsDir {
			return infos[i].IsDir
		}
		return infos[i].Name < infos[j].Name
	})

	return infos, nil
}

// Paths flattens the tree into the absolute file paths of every document,
// the shape the warmup endpoint consumes.
func (r *MarkdownRenderer) Paths() ([]string, error) {
	tree, err := r.Tree()
	if err != nil {
		return nil, err
	}

	var paths []string
	var walk func(infos []types.DocumentInfo)
	walk = func(infos []types.DocumentInfo) {
		for _, info := range infos {
			if info.IsDir {
				walk(info.Children)
				continue
			}
			paths = append(paths, filepath.Join(r.root, filepath.FromSlash(info.Path)))
		}
	}
	walk(tree)

	return paths, nil
}
