package store

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// discoverSources lists every *.jsonl file below root in path order. A
// missing root yields no sources.
func discoverSources(root string) ([]string, error) {
	if strings.TrimSpace(root) == "" {
		return nil, nil
	}
	files := make([]string, 0, 64)

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".jsonl") {
			files = append(files, path)
		}
		return nil
	})

	sort.Strings(files)
	return files, nil
}
