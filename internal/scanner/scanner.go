package scanner

import (
	"fmt"
	"io/fs"
	"path/filepath"
)

// Scan walks root and returns the in-scope files as sorted repo-relative
// POSIX paths. The .git directory is never entered; excluded directories
// are pruned when safe.
func Scan(root string, filter *Filter) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if d.Name() == ".git" || filter.skippableDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if filter.Match(rel) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return paths, nil
}
