package indexer

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultInclude lists the document patterns indexed when none are configured
var DefaultInclude = []string{"**/*.pdf", "**/*.md", "**/*.markdown"}

// DocumentFile is a discovered source document
type DocumentFile struct {
	Path    string // Absolute path
	RelPath string // Slash-separated path relative to the root
	Name    string // Display name, the file's base name
	Size    int64
}

// Discover walks root and returns documents matching include and not matching
// exclude, in lexical order of their relative paths. Hidden directories are
// skipped. Patterns are matched case-insensitively against the relative path.
func Discover(root string, include, exclude []string) ([]DocumentFile, error) {
	if len(include) == 0 {
		include = DefaultInclude
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "discover", Path: root, Err: fs.ErrInvalid}
	}

	var files []DocumentFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && (strings.HasPrefix(d.Name(), ".") || matchAny(exclude, rel+"/")) {
				return filepath.SkipDir
			}
			return nil
		}

		if !matchAny(include, rel) || matchAny(exclude, rel) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, DocumentFile{
			Path:    path,
			RelPath: rel,
			Name:    d.Name(),
			Size:    fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func matchAny(patterns []string, path string) bool {
	lower := strings.ToLower(path)
	for _, pattern := range patterns {
		matched, err := doublestar.Match(strings.ToLower(pattern), lower)
		if err == nil && matched {
			return true
		}
	}
	return false
}
