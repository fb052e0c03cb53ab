package utils

import (
	"path/filepath"
	"strings"
)

// PathGuard answers containment queries against a fixed set of root
// directories. Roots are normalized once at construction.
type PathGuard struct {
	roots []string
}

func NewPathGuard(roots []string) *PathGuard {
	guard := &PathGuard{roots: make([]string, 0, len(roots))}
	for _, root := range roots {
		guard.roots = append(guard.roots, normalize(root))
	}
	return guard
}

// Contains returns true if path sits under any of the guard's roots.
func (g *PathGuard) Contains(path string) bool {
	resolved := normalize(path)
	for _, root := range g.roots {
		rel, err := filepath.Rel(root, resolved)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// IsPathWithin returns true if the given path is within any of the roots.
func IsPathWithin(path string, roots []string) bool {
	return NewPathGuard(roots).Contains(path)
}

func normalize(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		resolved = path
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return filepath.Clean(resolved)
	}
	return abs
}
