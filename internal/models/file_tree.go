package models

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// FileTree maps a slash-separated relative path to file contents.
type FileTree map[string]string

// Validate rejects keys that are not clean relative paths, and keys that
// name a file another key uses as a directory.
func (t FileTree) Validate() error {
	for p := range t {
		if err := ValidatePath(p); err != nil {
			return err
		}
	}
	for _, p := range t.Paths() {
		for dir := path.Dir(p); dir != "."; dir = path.Dir(dir) {
			if _, ok := t[dir]; ok {
				return fmt.Errorf("file path %q is also used as a directory by %q", dir, p)
			}
		}
	}
	return nil
}

// ValidatePath checks one file-tree key.
func ValidatePath(p string) error {
	switch {
	case strings.TrimSpace(p) == "":
		return fmt.Errorf("file path must not be empty")
	case strings.HasPrefix(p, "/") || strings.Contains(p, "\\"):
		return fmt.Errorf("file path %q must be relative and slash-separated", p)
	case p == ".":
		return fmt.Errorf("file path %q names the project root", p)
	case path.Clean(p) != p:
		return fmt.Errorf("file path %q is not clean", p)
	case p == ".." || strings.HasPrefix(p, "../"):
		return fmt.Errorf("file path %q escapes the project root", p)
	}
	return nil
}

// Paths returns the keys in lexical order.
func (t FileTree) Paths() []string {
	paths := make([]string, 0, len(t))
	for p := range t {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Clone returns a copy that shares no state with t.
func (t FileTree) Clone() FileTree {
	out := make(FileTree, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
