package bookmarks

import (
	"strings"

	"github.com/starford/othala/internal/storage"
)

// ExpandPath resolves path shorthands: a leading "~" stands for the
// default shelf.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		return storage.DefaultShelfName + strings.TrimPrefix(path, "~")
	}
	return path
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return storage.DefaultShelfName
	}
	return path
}

// SplitPath normalizes a slash path and returns its non-empty segments.
// An empty path maps to the default shelf.
func SplitPath(path string) []string {
	var out []string
	for _, seg := range strings.Split(normalizePath(path), "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}
