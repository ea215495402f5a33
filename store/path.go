package store

import "strings"

// Paths are slash-delimited and rooted: "/a/b/c". The root itself is "/".
// Helpers here normalize caller input so every backend keys nodes the same
// way.

// CleanPath normalizes path to rooted form without a trailing slash.
// Empty input means the root.
func CleanPath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(path, "/")
}

// SplitPath returns the name segments of path. The root has none.
func SplitPath(path string) []string {
	path = CleanPath(path)
	if path == "/" {
		return nil
	}
	return strings.Split(path[1:], "/")
}

// JoinPath appends name under parent.
func JoinPath(parent, name string) string {
	parent = CleanPath(parent)
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

// ParentPath returns the parent of path; the root is its own parent.
func ParentPath(path string) string {
	path = CleanPath(path)
	if path == "/" {
		return "/"
	}
	i := strings.LastIndexByte(path, '/')
	if i == 0 {
		return "/"
	}
	return path[:i]
}

// BaseName returns the last segment of path, "" for the root.
func BaseName(path string) string {
	path = CleanPath(path)
	if path == "/" {
		return ""
	}
	return path[strings.LastIndexByte(path, '/')+1:]
}

// Ancestry returns every prefix of path from the first segment down to path
// itself, e.g. "/a/b/c" -> ["/a", "/a/b", "/a/b/c"].
func Ancestry(path string) []string {
	segs := SplitPath(path)
	out := make([]string, 0, len(segs))
	cur := ""
	for _, s := range segs {
		cur = cur + "/" + s
		out = append(out, cur)
	}
	return out
}
