package tenant

import "strings"

// parentPath returns the parent of an absolute, normalized path. The
// parent of "/" is "/"; the parent of a top-level entry is "/".
func parentPath(path string) string {
	if path == "/" {
		return "/"
	}
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}

// baseName returns the final segment of an absolute path.
func baseName(path string) string {
	if path == "/" {
		return ""
	}
	idx := strings.LastIndex(path, "/")
	return path[idx+1:]
}

// ancestors returns every ancestor directory of path below the root,
// shallowest first, path's immediate parent last. The root "/" itself is
// never included, so a top-level path (or "/") yields nil.
func ancestors(path string) []string {
	if path == "/" {
		return nil
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	var out []string
	cur := ""
	for _, seg := range segments[:len(segments)-1] {
		cur += "/" + seg
		out = append(out, cur)
	}
	return out
}
