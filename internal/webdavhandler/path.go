package webdavhandler

import (
	"net/url"
	"strings"

	"github.com/marble-dav/marble/internal/marbleerr"
)

// normalizePath percent-decodes an HTTP request path and validates it into
// the absolute, forward-slash form the facade expects (spec §4.4, §4.7):
// leading "/", no trailing "/" except root, no "." or ".." segments.
func normalizePath(raw string) (string, error) {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", marbleerr.BadRequest("malformed path encoding")
	}
	if !strings.HasPrefix(decoded, "/") {
		return "", marbleerr.BadRequest("path must be absolute")
	}
	if decoded == "/" {
		return "/", nil
	}

	segments := strings.Split(strings.Trim(decoded, "/"), "/")
	clean := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "":
			return "", marbleerr.BadRequest("path contains an empty segment")
		case ".", "..":
			return "", marbleerr.BadRequest("path traversal segments are not permitted")
		default:
			clean = append(clean, seg)
		}
	}
	return "/" + strings.Join(clean, "/"), nil
}

// encodeHref percent-encodes path for use in an XML <href> element;
// internal facade calls always use the decoded form (spec §4.7).
func encodeHref(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	if path == "/" {
		return "/"
	}
	return "/" + strings.Join(segments, "/")
}
