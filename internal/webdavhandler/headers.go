package webdavhandler

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/marble-dav/marble/internal/lock"
	"github.com/marble-dav/marble/internal/marbleerr"
)

// parseLockDepth parses a LOCK request's Depth header into a lock.Depth:
// absent or "0" gives DepthZero, "infinity" gives DepthInfinity, and any
// other value (including "1") is a BadRequest.
func parseLockDepth(r *http.Request) (lock.Depth, error) {
	switch strings.ToLower(r.Header.Get("Depth")) {
	case "", "0":
		return lock.DepthZero, nil
	case "infinity":
		return lock.DepthInfinity, nil
	default:
		return lock.DepthZero, marbleerr.BadRequest("unsupported Depth header value")
	}
}

// propfindDepth is the three-valued Depth a PROPFIND request may specify.
type propfindDepth int

const (
	propfindDepthZero propfindDepth = iota
	propfindDepthOne
	propfindDepthInfinity
)

func parsePropfindDepth(r *http.Request) (propfindDepth, error) {
	switch strings.ToLower(r.Header.Get("Depth")) {
	case "0":
		return propfindDepthZero, nil
	case "", "1":
		return propfindDepthOne, nil
	case "infinity":
		return propfindDepthInfinity, nil
	default:
		return 0, marbleerr.BadRequest("unsupported Depth header value")
	}
}

var timeoutSecondPattern = regexp.MustCompile(`(?i)second-(\d+)`)

// parseLockTimeout parses the WebDAV Timeout header ("Second-60",
// "Infinite", or a comma-separated preference list — the first value this
// server understands wins), clamped to max.
func parseLockTimeout(r *http.Request, def, max time.Duration) time.Duration {
	header := r.Header.Get("Timeout")
	if header == "" {
		return def
	}
	for _, field := range strings.Split(header, ",") {
		field = strings.TrimSpace(field)
		if strings.EqualFold(field, "Infinite") {
			return max
		}
		if m := timeoutSecondPattern.FindStringSubmatch(field); m != nil {
			if secs, err := strconv.Atoi(m[1]); err == nil {
				d := time.Duration(secs) * time.Second
				if d > max {
					return max
				}
				return d
			}
		}
	}
	return def
}

// overwritePermitted parses the Overwrite header (spec §4.7: "T|F"),
// defaulting to true per RFC 4918 §10.6.
func overwritePermitted(r *http.Request) bool {
	v := strings.ToUpper(strings.TrimSpace(r.Header.Get("Overwrite")))
	return v != "F"
}

// destinationPath resolves the Destination header (an absolute URL or an
// absolute path) to a normalized facade path.
func destinationPath(r *http.Request) (string, error) {
	dest := r.Header.Get("Destination")
	if dest == "" {
		return "", marbleerr.BadRequest("Destination header is required")
	}
	if idx := strings.Index(dest, "://"); idx >= 0 {
		if slash := strings.Index(dest[idx+3:], "/"); slash >= 0 {
			dest = dest[idx+3+slash:]
		} else {
			dest = "/"
		}
	}
	return normalizePath(dest)
}

var lockTokenPattern = regexp.MustCompile(`<([^>]+)>`)

// presentedTokens extracts every lock token referenced by the If header
// (RFC 4918 §10.4), which Obsidian and other clients send as
// `If: (<urn:uuid:...>)` regardless of etag conditions this server does not
// implement.
func presentedTokens(r *http.Request) []string {
	var tokens []string
	for _, m := range lockTokenPattern.FindAllStringSubmatch(r.Header.Get("If"), -1) {
		tokens = append(tokens, m[1])
	}
	return tokens
}

// lockTokenHeader extracts the single token from a Lock-Token header
// (UNLOCK), with or without its angle brackets. If-header tokens are read
// by presentedTokens instead.
func lockTokenHeader(r *http.Request) string {
	raw := r.Header.Get("Lock-Token")
	if raw == "" {
		return ""
	}
	if m := lockTokenPattern.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return strings.TrimSpace(raw)
}
