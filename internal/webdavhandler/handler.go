// Package webdavhandler implements the WebDAV protocol handler (spec
// §4.7): it authenticates requests, normalizes paths, enforces the lock
// manager's write gate, dispatches to the TenantStorage facade, and
// renders WebDAV-compliant responses.
package webdavhandler

import (
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/marble-dav/marble/internal/auth"
	"github.com/marble-dav/marble/internal/config"
	"github.com/marble-dav/marble/internal/lock"
	"github.com/marble-dav/marble/internal/marbleerr"
	"github.com/marble-dav/marble/internal/tenant"
)

// mutatingMethods consult the lock manager before dispatch (spec §4.7
// step 3). LOCK is excluded: it creates the lock it would otherwise be
// checked against. UNLOCK is excluded too: its token arrives in the
// Lock-Token header, which lock.Manager.Unlock checks itself.
var mutatingMethods = map[string]bool{
	http.MethodPut:    true,
	"MKCOL":           true,
	http.MethodDelete: true,
	"PROPPATCH":       true,
	"COPY":            true,
	"MOVE":            true,
}

// Handler is the WebDAV HTTP handler. It owns no state of its own beyond
// its collaborators and is safe for concurrent use.
type Handler struct {
	storage *tenant.Storage
	auth    *auth.Service
	locks   *lock.Manager
	log     zerolog.Logger

	maxBodyBytes          int64
	maxLockTimeout        time.Duration
	propfindDepthInfinity config.DepthInfinityPolicy
}

// New builds a Handler wired to its collaborators per cfg.
func New(storage *tenant.Storage, authSvc *auth.Service, locks *lock.Manager, cfg *config.Config, log zerolog.Logger) *Handler {
	return &Handler{
		storage:               storage,
		auth:                  authSvc,
		locks:                 locks,
		log:                   log.With().Str("component", "webdavhandler.Handler").Logger(),
		maxBodyBytes:          cfg.MaxBodyBytes,
		maxLockTimeout:        cfg.MaxLockTimeout,
		propfindDepthInfinity: cfg.PropfindDepthInfinity,
	}
}

// ServeHTTP implements the common pipeline: authenticate, normalize,
// lock-check, dispatch, map errors to status codes (spec §4.7).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.log.With().Str("method", r.Method).Str("raw_path", r.URL.Path).Logger()

	tenantUUID, ok := h.authenticate(r)
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="marble"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	path, err := normalizePath(r.URL.Path)
	if err != nil {
		h.writeError(w, log, err)
		return
	}

	if mutatingMethods[r.Method] {
		if err := h.locks.Check(tenantUUID, path, presentedTokens(r)); err != nil {
			h.writeError(w, log, err)
			return
		}
	}

	ctx := r.Context()
	log = log.With().Str("tenant", tenantUUID).Str("path", path).Logger()

	switch r.Method {
	case http.MethodGet:
		h.handleGet(ctx, w, log, tenantUUID, path, true)
	case http.MethodHead:
		h.handleGet(ctx, w, log, tenantUUID, path, false)
	case http.MethodOptions:
		h.handleOptions(ctx, w, log, tenantUUID, path)
	case http.MethodPut:
		h.handlePut(ctx, w, r, log, tenantUUID, path)
	case "MKCOL":
		h.handleMkcol(ctx, w, log, tenantUUID, path)
	case http.MethodDelete:
		h.handleDelete(ctx, w, log, tenantUUID, path)
	case "PROPFIND":
		h.handlePropfind(ctx, w, r, log, tenantUUID, path)
	case "PROPPATCH":
		h.handlePropPatch(ctx, w, r, log, tenantUUID, path)
	case "COPY":
		h.handleCopyOrMove(ctx, w, r, log, tenantUUID, path, h.storage.Copy)
	case "MOVE":
		h.handleCopyOrMove(ctx, w, r, log, tenantUUID, path, h.storage.Move)
	case "LOCK":
		h.handleLock(w, r, log, tenantUUID, path)
	case "UNLOCK":
		h.handleUnlock(w, r, log, tenantUUID, path)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) authenticate(r *http.Request) (string, bool) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return "", false
	}
	uuid, err := h.auth.Authenticate(r.Context(), username, password)
	if err != nil {
		return "", false
	}
	return uuid, true
}

// writeError maps a typed error to its HTTP status (spec §7), logging
// backend failures with context but never leaking internals to the client.
func (h *Handler) writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	status := marbleerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
		http.Error(w, "internal error", status)
		return
	}
	log.Debug().Err(err).Int("status", status).Msg("request failed")
	http.Error(w, err.Error(), status)
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, marbleerr.PayloadTooLarge("request body exceeds the configured limit")
	}
	return b, nil
}
