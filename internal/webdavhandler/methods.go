package webdavhandler

import (
	"context"
	"encoding/xml"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/marble-dav/marble/internal/config"
	"github.com/marble-dav/marble/internal/lock"
	"github.com/marble-dav/marble/internal/marbleerr"
)

func (h *Handler) handleGet(ctx context.Context, w http.ResponseWriter, log zerolog.Logger, tenantUUID, path string, withBody bool) {
	meta, err := h.storage.Metadata(ctx, tenantUUID, path)
	if err != nil {
		h.writeError(w, log, err)
		return
	}
	if meta.IsDirectory {
		http.Error(w, "cannot GET a directory", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Last-Modified", httpDate(meta.LastModified))
	w.Header().Set("ETag", `"`+meta.ContentHash+`"`)

	if !withBody {
		w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
		w.WriteHeader(http.StatusOK)
		return
	}

	b, err := h.storage.Read(ctx, tenantUUID, path)
	if err != nil {
		h.writeError(w, log, err)
		return
	}
	w.Header().Set("Content-Length", strconv.FormatInt(int64(len(b)), 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// handleOptions advertises the supported method/DAV compliance classes. On
// the tenant root it also reports the live file count (spec §4.3
// CountByUser) as a lightweight operational signal, rather than nothing at
// all.
func (h *Handler) handleOptions(ctx context.Context, w http.ResponseWriter, log zerolog.Logger, tenantUUID, path string) {
	w.Header().Set("Allow", "OPTIONS, GET, HEAD, PUT, DELETE, MKCOL, PROPFIND, PROPPATCH, COPY, MOVE, LOCK, UNLOCK")
	w.Header().Set("DAV", "1, 2")
	if path == "/" {
		if n, err := h.storage.FileCount(ctx, tenantUUID); err != nil {
			log.Debug().Err(err).Msg("file count unavailable for OPTIONS response")
		} else {
			w.Header().Set("X-Marble-File-Count", strconv.FormatInt(n, 10))
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handlePut(ctx context.Context, w http.ResponseWriter, r *http.Request, log zerolog.Logger, tenantUUID, path string) {
	body, err := h.readBody(w, r)
	if err != nil {
		h.writeError(w, log, err)
		return
	}

	existed, err := h.storage.Exists(ctx, tenantUUID, path)
	if err != nil {
		h.writeError(w, log, err)
		return
	}
	if existedMeta, err := h.storage.Metadata(ctx, tenantUUID, path); err == nil && existedMeta.IsDirectory {
		http.Error(w, "a folder exists at this path", http.StatusMethodNotAllowed)
		return
	}

	if err := h.storage.Write(ctx, tenantUUID, path, body, r.Header.Get("Content-Type")); err != nil {
		h.writeError(w, log, err)
		return
	}

	if existed {
		w.WriteHeader(http.StatusNoContent)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
}

func (h *Handler) handleMkcol(ctx context.Context, w http.ResponseWriter, log zerolog.Logger, tenantUUID, path string) {
	exists, err := h.storage.Exists(ctx, tenantUUID, path)
	if err != nil {
		h.writeError(w, log, err)
		return
	}
	if exists {
		http.Error(w, "already exists", http.StatusMethodNotAllowed)
		return
	}

	parent := parentOf(path)
	if parent != "/" {
		parentExists, err := h.storage.Exists(ctx, tenantUUID, parent)
		if err != nil {
			h.writeError(w, log, err)
			return
		}
		if !parentExists {
			h.writeError(w, log, marbleerr.Conflict("parent collection %s does not exist", parent))
			return
		}
	}

	if err := h.storage.CreateDirectory(ctx, tenantUUID, path); err != nil {
		h.writeError(w, log, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) handleDelete(ctx context.Context, w http.ResponseWriter, log zerolog.Logger, tenantUUID, path string) {
	if err := h.storage.Delete(ctx, tenantUUID, path); err != nil {
		h.writeError(w, log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePropfind(ctx context.Context, w http.ResponseWriter, r *http.Request, log zerolog.Logger, tenantUUID, path string) {
	depth, err := parsePropfindDepth(r)
	if err != nil {
		h.writeError(w, log, err)
		return
	}
	if depth == propfindDepthInfinity && h.propfindDepthInfinity != config.DepthInfinityAllow {
		http.Error(w, "Depth: infinity is not permitted", http.StatusForbidden)
		return
	}

	meta, err := h.storage.Metadata(ctx, tenantUUID, path)
	if err != nil {
		h.writeError(w, log, err)
		return
	}

	entries := []davResponse{propEntry(path, meta)}
	if meta.IsDirectory && depth != propfindDepthZero {
		names, err := h.storage.List(ctx, tenantUUID, path)
		if err != nil {
			h.writeError(w, log, err)
			return
		}
		for _, name := range names {
			childPath := joinChild(path, name)
			childMeta, err := h.storage.Metadata(ctx, tenantUUID, childPath)
			if err != nil {
				log.Warn().Err(err).Str("child", childPath).Msg("skipping child during PROPFIND: metadata lookup failed")
				continue
			}
			entries = append(entries, propEntry(childPath, childMeta))
		}
	}

	writeMultistatus(w, entries)
}

func (h *Handler) handlePropPatch(ctx context.Context, w http.ResponseWriter, r *http.Request, log zerolog.Logger, tenantUUID, path string) {
	if _, err := h.storage.Metadata(ctx, tenantUUID, path); err != nil {
		h.writeError(w, log, err)
		return
	}

	var body propertyUpdate
	if err := xml.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, log, marbleerr.BadRequest("malformed PROPPATCH body"))
		return
	}
	writePropPatchResponse(w, path, body)
}

type moveOrCopyFunc func(ctx context.Context, tenantUUID, src, dst string) error

func (h *Handler) handleCopyOrMove(ctx context.Context, w http.ResponseWriter, r *http.Request, log zerolog.Logger, tenantUUID, srcPath string, op moveOrCopyFunc) {
	dstPath, err := destinationPath(r)
	if err != nil {
		h.writeError(w, log, err)
		return
	}

	dstExists, err := h.storage.Exists(ctx, tenantUUID, dstPath)
	if err != nil {
		h.writeError(w, log, err)
		return
	}
	if dstExists && !overwritePermitted(r) {
		http.Error(w, "destination exists and Overwrite is F", http.StatusPreconditionFailed)
		return
	}

	if err := op(ctx, tenantUUID, srcPath, dstPath); err != nil {
		h.writeError(w, log, err)
		return
	}

	if dstExists {
		w.WriteHeader(http.StatusNoContent)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
}

func (h *Handler) handleLock(w http.ResponseWriter, r *http.Request, log zerolog.Logger, tenantUUID, path string) {
	depth, err := parseLockDepth(r)
	if err != nil {
		h.writeError(w, log, err)
		return
	}

	owner := ""
	var reqBody lockInfo
	if err := xml.NewDecoder(r.Body).Decode(&reqBody); err == nil {
		owner = reqBody.Owner
	}

	timeout := parseLockTimeout(r, h.maxLockTimeout, h.maxLockTimeout)

	l, err := h.locks.Lock(tenantUUID, path, depth, owner, timeout)
	if err != nil {
		h.writeError(w, log, err)
		return
	}

	depthStr := "0"
	if depth == lock.DepthInfinity {
		depthStr = "infinity"
	}
	writeLockDiscovery(w, depthStr, owner, l.Token, timeout)
}

func (h *Handler) handleUnlock(w http.ResponseWriter, r *http.Request, log zerolog.Logger, tenantUUID, path string) {
	token := lockTokenHeader(r)
	if token == "" {
		h.writeError(w, log, marbleerr.BadRequest("Lock-Token header is required"))
		return
	}
	if err := h.locks.Unlock(tenantUUID, path, token); err != nil {
		h.writeError(w, log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type lockInfo struct {
	XMLName xml.Name `xml:"lockinfo"`
	Owner   string   `xml:"owner>href"`
}

func parentOf(path string) string {
	if path == "/" {
		return "/"
	}
	idx := lastSlash(path)
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}

func lastSlash(path string) int {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return i
		}
	}
	return -1
}

func joinChild(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

