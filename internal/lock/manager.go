// Package lock implements the in-memory WebDAV Lock Manager (spec §4.6): a
// volatile, process-local registry of exclusive write locks with lazy
// expiry. It performs no I/O and is safe for concurrent use.
package lock

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marble-dav/marble/internal/marbleerr"
)

// Depth is a lock's scope: Zero covers exactly one path, Infinity covers
// the path and everything beneath it.
type Depth int

const (
	DepthZero Depth = iota
	DepthInfinity
)

// Lock is a single held lock, keyed by (tenant, path) in the manager.
type Lock struct {
	Token     string
	Tenant    string
	Path      string
	Owner     string
	Depth     Depth
	ExpiresAt time.Time
}

func (l *Lock) expired(now time.Time) bool { return !l.ExpiresAt.After(now) }

type key struct {
	tenant string
	path   string
}

// Manager is the Lock Manager. The zero value is not usable; use New.
type Manager struct {
	mu    sync.Mutex
	locks map[key]*Lock
	now   func() time.Time
}

// New builds an empty Manager.
func New() *Manager {
	return &Manager{locks: make(map[key]*Lock), now: time.Now}
}

// Lock allocates an opaque URN token and registers a lock on (tenant, path)
// for timeout, failing Conflict if a conflicting non-expired lock already
// exists on path, on any ancestor held at infinite depth, or (when this
// request is infinite-depth) on any descendant.
func (m *Manager) Lock(tenant, path string, depth Depth, owner string, timeout time.Duration) (*Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweepLocked(now)

	if conflict := m.conflictLocked(tenant, path, depth, now); conflict != nil {
		return nil, marbleerr.Conflict("path %s is locked by another client", path)
	}

	l := &Lock{
		Token:     "urn:uuid:" + uuid.NewString(),
		Tenant:    tenant,
		Path:      path,
		Owner:     owner,
		Depth:     depth,
		ExpiresAt: now.Add(timeout),
	}
	m.locks[key{tenant, path}] = l
	return l, nil
}

// conflictLocked reports whether a new lock request on path conflicts with
// any existing live lock. Caller must hold mu.
func (m *Manager) conflictLocked(tenant, path string, depth Depth, now time.Time) *Lock {
	for k, l := range m.locks {
		if k.tenant != tenant || l.expired(now) {
			continue
		}
		if k.path == path {
			return l
		}
		if l.Depth == DepthInfinity && isAncestor(k.path, path) {
			return l
		}
		if depth == DepthInfinity && isAncestor(path, k.path) {
			return l
		}
	}
	return nil
}

// isAncestor reports whether ancestor is a strict prefix directory of
// descendant (both absolute, normalized paths).
func isAncestor(ancestor, descendant string) bool {
	if ancestor == "/" {
		return descendant != "/"
	}
	return len(descendant) > len(ancestor) &&
		descendant[:len(ancestor)] == ancestor &&
		descendant[len(ancestor)] == '/'
}

// Unlock removes the lock at (tenant, path) iff token matches, failing
// Forbidden on a token mismatch and Conflict if no lock exists (spec §4.7
// UNLOCK: "409 if no such lock; 403 if token mismatch" — a per-method
// override of the generic NotFound/Conflict mapping, not a restatement of
// it).
func (m *Manager) Unlock(tenant, path, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepLocked(m.now())

	k := key{tenant, path}
	l, ok := m.locks[k]
	if !ok {
		return marbleerr.Conflict("no lock held at %s", path)
	}
	if l.Token != token {
		return marbleerr.Forbidden("lock token does not match")
	}
	delete(m.locks, k)
	return nil
}

// Check is called by the handler before any mutating operation. It returns
// nil if no lock covers path, or if one of presentedTokens matches the
// covering lock (directly on path, or an ancestor held at infinite depth).
func (m *Manager) Check(tenant, path string, presentedTokens []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweepLocked(now)

	for k, l := range m.locks {
		if k.tenant != tenant || l.expired(now) {
			continue
		}
		covers := k.path == path || (l.Depth == DepthInfinity && isAncestor(k.path, path))
		if !covers {
			continue
		}
		if containsToken(presentedTokens, l.Token) {
			continue
		}
		return marbleerr.Locked("path %s is locked", path)
	}
	return nil
}

func containsToken(tokens []string, token string) bool {
	for _, t := range tokens {
		if t == token {
			return true
		}
	}
	return false
}

// sweepLocked removes every expired lock. Caller must hold mu.
func (m *Manager) sweepLocked(now time.Time) {
	for k, l := range m.locks {
		if l.expired(now) {
			delete(m.locks, k)
		}
	}
}
