// Package tenant implements the TenantStorage facade (spec §4.4): a
// per-tenant filesystem view composed from the metadata store and the
// content-addressable blob store.
package tenant

import (
	"context"
	"mime"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/marble-dav/marble/internal/blob"
	"github.com/marble-dav/marble/internal/hash"
	"github.com/marble-dav/marble/internal/marbleerr"
	"github.com/marble-dav/marble/internal/metadata"
)

const defaultContentType = "application/octet-stream"

// FileMetadata is the result of a Metadata call: everything a WebDAV
// PROPFIND needs about a path, returned without reading the blob (spec
// §4.4, §9).
type FileMetadata struct {
	Path         string
	Size         int64
	ContentType  string
	IsDirectory  bool
	LastModified time.Time
	ContentHash  string // empty for directories
}

// Storage is the TenantStorage facade. Every exported method takes a
// tenant UUID as its first path-bearing argument and translates it to the
// internal numeric user id exactly once per call.
type Storage struct {
	db     *metadata.DB
	hasher *blob.Hasher
	log    zerolog.Logger
}

// New builds a Storage over db and hasher.
func New(db *metadata.DB, hasher *blob.Hasher, log zerolog.Logger) *Storage {
	return &Storage{db: db, hasher: hasher, log: log.With().Str("component", "tenant.Storage").Logger()}
}

func (s *Storage) resolveUser(ctx context.Context, tenantUUID string) (*metadata.User, error) {
	users := metadata.NewUserRepository(s.db.Underlying())
	u, err := users.FindByUUID(ctx, tenantUUID)
	if err != nil {
		if marbleerr.KindOf(err) == marbleerr.KindNotFound {
			return nil, marbleerr.Unauthorized("unknown tenant")
		}
		return nil, err
	}
	return u, nil
}

// Read returns the bytes stored at path for tenantUUID.
func (s *Storage) Read(ctx context.Context, tenantUUID, path string) ([]byte, error) {
	u, err := s.resolveUser(ctx, tenantUUID)
	if err != nil {
		return nil, err
	}

	files := metadata.NewFileRepository(s.db.Underlying())
	f, err := files.FindByPath(ctx, u.ID, path)
	if err != nil {
		return nil, err
	}

	return s.hasher.Read(ctx, hash.Digest(f.ContentHash))
}

// Write stores data at path, creating or overwriting the file row and any
// missing ancestor folders (spec §4.4).
func (s *Storage) Write(ctx context.Context, tenantUUID, path string, data []byte, contentType string) error {
	u, err := s.resolveUser(ctx, tenantUUID)
	if err != nil {
		return err
	}

	folders := metadata.NewFolderRepository(s.db.Underlying())
	if _, err := folders.FindByPath(ctx, u.ID, path); err == nil {
		return marbleerr.Conflict("a folder already exists at %s", path)
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return marbleerr.Backend(err, "begin write tx")
	}
	defer tx.Rollback()

	if _, err := ensureAncestors(ctx, tx, u.ID, path); err != nil {
		return err
	}

	digest, err := s.hasher.Write(ctx, data)
	if err != nil {
		return err
	}

	if contentType == "" {
		contentType = guessContentType(path)
	}

	txFiles := metadata.NewFileRepository(txQuerier{tx})
	existing, err := txFiles.FindByPath(ctx, u.ID, path)
	switch marbleerr.KindOf(err) {
	case marbleerr.KindNotFound:
		if _, err := txFiles.Create(ctx, u.ID, path, string(digest), contentType, int64(len(data))); err != nil {
			return err
		}
	case marbleerr.KindUnknown:
		if err != nil {
			return err
		}
		existing.ContentHash = string(digest)
		existing.ContentType = contentType
		existing.Size = int64(len(data))
		if err := txFiles.Update(ctx, existing); err != nil {
			return err
		}
	default:
		return err
	}

	if err := tx.Commit(); err != nil {
		return marbleerr.Backend(err, "commit write tx")
	}
	return nil
}

// Exists reports whether a live file or folder row exists at path.
func (s *Storage) Exists(ctx context.Context, tenantUUID, path string) (bool, error) {
	u, err := s.resolveUser(ctx, tenantUUID)
	if err != nil {
		return false, err
	}
	return s.existsForUser(ctx, s.db.Underlying(), u.ID, path)
}

func (s *Storage) existsForUser(ctx context.Context, q dbQuerier, userID int64, path string) (bool, error) {
	if path == "/" {
		return true, nil
	}
	folders := metadata.NewFolderRepository(q)
	if _, err := folders.FindByPath(ctx, userID, path); err == nil {
		return true, nil
	} else if marbleerr.KindOf(err) != marbleerr.KindNotFound {
		return false, err
	}

	files := metadata.NewFileRepository(q)
	if _, err := files.FindByPath(ctx, userID, path); err == nil {
		return true, nil
	} else if marbleerr.KindOf(err) != marbleerr.KindNotFound {
		return false, err
	}

	return false, nil
}

// Delete tombstones the file or folder at path; folders are deleted
// recursively and atomically (spec §4.4).
func (s *Storage) Delete(ctx context.Context, tenantUUID, path string) error {
	u, err := s.resolveUser(ctx, tenantUUID)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return marbleerr.Backend(err, "begin delete tx")
	}
	defer tx.Rollback()

	q := txQuerier{tx}
	folders := metadata.NewFolderRepository(q)
	files := metadata.NewFileRepository(q)

	if folder, err := folders.FindByPath(ctx, u.ID, path); err == nil {
		if err := deleteFolderRecursive(ctx, folders, files, u.ID, folder); err != nil {
			return err
		}
	} else if marbleerr.KindOf(err) == marbleerr.KindNotFound {
		file, err := files.FindByPath(ctx, u.ID, path)
		if err != nil {
			return err
		}
		if err := files.MarkDeleted(ctx, file.ID); err != nil {
			return err
		}
	} else {
		return err
	}

	if err := tx.Commit(); err != nil {
		return marbleerr.Backend(err, "commit delete tx")
	}
	return nil
}

func deleteFolderRecursive(ctx context.Context, folders *metadata.FolderRepository, files *metadata.FileRepository, userID int64, folder *metadata.Folder) error {
	childFiles, err := files.ListByFolderPath(ctx, userID, folder.Path, false)
	if err != nil {
		return err
	}
	for _, f := range childFiles {
		if err := files.MarkDeleted(ctx, f.ID); err != nil {
			return err
		}
	}

	childFolders, err := folders.GetChildren(ctx, userID, folder.ID)
	if err != nil {
		return err
	}
	for _, sub := range childFolders {
		if err := deleteFolderRecursive(ctx, folders, files, userID, sub); err != nil {
			return err
		}
	}

	return folders.MarkDeleted(ctx, folder.ID)
}

// List returns the immediate children names of the folder at dirPath.
func (s *Storage) List(ctx context.Context, tenantUUID, dirPath string) ([]string, error) {
	u, err := s.resolveUser(ctx, tenantUUID)
	if err != nil {
		return nil, err
	}

	q := s.db.Underlying()
	folders := metadata.NewFolderRepository(q)
	files := metadata.NewFileRepository(q)

	var parentID *int64
	if dirPath != "/" {
		f, err := folders.FindByPath(ctx, u.ID, dirPath)
		if err != nil {
			return nil, err
		}
		parentID = &f.ID
	}

	childFolders, err := folders.List(ctx, u.ID, parentID, false)
	if err != nil {
		return nil, err
	}
	childFiles, err := files.ListByFolderPath(ctx, u.ID, dirPath, false)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(childFolders)+len(childFiles))
	for _, f := range childFolders {
		names = append(names, baseName(f.Path))
	}
	for _, f := range childFiles {
		names = append(names, baseName(f.Path))
	}
	return names, nil
}

// CreateDirectory creates the folder at path, creating missing ancestors
// (spec §4.4). It is idempotent on an existing folder and fails if a file
// already exists at path.
func (s *Storage) CreateDirectory(ctx context.Context, tenantUUID, path string) error {
	u, err := s.resolveUser(ctx, tenantUUID)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return marbleerr.Backend(err, "begin mkcol tx")
	}
	defer tx.Rollback()

	q := txQuerier{tx}
	files := metadata.NewFileRepository(q)
	if _, err := files.FindByPath(ctx, u.ID, path); err == nil {
		return marbleerr.Conflict("a file already exists at %s", path)
	}

	folders := metadata.NewFolderRepository(q)
	if _, err := folders.FindByPath(ctx, u.ID, path); err == nil {
		return nil // idempotent on an existing folder
	}

	if _, err := ensureAncestors(ctx, tx, u.ID, path); err != nil {
		return err
	}
	parentID, err := folderIDForPath(ctx, q, u.ID, parentPath(path))
	if err != nil {
		return err
	}
	if _, err := folders.Create(ctx, u.ID, path, parentID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return marbleerr.Backend(err, "commit mkcol tx")
	}
	return nil
}

// Metadata returns file/folder attributes at path without reading blob
// content (spec §4.4, §9).
func (s *Storage) Metadata(ctx context.Context, tenantUUID, path string) (*FileMetadata, error) {
	u, err := s.resolveUser(ctx, tenantUUID)
	if err != nil {
		return nil, err
	}

	q := s.db.Underlying()
	if path == "/" {
		return &FileMetadata{Path: "/", IsDirectory: true, LastModified: time.Now().UTC()}, nil
	}

	folders := metadata.NewFolderRepository(q)
	if f, err := folders.FindByPath(ctx, u.ID, path); err == nil {
		return &FileMetadata{
			Path: f.Path, IsDirectory: true, LastModified: f.UpdatedAt,
		}, nil
	} else if marbleerr.KindOf(err) != marbleerr.KindNotFound {
		return nil, err
	}

	files := metadata.NewFileRepository(q)
	f, err := files.FindByPath(ctx, u.ID, path)
	if err != nil {
		return nil, err
	}
	return &FileMetadata{
		Path: f.Path, Size: f.Size, ContentType: f.ContentType,
		LastModified: f.UpdatedAt, ContentHash: f.ContentHash,
	}, nil
}

// ensureAncestors creates every missing ancestor folder of path within tx,
// returning the immediate parent's folder id (nil for the tenant root).
func ensureAncestors(ctx context.Context, tx *metadata.Tx, userID int64, path string) (*int64, error) {
	q := txQuerier{tx}
	folders := metadata.NewFolderRepository(q)

	var parentID *int64
	for _, dir := range ancestors(path) {
		f, err := folders.FindByPath(ctx, userID, dir)
		switch marbleerr.KindOf(err) {
		case marbleerr.KindNotFound:
			created, cerr := folders.Create(ctx, userID, dir, parentID)
			if cerr != nil {
				return nil, cerr
			}
			id := created.ID
			parentID = &id
		case marbleerr.KindUnknown:
			if err != nil {
				return nil, err
			}
			id := f.ID
			parentID = &id
		default:
			return nil, err
		}
	}
	return parentID, nil
}

// requireParentExists looks up the folder id of path's parent, failing
// Conflict if it does not exist (spec §4.7: MOVE/COPY return 409 when the
// destination's parent is missing; unlike write/create_directory, Move and
// Copy never create ancestors implicitly).
func requireParentExists(ctx context.Context, q dbQuerier, userID int64, path string) (*int64, error) {
	parent := parentPath(path)
	if parent == "/" {
		return nil, nil
	}
	f, err := metadata.NewFolderRepository(q).FindByPath(ctx, userID, parent)
	if err != nil {
		if marbleerr.KindOf(err) == marbleerr.KindNotFound {
			return nil, marbleerr.Conflict("destination parent %s does not exist", parent)
		}
		return nil, err
	}
	id := f.ID
	return &id, nil
}

func folderIDForPath(ctx context.Context, q dbQuerier, userID int64, path string) (*int64, error) {
	if path == "/" {
		return nil, nil
	}
	f, err := metadata.NewFolderRepository(q).FindByPath(ctx, userID, path)
	if err != nil {
		return nil, err
	}
	id := f.ID
	return &id, nil
}

// FileCount reports how many live files tenantUUID owns, for lightweight
// operational visibility on the OPTIONS root response (spec §4.3
// CountByUser).
func (s *Storage) FileCount(ctx context.Context, tenantUUID string) (int64, error) {
	u, err := s.resolveUser(ctx, tenantUUID)
	if err != nil {
		return 0, err
	}
	return metadata.NewFileRepository(s.db.Underlying()).CountByUser(ctx, u.ID)
}

func guessContentType(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return defaultContentType
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return defaultContentType
}
