package metadata

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/marble-dav/marble/internal/marbleerr"
)

// FileRepository is the repository over the files table, tenant-scoped on
// every path-based operation (spec §4.3).
type FileRepository struct {
	q querier
}

func NewFileRepository(q querier) *FileRepository { return &FileRepository{q: q} }

func (r *FileRepository) FindByID(ctx context.Context, id int64) (*File, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, path, content_hash, content_type, size, created_at, updated_at, is_deleted
		FROM files WHERE id = ?`, id)
	return scanFile(row)
}

func (r *FileRepository) FindByPath(ctx context.Context, userID int64, path string) (*File, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, path, content_hash, content_type, size, created_at, updated_at, is_deleted
		FROM files WHERE user_id = ? AND path = ? AND is_deleted = 0`, userID, path)
	return scanFile(row)
}

// FindByContentHash returns every live file row (any tenant) that
// references digest. Used only internally (e.g. future GC); it never
// crosses the tenant boundary on its own, callers must still authorize
// per-row access.
func (r *FileRepository) FindByContentHash(ctx context.Context, digest string) ([]*File, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, path, content_hash, content_type, size, created_at, updated_at, is_deleted
		FROM files WHERE content_hash = ? AND is_deleted = 0`, digest)
	if err != nil {
		return nil, marbleerr.Backend(err, "find files by content hash")
	}
	defer rows.Close()
	return scanFiles(rows)
}

// ListByFolderPath returns the files whose path sits directly inside
// folderPath (no deeper): live rows only, plus tombstoned ones when
// includeDeleted is set. folderPath "/" lists top-level files.
func (r *FileRepository) ListByFolderPath(ctx context.Context, userID int64, folderPath string, includeDeleted bool) ([]*File, error) {
	prefix := folderPath
	if prefix != "/" {
		prefix += "/"
	}

	query := `
		SELECT id, user_id, path, content_hash, content_type, size, created_at, updated_at, is_deleted
		FROM files WHERE user_id = ? AND path LIKE ? ESCAPE '\'`
	args := []any{userID, escapeLike(prefix) + "%"}
	if !includeDeleted {
		query += ` AND is_deleted = 0`
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, marbleerr.Backend(err, "list files under %s", folderPath)
	}
	defer rows.Close()

	all, err := scanFiles(rows)
	if err != nil {
		return nil, err
	}

	// Filter out files nested more than one level deep; the LIKE prefix
	// only restricts the common ancestor, not depth.
	out := all[:0]
	for _, f := range all {
		rest := strings.TrimPrefix(f.Path, prefix)
		if !strings.Contains(rest, "/") {
			out = append(out, f)
		}
	}
	return out, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func scanFile(row *sql.Row) (*File, error) {
	var f File
	err := row.Scan(&f.ID, &f.UserID, &f.Path, &f.ContentHash, &f.ContentType, &f.Size, &f.CreatedAt, &f.UpdatedAt, &f.IsDeleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, marbleerr.NotFound("file")
	}
	if err != nil {
		return nil, marbleerr.Backend(err, "scan file")
	}
	return &f, nil
}

func scanFiles(rows *sql.Rows) ([]*File, error) {
	var out []*File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.UserID, &f.Path, &f.ContentHash, &f.ContentType, &f.Size, &f.CreatedAt, &f.UpdatedAt, &f.IsDeleted); err != nil {
			return nil, marbleerr.Backend(err, "scan file row")
		}
		out = append(out, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, marbleerr.Backend(err, "iterate files")
	}
	return out, nil
}

// Create inserts a new file row.
func (r *FileRepository) Create(ctx context.Context, userID int64, path, contentHash, contentType string, size int64) (*File, error) {
	now := time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO files (user_id, path, content_hash, content_type, size, created_at, updated_at, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)`, userID, path, contentHash, contentType, size, now, now)
	if err != nil {
		return nil, marbleerr.Backend(err, "create file %s", path)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, marbleerr.Backend(err, "create file %s", path)
	}
	return &File{
		ID: id, UserID: userID, Path: path, ContentHash: contentHash,
		ContentType: contentType, Size: size, CreatedAt: now, UpdatedAt: now,
	}, nil
}

// Update rewrites a file row in place: path (MOVE), content hash/size/type
// (overwrite write), or tombstone state.
func (r *FileRepository) Update(ctx context.Context, f *File) error {
	f.UpdatedAt = time.Now().UTC()
	_, err := r.q.ExecContext(ctx, `
		UPDATE files SET path = ?, content_hash = ?, content_type = ?, size = ?, updated_at = ?, is_deleted = ?
		WHERE id = ?`, f.Path, f.ContentHash, f.ContentType, f.Size, f.UpdatedAt, f.IsDeleted, f.ID)
	if err != nil {
		return marbleerr.Backend(err, "update file %d", f.ID)
	}
	return nil
}

// MarkDeleted tombstones a file row.
func (r *FileRepository) MarkDeleted(ctx context.Context, id int64) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE files SET is_deleted = 1, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return marbleerr.Backend(err, "mark file %d deleted", id)
	}
	return nil
}

// Restore clears a file's tombstone.
func (r *FileRepository) Restore(ctx context.Context, id int64) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE files SET is_deleted = 0, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return marbleerr.Backend(err, "restore file %d", id)
	}
	return nil
}

// DeletePermanently is the administrative escape hatch (spec §4.3); never
// reached from the WebDAV surface. It never touches the referenced blob
// (spec §3: "dropping a File row never deletes the Blob").
func (r *FileRepository) DeletePermanently(ctx context.Context, id int64) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return marbleerr.Backend(err, "permanently delete file %d", id)
	}
	return nil
}

// CountByUser reports how many live files a tenant owns.
func (r *FileRepository) CountByUser(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM files WHERE user_id = ? AND is_deleted = 0`, userID).Scan(&n)
	if err != nil {
		return 0, marbleerr.Backend(err, "count files for user %d", userID)
	}
	return n, nil
}
