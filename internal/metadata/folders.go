package metadata

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/marble-dav/marble/internal/marbleerr"
)

// FolderRepository is the repository over the folders table. Every method
// that accepts a path is scoped by userID; this is the tenant-isolation
// invariant spec §4.3 calls out as mandatory.
type FolderRepository struct {
	q querier
}

func NewFolderRepository(q querier) *FolderRepository { return &FolderRepository{q: q} }

func (r *FolderRepository) FindByID(ctx context.Context, id int64) (*Folder, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, path, parent_id, created_at, updated_at, is_deleted
		FROM folders WHERE id = ?`, id)
	return scanFolder(row)
}

// FindByPath looks up the live folder at (userID, path). Tombstoned rows
// are invisible (spec "lifecycle": tombstones are ignored by all reads).
func (r *FolderRepository) FindByPath(ctx context.Context, userID int64, path string) (*Folder, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, path, parent_id, created_at, updated_at, is_deleted
		FROM folders WHERE user_id = ? AND path = ? AND is_deleted = 0`, userID, path)
	return scanFolder(row)
}

func scanFolder(row *sql.Row) (*Folder, error) {
	var f Folder
	var parentID sql.NullInt64
	err := row.Scan(&f.ID, &f.UserID, &f.Path, &parentID, &f.CreatedAt, &f.UpdatedAt, &f.IsDeleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, marbleerr.NotFound("folder")
	}
	if err != nil {
		return nil, marbleerr.Backend(err, "scan folder")
	}
	if parentID.Valid {
		id := parentID.Int64
		f.ParentID = &id
	}
	return &f, nil
}

// List returns the immediate children folders of parentID (nil for the
// tenant root) owned by userID.
func (r *FolderRepository) List(ctx context.Context, userID int64, parentID *int64, includeDeleted bool) ([]*Folder, error) {
	query := `
		SELECT id, user_id, path, parent_id, created_at, updated_at, is_deleted
		FROM folders WHERE user_id = ? AND `
	args := []any{userID}
	if parentID == nil {
		query += `parent_id IS NULL`
	} else {
		query += `parent_id = ?`
		args = append(args, *parentID)
	}
	if !includeDeleted {
		query += ` AND is_deleted = 0`
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, marbleerr.Backend(err, "list folders")
	}
	defer rows.Close()

	var out []*Folder
	for rows.Next() {
		var f Folder
		var pid sql.NullInt64
		if err := rows.Scan(&f.ID, &f.UserID, &f.Path, &pid, &f.CreatedAt, &f.UpdatedAt, &f.IsDeleted); err != nil {
			return nil, marbleerr.Backend(err, "scan folder row")
		}
		if pid.Valid {
			id := pid.Int64
			f.ParentID = &id
		}
		out = append(out, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, marbleerr.Backend(err, "iterate folders")
	}
	return out, nil
}

// GetChildren returns every direct child (folders and files share a
// parent path relationship, but this repository only reports folder
// children; the facade combines it with FileRepository.ListByFolderPath).
func (r *FolderRepository) GetChildren(ctx context.Context, userID, folderID int64) ([]*Folder, error) {
	return r.List(ctx, userID, &folderID, false)
}

// HasChildren reports whether folderID has any live child folder.
func (r *FolderRepository) HasChildren(ctx context.Context, userID, folderID int64) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM folders WHERE user_id = ? AND parent_id = ? AND is_deleted = 0`,
		userID, folderID).Scan(&n)
	if err != nil {
		return false, marbleerr.Backend(err, "count children of folder %d", folderID)
	}
	return n > 0, nil
}

// Create inserts a new folder row.
func (r *FolderRepository) Create(ctx context.Context, userID int64, path string, parentID *int64) (*Folder, error) {
	now := time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO folders (user_id, path, parent_id, created_at, updated_at, is_deleted)
		VALUES (?, ?, ?, ?, ?, 0)`, userID, path, parentID, now, now)
	if err != nil {
		return nil, marbleerr.Backend(err, "create folder %s", path)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, marbleerr.Backend(err, "create folder %s", path)
	}
	return &Folder{ID: id, UserID: userID, Path: path, ParentID: parentID, CreatedAt: now, UpdatedAt: now}, nil
}

// Update rewrites path and parent, e.g. during a MOVE (spec §4.7).
func (r *FolderRepository) Update(ctx context.Context, f *Folder) error {
	f.UpdatedAt = time.Now().UTC()
	_, err := r.q.ExecContext(ctx, `
		UPDATE folders SET path = ?, parent_id = ?, updated_at = ?, is_deleted = ?
		WHERE id = ?`, f.Path, f.ParentID, f.UpdatedAt, f.IsDeleted, f.ID)
	if err != nil {
		return marbleerr.Backend(err, "update folder %d", f.ID)
	}
	return nil
}

// MarkDeleted tombstones a folder row (soft delete, the default per spec
// §4.3).
func (r *FolderRepository) MarkDeleted(ctx context.Context, id int64) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE folders SET is_deleted = 1, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return marbleerr.Backend(err, "mark folder %d deleted", id)
	}
	return nil
}

// Restore clears a folder's tombstone.
func (r *FolderRepository) Restore(ctx context.Context, id int64) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE folders SET is_deleted = 0, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return marbleerr.Backend(err, "restore folder %d", id)
	}
	return nil
}

// DeletePermanently is the administrative escape hatch (spec §4.3); never
// reached from the WebDAV surface.
func (r *FolderRepository) DeletePermanently(ctx context.Context, id int64) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id)
	if err != nil {
		return marbleerr.Backend(err, "permanently delete folder %d", id)
	}
	return nil
}
