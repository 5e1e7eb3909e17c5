package tenant

import (
	"context"

	"github.com/marble-dav/marble/internal/marbleerr"
	"github.com/marble-dav/marble/internal/metadata"
)

// Move atomically renames the file or folder at srcPath to dstPath within
// one transaction; folder descendants are rewritten in the same
// transaction. Content hashes are preserved unchanged (spec §4.7: "no blob
// copy is required"). The caller (the WebDAV handler) is responsible for
// Overwrite-header policy: when a file is moved onto a pre-existing file
// at dstPath, Move tombstones that file and renames the source onto
// dstPath rather than erroring. A folder is not replaced: moving onto an
// existing folder fails, and moving a file onto a folder (or a folder
// onto a file) is a Conflict.
func (s *Storage) Move(ctx context.Context, tenantUUID, srcPath, dstPath string) error {
	u, err := s.resolveUser(ctx, tenantUUID)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return marbleerr.Backend(err, "begin move tx")
	}
	defer tx.Rollback()
	q := txQuerier{tx}

	dstParentID, err := requireParentExists(ctx, q, u.ID, dstPath)
	if err != nil {
		return err
	}

	folders := metadata.NewFolderRepository(q)
	files := metadata.NewFileRepository(q)

	if folder, ferr := folders.FindByPath(ctx, u.ID, srcPath); ferr == nil {
		if _, err := files.FindByPath(ctx, u.ID, dstPath); err == nil {
			return marbleerr.Conflict("a file already exists at %s", dstPath)
		}
		if err := moveFolderSubtree(ctx, folders, files, u.ID, folder, dstPath, dstParentID); err != nil {
			return err
		}
	} else if marbleerr.KindOf(ferr) == marbleerr.KindNotFound {
		file, err := files.FindByPath(ctx, u.ID, srcPath)
		if err != nil {
			return err
		}
		if _, err := folders.FindByPath(ctx, u.ID, dstPath); err == nil {
			return marbleerr.Conflict("a folder already exists at %s", dstPath)
		}
		if existing, eerr := files.FindByPath(ctx, u.ID, dstPath); eerr == nil {
			if err := files.MarkDeleted(ctx, existing.ID); err != nil {
				return err
			}
		} else if marbleerr.KindOf(eerr) != marbleerr.KindNotFound {
			return eerr
		}
		file.Path = dstPath
		if err := files.Update(ctx, file); err != nil {
			return err
		}
	} else {
		return ferr
	}

	if err := tx.Commit(); err != nil {
		return marbleerr.Backend(err, "commit move tx")
	}
	return nil
}

// moveFolderSubtree renames folder to newPath (with parent newParentID) and
// recursively renames every descendant, preserving every row's id and
// content hash. Children are looked up by folder's original path before the
// rename, since ListByFolderPath matches by path prefix.
func moveFolderSubtree(ctx context.Context, folders *metadata.FolderRepository, files *metadata.FileRepository, userID int64, folder *metadata.Folder, newPath string, newParentID *int64) error {
	oldPath := folder.Path

	childFiles, err := files.ListByFolderPath(ctx, userID, oldPath, false)
	if err != nil {
		return err
	}
	childFolders, err := folders.GetChildren(ctx, userID, folder.ID)
	if err != nil {
		return err
	}

	folder.Path = newPath
	folder.ParentID = newParentID
	if err := folders.Update(ctx, folder); err != nil {
		return err
	}

	for _, f := range childFiles {
		f.Path = newPath + "/" + baseName(f.Path)
		if err := files.Update(ctx, f); err != nil {
			return err
		}
	}
	for _, sub := range childFolders {
		subNewPath := newPath + "/" + baseName(sub.Path)
		subParentID := folder.ID
		if err := moveFolderSubtree(ctx, folders, files, userID, sub, subNewPath, &subParentID); err != nil {
			return err
		}
	}
	return nil
}

// Copy reads srcPath and writes a structural copy at dstPath: files get a
// new row referencing the same content_hash (no blob bytes are re-read or
// re-written), folders are copied recursively. As with Move, any
// overwrite-header policy is the handler's responsibility; Copy updates an
// existing file row at dstPath in place rather than erroring. A folder is
// not replaced: copying onto an existing folder fails, and copying a file
// onto a folder (or a folder onto a file) is a Conflict.
func (s *Storage) Copy(ctx context.Context, tenantUUID, srcPath, dstPath string) error {
	u, err := s.resolveUser(ctx, tenantUUID)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return marbleerr.Backend(err, "begin copy tx")
	}
	defer tx.Rollback()
	q := txQuerier{tx}

	dstParentID, err := requireParentExists(ctx, q, u.ID, dstPath)
	if err != nil {
		return err
	}

	folders := metadata.NewFolderRepository(q)
	files := metadata.NewFileRepository(q)

	if folder, ferr := folders.FindByPath(ctx, u.ID, srcPath); ferr == nil {
		if _, err := files.FindByPath(ctx, u.ID, dstPath); err == nil {
			return marbleerr.Conflict("a file already exists at %s", dstPath)
		}
		if err := copyFolderSubtree(ctx, folders, files, u.ID, folder, dstPath, dstParentID); err != nil {
			return err
		}
	} else if marbleerr.KindOf(ferr) == marbleerr.KindNotFound {
		file, err := files.FindByPath(ctx, u.ID, srcPath)
		if err != nil {
			return err
		}
		if _, err := folders.FindByPath(ctx, u.ID, dstPath); err == nil {
			return marbleerr.Conflict("a folder already exists at %s", dstPath)
		}

		existing, eerr := files.FindByPath(ctx, u.ID, dstPath)
		switch marbleerr.KindOf(eerr) {
		case marbleerr.KindNotFound:
			if _, err := files.Create(ctx, u.ID, dstPath, file.ContentHash, file.ContentType, file.Size); err != nil {
				return err
			}
		case marbleerr.KindUnknown:
			if eerr != nil {
				return eerr
			}
			existing.ContentHash = file.ContentHash
			existing.ContentType = file.ContentType
			existing.Size = file.Size
			if err := files.Update(ctx, existing); err != nil {
				return err
			}
		default:
			return eerr
		}
	} else {
		return ferr
	}

	if err := tx.Commit(); err != nil {
		return marbleerr.Backend(err, "commit copy tx")
	}
	return nil
}

// copyFolderSubtree creates a new folder row at dstPath (child of
// parentID) and recursively copies src's children into it.
func copyFolderSubtree(ctx context.Context, folders *metadata.FolderRepository, files *metadata.FileRepository, userID int64, src *metadata.Folder, dstPath string, parentID *int64) error {
	newFolder, err := folders.Create(ctx, userID, dstPath, parentID)
	if err != nil {
		return err
	}

	childFiles, err := files.ListByFolderPath(ctx, userID, src.Path, false)
	if err != nil {
		return err
	}
	for _, f := range childFiles {
		dstFilePath := dstPath + "/" + baseName(f.Path)
		if _, err := files.Create(ctx, userID, dstFilePath, f.ContentHash, f.ContentType, f.Size); err != nil {
			return err
		}
	}

	childFolders, err := folders.GetChildren(ctx, userID, src.ID)
	if err != nil {
		return err
	}
	for _, sub := range childFolders {
		subDstPath := dstPath + "/" + baseName(sub.Path)
		if err := copyFolderSubtree(ctx, folders, files, userID, sub, subDstPath, &newFolder.ID); err != nil {
			return err
		}
	}
	return nil
}
