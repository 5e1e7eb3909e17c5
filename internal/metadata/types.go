package metadata

import "time"

// User mirrors the users table (spec §3, §6). UUID is the stable external
// identifier; ID is the internal numeric foreign-key target used by
// folders and files.
type User struct {
	ID           int64
	UUID         string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// Folder mirrors the folders table (spec §3). Path is absolute and rooted
// at "/"; ParentID is nil for the tenant root.
type Folder struct {
	ID        int64
	UserID    int64
	Path      string
	ParentID  *int64
	CreatedAt time.Time
	UpdatedAt time.Time
	IsDeleted bool
}

// File mirrors the files table (spec §3).
type File struct {
	ID          int64
	UserID      int64
	Path        string
	ContentHash string
	ContentType string
	Size        int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	IsDeleted   bool
}
