package metadata

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/marble-dav/marble/internal/marbleerr"
)

// UserRepository is the repository over the users table (spec §4.3). User
// provisioning itself is out of scope (spec §1); beyond reads and
// last_login updates, this repository offers administrative create, update
// and delete for completeness of the interface spec §4.3 names.
type UserRepository struct {
	q querier
}

// NewUserRepository builds a repository bound to q: a *sql.DB (such as
// DB.Underlying()), or a *sql.Tx (such as Tx.Underlying()) to run within a
// transaction.
func NewUserRepository(q querier) *UserRepository { return &UserRepository{q: q} }

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, uuid, username, password_hash, created_at, last_login
		FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, uuid, username, password_hash, created_at, last_login
		FROM users WHERE username = ?`, username)
	return scanUser(row)
}

// FindByUUID resolves the tenant UUID the facade receives on every call
// into the internal numeric id (spec §4.4, §9 "dual identity for users").
func (r *UserRepository) FindByUUID(ctx context.Context, uuid string) (*User, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, uuid, username, password_hash, created_at, last_login
		FROM users WHERE uuid = ?`, uuid)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var lastLogin sql.NullTime
	err := row.Scan(&u.ID, &u.UUID, &u.Username, &u.PasswordHash, &u.CreatedAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, marbleerr.NotFound("user")
	}
	if err != nil {
		return nil, marbleerr.Backend(err, "scan user")
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return &u, nil
}

// Create inserts a new user row. Provisioning happens externally in
// production (spec §1); this exists for test fixtures and administrative
// tooling.
func (r *UserRepository) Create(ctx context.Context, uuid, username, passwordHash string) (*User, error) {
	now := time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO users (uuid, username, password_hash, created_at)
		VALUES (?, ?, ?, ?)`, uuid, username, passwordHash, now)
	if err != nil {
		return nil, marbleerr.Backend(err, "create user %s", username)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, marbleerr.Backend(err, "create user %s", username)
	}
	return &User{ID: id, UUID: uuid, Username: username, PasswordHash: passwordHash, CreatedAt: now}, nil
}

// Update rewrites the mutable fields of an existing user row.
func (r *UserRepository) Update(ctx context.Context, u *User) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE users SET username = ?, password_hash = ? WHERE id = ?`,
		u.Username, u.PasswordHash, u.ID)
	if err != nil {
		return marbleerr.Backend(err, "update user %d", u.ID)
	}
	return nil
}

// RecordLogin stamps last_login with when (spec §4.5: "successful
// authentication updates last_login").
func (r *UserRepository) RecordLogin(ctx context.Context, userID int64, when time.Time) error {
	_, err := r.q.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, when, userID)
	if err != nil {
		return marbleerr.Backend(err, "record login for user %d", userID)
	}
	return nil
}

// Delete permanently removes a user row. Never reached from the WebDAV
// surface (spec §1: user provisioning is an external collaborator).
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return marbleerr.Backend(err, "delete user %d", id)
	}
	return nil
}
