// Package auth implements the Authentication Service (spec §4.5):
// username/password credentials resolve to a stable tenant UUID.
package auth

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/marble-dav/marble/internal/marbleerr"
	"github.com/marble-dav/marble/internal/metadata"
)

// Service authenticates username/password credentials against the users
// table. Credential failures are never distinguishable to the caller: an
// unknown username and a wrong password both return the same Unauthorized
// error (spec §7: "never leak whether the username or password was
// wrong").
type Service struct {
	db  *metadata.DB
	log zerolog.Logger
}

// New builds a Service over db.
func New(db *metadata.DB, log zerolog.Logger) *Service {
	return &Service{db: db, log: log.With().Str("component", "auth.Service").Logger()}
}

// Authenticate verifies username/password and returns the tenant's stable
// UUID on success. It always performs a bcrypt comparison, even when the
// username does not exist, against a fixed dummy hash, so the two failure
// paths take the same amount of time.
func (s *Service) Authenticate(ctx context.Context, username, password string) (string, error) {
	users := metadata.NewUserRepository(s.db.Underlying())
	u, err := users.FindByUsername(ctx, username)
	if err != nil {
		if marbleerr.KindOf(err) != marbleerr.KindNotFound {
			return "", err
		}
		bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password)) //nolint:errcheck
		s.log.Debug().Str("username", username).Msg("authentication failed: unknown username")
		return "", marbleerr.Unauthorized("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.log.Debug().Str("username", username).Msg("authentication failed: password mismatch")
		return "", marbleerr.Unauthorized("invalid credentials")
	}

	if err := users.RecordLogin(ctx, u.ID, time.Now().UTC()); err != nil {
		s.log.Warn().Err(err).Str("username", username).Msg("failed to record login timestamp")
	}

	return u.UUID, nil
}

// HashPassword produces a bcrypt hash suitable for storage in
// users.password_hash. Exposed for provisioning tooling; the core itself
// never writes password hashes outside of test fixtures (spec §1: user
// provisioning is an external collaborator).
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", marbleerr.Backend(err, "hash password")
	}
	return string(b), nil
}

// dummyHash is a bcrypt hash of a fixed, never-used password; comparing
// against it on an unknown-username path keeps timing close to the
// known-username path without touching real credentials.
const dummyHash = "$2a$10$C6UzMDM.H6dfI/f/IKcEeO0U9SVp/nYB.TP.tMKGc9Q8Q6QzQ6c3O"
