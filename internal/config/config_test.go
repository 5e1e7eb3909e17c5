package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadFSBackendAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database_url: "marble.db"
blob_backend:
  fs:
    root: "/var/lib/marble/blobs"
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, defaultListenAddr, c.ListenAddr)
	assert.Equal(t, defaultMaxLockTimeout, c.MaxLockTimeout)
	assert.Equal(t, int64(defaultMaxBodyBytes), c.MaxBodyBytes)
	assert.Equal(t, DepthInfinityDeny, c.PropfindDepthInfinity)
	assert.Equal(t, "/var/lib/marble/blobs", c.BlobBackend.FS.Root)
}

func TestLoadRejectsBothBackendsConfigured(t *testing.T) {
	path := writeConfig(t, `
database_url: "marble.db"
blob_backend:
  fs:
    root: "/data"
  s3:
    bucket: "notes"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsNoBackendConfigured(t *testing.T) {
	path := writeConfig(t, `database_url: "marble.db"`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingDatabaseURL(t *testing.T) {
	path := writeConfig(t, `
blob_backend:
  fs:
    root: "/data"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestDatabaseURLEnvOverride(t *testing.T) {
	path := writeConfig(t, `
database_url: "marble.db"
blob_backend:
  fs:
    root: "/data"
`)
	t.Setenv("MARBLE_DATABASE_URL", "override.db")
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "override.db", c.DatabaseURL)
}

func TestS3CredentialEnvOverride(t *testing.T) {
	path := writeConfig(t, `
database_url: "marble.db"
blob_backend:
  s3:
    bucket: "notes"
    region: "us-east-1"
`)
	t.Setenv("MARBLE_S3_ACCESS_KEY_ID", "AKIA...")
	t.Setenv("MARBLE_S3_SECRET_ACCESS_KEY", "secret")
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "AKIA...", c.BlobBackend.S3.AccessKeyID)
	assert.Equal(t, "secret", c.BlobBackend.S3.SecretAccessKey)
}
