// Package config loads marble's YAML configuration (spec §6) into a typed
// struct, with environment variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FSBackend configures the local-filesystem (badger-backed) blob backend.
type FSBackend struct {
	Root string `yaml:"root"`
}

// S3Backend configures the S3-compatible blob backend. AccessKeyID and
// SecretAccessKey are normally supplied via environment variables rather
// than the file (MARBLE_S3_ACCESS_KEY_ID / MARBLE_S3_SECRET_ACCESS_KEY).
type S3Backend struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// BlobBackend selects and configures exactly one object store backend.
type BlobBackend struct {
	FS *FSBackend `yaml:"fs"`
	S3 *S3Backend `yaml:"s3"`
}

// DepthInfinityPolicy is the PROPFIND Depth: infinity policy.
type DepthInfinityPolicy string

const (
	DepthInfinityAllow DepthInfinityPolicy = "allow"
	DepthInfinityDeny  DepthInfinityPolicy = "deny"
)

// Config is the complete set of options spec §6 enumerates.
type Config struct {
	ListenAddr            string              `yaml:"listen_addr"`
	BlobBackend           BlobBackend         `yaml:"blob_backend"`
	DatabaseURL           string              `yaml:"database_url"`
	MaxLockTimeout        time.Duration       `yaml:"max_lock_timeout"`
	PropfindDepthInfinity DepthInfinityPolicy `yaml:"propfind_depth_infinity"`
	MaxBodyBytes          int64               `yaml:"max_body_bytes"`
	BlobCacheSize         int                 `yaml:"blob_cache_size"`
}

const (
	defaultListenAddr     = ":8080"
	defaultMaxLockTimeout = time.Hour
	defaultMaxBodyBytes   = 64 << 20 // 64 MiB
)

// Load reads and parses the YAML file at path, applies defaults, overlays
// environment variable overrides for secrets, and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	c.applyDefaults()
	c.applyEnvOverrides()

	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.MaxLockTimeout <= 0 {
		c.MaxLockTimeout = defaultMaxLockTimeout
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	if c.PropfindDepthInfinity == "" {
		c.PropfindDepthInfinity = DepthInfinityDeny
	}
}

// applyEnvOverrides lets deployment secrets live outside the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MARBLE_DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if c.BlobBackend.S3 != nil {
		if v := os.Getenv("MARBLE_S3_ACCESS_KEY_ID"); v != "" {
			c.BlobBackend.S3.AccessKeyID = v
		}
		if v := os.Getenv("MARBLE_S3_SECRET_ACCESS_KEY"); v != "" {
			c.BlobBackend.S3.SecretAccessKey = v
		}
	}
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if c.BlobBackend.FS == nil && c.BlobBackend.S3 == nil {
		return fmt.Errorf("blob_backend: exactly one of fs or s3 is required")
	}
	if c.BlobBackend.FS != nil && c.BlobBackend.S3 != nil {
		return fmt.Errorf("blob_backend: fs and s3 are mutually exclusive")
	}
	if c.BlobBackend.FS != nil && c.BlobBackend.FS.Root == "" {
		return fmt.Errorf("blob_backend.fs.root is required")
	}
	if c.BlobBackend.S3 != nil && c.BlobBackend.S3.Bucket == "" {
		return fmt.Errorf("blob_backend.s3.bucket is required")
	}
	switch c.PropfindDepthInfinity {
	case DepthInfinityAllow, DepthInfinityDeny:
	default:
		return fmt.Errorf("propfind_depth_infinity must be %q or %q", DepthInfinityAllow, DepthInfinityDeny)
	}
	return nil
}
