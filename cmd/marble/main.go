// Command marble runs the multi-tenant WebDAV notes server described by
// the marble configuration file, and offers small administrative
// subcommands (schema migration, user provisioning) that a deployment
// needs before the server is useful.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/marble-dav/marble/internal/auth"
	"github.com/marble-dav/marble/internal/blob"
	"github.com/marble-dav/marble/internal/config"
	"github.com/marble-dav/marble/internal/lock"
	"github.com/marble-dav/marble/internal/metadata"
	"github.com/marble-dav/marble/internal/objectstore"
	"github.com/marble-dav/marble/internal/tenant"
	"github.com/marble-dav/marble/internal/webdavhandler"
)

func main() {
	app := &cli.App{
		Name:  "marble",
		Usage: "multi-tenant WebDAV notes server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "marble.yaml",
				Usage:   "path to the marble YAML config file",
				EnvVars: []string{"MARBLE_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "json-log",
				Usage: "emit structured JSON logs instead of a console writer",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "debug, info, warn, or error",
			},
		},
		Commands: []*cli.Command{
			serveCommand,
			createUserCommand,
			migrateCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "marble:", err)
		os.Exit(1)
	}
}

func initLogger(c *cli.Context) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.String("log-level"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if c.Bool("json-log") {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

func openMetadataDB(cfg *config.Config) (*metadata.DB, error) {
	db, err := metadata.Open(cfg.DatabaseURL, metadata.Options{})
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

func openBlobBackend(ctx context.Context, cfg *config.Config) (objectstore.Store, error) {
	switch {
	case cfg.BlobBackend.FS != nil:
		store, err := objectstore.OpenBadgerStore(cfg.BlobBackend.FS.Root)
		if err != nil {
			return nil, fmt.Errorf("open fs blob backend: %w", err)
		}
		return store, nil
	case cfg.BlobBackend.S3 != nil:
		s3cfg := cfg.BlobBackend.S3
		store, err := objectstore.OpenS3Store(ctx, objectstore.S3Config{
			Bucket:          s3cfg.Bucket,
			Region:          s3cfg.Region,
			Endpoint:        s3cfg.Endpoint,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			UsePathStyle:    s3cfg.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("open s3 blob backend: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("no blob backend configured")
	}
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "run the WebDAV server",
	Action: func(c *cli.Context) error {
		log := initLogger(c)

		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		backend, err := openBlobBackend(ctx, cfg)
		if err != nil {
			return err
		}
		defer backend.Close()

		blobStore := blob.New(backend, cfg.BlobCacheSize, log)
		hasher := blob.NewHasher(blobStore)

		db, err := openMetadataDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		storage := tenant.New(db, hasher, log)
		authSvc := auth.New(db, log)
		locks := lock.New()
		handler := webdavhandler.New(storage, authSvc, locks, cfg, log)

		srv := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", cfg.ListenAddr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return fmt.Errorf("server failed: %w", err)
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("shutting down")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	},
}

var migrateCommand = &cli.Command{
	Name:  "migrate",
	Usage: "apply the metadata store schema",
	Action: func(c *cli.Context) error {
		log := initLogger(c)
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return err
		}
		db, err := openMetadataDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		log.Info().Str("database_url", cfg.DatabaseURL).Msg("schema applied")
		return nil
	},
}

var createUserCommand = &cli.Command{
	Name:  "create-user",
	Usage: "provision a tenant (spec: user provisioning is an external collaborator)",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "username", Required: true},
		&cli.StringFlag{Name: "password", Required: true},
	},
	Action: func(c *cli.Context) error {
		log := initLogger(c)
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return err
		}
		db, err := openMetadataDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		hash, err := auth.HashPassword(c.String("password"))
		if err != nil {
			return err
		}

		users := metadata.NewUserRepository(db.Underlying())
		u, err := users.Create(c.Context, uuid.NewString(), c.String("username"), hash)
		if err != nil {
			return err
		}

		log.Info().Str("username", u.Username).Str("uuid", u.UUID).Msg("user created")
		fmt.Println(u.UUID)
		return nil
	},
}
