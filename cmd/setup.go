package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/kozaktomas/presence-guard/internal/camera"
	"github.com/kozaktomas/presence-guard/internal/config"
	"github.com/kozaktomas/presence-guard/internal/database"
	"github.com/kozaktomas/presence-guard/internal/database/mariadb"
	"github.com/kozaktomas/presence-guard/internal/database/postgres"
	"github.com/kozaktomas/presence-guard/internal/recognizer"
)

// setupLogger configures the process-wide slog logger. With GUARD_LOG_FILE
// set, logs go to that file; otherwise to stderr. The returned cleanup
// closes the file.
func setupLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	out := os.Stderr
	cleanup := func() {}

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		out = f
		cleanup = func() { _ = f.Close() }
	}

	logger := slog.New(slog.NewTextHandler(out, nil))
	slog.SetDefault(logger)
	return logger, cleanup, nil
}

// openFrameSource picks the camera backend: an HTTP snapshot endpoint if
// configured, otherwise a local V4L2 device.
func openFrameSource(cfg *config.Config) (camera.FrameSource, error) {
	if cfg.Camera.SnapshotURL != "" {
		return camera.NewSnapshotSource(cfg.Camera.SnapshotURL, cfg.Camera.AcquireTimeout), nil
	}
	return camera.OpenDevice(cfg.Camera)
}

// auditBackends holds whatever storage the configuration enables. Any of
// the fields may be nil.
type auditBackends struct {
	store database.EventStore
	cache recognizer.EncodingCache
	close func()
}

// openAuditBackends selects the audit store: PostgreSQL if DATABASE_URL
// is set (also enabling the enrollment encoding cache), else MariaDB,
// else the JSONL file, else a no-op store.
func openAuditBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*auditBackends, error) {
	switch {
	case cfg.Database.PostgresURL != "":
		pool, err := postgres.NewPool(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		if err := pool.Migrate(ctx); err != nil {
			_ = pool.Close()
			return nil, fmt.Errorf("migrating postgres schema: %w", err)
		}
		logger.Info("audit store: postgres")
		return &auditBackends{
			store: postgres.NewEventStore(pool),
			cache: postgres.NewEncodingCache(pool),
			close: func() { _ = pool.Close() },
		}, nil

	case cfg.Database.MariaDBDSN != "":
		pool, err := mariadb.NewPool(cfg.Database.MariaDBDSN)
		if err != nil {
			return nil, fmt.Errorf("connecting to mariadb: %w", err)
		}
		if err := pool.Migrate(ctx); err != nil {
			_ = pool.Close()
			return nil, fmt.Errorf("migrating mariadb schema: %w", err)
		}
		logger.Info("audit store: mariadb")
		return &auditBackends{
			store: mariadb.NewEventStore(pool),
			close: func() { _ = pool.Close() },
		}, nil

	case cfg.Database.AuditFile != "":
		store, err := database.NewFileStore(cfg.Database.AuditFile)
		if err != nil {
			return nil, fmt.Errorf("opening audit file: %w", err)
		}
		logger.Info("audit store: file", "path", cfg.Database.AuditFile)
		return &auditBackends{
			store: store,
			close: func() { _ = store.Close() },
		}, nil

	default:
		logger.Info("audit store: disabled")
		return &auditBackends{store: database.NopStore{}, close: func() {}}, nil
	}
}

// loadRecognizer builds the face recognizer from the enrollment
// directory. Refuses to proceed when nothing usable is enrolled.
func loadRecognizer(ctx context.Context, cfg *config.Config, cache recognizer.EncodingCache, showProgress bool) (*recognizer.Recognizer, error) {
	provider, err := recognizer.NewHTTPProvider(cfg.Recognizer.ServiceURL)
	if err != nil {
		return nil, fmt.Errorf("creating face provider: %w", err)
	}

	opts := recognizer.LoadOptions{Cache: cache}
	if showProgress {
		var bar *progressbar.ProgressBar
		opts.OnProgress = func(file string, done, total int) {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription("Encoding enrollment images"),
					progressbar.OptionShowCount(),
					progressbar.OptionShowElapsedTimeOnFinish(),
					progressbar.OptionFullWidth(),
				)
			}
			_ = bar.Set(done)
		}
	}

	identities, err := recognizer.LoadEnrollment(ctx, provider, cfg.Enrollment.Dir, opts)
	if err != nil {
		return nil, err
	}

	return recognizer.New(provider, identities, cfg.Recognizer.MatchThreshold)
}
