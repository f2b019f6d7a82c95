package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"storyfeed/internal/cache"
	"storyfeed/internal/config"
	"storyfeed/internal/encryption"
	"storyfeed/internal/feed"
	"storyfeed/internal/metrics"
	"storyfeed/internal/moderation"
	"storyfeed/internal/remote"
	"storyfeed/internal/security"
)

// Options configures NewStoryApp.
type Options struct {
	// Operation names the CLI command being run (e.g. "approve").
	Operation  string
	Parameters string

	// Passphrase unlocks an encrypted cache. When empty, the env var named
	// by the encryption config is consulted; with neither, the cache can
	// be written but not read.
	Passphrase string

	// Console receives log lines in addition to the log file. Nil logs to
	// the file only.
	Console io.Writer
	Verbose bool
}

// StoryApp is the application layer between the CLI and the StoryStore.
// It constructs all dependencies from config, seeds the store from the
// cache and the remote, and releases resources on Close.
type StoryApp struct {
	cfg      *config.Config
	remote   feed.Remote
	store    *feed.StoryStore
	registry *prometheus.Registry
	logger   *slog.Logger
	op       *Operation
	logFile  *os.File
}

// NewStoryApp creates a fully wired StoryApp from the given config and
// refreshes its store. The caller must call Close when done.
func NewStoryApp(ctx context.Context, cfg *config.Config, opts Options) (*StoryApp, error) {
	op := NewOperation(opts.Operation, opts.Parameters, time.Now())

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger, logFile, err := newLogger(cfg.LogDir, op.ID, opts.Console, level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	session, err := ResolveSession(cfg.Session)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("resolving session: %w", err)
	}

	r, err := openRemote(cfg.Remote)
	if err != nil {
		logFile.Close()
		return nil, err
	}

	c, err := openCache(ctx, cfg, opts.Passphrase)
	if err != nil {
		r.Close()
		logFile.Close()
		return nil, err
	}

	moderator, err := moderation.NewModeratorFromConfig(cfg.Moderation, logger)
	if err != nil {
		r.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating moderator: %w", err)
	}

	registry := prometheus.NewRegistry()
	store := feed.NewStoryStore(r, c, session, feed.Options{
		Moderator:     moderator,
		Sanitizer:     security.NewTextSanitizer(),
		Metrics:       metrics.NewCollector(registry),
		Logger:        logger,
		ScreenStories: cfg.Moderation.ScreenStories,
	})

	a := &StoryApp{
		cfg:      cfg,
		remote:   r,
		store:    store,
		registry: registry,
		logger:   logger,
		op:       op,
		logFile:  logFile,
	}

	logger.Debug("operation started", "op", op.Name, "params", op.Parameters, "user", session.UserID)
	if err := store.Load(ctx); err != nil {
		logger.Warn("cache not loaded", "error", err)
	}
	if err := store.Refresh(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("loading stories: %w", err)
	}
	return a, nil
}

// openRemote creates the remote, verifies its schema, and bounds its calls.
func openRemote(cfg config.RemoteConfig) (feed.Remote, error) {
	r, err := remote.NewRemoteFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating remote: %w", err)
	}
	if m, ok := r.(remote.Migrator); ok {
		if err := m.CheckMigrations(); err != nil {
			r.Close()
			return nil, fmt.Errorf("remote schema out of date (run `storyfeed migrate`): %w", err)
		}
	}
	return remote.WithTimeout(r, time.Duration(cfg.TimeoutSeconds)*time.Second), nil
}

// openCache creates the durable cache, wrapping it in encryption when configured.
func openCache(ctx context.Context, cfg *config.Config, passphrase string) (feed.Cache, error) {
	c, err := cache.NewCacheFromConfig(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	if enc == nil {
		return c, nil
	}
	if !enc.IsConfigured() {
		return nil, fmt.Errorf("encryption keys not found (run `storyfeed keys init`)")
	}

	if passphrase == "" && cfg.Encryption.PassphraseEnv != "" {
		passphrase = os.Getenv(cfg.Encryption.PassphraseEnv)
	}
	var dec feed.DecryptionContext
	if passphrase != "" {
		dec, err = enc.Unlock(passphrase)
		if err != nil {
			return nil, fmt.Errorf("unlocking cache: %w", err)
		}
	}
	return cache.NewEncryptedCache(c, enc, dec), nil
}

// Store returns the wired StoryStore.
func (a *StoryApp) Store() *feed.StoryStore {
	return a.store
}

// Registry returns the registry the store's metrics are recorded on.
func (a *StoryApp) Registry() *prometheus.Registry {
	return a.registry
}

// ResolveStoryID expands a unique prefix of a story ID, so the CLI can
// accept the short IDs it prints. Stories the session cannot open do not
// match.
func (a *StoryApp) ResolveStoryID(prefix string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("story id must not be empty")
	}
	var matches []string
	for _, st := range a.store.Stories() {
		if _, ok := a.store.Open(st.ID); !ok {
			continue
		}
		if st.ID == prefix {
			return st.ID, nil
		}
		if strings.HasPrefix(st.ID, prefix) {
			matches = append(matches, st.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no story matches %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%q matches %d stories", prefix, len(matches))
	}
}

// WriteMetrics writes the registry to path in the Prometheus text format.
func (a *StoryApp) WriteMetrics(path string) error {
	if err := prometheus.WriteToTextfile(path, a.registry); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}

// Finish records the command's outcome for the closing log line.
func (a *StoryApp) Finish(err error) {
	a.op.Fail(err)
}

// Close logs the operation's outcome and releases the remote and log file.
func (a *StoryApp) Close() error {
	var firstErr error

	a.logger.Info("operation finished", "op", a.op.Name, "status", a.op.Status, "elapsed", a.op.Elapsed(time.Now()))

	if err := a.remote.Close(); err != nil {
		firstErr = fmt.Errorf("closing remote: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// MigrateRemote applies pending schema migrations to the configured remote.
func MigrateRemote(cfg config.RemoteConfig) error {
	r, err := remote.NewRemoteFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("creating remote: %w", err)
	}
	defer r.Close()

	m, ok := r.(remote.Migrator)
	if !ok {
		return nil
	}
	if err := m.MigrateUp(); err != nil {
		return fmt.Errorf("migrating remote: %w", err)
	}
	return nil
}

// SetupKeys generates the cache encryption key pair.
func SetupKeys(cfg config.EncryptionConfig, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if enc == nil {
		return fmt.Errorf("encryption is disabled (set encryption.type in the config)")
	}
	if err := enc.Setup(passphrase); err != nil {
		return fmt.Errorf("setting up keys: %w", err)
	}
	return nil
}
