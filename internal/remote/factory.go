package remote

import (
	"fmt"
	"os"
	"path/filepath"

	"storyfeed/internal/config"
	"storyfeed/internal/feed"
	"storyfeed/internal/remote/migrations"
)

// Migrator is implemented by remotes backed by a versioned schema.
type Migrator interface {
	CheckMigrations() error
	MigrateUp() error
}

// NewRemoteFromConfig creates a Remote implementation based on the remote config type.
// SQL-backed remotes are returned unmigrated; see Migrator.
func NewRemoteFromConfig(cfg config.RemoteConfig) (feed.Remote, error) {
	switch cfg.Type {
	case migrations.SQLite:
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite remote")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		db, err := OpenSQLite(filepath.Join(cfg.DataDir, "storyfeed.db"))
		if err != nil {
			return nil, err
		}
		return NewSQLRemote(db, migrations.SQLite), nil
	case migrations.Postgres:
		dsn := cfg.DSN
		if cfg.DSNEnv != "" {
			if v := os.Getenv(cfg.DSNEnv); v != "" {
				dsn = v
			}
		}
		if dsn == "" {
			return nil, fmt.Errorf("dsn required for postgres remote")
		}
		db, err := OpenPostgres(dsn)
		if err != nil {
			return nil, err
		}
		return NewSQLRemote(db, migrations.Postgres), nil
	case "memory":
		return NewMemoryRemote(), nil
	default:
		return nil, fmt.Errorf("unknown remote type: %s", cfg.Type)
	}
}
