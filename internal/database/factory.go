package database

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"confdb/internal/config"
	"confdb/internal/core"
)

// NewDatabaseFromConfig creates a Database implementation based on the
// database config type.
func NewDatabaseFromConfig(cfg config.DatabaseConfig) (core.Database, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, "confdb.db"))
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("dsn required for postgres database")
		}
		return NewPostgresDatabase(cfg.DSN)
	case "memory":
		return NewMemoryDatabase(), nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// OpenRawFromConfig opens a bare SQL connection to the configured database
// without running migrations, along with the migration driver name. The
// migrate and status CLI commands use this to inspect and advance the
// schema directly.
func OpenRawFromConfig(cfg config.DatabaseConfig) (*sql.DB, string, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, "", fmt.Errorf("data_dir required for sqlite database")
		}
		db, err := OpenSQLiteConnection(filepath.Join(cfg.DataDir, "confdb.db"))
		if err != nil {
			return nil, "", err
		}
		return db, "sqlite3", nil
	case "postgres":
		if cfg.DSN == "" {
			return nil, "", fmt.Errorf("dsn required for postgres database")
		}
		db, err := OpenPostgresConnection(cfg.DSN)
		if err != nil {
			return nil, "", err
		}
		return db, "postgres", nil
	default:
		return nil, "", fmt.Errorf("database type %s does not support schema migrations", cfg.Type)
	}
}
