package database

import (
	"database/sql"
	"fmt"

	"confdb/internal/core"
	"confdb/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements core.Database using SQLite.
type SQLiteDatabase struct {
	sqlStore
	path string
}

var _ core.Database = (*SQLiteDatabase)(nil)

// NewSQLiteDatabase opens (or creates) a SQLite database at the given path
// and brings its schema up to date. path can be ":memory:" for an
// in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenSQLiteConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db, "sqlite3"); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteDatabase{
		sqlStore: sqlStore{db: db, dialect: dialectSQLite},
		path:     path,
	}, nil
}

// OpenSQLiteConnection opens and configures a SQLite connection with the
// PRAGMAs the store needs. Exported for the CLI's migration commands.
func OpenSQLiteConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// foreign keys default to OFF in SQLite for backward compatibility
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	// concurrent callers should wait for the writer instead of erroring
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}
