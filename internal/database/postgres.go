package database

import (
	"database/sql"
	"fmt"
	"time"

	"confdb/internal/core"
	"confdb/internal/database/migrations"

	_ "github.com/lib/pq" // Postgres driver
)

// PostgresDatabase implements core.Database using PostgreSQL.
type PostgresDatabase struct {
	sqlStore
}

var _ core.Database = (*PostgresDatabase)(nil)

// NewPostgresDatabase connects to the given DSN and brings the schema up
// to date.
func NewPostgresDatabase(dsn string) (*PostgresDatabase, error) {
	db, err := OpenPostgresConnection(dsn)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db, "postgres"); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresDatabase{
		sqlStore: sqlStore{db: db, dialect: dialectPostgres},
	}, nil
}

// OpenPostgresConnection opens and configures a Postgres connection pool.
// Exported for the CLI's migration commands.
func OpenPostgresConnection(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}
