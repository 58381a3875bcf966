package app

import (
	"fmt"
	"os"
	"time"

	"confdb/internal/config"
	"confdb/internal/core"
	"confdb/internal/database"
	"confdb/internal/notify"
)

// App is the application layer between the CLI and the Service.
// It constructs all dependencies from config and manages the DB lifecycle
// on Close.
type App struct {
	cfg     *config.Config
	db      core.Database
	service *core.Service
	logger  core.Logger
	user    string
	logFile *os.File
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "ProjectImport",
// "History") and tags every log line. The caller must call Close when done.
func NewApp(cfg *config.Config, operation string) (*App, error) {
	opID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger.With("operation", operation)}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}

	notifier, err := notify.NewNotifierFromConfig(cfg.Notifier, logger)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating notifier: %w", err)
	}

	roles := core.NewStaticRoles(map[string][]string{
		core.PrivilegeAdmin:         cfg.Roles.Admins,
		core.PrivilegeSuperApprover: cfg.Roles.SuperApprovers,
	})

	svc := core.NewService(db, roles, notifier, logger, core.RealClock{}, core.UUIDGenerator{})
	if _, err := svc.EnsureMasterProject(); err != nil {
		db.Close()
		logFile.Close()
		return nil, err
	}

	return &App{
		cfg:     cfg,
		db:      db,
		service: svc,
		logger:  logger,
		user:    currentUser(),
		logFile: logFile,
	}, nil
}

// Service exposes the wired service layer to the CLI commands.
func (a *App) Service() *core.Service { return a.service }

// Logger exposes the operation-tagged logger.
func (a *App) Logger() core.Logger { return a.logger }

// User returns the identity CLI operations run as: CONFDB_USER when set,
// otherwise the OS login name.
func (a *App) User() string { return a.user }

func currentUser() string {
	if user := os.Getenv("CONFDB_USER"); user != "" {
		return user
	}
	return os.Getenv("USER")
}

// Close releases the database and the log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
