package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for confdb.
type Config struct {
	BaseDir  string         `toml:"base_dir"`
	LogDir   string         `toml:"log_dir"`
	Database DatabaseConfig `toml:"database"`
	Notifier NotifierConfig `toml:"notifier"`
	Roles    RolesConfig    `toml:"roles"`
}

// DatabaseConfig represents configuration for the record store.
// This uses a tagged union pattern - the Type field determines which other
// fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite", "postgres" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
	DSN     string `toml:"dsn,omitempty"`      // only used for type=postgres
}

// NotifierConfig represents configuration for outbound notifications.
// This uses a tagged union pattern - the Type field determines which other
// fields are relevant.
type NotifierConfig struct {
	Type string `toml:"type"` // "none", "email" or "webhook"

	// Email-specific fields (only used when Type == "email")
	EmailFromUser     string `toml:"email_from_user,omitempty"`
	EmailServer       string `toml:"email_server,omitempty"` // host:port
	EmailUsername     string `toml:"email_username,omitempty"`
	EmailPassword     string `toml:"email_password,omitempty"`
	EmailUseSSL       bool   `toml:"email_use_ssl,omitempty"`
	AdminEmail        string `toml:"admin_email,omitempty"`
	ServiceURL        string `toml:"service_url,omitempty"`         // deployment URL used in message bodies
	AccountServiceURL string `toml:"account_service_url,omitempty"` // username -> email resolution

	// Webhook-specific fields (only used when Type == "webhook")
	WebhookURL string `toml:"webhook_url,omitempty"`
}

// RolesConfig holds the static privilege table for embedded deployments
// that have no external role service.
type RolesConfig struct {
	Admins         []string `toml:"admins"`
	SuperApprovers []string `toml:"super_approvers"`
}

// NewConfig creates a new Config with the provided base directory and
// defaults suitable for a single-host deployment.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Notifier: NotifierConfig{Type: "none"},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the
// provided Config. Refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
