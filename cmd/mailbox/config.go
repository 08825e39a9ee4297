package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/mailbox/console"
)

// Development defaults. They keep the service usable out of the box and are
// reported at startup when still in effect.
const (
	defaultLogin    = "admin"
	defaultPassword = "admin"
	defaultSecret   = "mailbox-development-session-secret"
)

// Config is the service configuration: an optional YAML file overlaid by
// environment variables.
type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	AdminLogin        string `yaml:"admin_login"`
	AdminPassword     string `yaml:"admin_password"`
	AdminPasswordHash string `yaml:"admin_password_hash"`
	SessionSecret     string `yaml:"session_secret"`
	SessionTTLHours   int    `yaml:"session_ttl_hours"`
	CookieSecure      bool   `yaml:"cookie_secure"`

	MaxPageBytes int64  `yaml:"max_page_bytes"`
	Preview      string `yaml:"preview"`
	MCP          bool   `yaml:"mcp"`

	AuditDB            string `yaml:"audit_db"`
	AuditRetentionDays int    `yaml:"audit_retention_days"`
}

func defaultConfig() Config {
	return Config{
		Port:               "8080",
		LogLevel:           "info",
		AdminLogin:         defaultLogin,
		AdminPassword:      defaultPassword,
		SessionSecret:      defaultSecret,
		SessionTTLHours:    24,
		MaxPageBytes:       8 << 20,
		Preview:            string(console.PreviewRaw),
		AuditRetentionDays: 30,
	}
}

// loadConfig builds the configuration from defaults, then the YAML file at
// path (skipped when path is empty), then environment variables read through
// getenv.
func loadConfig(path string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("PORT", &cfg.Port)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("MAILBOX_ADMIN_LOGIN", &cfg.AdminLogin)
	str("MAILBOX_ADMIN_PASSWORD", &cfg.AdminPassword)
	str("MAILBOX_ADMIN_PASSWORD_HASH", &cfg.AdminPasswordHash)
	str("MAILBOX_SESSION_SECRET", &cfg.SessionSecret)
	str("MAILBOX_PREVIEW", &cfg.Preview)
	str("MAILBOX_AUDIT_DB", &cfg.AuditDB)

	var err error
	if cfg.SessionTTLHours, err = envInt(getenv, "MAILBOX_SESSION_TTL_HOURS", cfg.SessionTTLHours); err != nil {
		return Config{}, err
	}
	if cfg.AuditRetentionDays, err = envInt(getenv, "MAILBOX_AUDIT_RETENTION_DAYS", cfg.AuditRetentionDays); err != nil {
		return Config{}, err
	}
	if v := getenv("MAILBOX_MAX_PAGE_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: MAILBOX_MAX_PAGE_BYTES: %w", err)
		}
		cfg.MaxPageBytes = n
	}
	if cfg.MCP, err = envBool(getenv, "MAILBOX_MCP", cfg.MCP); err != nil {
		return Config{}, err
	}
	if cfg.CookieSecure, err = envBool(getenv, "MAILBOX_COOKIE_SECURE", cfg.CookieSecure); err != nil {
		return Config{}, err
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("config: port is required")
	}
	if c.AdminLogin == "" {
		return fmt.Errorf("config: admin_login is required")
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("config: session_secret is required")
	}
	if c.MaxPageBytes <= 0 {
		return fmt.Errorf("config: max_page_bytes must be positive")
	}
	if _, err := console.ParsePreviewMode(c.Preview); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// defaultsInUse names the development defaults still in effect.
func (c Config) defaultsInUse() []string {
	var out []string
	if c.AdminLogin == defaultLogin {
		out = append(out, "admin_login")
	}
	if c.AdminPasswordHash == "" && c.AdminPassword == defaultPassword {
		out = append(out, "admin_password")
	}
	if c.SessionSecret == defaultSecret {
		out = append(out, "session_secret")
	}
	return out
}

func envInt(getenv func(string) string, key string, def int) (int, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func envBool(getenv func(string) string, key string, def bool) (bool, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}
