// ABOUTME: Configuration loading and parsing for coven-bot
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "COVEN_BOT_CONFIG"

// Config represents the complete coven-bot configuration
type Config struct {
	Bot       BotConfig       `yaml:"bot" toml:"bot"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Dedupe    DedupeConfig    `yaml:"dedupe" toml:"dedupe"`
	OAuth     OAuthConfig     `yaml:"oauth" toml:"oauth"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Channels  ChannelsConfig  `yaml:"channels" toml:"channels"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// BotConfig holds conversation behavior
type BotConfig struct {
	Name          string `yaml:"name" toml:"name"`
	DefaultLocale string `yaml:"default_locale" toml:"default_locale"`
	// SigninConnection names the oauth connection behind the sign-in dialog
	SigninConnection string `yaml:"signin_connection" toml:"signin_connection"`
	Transcripts      bool   `yaml:"transcripts" toml:"transcripts"`
}

// StorageConfig selects the durable store
type StorageConfig struct {
	Driver     string `yaml:"driver" toml:"driver"` // sqlite, sqlite3 or memory
	Path       string `yaml:"path" toml:"path"`
	Collection string `yaml:"collection" toml:"collection"`
}

// DedupeConfig bounds the duplicate activity cache
type DedupeConfig struct {
	TTL     time.Duration `yaml:"-" toml:"-"`
	MaxSize int           `yaml:"max_size" toml:"max_size"`

	// Raw string values for unmarshaling
	TTLRaw string `yaml:"ttl" toml:"ttl"`
}

// OAuthConfig holds the token service configuration
type OAuthConfig struct {
	// ListenAddr serves the callback when tailscale is disabled
	ListenAddr    string             `yaml:"listen_addr" toml:"listen_addr"`
	CallbackURL   string             `yaml:"callback_url" toml:"callback_url"`
	SigningSecret string             `yaml:"signing_secret" toml:"signing_secret"`
	VaultKey      string             `yaml:"vault_key" toml:"vault_key"`
	Connections   []ConnectionConfig `yaml:"connections" toml:"connections"`

	StateTTL time.Duration `yaml:"-" toml:"-"`
	CodeTTL  time.Duration `yaml:"-" toml:"-"`

	StateTTLRaw string `yaml:"state_ttl" toml:"state_ttl"`
	CodeTTLRaw  string `yaml:"code_ttl" toml:"code_ttl"`
}

// ConnectionConfig describes one OAuth provider
type ConnectionConfig struct {
	Name         string   `yaml:"name" toml:"name"`
	ClientID     string   `yaml:"client_id" toml:"client_id"`
	ClientSecret string   `yaml:"client_secret" toml:"client_secret"`
	AuthURL      string   `yaml:"auth_url" toml:"auth_url"`
	TokenURL     string   `yaml:"token_url" toml:"token_url"`
	Scopes       []string `yaml:"scopes" toml:"scopes"`
}

// Enabled reports whether the token service should run.
func (o OAuthConfig) Enabled() bool {
	return len(o.Connections) > 0
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // Enable public Funnel (implies HTTPS)
}

// ChannelsConfig holds configuration for all transports
type ChannelsConfig struct {
	Matrix  MatrixConfig  `yaml:"matrix" toml:"matrix"`
	Discord DiscordConfig `yaml:"discord" toml:"discord"`
	Console ConsoleConfig `yaml:"console" toml:"console"`
}

// MatrixConfig holds Matrix integration configuration
type MatrixConfig struct {
	Enabled         bool     `yaml:"enabled" toml:"enabled"`
	Homeserver      string   `yaml:"homeserver" toml:"homeserver"`
	UserID          string   `yaml:"user_id" toml:"user_id"`
	AccessToken     string   `yaml:"access_token" toml:"access_token"`
	Username        string   `yaml:"username" toml:"username"`
	Password        string   `yaml:"password" toml:"password"`
	AllowedRooms    []string `yaml:"allowed_rooms" toml:"allowed_rooms"`
	CommandPrefix   string   `yaml:"command_prefix" toml:"command_prefix"`
	TypingIndicator bool     `yaml:"typing_indicator" toml:"typing_indicator"`
	Notices         bool     `yaml:"notices" toml:"notices"`
	QuoteReplies    bool     `yaml:"quote_replies" toml:"quote_replies"`
	// Encryption joins encrypted rooms; keys live under DataDir
	Encryption      bool     `yaml:"encryption" toml:"encryption"`
	RecoveryKey     string   `yaml:"recovery_key" toml:"recovery_key"`
	DataDir         string   `yaml:"data_dir" toml:"data_dir"`
}

// DiscordConfig holds Discord integration configuration
type DiscordConfig struct {
	Enabled         bool     `yaml:"enabled" toml:"enabled"`
	Token           string   `yaml:"token" toml:"token"`
	AllowedChannels []string `yaml:"allowed_channels" toml:"allowed_channels"`
	CommandPrefix   string   `yaml:"command_prefix" toml:"command_prefix"`
	RequireMention  bool     `yaml:"require_mention" toml:"require_mention"`
	QuoteReplies    bool     `yaml:"quote_replies" toml:"quote_replies"`
}

// ConsoleConfig names the local user for the console subcommand
type ConsoleConfig struct {
	UserID   string `yaml:"user_id" toml:"user_id"`
	UserName string `yaml:"user_name" toml:"user_name"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// DefaultPath returns the config location: $COVEN_BOT_CONFIG, then
// $XDG_CONFIG_HOME/coven/bot.yaml, then ~/.config/coven/bot.yaml.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "coven", "bot.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "bot.yaml"
	}
	return filepath.Join(home, ".config", "coven", "bot.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Name == "" {
		cfg.Bot.Name = "coven-bot"
	}
	if cfg.Bot.DefaultLocale == "" {
		cfg.Bot.DefaultLocale = "en-us"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Dedupe.TTL == 0 {
		cfg.Dedupe.TTL = 10 * time.Minute
	}
	if cfg.Dedupe.MaxSize == 0 {
		cfg.Dedupe.MaxSize = 10000
	}
	if cfg.OAuth.ListenAddr == "" {
		cfg.OAuth.ListenAddr = "127.0.0.1:3978"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "sqlite3":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the %s driver", c.Storage.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("storage.driver %q is not one of sqlite, sqlite3, memory", c.Storage.Driver)
	}

	if c.Dedupe.MaxSize < 0 {
		return errors.New("dedupe.max_size must not be negative")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return errors.New("tailscale.hostname is required when tailscale is enabled")
	}

	if err := c.validateOAuth(); err != nil {
		return err
	}

	if m := c.Channels.Matrix; m.Enabled {
		if m.Homeserver == "" {
			return errors.New("channels.matrix.homeserver is required")
		}
		if _, err := url.Parse(m.Homeserver); err != nil {
			return fmt.Errorf("channels.matrix.homeserver is not a valid URL: %w", err)
		}
		if m.AccessToken == "" && (m.Username == "" || m.Password == "") {
			return errors.New("channels.matrix needs access_token or username and password")
		}
		if m.AccessToken != "" && m.UserID == "" {
			return errors.New("channels.matrix.user_id is required with access_token")
		}
	}

	if d := c.Channels.Discord; d.Enabled && d.Token == "" {
		return errors.New("channels.discord.token is required")
	}

	return nil
}

func (c *Config) validateOAuth() error {
	if c.Bot.SigninConnection != "" && !c.OAuth.Enabled() {
		return fmt.Errorf("bot.signin_connection %q needs oauth.connections", c.Bot.SigninConnection)
	}
	if !c.OAuth.Enabled() {
		return nil
	}

	if c.OAuth.SigningSecret == "" {
		return errors.New("oauth.signing_secret is required")
	}
	if len(c.OAuth.SigningSecret) < 32 {
		return errors.New("oauth.signing_secret must be at least 32 bytes")
	}
	if c.OAuth.VaultKey == "" {
		return errors.New("oauth.vault_key is required")
	}
	if c.OAuth.CallbackURL == "" && !c.Tailscale.Enabled {
		return errors.New("oauth.callback_url is required (or enable tailscale)")
	}

	seen := make(map[string]bool, len(c.OAuth.Connections))
	for i, conn := range c.OAuth.Connections {
		if conn.Name == "" {
			return fmt.Errorf("oauth.connections[%d].name is required", i)
		}
		if seen[conn.Name] {
			return fmt.Errorf("oauth.connections[%d]: duplicate name %q", i, conn.Name)
		}
		seen[conn.Name] = true
		if conn.ClientID == "" || conn.AuthURL == "" || conn.TokenURL == "" {
			return fmt.Errorf("oauth.connections[%d] (%s): client_id, auth_url and token_url are required", i, conn.Name)
		}
	}

	if c.Bot.SigninConnection != "" && !seen[c.Bot.SigninConnection] {
		return fmt.Errorf("bot.signin_connection %q is not a configured connection", c.Bot.SigninConnection)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"dedupe.ttl", cfg.Dedupe.TTLRaw, &cfg.Dedupe.TTL},
		{"oauth.state_ttl", cfg.OAuth.StateTTLRaw, &cfg.OAuth.StateTTL},
		{"oauth.code_ttl", cfg.OAuth.CodeTTLRaw, &cfg.OAuth.CodeTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("parsing %s %q: must not be negative", f.name, f.raw)
		}
		*f.dst = d
	}

	return nil
}
