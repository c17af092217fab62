// Package config handles configuration loading for coven-bot.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. The file extension picks the format: ".toml" is TOML, anything
// else is YAML. Missing optional values get defaults before validation.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COVEN_BOT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/bot.yaml
//  3. ~/.config/coven/bot.yaml
//
// "coven-bot init" writes Starter to the default location.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	oauth:
//	  signing_secret: "${COVEN_BOT_SIGNING_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	dedupe:
//	  ttl: "10m"
//	oauth:
//	  state_ttl: "15m"
//	  code_ttl: "10m"
//
// # Configuration Sections
//
// Storage:
//
//	storage:
//	  driver: "sqlite"       # sqlite, sqlite3, memory
//	  path: "/var/lib/coven/bot.db"
//	  collection: "bot_state"
//
// OAuth token service:
//
//	oauth:
//	  listen_addr: "127.0.0.1:3978"
//	  callback_url: "https://bot.example.com/oauth/callback"
//	  signing_secret: "${COVEN_BOT_SIGNING_SECRET}"   # at least 32 bytes
//	  vault_key: "${COVEN_BOT_VAULT_KEY}"
//	  connections:
//	    - name: "github"
//	      client_id: "..."
//	      auth_url: "https://github.com/login/oauth/authorize"
//	      token_url: "https://github.com/login/oauth/access_token"
//
// Channels:
//
//	channels:
//	  matrix:
//	    enabled: true
//	    homeserver: "https://matrix.org"
//	    user_id: "@bot:matrix.org"
//	    access_token: "${MATRIX_ACCESS_TOKEN}"
//	  discord:
//	    enabled: true
//	    token: "${DISCORD_TOKEN}"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - storage driver and path
//   - signing secret minimum length (32 bytes) when oauth is configured
//   - connection names unique and complete
//   - enabled channels have credentials
//   - duration format validity
package config
