// ABOUTME: Starter configuration written by the init subcommand
// ABOUTME: Valid as-is; channels and oauth stay disabled until filled in

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrExists is returned by WriteStarter when the file is already there.
var ErrExists = errors.New("config file already exists")

// Starter is a commented configuration that loads without edits.
const Starter = `# coven-bot configuration
bot:
  name: "coven-bot"
  default_locale: "en-us"
  # signin_connection: "github"
  transcripts: true

storage:
  driver: "sqlite"          # sqlite, sqlite3 (cgo) or memory
  path: "${HOME}/.local/share/coven-bot/bot.db"
  collection: "bot_state"

dedupe:
  ttl: "10m"
  max_size: 10000

# oauth:
#   listen_addr: "127.0.0.1:3978"
#   callback_url: "https://bot.example.com/oauth/callback"
#   signing_secret: "${COVEN_BOT_SIGNING_SECRET}"
#   vault_key: "${COVEN_BOT_VAULT_KEY}"
#   state_ttl: "15m"
#   code_ttl: "10m"
#   connections:
#     - name: "github"
#       client_id: "${GITHUB_CLIENT_ID}"
#       client_secret: "${GITHUB_CLIENT_SECRET}"
#       auth_url: "https://github.com/login/oauth/authorize"
#       token_url: "https://github.com/login/oauth/access_token"
#       scopes: ["read:user"]

tailscale:
  enabled: false
  hostname: "coven-bot"
  auth_key: "${TS_AUTHKEY}"
  ephemeral: false
  funnel: false

channels:
  matrix:
    enabled: false
    homeserver: "https://matrix.org"
    user_id: "@bot:matrix.org"
    access_token: "${MATRIX_ACCESS_TOKEN}"
    allowed_rooms: []
    command_prefix: ""
    typing_indicator: true
    encryption: false
    # recovery_key: "${MATRIX_RECOVERY_KEY}"
  discord:
    enabled: false
    token: "${DISCORD_TOKEN}"
    allowed_channels: []
    require_mention: false
  console:
    user_id: "user"
    user_name: "User"

logging:
  level: "info"   # debug, info, warn, error
  format: "text"  # text, json
`

// WriteStarter writes Starter to path, creating parent directories. It
// refuses to overwrite an existing file unless force is set.
func WriteStarter(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(Starter), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
