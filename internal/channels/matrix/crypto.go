// ABOUTME: End-to-end encryption for the Matrix adapter using mautrix cryptohelper
// ABOUTME: Keeps one crypto database per bot account and resets it when the device changes

package matrix

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/crypto/cryptohelper"
)

// EncryptionConfig enables encrypted rooms.
type EncryptionConfig struct {
	// DataDir holds the crypto database.
	DataDir string
	// RecoveryKey cross-signs the bot's device when set.
	RecoveryKey string
}

// Encryption owns the crypto helper attached to a client.
type Encryption struct {
	helper *cryptohelper.CryptoHelper
	logger *slog.Logger
}

// EnableEncryption attaches a crypto helper to client so encrypted events
// are decrypted during sync and replies to encrypted rooms are encrypted.
// The client must be logged in.
func EnableEncryption(ctx context.Context, client *mautrix.Client, cfg EncryptionConfig, logger *slog.Logger) (*Encryption, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "matrix")

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating crypto data directory: %w", err)
	}

	userID := client.UserID.String()
	dbPath := cryptoDBPath(cfg.DataDir, userID)
	logger.Info("setting up encryption", "db", dbPath)

	if stale, err := deviceChanged(dbPath, client.DeviceID.String()); err != nil {
		logger.Debug("could not read stored device id", "error", err)
	} else if stale {
		logger.Warn("device id changed, resetting crypto database")
		if err := removeDB(dbPath); err != nil {
			return nil, err
		}
	}

	helper, err := cryptohelper.NewCryptoHelper(client, pickleKey(userID), dbPath)
	if err != nil {
		return nil, fmt.Errorf("creating crypto helper: %w", err)
	}
	if err := helper.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing crypto helper: %w", err)
	}
	client.Crypto = helper

	enc := &Encryption{helper: helper, logger: logger}
	if cfg.RecoveryKey == "" {
		logger.Info("encryption enabled without cross-signing")
		return enc, nil
	}

	// Encryption works without cross-signing, so a bad key only warns.
	if err := enc.verify(ctx, cfg.RecoveryKey); err != nil {
		logger.Warn("recovery key verification failed", "error", err)
	} else {
		logger.Info("encryption enabled with cross-signing")
	}
	return enc, nil
}

func (e *Encryption) verify(ctx context.Context, recoveryKey string) error {
	machine := e.helper.Machine()
	if machine == nil {
		return errors.New("crypto machine not initialized")
	}
	return machine.VerifyWithRecoveryKey(ctx, recoveryKey)
}

// Close closes the crypto database.
func (e *Encryption) Close() error {
	if e == nil || e.helper == nil {
		return nil
	}
	return e.helper.Close()
}

// cryptoDBPath names the database after the account: @bot:example.org
// becomes matrix-crypto-bot_example.org.db.
func cryptoDBPath(dataDir, userID string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		case r == ':':
			return '_'
		}
		return -1
	}, strings.TrimPrefix(userID, "@"))
	return filepath.Join(dataDir, "matrix-crypto-"+slug+".db")
}

// pickleKey derives the key that encrypts the crypto store from the account.
func pickleKey(userID string) []byte {
	h := sha256.Sum256([]byte("coven-bot-crypto:" + userID))
	return h[:]
}

// deviceChanged reports whether an existing crypto database belongs to
// another device of the same account. A fresh login gets a new device id
// and the old keys can no longer be used.
func deviceChanged(dbPath, deviceID string) (bool, error) {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return false, nil
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return false, err
	}
	defer db.Close()

	var stored string
	err = db.QueryRow("SELECT device_id FROM crypto_account LIMIT 1").Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stored != deviceID, nil
}

func removeDB(dbPath string) error {
	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing crypto database: %w", err)
	}
	_ = os.Remove(dbPath + "-wal")
	_ = os.Remove(dbPath + "-shm")
	return nil
}
