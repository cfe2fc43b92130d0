package store

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"io"
	"os"

	"github.com/localfirst/agentcore/core"
)

// SettingsStore implements the `settings` table: key/value rows with
// an encrypted flag; encrypted rows are never stored in plaintext.
type SettingsStore struct {
	db  *DB
	key [32]byte
}

// NewSettingsStore constructs a SettingsStore, deriving its AES-256-GCM
// key from AGENTCORE_SETTINGS_KEY (hex-encoded 32 bytes) if set, or
// from a machine-local key file under keyDir otherwise.
func NewSettingsStore(db *DB, keyDir string) (*SettingsStore, error) {
	key, err := loadOrCreateKey(keyDir)
	if err != nil {
		return nil, err
	}
	return &SettingsStore{db: db, key: key}, nil
}

func loadOrCreateKey(keyDir string) ([32]byte, error) {
	var key [32]byte

	if hexKey := os.Getenv("AGENTCORE_SETTINGS_KEY"); hexKey != "" {
		raw, err := hex.DecodeString(hexKey)
		if err != nil || len(raw) != 32 {
			return key, core.NewFrameworkError("store.NewSettingsStore", "settings", err).WithMessage("AGENTCORE_SETTINGS_KEY must be 32 hex-encoded bytes")
		}
		copy(key[:], raw)
		return key, nil
	}

	path := keyDir + "/settings.key"
	if raw, err := os.ReadFile(path); err == nil {
		decoded, err := hex.DecodeString(string(raw))
		if err != nil || len(decoded) != 32 {
			return key, core.NewFrameworkError("store.NewSettingsStore", "settings", err).WithMessage("corrupt settings key file")
		}
		copy(key[:], decoded)
		return key, nil
	}

	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return key, core.NewFrameworkError("store.NewSettingsStore", "settings", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key[:])), 0o600); err != nil {
		return key, core.NewFrameworkError("store.NewSettingsStore", "settings", err).WithMessage("failed to persist generated settings key")
	}
	return key, nil
}

func (s *SettingsStore) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.key[:])
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), nil
}

func (s *SettingsStore) decrypt(stored string) (string, error) {
	raw, err := hex.DecodeString(stored)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(s.key[:])
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", errShortCiphertext()
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func errShortCiphertext() error {
	return &core.FatalError{Message: "settings: ciphertext shorter than nonce"}
}

// Set stores key=value, encrypting it first when encrypted is true.
func (s *SettingsStore) Set(ctx context.Context, key, value string, encrypted bool) error {
	stored := value
	if encrypted {
		enc, err := s.encrypt(value)
		if err != nil {
			return wrapErr("store.SettingsStore.Set", err)
		}
		stored = enc
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, encrypted) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, encrypted=excluded.encrypted`,
		key, stored, encrypted)
	return wrapErr("store.SettingsStore.Set", err)
}

// Get returns the (decrypted, if applicable) value for key.
func (s *SettingsStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var encrypted bool
	err := s.db.QueryRowContext(ctx, `SELECT value, encrypted FROM settings WHERE key = ?`, key).Scan(&value, &encrypted)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapErr("store.SettingsStore.Get", err)
	}
	if !encrypted {
		return value, true, nil
	}
	plain, err := s.decrypt(value)
	if err != nil {
		return "", false, wrapErr("store.SettingsStore.Get", err)
	}
	return plain, true, nil
}
