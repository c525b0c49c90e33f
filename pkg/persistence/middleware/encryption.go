package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/ports"
)

// encryptedPrefix marks a comment sealed by this middleware.
const encryptedPrefix = "enc:v1:"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new comments.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	ports.StateStore
	config EncryptionConfig
}

// NewEncryptionMiddleware seals audit comments with AES-GCM at rest. States,
// actors and timestamps stay in clear so the store can still be queried.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.StateStore) ports.StateStore {
		return &encryptionMiddleware{StateStore: next, config: config}
	}
}

func (m *encryptionMiddleware) SetState(ctx context.Context, uid string, axis domain.Axis, state domain.StateID, entry domain.HistoryEntry) error {
	if entry.Comment != "" {
		sealed, err := encrypt([]byte(entry.Comment), m.config.ActiveKey)
		if err != nil {
			return fmt.Errorf("failed to encrypt comment: %w", err)
		}
		entry.Comment = encryptedPrefix + base64.StdEncoding.EncodeToString(sealed)
	}
	return m.StateStore.SetState(ctx, uid, axis, state, entry)
}

func (m *encryptionMiddleware) History(ctx context.Context, uid string) ([]domain.HistoryEntry, error) {
	history, err := m.StateStore.History(ctx, uid)
	if err != nil {
		return nil, err
	}
	for i, h := range history {
		encoded, ok := strings.CutPrefix(h.Comment, encryptedPrefix)
		if !ok {
			// Written before encryption was enabled.
			continue
		}
		ciphertext, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode comment of %s: %w", uid, err)
		}
		plain, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt comment of %s: %w", uid, err)
		}
		history[i].Comment = string(plain)
	}
	return history, nil
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	for _, key := range append([][]byte{activeKey}, fallbackKeys...) {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, sealed, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
