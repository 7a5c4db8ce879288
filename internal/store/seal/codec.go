// Package seal encrypts connection records before they reach a storage
// backend.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/BlackMission/credlink/internal/domain"
)

// KeySize is the required AES-256 key length.
const KeySize = 32

var ErrCorrupt = errors.New("sealed record cannot be opened")

// Codec seals and opens Connection records using AES-256-GCM.
// The user ID is bound as associated data, so a ciphertext copied under
// another user's key fails to open.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec creates a codec with the given 32-byte AES key.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: encryption key must be %d bytes, got %d", domain.ErrInvalidConfig, KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// Seal encrypts c into nonce || ciphertext+tag.
func (c *Codec) Seal(conn *domain.Connection) ([]byte, error) {
	plaintext, err := json.Marshal(conn)
	if err != nil {
		return nil, fmt.Errorf("marshaling connection: %w", err)
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return c.aead.Seal(nonce, nonce, plaintext, []byte(conn.UserID)), nil
}

// Open decrypts a record sealed for userID.
func (c *Codec) Open(userID string, sealed []byte) (*domain.Connection, error) {
	if len(sealed) < c.aead.NonceSize() {
		return nil, ErrCorrupt
	}

	nonce := sealed[:c.aead.NonceSize()]
	ciphertext := sealed[c.aead.NonceSize():]

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, []byte(userID))
	if err != nil {
		return nil, ErrCorrupt
	}

	var conn domain.Connection
	if err := json.Unmarshal(plaintext, &conn); err != nil {
		return nil, ErrCorrupt
	}
	if conn.UserID != userID {
		return nil, ErrCorrupt
	}
	return &conn, nil
}
