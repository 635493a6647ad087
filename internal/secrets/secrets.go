// Package secrets seals notifier credentials in a password-protected JSON
// envelope (PBKDF2-HMAC-SHA256 key derivation, AES-256-GCM).
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	currentVersion   = 1
)

// ErrEmptyPassword is returned when sealing or opening without a password.
var ErrEmptyPassword = errors.New("secrets: password must not be empty")

// envelope is the on-disk format. Binary fields are base64 std encoded.
type envelope struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Bundle is the set of credentials kept out of the plain config.
type Bundle struct {
	TelegramToken     string `json:"telegram_token,omitempty"`
	DiscordWebhookURL string `json:"discord_webhook_url,omitempty"`
	WebhookSecret     string `json:"webhook_secret,omitempty"`
	APIKey            string `json:"api_key,omitempty"`
}

// Seal encrypts plaintext under password and returns the JSON envelope.
func Seal(plaintext []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("secrets: generating salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("secrets: generating nonce: %w", err)
	}

	return json.MarshalIndent(envelope{
		Version:    currentVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, plaintext, nil)),
	}, "", "  ")
}

// Open decrypts an envelope produced by Seal.
func Open(data []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("secrets: parsing envelope: %w", err)
	}
	if env.Version != currentVersion {
		return nil, fmt.Errorf("secrets: unsupported version %d", env.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("secrets: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("secrets: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("secrets: decoding ciphertext: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("secrets: nonce length %d, want %d", len(nonce), gcm.NonceSize())
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("secrets: decryption failed (wrong password?): %w", err)
	}
	return plaintext, nil
}

// SealBundle validates that plaintext is a Bundle and seals it.
func SealBundle(plaintext []byte, password string) ([]byte, error) {
	var b Bundle
	if err := json.Unmarshal(plaintext, &b); err != nil {
		return nil, fmt.Errorf("secrets: plaintext is not a bundle: %w", err)
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("secrets: marshal bundle: %w", err)
	}
	return Seal(raw, password)
}

// LoadBundle reads and opens the envelope at path.
func LoadBundle(path, password string) (Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Bundle{}, fmt.Errorf("secrets: reading %s: %w", path, err)
	}
	plaintext, err := Open(data, password)
	if err != nil {
		return Bundle{}, err
	}
	var b Bundle
	if err := json.Unmarshal(plaintext, &b); err != nil {
		return Bundle{}, fmt.Errorf("secrets: decoding bundle: %w", err)
	}
	return b, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: creating GCM: %w", err)
	}
	return gcm, nil
}
