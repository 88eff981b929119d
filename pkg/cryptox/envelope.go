package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	PBKDF2Iterations = 100000
	VaultKeyLength   = 32 // AES-256
	IVLength         = aes.BlockSize
)

var (
	ErrEmptyPassword   = errors.New("password cannot be empty")
	ErrEmptySalt       = errors.New("encryption salt cannot be empty")
	ErrInvalidKey      = errors.New("encryption key must be 32 bytes")
	ErrInvalidEnvelope = errors.New("invalid envelope")
)

// Envelope is a hex encoded AES-256-CTR ciphertext with its IV
type Envelope struct {
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
}

// VaultConfig holds the deployment-wide secrets of the vault
type VaultConfig struct {
	Passphrase string // default password used by Protect/Reveal
	Salt       string
	Pepper     string
}

// Vault encrypts short secrets for storage with a passphrase derived key.
//
// CTR mode carries no integrity check: decrypting with the wrong key yields
// wrong bytes instead of an error.
type Vault struct {
	salt       []byte
	pepper     string
	defaultKey []byte
}

// NewVault creates a Vault and derives the key of the deployment passphrase
func NewVault(cfg VaultConfig) (*Vault, error) {
	if cfg.Salt == "" {
		return nil, ErrEmptySalt
	}
	v := &Vault{
		salt:   []byte(cfg.Salt),
		pepper: cfg.Pepper,
	}

	key, err := v.DeriveKey(cfg.Passphrase)
	if err != nil {
		return nil, err
	}
	v.defaultKey = key
	return v, nil
}

// DeriveKey derives a 32-byte key from password+pepper with PBKDF2-HMAC-SHA256.
// Derivation is deterministic for a fixed salt and pepper.
func (v *Vault) DeriveKey(password string) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	return pbkdf2.Key([]byte(password+v.pepper), v.salt, PBKDF2Iterations, VaultKeyLength, sha256.New), nil
}

// Encrypt encrypts plaintext under the key derived from password
func (v *Vault) Encrypt(plaintext []byte, password string) (Envelope, error) {
	key, err := v.DeriveKey(password)
	if err != nil {
		return Envelope{}, err
	}
	return EncryptWithKey(plaintext, key)
}

// Decrypt reverses Encrypt
func (v *Vault) Decrypt(env Envelope, password string) ([]byte, error) {
	key, err := v.DeriveKey(password)
	if err != nil {
		return nil, err
	}
	return DecryptWithKey(env, key)
}

// Protect encrypts plaintext under the deployment passphrase
func (v *Vault) Protect(plaintext []byte) (Envelope, error) {
	return EncryptWithKey(plaintext, v.defaultKey)
}

// Reveal reverses Protect
func (v *Vault) Reveal(env Envelope) ([]byte, error) {
	return DecryptWithKey(env, v.defaultKey)
}

// EncryptWithKey encrypts plaintext with AES-256-CTR under a fresh random IV
func EncryptWithKey(plaintext, key []byte) (Envelope, error) {
	if len(key) != VaultKeyLength {
		return Envelope{}, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to create cipher: %w", err)
	}

	iv := make([]byte, IVLength)
	if _, err := rand.Read(iv); err != nil {
		return Envelope{}, fmt.Errorf("failed to generate IV: %w", err)
	}

	ciphertext := make([]byte, len(plaintext))
	cipher.NewCTR(block, iv).XORKeyStream(ciphertext, plaintext)

	return Envelope{
		IV:         hex.EncodeToString(iv),
		Ciphertext: hex.EncodeToString(ciphertext),
	}, nil
}

// DecryptWithKey reverses EncryptWithKey
func DecryptWithKey(env Envelope, key []byte) ([]byte, error) {
	if len(key) != VaultKeyLength {
		return nil, ErrInvalidKey
	}
	iv, err := hex.DecodeString(env.IV)
	if err != nil || len(iv) != IVLength {
		return nil, ErrInvalidEnvelope
	}
	ciphertext, err := hex.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, ErrInvalidEnvelope
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCTR(block, iv).XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}
