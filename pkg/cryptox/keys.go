package cryptox

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/youmark/pkcs8"
	"golang.org/x/crypto/ssh"
)

const (
	DefaultKeyBits = 4096 // RSA modulus size for application and user keys
	MinKeyBits     = 2048

	publicKeyBlockType      = "PUBLIC KEY"
	rsaPublicKeyBlockType   = "RSA PUBLIC KEY"
	privateKeyBlockType     = "ENCRYPTED PRIVATE KEY"
	privateKeyFileSuffix    = ".key"
	publicKeyFileSuffix     = ".pem"
	privateKeyKDFIterations = 10000
)

var (
	ErrInvalidPEM       = errors.New("invalid PEM encoded key")
	ErrNotRSAKey        = errors.New("key is not an RSA key")
	ErrWeakKey          = errors.New("RSA key is too small")
	ErrKeyDecryption    = errors.New("unable to decrypt private key")
	ErrEmptyPassphrase  = errors.New("passphrase cannot be empty")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrInvalidSeal      = errors.New("sealed token is invalid")
	ErrSealTooLong      = errors.New("data too long to seal with this key")
)

// KeyPair is an RSA keypair
type KeyPair struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

// GenerateKeyPair creates a new RSA keypair of the given size
func GenerateKeyPair(bits int) (*KeyPair, error) {
	if bits < MinKeyBits {
		return nil, ErrWeakKey
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return &KeyPair{Private: priv, Public: &priv.PublicKey}, nil
}

// PublicPEM returns the PKIX PEM encoding of the public half
func (p *KeyPair) PublicPEM() (string, error) {
	return EncodePublicKeyPEM(p.Public)
}

// EncodePublicKeyPEM encodes an RSA public key as PKIX PEM text
func EncodePublicKeyPEM(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: publicKeyBlockType, Bytes: der})), nil
}

// ParsePublicKeyPEM parses PKIX ("PUBLIC KEY") or PKCS#1 ("RSA PUBLIC KEY")
// PEM text into an RSA public key. Trailing data after the block is rejected.
func ParsePublicKeyPEM(text string) (*rsa.PublicKey, error) {
	block, rest := pem.Decode([]byte(strings.TrimSpace(text)))
	if block == nil || len(strings.TrimSpace(string(rest))) != 0 {
		return nil, ErrInvalidPEM
	}

	var pub *rsa.PublicKey
	switch block.Type {
	case publicKeyBlockType:
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, ErrInvalidPEM
		}
		rsaPub, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, ErrNotRSAKey
		}
		pub = rsaPub
	case rsaPublicKeyBlockType:
		parsed, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, ErrInvalidPEM
		}
		pub = parsed
	default:
		return nil, ErrInvalidPEM
	}

	if pub.N.BitLen() < MinKeyBits {
		return nil, ErrWeakKey
	}
	return pub, nil
}

// EncodePrivateKeyPEM wraps the private key in passphrase encrypted PKCS#8
// (AES-256-CBC, PBKDF2-SHA256) and PEM encodes it.
func EncodePrivateKeyPEM(priv *rsa.PrivateKey, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	der, err := pkcs8.MarshalPrivateKey(priv, []byte(passphrase), &pkcs8.Opts{
		Cipher: pkcs8.AES256CBC,
		KDFOpts: pkcs8.PBKDF2Opts{
			SaltSize:       16,
			IterationCount: privateKeyKDFIterations,
			HMACHash:       crypto.SHA256,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: privateKeyBlockType, Bytes: der}), nil
}

// DecodePrivateKeyPEM decrypts a PEM encoded PKCS#8 private key. Any failure,
// including a wrong passphrase, is reported as ErrKeyDecryption.
func DecodePrivateKeyPEM(data []byte, passphrase string) (*rsa.PrivateKey, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != privateKeyBlockType {
		return nil, ErrKeyDecryption
	}
	priv, err := pkcs8.ParsePKCS8PrivateKeyRSA(block.Bytes, []byte(passphrase))
	if err != nil {
		return nil, ErrKeyDecryption
	}
	return priv, nil
}

// SaveKeyPair writes <name>.key (encrypted private key) and <name>.pem
// (public key) into dir.
func SaveKeyPair(dir, name string, pair *KeyPair, passphrase string) error {
	privPEM, err := EncodePrivateKeyPEM(pair.Private, passphrase)
	if err != nil {
		return err
	}
	pubPEM, err := pair.PublicPEM()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+privateKeyFileSuffix), privPEM, 0o600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+publicKeyFileSuffix), []byte(pubPEM), 0o644); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}
	return nil
}

// LoadKeyPair reads a keypair written by SaveKeyPair
func LoadKeyPair(dir, name, passphrase string) (*KeyPair, error) {
	data, err := os.ReadFile(filepath.Join(dir, name+privateKeyFileSuffix))
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	priv, err := DecodePrivateKeyPEM(data, passphrase)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Private: priv, Public: &priv.PublicKey}, nil
}

// KeyPairExists reports whether the private key file for name is present
func KeyPairExists(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name+privateKeyFileSuffix))
	return err == nil
}

// EncryptWithPublicKey encrypts plaintext with RSA-OAEP-SHA256
func EncryptWithPublicKey(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt with public key: %w", err)
	}
	return ciphertext, nil
}

// DecryptWithPrivateKey reverses EncryptWithPublicKey. Engine errors are
// collapsed into ErrDecryptionFailed.
func DecryptWithPrivateKey(priv *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// SealWithPrivateKey applies the raw PKCS#1 v1.5 private-key transform to
// data itself, without a digest. This is the pseudo-signature the login and
// session protocols rely on; Sign/Verify are the digest based alternative.
func SealWithPrivateKey(priv *rsa.PrivateKey, data []byte) ([]byte, error) {
	if len(data) > priv.Size()-11 {
		return nil, ErrSealTooLong
	}
	token, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.Hash(0), data)
	if err != nil {
		return nil, fmt.Errorf("failed to seal data: %w", err)
	}
	return token, nil
}

// OpenWithPublicKey inverts SealWithPrivateKey and returns the sealed data
func OpenWithPublicKey(pub *rsa.PublicKey, token []byte) ([]byte, error) {
	k := pub.Size()
	if len(token) != k {
		return nil, ErrInvalidSeal
	}

	c := new(big.Int).SetBytes(token)
	if c.Cmp(pub.N) >= 0 {
		return nil, ErrInvalidSeal
	}
	m := new(big.Int).Exp(c, big.NewInt(int64(pub.E)), pub.N)
	em := m.FillBytes(make([]byte, k))

	// EM = 0x00 || 0x01 || PS (>= 8 bytes of 0xff) || 0x00 || data
	if em[0] != 0x00 || em[1] != 0x01 {
		return nil, ErrInvalidSeal
	}
	i := 2
	for i < k && em[i] == 0xff {
		i++
	}
	if i < 10 || i >= k || em[i] != 0x00 {
		return nil, ErrInvalidSeal
	}
	return em[i+1:], nil
}

// OpenMatches reports whether token opens with pub to exactly expected
func OpenMatches(pub *rsa.PublicKey, token, expected []byte) bool {
	data, err := OpenWithPublicKey(pub, token)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(data, expected) == 1
}

// Sign produces a SHA-256 RSA-PSS signature over data
func Sign(priv *rsa.PrivateKey, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to sign data: %w", err)
	}
	return sig, nil
}

// Verify checks a signature produced by Sign
func Verify(pub *rsa.PublicKey, data, sig []byte) bool {
	digest := sha256.Sum256(data)
	return rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, nil) == nil
}

// Fingerprint returns the SSH style SHA256 fingerprint of an RSA public key
func Fingerprint(pub *rsa.PublicKey) (string, error) {
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to convert public key: %w", err)
	}
	return ssh.FingerprintSHA256(sshPub), nil
}
