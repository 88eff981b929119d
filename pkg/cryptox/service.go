package cryptox

import (
	"crypto/rsa"
	"errors"
)

// KeyService performs the asymmetric operations of one identity, normally
// the application itself.
type KeyService struct {
	pair      *KeyPair
	publicPEM string
}

// NewKeyService wraps a loaded keypair
func NewKeyService(pair *KeyPair) (*KeyService, error) {
	if pair == nil || pair.Private == nil {
		return nil, errors.New("key service requires a private key")
	}
	if pair.Public == nil {
		pair.Public = &pair.Private.PublicKey
	}
	publicPEM, err := pair.PublicPEM()
	if err != nil {
		return nil, err
	}
	return &KeyService{pair: pair, publicPEM: publicPEM}, nil
}

// PublicKey returns the public half
func (s *KeyService) PublicKey() *rsa.PublicKey {
	return s.pair.Public
}

// PublicKeyPEM returns the public half as PKIX PEM text
func (s *KeyService) PublicKeyPEM() string {
	return s.publicPEM
}

// Decrypt decrypts a ciphertext addressed to this identity
func (s *KeyService) Decrypt(ciphertext []byte) ([]byte, error) {
	return DecryptWithPrivateKey(s.pair.Private, ciphertext)
}

// DecryptToken decodes a base64 transport token and decrypts it
func (s *KeyService) DecryptToken(token string) ([]byte, error) {
	ciphertext, err := DecodeToken(token)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return s.Decrypt(ciphertext)
}

// Seal applies the private-key transform to data
func (s *KeyService) Seal(data []byte) ([]byte, error) {
	return SealWithPrivateKey(s.pair.Private, data)
}

// Sign produces a PSS signature with the private key
func (s *KeyService) Sign(data []byte) ([]byte, error) {
	return Sign(s.pair.Private, data)
}
