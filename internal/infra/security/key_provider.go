package security

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	ErrKeyNotFound       = errors.New("key not found")
	ErrKeyPairMismatch   = errors.New("public key does not match private key")
	errUnsupportedKeyPEM = errors.New("unsupported key encoding")
)

// KeyProvider defines the interface for providing cryptographic keys.
type KeyProvider interface {
	GetSigningKey() (*rsa.PrivateKey, error)
	GetVerificationKey() (*rsa.PublicKey, error)
	KeyID() string
}

// FileKeyProvider serves an RSA key pair loaded from PEM files.
type FileKeyProvider struct {
	signingKey      *rsa.PrivateKey
	verificationKey *rsa.PublicKey
	kid             string
}

// NewFileKeyProvider reads the private key and, when publicPath is set, the public key.
// Without a public key file the public half of the private key is used.
func NewFileKeyProvider(privatePath, publicPath string) (*FileKeyProvider, error) {
	privatePEM, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key %s: %w", privatePath, err)
	}

	var publicPEM []byte
	if strings.TrimSpace(publicPath) != "" {
		publicPEM, err = os.ReadFile(publicPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read public key %s: %w", publicPath, err)
		}
	}

	return NewKeyProviderFromPEM(privatePEM, publicPEM)
}

// NewKeyProviderFromPEM builds a provider from in-memory PEM blocks.
func NewKeyProviderFromPEM(privatePEM, publicPEM []byte) (*FileKeyProvider, error) {
	privateKey, err := parsePrivateKey(privatePEM)
	if err != nil {
		return nil, err
	}

	publicKey := &privateKey.PublicKey
	if len(publicPEM) > 0 {
		publicKey, err = parsePublicKey(publicPEM)
		if err != nil {
			return nil, err
		}
		if !publicKey.Equal(&privateKey.PublicKey) {
			return nil, ErrKeyPairMismatch
		}
	}

	kid, err := thumbprint(publicKey)
	if err != nil {
		return nil, err
	}

	return &FileKeyProvider{
		signingKey:      privateKey,
		verificationKey: publicKey,
		kid:             kid,
	}, nil
}

// GetSigningKey returns the private key for signing tokens.
func (p *FileKeyProvider) GetSigningKey() (*rsa.PrivateKey, error) {
	if p == nil || p.signingKey == nil {
		return nil, ErrKeyNotFound
	}
	return p.signingKey, nil
}

// GetVerificationKey returns the public key for verifying tokens.
func (p *FileKeyProvider) GetVerificationKey() (*rsa.PublicKey, error) {
	if p == nil || p.verificationKey == nil {
		return nil, ErrKeyNotFound
	}
	return p.verificationKey, nil
}

// KeyID is the base64url SHA-256 thumbprint of the public key.
func (p *FileKeyProvider) KeyID() string {
	if p == nil {
		return ""
	}
	return p.kid
}

func parsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode private key PEM block")
	}

	// Try PKCS#1 format (RSA PRIVATE KEY)
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	// Try PKCS#8 format (PRIVATE KEY)
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
		return nil, fmt.Errorf("%w: private key is not RSA", errUnsupportedKeyPEM)
	}

	return nil, fmt.Errorf("%w: private key", errUnsupportedKeyPEM)
}

func parsePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode public key PEM block")
	}

	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}

	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PublicKey); ok {
			return rsaKey, nil
		}
		return nil, fmt.Errorf("%w: public key is not RSA", errUnsupportedKeyPEM)
	}

	return nil, fmt.Errorf("%w: public key", errUnsupportedKeyPEM)
}

func thumbprint(key *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return base64.RawURLEncoding.EncodeToString(sum[:16]), nil
}

// EncodeKeyPairPEM renders key as a PKCS#8 private key and a PKIX public key.
func EncodeKeyPairPEM(key *rsa.PrivateKey) (privatePEM, publicPEM []byte, err error) {
	privateDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal private key: %w", err)
	}
	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal public key: %w", err)
	}

	privatePEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privateDER})
	publicPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})
	return privatePEM, publicPEM, nil
}
