package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestKeyProvider(t *testing.T) *FileKeyProvider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	privatePEM, publicPEM, err := EncodeKeyPairPEM(key)
	if err != nil {
		t.Fatalf("EncodeKeyPairPEM: %v", err)
	}
	provider, err := NewKeyProviderFromPEM(privatePEM, publicPEM)
	if err != nil {
		t.Fatalf("NewKeyProviderFromPEM: %v", err)
	}
	return provider
}

func TestSessionTokenRoundTrip(t *testing.T) {
	manager, err := NewSessionTokenManager(newTestKeyProvider(t), "hackreg", 12*time.Hour)
	if err != nil {
		t.Fatalf("NewSessionTokenManager: %v", err)
	}

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	issued, err := manager.Issue("acc-1", now)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if !issued.ExpiresAt.Equal(now.Add(12 * time.Hour)) {
		t.Fatalf("unexpected expiry %v", issued.ExpiresAt)
	}

	claims, err := manager.Verify(issued.Token, now.Add(11*time.Hour))
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if claims.AccountID != "acc-1" {
		t.Fatalf("expected acc-1, got %s", claims.AccountID)
	}

	if _, err := manager.Verify(issued.Token, issued.ExpiresAt); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected token to be invalid at expiry, got %v", err)
	}
}

func TestSessionTokenRejectsMutation(t *testing.T) {
	manager, err := NewSessionTokenManager(newTestKeyProvider(t), "hackreg", time.Hour)
	if err != nil {
		t.Fatalf("NewSessionTokenManager: %v", err)
	}

	now := time.Now()
	issued, err := manager.Issue("acc-1", now)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	parts := strings.Split(issued.Token, ".")
	for segment := range parts {
		mutated := make([]string, len(parts))
		copy(mutated, parts)
		mid := len(mutated[segment]) / 2
		replacement := byte('A')
		if mutated[segment][mid] == 'A' {
			replacement = 'B'
		}
		mutated[segment] = mutated[segment][:mid] + string(replacement) + mutated[segment][mid+1:]

		if _, err := manager.Verify(strings.Join(mutated, "."), now); !errors.Is(err, ErrInvalidSession) {
			t.Fatalf("segment %d: expected ErrInvalidSession, got %v", segment, err)
		}
	}

	if _, err := manager.Verify("not-a-token", now); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected malformed token to fail, got %v", err)
	}
}

func TestSessionTokenRejectsForeignAlgorithmsAndKeys(t *testing.T) {
	provider := newTestKeyProvider(t)
	manager, err := NewSessionTokenManager(provider, "hackreg", time.Hour)
	if err != nil {
		t.Fatalf("NewSessionTokenManager: %v", err)
	}
	now := time.Now()

	claims := SessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "acc-1",
		Issuer:    "hackreg",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}}

	publicKey, _ := provider.GetVerificationKey()
	publicDER, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})
	hmacToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(publicPEM)
	if err != nil {
		t.Fatalf("sign HS256 token: %v", err)
	}
	if _, err := manager.Verify(hmacToken, now); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected HS256 token to be rejected, got %v", err)
	}

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}
	if _, err := manager.Verify(noneToken, now); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected alg=none token to be rejected, got %v", err)
	}

	other, _ := NewSessionTokenManager(newTestKeyProvider(t), "hackreg", time.Hour)
	foreign, err := other.Issue("acc-1", now)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if _, err := manager.Verify(foreign.Token, now); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected token signed by another key to be rejected, got %v", err)
	}

	otherIssuer, _ := NewSessionTokenManager(provider, "someone-else", time.Hour)
	wrongIssuer, _ := otherIssuer.Issue("acc-1", now)
	if _, err := manager.Verify(wrongIssuer.Token, now); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected token from another issuer to be rejected, got %v", err)
	}
}

func TestFileKeyProviderLoadsPEMFiles(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	privatePEM, publicPEM, err := EncodeKeyPairPEM(key)
	if err != nil {
		t.Fatalf("EncodeKeyPairPEM: %v", err)
	}

	dir := t.TempDir()
	privatePath := filepath.Join(dir, "private.pem")
	publicPath := filepath.Join(dir, "public.pem")
	if err := os.WriteFile(privatePath, privatePEM, 0o600); err != nil {
		t.Fatalf("write private key: %v", err)
	}
	if err := os.WriteFile(publicPath, publicPEM, 0o644); err != nil {
		t.Fatalf("write public key: %v", err)
	}

	provider, err := NewFileKeyProvider(privatePath, publicPath)
	if err != nil {
		t.Fatalf("NewFileKeyProvider returned error: %v", err)
	}
	if provider.KeyID() == "" {
		t.Fatal("expected key id to be derived")
	}

	otherKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	_, otherPublic, _ := EncodeKeyPairPEM(otherKey)
	if _, err := NewKeyProviderFromPEM(privatePEM, otherPublic); !errors.Is(err, ErrKeyPairMismatch) {
		t.Fatalf("expected ErrKeyPairMismatch, got %v", err)
	}
}

func TestJWKSPublishesVerificationKey(t *testing.T) {
	provider := newTestKeyProvider(t)
	manager, _ := NewSessionTokenManager(provider, "hackreg", time.Hour)

	payload, err := manager.JWKS()
	if err != nil {
		t.Fatalf("JWKS returned error: %v", err)
	}

	var doc struct {
		Keys []map[string]string `json:"keys"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		t.Fatalf("unmarshal jwks: %v", err)
	}
	if len(doc.Keys) != 1 || doc.Keys[0]["kid"] != provider.KeyID() || doc.Keys[0]["alg"] != "RS256" {
		t.Fatalf("unexpected jwks %s", payload)
	}
}
