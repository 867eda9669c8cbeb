package app

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/config"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/security"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/repository/memory"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/usecase"
)

func TestLimiterPolicies(t *testing.T) {
	cfg := config.RateLimitSettings{
		LoginByEmailAndIP: config.LimiterSettings{Points: 5, Duration: time.Hour},
		LoginByIP:         config.LimiterSettings{Points: 50, Duration: time.Hour},
		AuthRelated:       config.LimiterSettings{Points: 5, Duration: time.Minute},
		SignupRelated:     config.LimiterSettings{Points: 30, Duration: time.Minute},
		SubmitRelated:     config.LimiterSettings{Points: 5, Duration: time.Minute},
	}

	policies := LimiterPolicies(cfg)
	if len(policies) != 5 {
		t.Fatalf("expected 5 policies, got %d", len(policies))
	}
	byNamespace := make(map[string]int)
	for _, p := range policies {
		byNamespace[p.Namespace] = p.Points
	}
	if byNamespace[usecase.NamespaceLoginByIP] != 50 || byNamespace[usecase.NamespaceSignupRelated] != 30 {
		t.Fatalf("unexpected policies %+v", policies)
	}

	if _, err := usecase.NewRateLimiters(memory.NewRateLimitStore(), policies...); err != nil {
		t.Fatalf("policies do not cover every limiter: %v", err)
	}
}

func writeKeyPair(t *testing.T, dir string) (string, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privatePEM, publicPEM, err := security.EncodeKeyPairPEM(key)
	if err != nil {
		t.Fatalf("encode key: %v", err)
	}
	privatePath := filepath.Join(dir, "private.pem")
	publicPath := filepath.Join(dir, "public.pem")
	if err := os.WriteFile(privatePath, privatePEM, 0o600); err != nil {
		t.Fatalf("write private key: %v", err)
	}
	if err := os.WriteFile(publicPath, publicPEM, 0o644); err != nil {
		t.Fatalf("write public key: %v", err)
	}
	return privatePath, publicPath
}

func TestNewWithInMemoryBackends(t *testing.T) {
	dir := t.TempDir()
	privatePath, publicPath := writeKeyPair(t, dir)

	t.Setenv("HACKREG_APP_ENV", "test")
	t.Setenv("HACKREG_STORAGE_DRIVER", "memory")
	t.Setenv("HACKREG_RATE_LIMIT_BACKEND", "memory")
	t.Setenv("HACKREG_JWT_PRIVATE_KEY_PATH", privatePath)
	t.Setenv("HACKREG_JWT_PUBLIC_KEY_PATH", publicPath)
	t.Setenv("HACKREG_SUBMISSION_UPLOAD_DIR", filepath.Join(dir, "uploads"))

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.close(context.Background()) })

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/.well-known/jwks.json"} {
		rr := httptest.NewRecorder()
		a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("GET %s: expected 200, got %d %s", path, rr.Code, rr.Body.String())
		}
	}

	if _, err := os.Stat(filepath.Join(dir, "uploads")); err != nil {
		t.Fatalf("upload dir not created: %v", err)
	}
}

func TestNewFailsWithoutKeys(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HACKREG_STORAGE_DRIVER", "memory")
	t.Setenv("HACKREG_RATE_LIMIT_BACKEND", "memory")
	t.Setenv("HACKREG_JWT_PRIVATE_KEY_PATH", filepath.Join(dir, "missing.pem"))
	t.Setenv("HACKREG_JWT_PUBLIC_KEY_PATH", filepath.Join(dir, "missing.pub"))
	t.Setenv("HACKREG_SUBMISSION_UPLOAD_DIR", filepath.Join(dir, "uploads"))

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatalf("expected error for missing key files")
	}
}
