package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/logger"
)

func TestRequestIDPropagatesOrReplaces(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var seen string
	router := gin.New()
	router.Use(RequestID())
	router.GET("/healthz", func(c *gin.Context) {
		seen = logger.RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	cases := []struct {
		header string
		keep   bool
	}{
		{"abc-123", true},
		{"", false},
		{strings.Repeat("x", maxRequestIDLength+1), false},
		{"bad id\n", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		if tc.header != "" {
			req.Header.Set(requestIDHeader, tc.header)
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		got := rr.Header().Get(requestIDHeader)
		if got == "" || got != seen {
			t.Fatalf("header %q: response id %q, context id %q", tc.header, got, seen)
		}
		if tc.keep != (got == tc.header) {
			t.Fatalf("header %q: keep=%v but got %q", tc.header, tc.keep, got)
		}
	}
}

func TestRecoveryKeepsRequestIDAndHidesPanic(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RequestID(), Recovery(zaptest.NewLogger(t)))
	router.GET("/submit", func(*gin.Context) {
		panic("disk on fire")
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/submit", nil)
	req.Header.Set(requestIDHeader, "req-panic-1")
	router.ServeHTTP(rr, req)

	if got := rr.Header().Get(requestIDHeader); got != "req-panic-1" {
		t.Fatalf("expected request id to survive the panic, got %q", got)
	}

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "disk on fire") || !strings.Contains(rr.Body.String(), "internal server error") {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}
