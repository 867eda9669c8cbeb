package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"john.doe@example.com": "joh***@example.com",
		"ab@example.com":       "ab***@example.com",
		"@example.com":         "***@example.com",
		"":                     "",
		"not-an-email":         "***",
	}
	for in, want := range cases {
		if got := MaskEmail(in); got != want {
			t.Fatalf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskIP(t *testing.T) {
	cases := map[string]string{
		"192.168.1.100":    "192.168.*.*",
		"::ffff:10.0.0.7":  "10.0.*.*",
		"2001:db8:85a3::7": "2001:0db8:85a3:0000:*:*:*:*",
		"":                 "",
		"garbage":          "***",
	}
	for in, want := range cases {
		if got := MaskIP(in); got != want {
			t.Fatalf("MaskIP(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("RequestIDFromContext = %q", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}
}

func TestForRequestAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	ForRequest(WithRequestID(context.Background(), "req-9"), zap.New(core)).Info("hello")
	ForRequest(context.Background(), zap.New(core)).Info("bare")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["request_id"]; got != "req-9" {
		t.Fatalf("expected request_id field, got %v", entries[0].ContextMap())
	}
	if _, ok := entries[1].ContextMap()["request_id"]; ok {
		t.Fatalf("request_id must be omitted when absent")
	}
}
