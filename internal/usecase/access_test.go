package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/security"
)

func jsonDecoder(body string) func(any) error {
	return func(dst any) error {
		dec := json.NewDecoder(strings.NewReader(body))
		dec.DisallowUnknownFields()
		return dec.Decode(dst)
	}
}

type countingGuard struct {
	name  string
	err   error
	calls *[]string
}

func (g countingGuard) Name() string { return g.name }

func (g countingGuard) Evaluate(context.Context, *AccessRequest) error {
	*g.calls = append(*g.calls, g.name)
	return g.err
}

func TestPipelineStopsAtFirstFailure(t *testing.T) {
	var calls []string
	boom := domain.NewForbidden("closed", nil)
	p := NewAccessPipeline(
		countingGuard{name: "a", calls: &calls},
		nil,
		countingGuard{name: "b", err: boom, calls: &calls},
		countingGuard{name: "c", calls: &calls},
	)

	err := p.Evaluate(context.Background(), &AccessRequest{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the failing guard's error, got %v", err)
	}
	if !reflect.DeepEqual(calls, []string{"a", "b"}) {
		t.Fatalf("unexpected guard calls %v", calls)
	}
}

func protectedPipeline(f *fixture, window domain.TimeWindow) *AccessPipeline {
	return ProtectedPipeline(
		NewWindowGuard(window),
		NewAuthGuard(f.sessions),
		NewRateLimitGuard(f.limiters.SignupRelated, AccountEmailKey),
		NewValidationGuard(NewRequestValidator(), nil, func() any { return &UpdateSignupRequest{} }),
	)
}

func TestProtectedPipelineOrder(t *testing.T) {
	f := newFixture(t)
	p := protectedPipeline(f, domain.TimeWindow{})
	want := []string{"window", "auth", "ratelimit.signup_related_by_email", "validation"}
	if got := p.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("guard order %v, want %v", got, want)
	}

	public := PublicPipeline(
		NewValidationGuard(NewRequestValidator(), nil, func() any { return &ResetRequest{} }),
		NewRateLimitGuard(f.limiters.AuthRelated, PayloadEmailAndIPKey),
	)
	if got := public.Names(); !reflect.DeepEqual(got, []string{"validation", "ratelimit.auth_related_by_email"}) {
		t.Fatalf("public guard order %v", got)
	}
}

func TestProtectedPipelineWindowPrecedesAuth(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	window := domain.TimeWindow{
		Start:           now.Add(time.Hour),
		End:             now.Add(2 * time.Hour),
		TooEarlyMessage: "signup has not started",
		TooLateMessage:  "signup has ended",
	}
	p := protectedPipeline(f, window)

	// No cookie at all, but the window decides first.
	err := p.Evaluate(context.Background(), &AccessRequest{Now: now, Decode: jsonDecoder(`{}`)})
	requireKind(t, err, domain.KindForbidden)
	if err.(*domain.Error).Message != "signup has not started" {
		t.Fatalf("unexpected message %v", err)
	}

	err = p.Evaluate(context.Background(), &AccessRequest{Now: window.End, Decode: jsonDecoder(`{}`)})
	if err.(*domain.Error).Message != "signup has ended" {
		t.Fatalf("unexpected message at end boundary %v", err)
	}
}

func TestProtectedPipelineAuthOutcomes(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	p := protectedPipeline(f, domain.TimeWindow{Start: now.Add(-time.Hour), End: now.Add(time.Hour)})
	ctx := context.Background()

	err := p.Evaluate(ctx, &AccessRequest{Now: now, Decode: jsonDecoder(`{}`)})
	if !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("missing cookie: expected ErrLoginRequired, got %v", err)
	}

	err = p.Evaluate(ctx, &AccessRequest{Now: now, SessionToken: "forged", Decode: jsonDecoder(`{}`)})
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("forged cookie: expected ErrInvalidSession, got %v", err)
	}

	account := f.register(t, "team@example.com")
	session, err := f.sessions.Issue(account.ID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := f.accounts.DeleteByID(ctx, account.ID); err != nil {
		t.Fatalf("DeleteByID: %v", err)
	}
	err = p.Evaluate(ctx, &AccessRequest{Now: now, SessionToken: session.Token, Decode: jsonDecoder(`{}`)})
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("deleted account: expected ErrInvalidSession, got %v", err)
	}
}

func TestProtectedPipelineRateLimitsBeforeValidation(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	p := protectedPipeline(f, domain.TimeWindow{Start: now.Add(-time.Hour), End: now.Add(time.Hour)})
	account := f.register(t, "team@example.com")
	session, _ := f.sessions.Issue(account.ID)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := p.Evaluate(ctx, &AccessRequest{Now: now, SessionToken: session.Token, Decode: jsonDecoder(`{"bogus":1}`)})
		requireKind(t, err, domain.KindValidationFailed)
	}

	// Invalid bodies still spent points; the sixth request is throttled before decoding.
	err := p.Evaluate(ctx, &AccessRequest{Now: now, SessionToken: session.Token, Decode: jsonDecoder(`{"confirmed":false,"form":{}}`)})
	if !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("expected ErrTooManyRequests, got %v", err)
	}
}

func TestProtectedPipelinePopulatesRequest(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	p := protectedPipeline(f, domain.TimeWindow{Start: now.Add(-time.Hour), End: now.Add(time.Hour)})
	account := f.register(t, "team@example.com")
	session, _ := f.sessions.Issue(account.ID)

	req := &AccessRequest{Now: now, SessionToken: session.Token, Decode: jsonDecoder(`{"confirmed":true,"form":{"teamName":"x"}}`)}
	if err := p.Evaluate(context.Background(), req); err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if req.Account == nil || req.Account.ID != account.ID {
		t.Fatalf("account not attached: %+v", req.Account)
	}
	payload, ok := req.Payload.(*UpdateSignupRequest)
	if !ok || payload.Confirmed == nil || !*payload.Confirmed || payload.Form["teamName"] != "x" {
		t.Fatalf("unexpected payload %+v", req.Payload)
	}
}

func TestValidationGuardReportsFields(t *testing.T) {
	guard := NewValidationGuard(NewRequestValidator(), nil, func() any { return &ConfirmResetRequest{} })

	err := guard.Evaluate(context.Background(), &AccessRequest{Decode: jsonDecoder(`{"email":"nope","password":"short","token":"abc"}`)})
	requireKind(t, err, domain.KindValidationFailed)
	var de *domain.Error
	if !errors.As(err, &de) {
		t.Fatalf("expected domain error")
	}
	if !reflect.DeepEqual(de.Fields, []string{"email", "password", "token"}) {
		t.Fatalf("unexpected fields %v", de.Fields)
	}

	err = guard.Evaluate(context.Background(), &AccessRequest{Decode: jsonDecoder(`{"email":`)})
	if !errors.Is(err, ErrMalformedBody) {
		t.Fatalf("expected ErrMalformedBody, got %v", err)
	}
}

func TestValidationGuardAppliesPasswordPolicy(t *testing.T) {
	policy := security.NewPasswordPolicy(security.DefaultPasswordPolicyConfig())
	guard := NewValidationGuard(NewRequestValidator(), policy, func() any { return &RegisterRequest{} })

	err := guard.Evaluate(context.Background(), &AccessRequest{Decode: jsonDecoder(`{"email":"team@example.com","password":"aaaaaaaa"}`)})
	requireKind(t, err, domain.KindValidationFailed)
	if de := err.(*domain.Error); !reflect.DeepEqual(de.Fields, []string{"password"}) {
		t.Fatalf("unexpected fields %v", de.Fields)
	}

	req := &AccessRequest{Decode: jsonDecoder(`{"email":"team@example.com","password":"` + strongPassword + `"}`)}
	if err := guard.Evaluate(context.Background(), req); err != nil {
		t.Fatalf("strong password rejected: %v", err)
	}
	if req.Payload.(*RegisterRequest).Email != "team@example.com" {
		t.Fatalf("payload not decoded: %+v", req.Payload)
	}

	loginGuard := NewValidationGuard(NewRequestValidator(), policy, func() any { return &LoginRequest{} })
	if err := loginGuard.Evaluate(context.Background(), &AccessRequest{Decode: jsonDecoder(`{"email":"team@example.com","password":"aaaaaaaa"}`)}); err != nil {
		t.Fatalf("login payloads skip the policy: %v", err)
	}
}

func TestPublicPipelineKeysOnPayloadEmailAndIP(t *testing.T) {
	f := newFixture(t)
	p := PublicPipeline(
		NewValidationGuard(NewRequestValidator(), nil, func() any { return &ResetRequest{} }),
		NewRateLimitGuard(f.limiters.AuthRelated, PayloadEmailAndIPKey),
	)
	ctx := context.Background()
	body := `{"email":"team@example.com"}`

	for i := 0; i < 5; i++ {
		if err := p.Evaluate(ctx, &AccessRequest{ClientIP: "10.0.0.1", Decode: jsonDecoder(body)}); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if err := p.Evaluate(ctx, &AccessRequest{ClientIP: "10.0.0.1", Decode: jsonDecoder(body)}); !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("expected ErrTooManyRequests, got %v", err)
	}
	if err := p.Evaluate(ctx, &AccessRequest{ClientIP: "10.0.0.2", Decode: jsonDecoder(body)}); err != nil {
		t.Fatalf("other address throttled: %v", err)
	}
	// Malformed bodies never reach the limiter.
	if err := p.Evaluate(ctx, &AccessRequest{ClientIP: "10.0.0.3", Decode: jsonDecoder(`{"email":"x"}`)}); domain.KindOf(err) != domain.KindValidationFailed {
		t.Fatalf("expected validation failure, got %v", err)
	}
}
