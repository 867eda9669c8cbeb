package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/port"
)

// ErrMalformedBody indicates the request body could not be decoded.
var ErrMalformedBody = domain.NewValidationFailed("malformed request body", nil, nil)

// AccessRequest is the state a request accumulates while passing through guards.
type AccessRequest struct {
	Now          time.Time
	ClientIP     string
	SessionToken string
	// Decode fills dst from the request body.
	Decode func(dst any) error

	Account *domain.Account
	Claims  domain.SessionClaims
	Payload any
	// RateLimit is the bucket state seen by the last limiter guard, if any.
	RateLimit *domain.RateLimitResult
}

// Guard admits or rejects a request. A guard may enrich req for the guards after it.
type Guard interface {
	Name() string
	Evaluate(ctx context.Context, req *AccessRequest) error
}

// AccessPipeline runs guards in order and stops at the first failure.
type AccessPipeline struct {
	guards []Guard
	tracer trace.Tracer
}

// NewAccessPipeline composes guards in the given order. Nil guards are skipped.
func NewAccessPipeline(guards ...Guard) *AccessPipeline {
	p := &AccessPipeline{tracer: otel.Tracer("hackreg/access")}
	for _, g := range guards {
		if g != nil {
			p.guards = append(p.guards, g)
		}
	}
	return p
}

// Names lists the guards in evaluation order.
func (p *AccessPipeline) Names() []string {
	names := make([]string, len(p.guards))
	for i, g := range p.guards {
		names[i] = g.Name()
	}
	return names
}

// Evaluate runs every guard against req.
func (p *AccessPipeline) Evaluate(ctx context.Context, req *AccessRequest) error {
	for _, g := range p.guards {
		spanCtx, span := p.tracer.Start(ctx, "guard."+g.Name())
		err := g.Evaluate(spanCtx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, domain.KindOf(err).String())
			span.SetAttributes(attribute.String("guard.rejected_by", g.Name()))
		}
		span.End()
		if err != nil {
			return err
		}
	}
	return nil
}

// ProtectedPipeline builds the chain for authenticated mutations:
// time window, then authentication, then rate limiting, then validation.
func ProtectedPipeline(window *WindowGuard, auth *AuthGuard, limit *RateLimitGuard, validation *ValidationGuard) *AccessPipeline {
	guards := make([]Guard, 0, 4)
	if window != nil {
		guards = append(guards, window)
	}
	if auth != nil {
		guards = append(guards, auth)
	}
	if limit != nil {
		guards = append(guards, limit)
	}
	if validation != nil {
		guards = append(guards, validation)
	}
	return NewAccessPipeline(guards...)
}

// PublicPipeline builds the chain for unauthenticated email-keyed routes. The body is
// validated first because the limiter key is read from it.
func PublicPipeline(validation *ValidationGuard, limit *RateLimitGuard) *AccessPipeline {
	guards := make([]Guard, 0, 2)
	if validation != nil {
		guards = append(guards, validation)
	}
	if limit != nil {
		guards = append(guards, limit)
	}
	return NewAccessPipeline(guards...)
}

// WindowGuard rejects requests outside a time window.
type WindowGuard struct {
	window domain.TimeWindow
}

func NewWindowGuard(window domain.TimeWindow) *WindowGuard {
	return &WindowGuard{window: window}
}

func (g *WindowGuard) Name() string { return "window" }

func (g *WindowGuard) Evaluate(_ context.Context, req *AccessRequest) error {
	return g.window.Evaluate(req.Now)
}

// AuthGuard resolves the session cookie to an account.
type AuthGuard struct {
	sessions *SessionService
}

func NewAuthGuard(sessions *SessionService) *AuthGuard {
	return &AuthGuard{sessions: sessions}
}

func (g *AuthGuard) Name() string { return "auth" }

func (g *AuthGuard) Evaluate(ctx context.Context, req *AccessRequest) error {
	account, claims, err := g.sessions.Authenticate(ctx, req.SessionToken)
	if err != nil {
		return err
	}
	req.Account = account
	req.Claims = claims
	return nil
}

// KeyFunc derives a limiter bucket key from a request.
type KeyFunc func(req *AccessRequest) (string, error)

// AccountEmailKey keys on the authenticated account's email.
func AccountEmailKey(req *AccessRequest) (string, error) {
	if req.Account == nil {
		return "", errors.New("account email key requires an authenticated request")
	}
	return req.Account.Email, nil
}

// PayloadEmailAndIPKey keys on the validated payload's email and the client address.
func PayloadEmailAndIPKey(req *AccessRequest) (string, error) {
	bearer, ok := req.Payload.(EmailBearer)
	if !ok {
		return "", fmt.Errorf("payload %T carries no email", req.Payload)
	}
	return EmailAndIPKey(bearer.EmailAddress(), req.ClientIP), nil
}

// RateLimitGuard consumes one point per request.
type RateLimitGuard struct {
	limiter *RateLimiter
	key     KeyFunc
}

func NewRateLimitGuard(limiter *RateLimiter, key KeyFunc) *RateLimitGuard {
	return &RateLimitGuard{limiter: limiter, key: key}
}

func (g *RateLimitGuard) Name() string { return "ratelimit." + g.limiter.Policy().Namespace }

func (g *RateLimitGuard) Evaluate(ctx context.Context, req *AccessRequest) error {
	key, err := g.key(req)
	if err != nil {
		return domain.NewInternal(fmt.Errorf("derive limiter key: %w", err))
	}
	result, err := g.limiter.Enforce(ctx, key, ErrTooManyRequests)
	if err == nil || errors.Is(err, ErrTooManyRequests) {
		req.RateLimit = &result
	}
	return err
}

// ValidationGuard decodes the body into a fresh payload and validates it.
type ValidationGuard struct {
	validate   *validator.Validate
	policy     port.PasswordPolicyValidator
	newPayload func() any
}

// NewValidationGuard builds a guard that decodes into newPayload(). policy may be nil
// when the payload never sets a password.
func NewValidationGuard(validate *validator.Validate, policy port.PasswordPolicyValidator, newPayload func() any) *ValidationGuard {
	return &ValidationGuard{validate: validate, policy: policy, newPayload: newPayload}
}

func (g *ValidationGuard) Name() string { return "validation" }

func (g *ValidationGuard) Evaluate(_ context.Context, req *AccessRequest) error {
	if req.Decode == nil {
		return domain.NewInternal(errors.New("request has no body decoder"))
	}
	payload := g.newPayload()
	if err := req.Decode(payload); err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return err
		}
		return domain.NewValidationFailed(ErrMalformedBody.Message, nil, err)
	}
	if err := ValidatePayload(g.validate, g.policy, payload); err != nil {
		return err
	}
	req.Payload = payload
	return nil
}
