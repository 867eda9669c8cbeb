package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/port"
)

const (
	NamespaceLoginByEmailAndIP = "login_by_email_and_ip"
	NamespaceLoginByIP         = "login_by_ip"
	NamespaceAuthRelated       = "auth_related_by_email"
	NamespaceSignupRelated     = "signup_related_by_email"
	NamespaceSubmitRelated     = "submit_related_by_email"
)

var namespacePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// RateLimitObserver is notified whenever a limiter rejects a request.
type RateLimitObserver interface {
	ObserveRejection(namespace string)
}

// RateLimiter is a single limiter namespace bound to a bucket store.
// Store failures are returned as errors; callers must not treat them as allowed.
type RateLimiter struct {
	policy   domain.RateLimitPolicy
	store    port.RateLimitStore
	observer RateLimitObserver
	disabled bool
}

// NewRateLimiter validates the policy and binds it to store.
func NewRateLimiter(policy domain.RateLimitPolicy, store port.RateLimitStore) (*RateLimiter, error) {
	if !namespacePattern.MatchString(policy.Namespace) {
		return nil, fmt.Errorf("invalid limiter namespace %q", policy.Namespace)
	}
	if policy.Points <= 0 {
		return nil, fmt.Errorf("limiter %s: points must be positive", policy.Namespace)
	}
	if policy.Duration <= 0 {
		return nil, fmt.Errorf("limiter %s: duration must be positive", policy.Namespace)
	}
	if store == nil {
		return nil, fmt.Errorf("limiter %s: store is required", policy.Namespace)
	}
	return &RateLimiter{policy: policy, store: store}, nil
}

// WithObserver registers a rejection observer.
func (l *RateLimiter) WithObserver(observer RateLimitObserver) *RateLimiter {
	l.observer = observer
	return l
}

// Disable turns the limiter into a pass-through. It exists for local development only.
func (l *RateLimiter) Disable() *RateLimiter {
	l.disabled = true
	return l
}

// Policy returns the limiter's policy.
func (l *RateLimiter) Policy() domain.RateLimitPolicy {
	return l.policy
}

// Consume takes one point for key. A rejected consume reports Allowed=false with a nil error.
func (l *RateLimiter) Consume(ctx context.Context, key string) (domain.RateLimitResult, error) {
	if l.disabled {
		return domain.RateLimitResult{Allowed: true, Limit: l.policy.Points, Remaining: l.policy.Points}, nil
	}
	allowed, bucket, err := l.store.Consume(ctx, l.storageKey(key), l.policy.Points, l.policy.Duration)
	if err != nil {
		return domain.RateLimitResult{}, domain.NewInternal(fmt.Errorf("consume %s: %w", l.policy.Namespace, err))
	}
	result := l.result(bucket)
	result.Allowed = allowed
	if !allowed && l.observer != nil {
		l.observer.ObserveRejection(l.policy.Namespace)
	}
	return result, nil
}

// Enforce consumes one point and returns rejection when the bucket is exhausted.
func (l *RateLimiter) Enforce(ctx context.Context, key string, rejection error) (domain.RateLimitResult, error) {
	result, err := l.Consume(ctx, key)
	if err != nil {
		return result, err
	}
	if !result.Allowed {
		return result, rejection
	}
	return result, nil
}

// Exhausted reports whether key has no points left in its current window.
func (l *RateLimiter) Exhausted(ctx context.Context, key string) (bool, error) {
	if l.disabled {
		return false, nil
	}
	bucket, err := l.store.Peek(ctx, l.storageKey(key))
	if err != nil {
		return false, domain.NewInternal(fmt.Errorf("peek %s: %w", l.policy.Namespace, err))
	}
	if bucket.Consumed >= l.policy.Points && l.observer != nil {
		l.observer.ObserveRejection(l.policy.Namespace)
	}
	return bucket.Consumed >= l.policy.Points, nil
}

// Reset clears the bucket for key.
func (l *RateLimiter) Reset(ctx context.Context, key string) error {
	if l.disabled {
		return nil
	}
	if err := l.store.Reset(ctx, l.storageKey(key)); err != nil {
		return domain.NewInternal(fmt.Errorf("reset %s: %w", l.policy.Namespace, err))
	}
	return nil
}

func (l *RateLimiter) storageKey(key string) string {
	return l.policy.Namespace + ":" + key
}

func (l *RateLimiter) result(bucket port.RateLimitBucket) domain.RateLimitResult {
	remaining := l.policy.Points - bucket.Consumed
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateLimitResult{
		Limit:      l.policy.Points,
		Remaining:  remaining,
		RetryAfter: bucket.ResetIn,
	}
}

// RateLimiters groups the limiter namespaces used by the service.
type RateLimiters struct {
	LoginByEmailAndIP *RateLimiter
	LoginByIP         *RateLimiter
	AuthRelated       *RateLimiter
	SignupRelated     *RateLimiter
	SubmitRelated     *RateLimiter
}

// NewRateLimiters binds every policy to the same store.
func NewRateLimiters(store port.RateLimitStore, policies ...domain.RateLimitPolicy) (*RateLimiters, error) {
	limiters := &RateLimiters{}
	for _, policy := range policies {
		limiter, err := NewRateLimiter(policy, store)
		if err != nil {
			return nil, err
		}
		switch policy.Namespace {
		case NamespaceLoginByEmailAndIP:
			limiters.LoginByEmailAndIP = limiter
		case NamespaceLoginByIP:
			limiters.LoginByIP = limiter
		case NamespaceAuthRelated:
			limiters.AuthRelated = limiter
		case NamespaceSignupRelated:
			limiters.SignupRelated = limiter
		case NamespaceSubmitRelated:
			limiters.SubmitRelated = limiter
		default:
			return nil, fmt.Errorf("unknown limiter namespace %q", policy.Namespace)
		}
	}
	for name, limiter := range limiters.byName() {
		if limiter == nil {
			return nil, fmt.Errorf("limiter %s is not configured", name)
		}
	}
	return limiters, nil
}

// Each applies fn to every limiter.
func (r *RateLimiters) Each(fn func(*RateLimiter)) {
	for _, limiter := range r.byName() {
		if limiter != nil {
			fn(limiter)
		}
	}
}

func (r *RateLimiters) byName() map[string]*RateLimiter {
	return map[string]*RateLimiter{
		NamespaceLoginByEmailAndIP: r.LoginByEmailAndIP,
		NamespaceLoginByIP:         r.LoginByIP,
		NamespaceAuthRelated:       r.AuthRelated,
		NamespaceSignupRelated:     r.SignupRelated,
		NamespaceSubmitRelated:     r.SubmitRelated,
	}
}

// EmailAndIPKey builds the bucket key for a (email, ip) pair.
func EmailAndIPKey(email, ip string) string {
	return NormalizeEmail(email) + "_" + ip
}

// NormalizeEmail trims surrounding whitespace. Emails stay case-sensitive as stored.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(email)
}
