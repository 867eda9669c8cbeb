package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/port"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/security"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/repository/memory"
)

const strongPassword = "Qx7!mardle#Tusk"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// plainHasher keeps tests fast; it is not a real hash.
type plainHasher struct {
	hashErr error
}

func (h plainHasher) Hash(password string) (string, error) {
	if h.hashErr != nil {
		return "", h.hashErr
	}
	return "plain$" + password, nil
}

func (plainHasher) Verify(password, encoded string) (bool, error) {
	if !strings.HasPrefix(encoded, "plain$") {
		return false, errors.New("unexpected hash encoding")
	}
	return encoded == "plain$"+password, nil
}

type fakeTokens struct {
	mu     sync.Mutex
	ttl    time.Duration
	issued map[string]domain.SessionClaims
	seq    int
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{ttl: 12 * time.Hour, issued: make(map[string]domain.SessionClaims)}
}

func (f *fakeTokens) Issue(accountID string, now time.Time) (domain.IssuedSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	token := fmt.Sprintf("session-%s-%d", accountID, f.seq)
	f.issued[token] = domain.SessionClaims{AccountID: accountID, IssuedAt: now, ExpiresAt: now.Add(f.ttl)}
	return domain.IssuedSession{Token: token, ExpiresAt: now.Add(f.ttl), TTL: f.ttl}, nil
}

func (f *fakeTokens) Verify(token string, now time.Time) (domain.SessionClaims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	claims, ok := f.issued[token]
	if !ok || !now.Before(claims.ExpiresAt) {
		return domain.SessionClaims{}, security.ErrInvalidSession
	}
	return claims, nil
}

type recordingPublisher struct {
	mu         sync.Mutex
	registered []domain.AccountRegisteredEvent
	requested  []domain.PasswordResetRequestedEvent
	changed    []domain.PasswordChangedEvent
	uploaded   []domain.SubmissionUploadedEvent
	err        error
}

func (p *recordingPublisher) PublishAccountRegistered(_ context.Context, e domain.AccountRegisteredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = append(p.registered, e)
	return p.err
}

func (p *recordingPublisher) PublishPasswordResetRequested(_ context.Context, e domain.PasswordResetRequestedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requested = append(p.requested, e)
	return p.err
}

func (p *recordingPublisher) PublishPasswordChanged(_ context.Context, e domain.PasswordChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, e)
	return p.err
}

func (p *recordingPublisher) PublishSubmissionUploaded(_ context.Context, e domain.SubmissionUploadedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uploaded = append(p.uploaded, e)
	return p.err
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []port.MailMessage
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg port.MailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

func (m *recordingMailer) last(t *testing.T) port.MailMessage {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatalf("expected an email to be sent")
	}
	return m.sent[len(m.sent)-1]
}

func testPolicies() []domain.RateLimitPolicy {
	return []domain.RateLimitPolicy{
		{Namespace: NamespaceLoginByEmailAndIP, Points: 5, Duration: time.Minute},
		{Namespace: NamespaceLoginByIP, Points: 5, Duration: time.Minute},
		{Namespace: NamespaceAuthRelated, Points: 5, Duration: time.Minute},
		{Namespace: NamespaceSignupRelated, Points: 5, Duration: time.Minute},
		{Namespace: NamespaceSubmitRelated, Points: 5, Duration: time.Minute},
	}
}

type fixture struct {
	clock     *fakeClock
	accounts  *memory.AccountRepository
	resets    *memory.PasswordResetRepository
	store     *memory.RateLimitStore
	limiters  *RateLimiters
	tokens    *fakeTokens
	sessions  *SessionService
	publisher *recordingPublisher
	mailer    *recordingMailer
	auth      *AuthService
	reset     *PasswordResetService
	signup    *SignupService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		clock:     newFakeClock(),
		accounts:  memory.NewAccountRepository(),
		resets:    memory.NewPasswordResetRepository(),
		tokens:    newFakeTokens(),
		publisher: &recordingPublisher{},
		mailer:    &recordingMailer{},
	}
	f.store = memory.NewRateLimitStore().WithClock(f.clock.Now)

	limiters, err := NewRateLimiters(f.store, testPolicies()...)
	if err != nil {
		t.Fatalf("NewRateLimiters: %v", err)
	}
	f.limiters = limiters

	f.sessions = NewSessionService(f.tokens, f.accounts).WithClock(f.clock.Now)
	f.auth = NewAuthService(f.accounts, plainHasher{}, f.sessions, f.limiters, f.publisher, nil).WithClock(f.clock.Now)
	f.reset = NewPasswordResetService(
		f.accounts,
		f.resets,
		plainHasher{},
		f.mailer,
		ResetMailTemplate{Subject: "Reset for ${EMAIL}", HTML: "<a href=\"/reset?token=${TOKEN}\">reset</a>"},
		f.publisher,
		nil,
	).WithClock(f.clock.Now).WithDispatcher(func(fn func()) { fn() })
	f.signup = NewSignupService(f.accounts, nil)
	return f
}

func (f *fixture) register(t *testing.T, email string) *domain.Account {
	t.Helper()
	account, _, err := f.auth.Register(context.Background(), Credentials{Email: email, Password: strongPassword, ClientIP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return account
}

func requireKind(t *testing.T, err error, kind domain.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := domain.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}
