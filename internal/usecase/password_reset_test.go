package usecase

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/security"
)

var tokenInMail = regexp.MustCompile(`token=([0-9a-f]{64})`)

func requestToken(t *testing.T, f *fixture, email string) string {
	t.Helper()
	if err := f.reset.RequestReset(context.Background(), ResetRequestInput{Email: email, ClientIP: "10.0.0.1"}); err != nil {
		t.Fatalf("RequestReset: %v", err)
	}
	match := tokenInMail.FindStringSubmatch(f.mailer.last(t).HTML)
	if match == nil {
		t.Fatalf("no token in email body %q", f.mailer.last(t).HTML)
	}
	return match[1]
}

func TestRequestResetStoresOnlyTheHash(t *testing.T) {
	f := newFixture(t)
	account := f.register(t, "team@example.com")

	token := requestToken(t, f, "team@example.com")

	record, err := f.resets.GetByAccountID(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("GetByAccountID: %v", err)
	}
	if record.TokenHash == token {
		t.Fatalf("secret stored in clear")
	}
	if record.TokenHash != security.HashToken(token) {
		t.Fatalf("stored hash does not match emailed secret")
	}
	if want := f.clock.Now().Add(defaultResetTTL); !record.ExpiresAt.Equal(want) {
		t.Fatalf("expiry %v, want %v", record.ExpiresAt, want)
	}
	msg := f.mailer.last(t)
	if msg.To != "team@example.com" || msg.Subject != "Reset for team@example.com" {
		t.Fatalf("unexpected email %+v", msg)
	}
	if len(f.publisher.requested) != 1 || f.publisher.requested[0].MaskedDestination != "tea***@example.com" {
		t.Fatalf("unexpected reset events %+v", f.publisher.requested)
	}
}

func TestRequestResetUnknownEmailIsSilent(t *testing.T) {
	f := newFixture(t)

	if err := f.reset.RequestReset(context.Background(), ResetRequestInput{Email: "ghost@example.com"}); err != nil {
		t.Fatalf("expected nil error for unknown email, got %v", err)
	}
	if len(f.mailer.sent) != 0 {
		t.Fatalf("no email should be sent for unknown accounts")
	}
}

func TestRequestResetMailFailureIsNotSurfaced(t *testing.T) {
	f := newFixture(t)
	f.register(t, "team@example.com")
	f.mailer.err = errors.New("smtp down")

	if err := f.reset.RequestReset(context.Background(), ResetRequestInput{Email: "team@example.com"}); err != nil {
		t.Fatalf("RequestReset returned error: %v", err)
	}
}

func TestConfirmResetSucceedsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	account := f.register(t, "team@example.com")
	token := requestToken(t, f, "team@example.com")
	ctx := context.Background()

	input := ConfirmResetInput{Email: "team@example.com", Token: token, NewPassword: "N3w!passphrase-ok"}
	if err := f.reset.ConfirmReset(ctx, input); err != nil {
		t.Fatalf("ConfirmReset returned error: %v", err)
	}

	if _, _, err := f.auth.Login(ctx, Credentials{Email: "team@example.com", Password: "N3w!passphrase-ok", ClientIP: "10.0.0.1"}); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
	if _, _, err := f.auth.Login(ctx, Credentials{Email: "team@example.com", Password: strongPassword, ClientIP: "10.0.0.5"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}

	err := f.reset.ConfirmReset(ctx, input)
	if !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("second confirm: expected ErrInvalidResetToken, got %v", err)
	}
	if len(f.publisher.changed) != 1 || f.publisher.changed[0].AccountID != account.ID {
		t.Fatalf("unexpected password change events %+v", f.publisher.changed)
	}
}

// rendezvousHasher holds every Hash call until n callers have arrived, so
// concurrent confirms all get past the token check before any of them consumes it.
type rendezvousHasher struct {
	plainHasher
	arrived sync.WaitGroup
}

func newRendezvousHasher(n int) *rendezvousHasher {
	h := &rendezvousHasher{}
	h.arrived.Add(n)
	return h
}

func (h *rendezvousHasher) Hash(password string) (string, error) {
	h.arrived.Done()
	h.arrived.Wait()
	return h.plainHasher.Hash(password)
}

func TestConfirmResetConcurrentRedeemsOnce(t *testing.T) {
	f := newFixture(t)
	account := f.register(t, "team@example.com")
	token := requestToken(t, f, "team@example.com")

	passwords := []string{"N3w!passphrase-one", "N3w!passphrase-two"}
	svc := NewPasswordResetService(f.accounts, f.resets, newRendezvousHasher(len(passwords)), f.mailer,
		ResetMailTemplate{HTML: "${TOKEN}"}, f.publisher, nil).WithClock(f.clock.Now)

	errs := make([]error, len(passwords))
	var wg sync.WaitGroup
	for i, password := range passwords {
		wg.Add(1)
		go func(i int, password string) {
			defer wg.Done()
			errs[i] = svc.ConfirmReset(context.Background(), ConfirmResetInput{Email: "team@example.com", Token: token, NewPassword: password})
		}(i, password)
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		switch {
		case err == nil:
			if winner != -1 {
				t.Fatalf("token redeemed by both confirms")
			}
			winner = i
		case !errors.Is(err, ErrInvalidResetToken):
			t.Fatalf("confirm %d: expected ErrInvalidResetToken, got %v", i, err)
		}
	}
	if winner == -1 {
		t.Fatalf("no confirm succeeded: %v", errs)
	}

	stored, err := f.accounts.GetByID(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.PasswordHash != "plain$"+passwords[winner] {
		t.Fatalf("password %q does not belong to the successful confirm", stored.PasswordHash)
	}
	if len(f.publisher.changed) != 1 {
		t.Fatalf("expected one password change event, got %d", len(f.publisher.changed))
	}
}

func TestConfirmResetFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	f.register(t, "team@example.com")
	f.register(t, "quiet@example.com")
	token := requestToken(t, f, "team@example.com")
	ctx := context.Background()

	wrong := []byte(token)
	if wrong[0] == 'a' {
		wrong[0] = 'b'
	} else {
		wrong[0] = 'a'
	}

	cases := map[string]ConfirmResetInput{
		"unknown email":   {Email: "ghost@example.com", Token: token, NewPassword: "N3w!passphrase-ok"},
		"no record":       {Email: "quiet@example.com", Token: token, NewPassword: "N3w!passphrase-ok"},
		"wrong token":     {Email: "team@example.com", Token: string(wrong), NewPassword: "N3w!passphrase-ok"},
		"other's account": {Email: "quiet@example.com", Token: string(wrong), NewPassword: "N3w!passphrase-ok"},
	}

	var first error
	for name, input := range cases {
		err := f.reset.ConfirmReset(ctx, input)
		if !errors.Is(err, ErrInvalidResetToken) {
			t.Fatalf("%s: expected ErrInvalidResetToken, got %v", name, err)
		}
		if first == nil {
			first = err
		} else if err.Error() != first.Error() {
			t.Fatalf("%s: error %q differs from %q", name, err, first)
		}
	}

	f.clock.Advance(defaultResetTTL)
	err := f.reset.ConfirmReset(ctx, ConfirmResetInput{Email: "team@example.com", Token: token, NewPassword: "N3w!passphrase-ok"})
	if !errors.Is(err, ErrInvalidResetToken) || err.Error() != first.Error() {
		t.Fatalf("expired token: expected identical ErrInvalidResetToken, got %v", err)
	}
	requireKind(t, err, domain.KindNotFoundOrInvalid)
}

func TestConfirmResetJustBeforeExpiry(t *testing.T) {
	f := newFixture(t)
	f.register(t, "team@example.com")
	token := requestToken(t, f, "team@example.com")

	f.clock.Advance(defaultResetTTL - time.Millisecond)
	if err := f.reset.ConfirmReset(context.Background(), ConfirmResetInput{Email: "team@example.com", Token: token, NewPassword: "N3w!passphrase-ok"}); err != nil {
		t.Fatalf("ConfirmReset returned error: %v", err)
	}
}

func TestNewRequestSupersedesOutstandingToken(t *testing.T) {
	f := newFixture(t)
	f.register(t, "team@example.com")
	first := requestToken(t, f, "team@example.com")
	second := requestToken(t, f, "team@example.com")
	if first == second {
		t.Fatalf("expected a fresh secret")
	}
	ctx := context.Background()

	if err := f.reset.ConfirmReset(ctx, ConfirmResetInput{Email: "team@example.com", Token: first, NewPassword: "N3w!passphrase-ok"}); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("superseded token accepted: %v", err)
	}
	if err := f.reset.ConfirmReset(ctx, ConfirmResetInput{Email: "team@example.com", Token: second, NewPassword: "N3w!passphrase-ok"}); err != nil {
		t.Fatalf("latest token rejected: %v", err)
	}
}

func TestResetMailTemplateRender(t *testing.T) {
	tpl := ResetMailTemplate{Subject: "Hi ${EMAIL}", HTML: "${TOKEN}/${TOKEN}"}
	msg := tpl.Render("a@b.cd", "abc")
	if msg.Subject != "Hi a@b.cd" || msg.HTML != "abc/abc" || msg.To != "a@b.cd" {
		t.Fatalf("unexpected render %+v", msg)
	}
}

func TestRequestResetWaitDrainsBackgroundDelivery(t *testing.T) {
	f := newFixture(t)
	f.register(t, "team@example.com")
	svc := NewPasswordResetService(f.accounts, f.resets, plainHasher{}, f.mailer, ResetMailTemplate{HTML: "${TOKEN}"}, nil, nil)

	if err := svc.RequestReset(context.Background(), ResetRequestInput{Email: "team@example.com"}); err != nil {
		t.Fatalf("RequestReset: %v", err)
	}
	svc.Wait()
	if len(f.mailer.sent) != 1 {
		t.Fatalf("expected one email after Wait, got %d", len(f.mailer.sent))
	}
}
