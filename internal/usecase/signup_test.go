package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
)

func TestSignupFetchHidesPasswordHash(t *testing.T) {
	f := newFixture(t)
	account := f.register(t, "team@example.com")

	view := f.signup.Fetch(account)
	if view.ID != account.ID || view.Email != "team@example.com" || view.Confirmed {
		t.Fatalf("unexpected view %+v", view)
	}
	if _, ok := view.Form["teamName"]; !ok {
		t.Fatalf("expected default form, got %v", view.Form)
	}
}

func TestSignupUpdateThenLock(t *testing.T) {
	f := newFixture(t)
	account := f.register(t, "team@example.com")
	ctx := context.Background()

	if err := f.signup.Update(ctx, account, false, domain.SignupForm{"teamName": "draft"}); err != nil {
		t.Fatalf("draft update: %v", err)
	}
	if err := f.signup.Update(ctx, account, true, domain.SignupForm{"teamName": "final"}); err != nil {
		t.Fatalf("confirming update: %v", err)
	}

	stored, err := f.accounts.GetByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !stored.Confirmed || stored.Form["teamName"] != "final" {
		t.Fatalf("unexpected stored account %+v", stored)
	}

	err = f.signup.Update(ctx, stored, false, domain.SignupForm{"teamName": "sneaky"})
	if !errors.Is(err, ErrSignupConfirmed) {
		t.Fatalf("expected ErrSignupConfirmed, got %v", err)
	}
	requireKind(t, err, domain.KindForbidden)
}

func TestSignupUpdateDeletedAccount(t *testing.T) {
	f := newFixture(t)
	account := f.register(t, "team@example.com")
	if err := f.accounts.DeleteByID(context.Background(), account.ID); err != nil {
		t.Fatalf("DeleteByID: %v", err)
	}

	err := f.signup.Update(context.Background(), account, false, domain.SignupForm{})
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

type memorySubmissionStore struct {
	puts map[string][]byte
	err  error
}

func (s *memorySubmissionStore) Put(_ context.Context, accountID string, body io.Reader, _ int64) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if s.puts == nil {
		s.puts = make(map[string][]byte)
	}
	s.puts[accountID] = data
	return "mem://" + accountID + "/work.zip", nil
}

func TestSubmissionStoresWork(t *testing.T) {
	f := newFixture(t)
	account := f.register(t, "team@example.com")
	store := &memorySubmissionStore{}
	svc := NewSubmissionService(store, f.publisher, 1024, nil)

	location, err := svc.Submit(context.Background(), account, bytes.NewReader([]byte("zip-bytes")), 9)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if location != "mem://"+account.ID+"/work.zip" || string(store.puts[account.ID]) != "zip-bytes" {
		t.Fatalf("unexpected stored submission %q %q", location, store.puts[account.ID])
	}
	if len(f.publisher.uploaded) != 1 || f.publisher.uploaded[0].SizeBytes != 9 {
		t.Fatalf("unexpected upload events %+v", f.publisher.uploaded)
	}
}

func TestSubmissionRejectsOversizedWork(t *testing.T) {
	f := newFixture(t)
	account := f.register(t, "team@example.com")
	store := &memorySubmissionStore{}
	svc := NewSubmissionService(store, nil, 4, nil)

	_, err := svc.Submit(context.Background(), account, bytes.NewReader([]byte("too big")), 7)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	requireKind(t, err, domain.KindPayloadTooLarge)
	if len(store.puts) != 0 {
		t.Fatalf("oversized work must not be stored")
	}
}

func TestSubmissionStoreFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	account := f.register(t, "team@example.com")
	svc := NewSubmissionService(&memorySubmissionStore{err: errors.New("disk full")}, nil, 1024, nil)

	_, err := svc.Submit(context.Background(), account, bytes.NewReader([]byte("x")), 1)
	requireKind(t, err, domain.KindInternal)
}
