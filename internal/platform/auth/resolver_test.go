package auth

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bloksphere/stratosphere-patient-app/internal/platform/security"
)

type mockLookup struct {
	accounts map[uuid.UUID]*Account
	err      error
}

func (m *mockLookup) FindAccountByID(_ context.Context, id uuid.UUID) (*Account, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.accounts[id], nil
}

func newTestResolver(t *testing.T, accessTTL time.Duration, accounts ...*Account) (*Resolver, *security.TokenService) {
	t.Helper()

	tokens, err := security.NewTokenService("resolver-test-secret-value-long", "HS256", accessTTL, 24*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lookup := &mockLookup{accounts: make(map[uuid.UUID]*Account)}
	for _, a := range accounts {
		lookup.accounts[a.ID] = a
	}

	return NewResolver(tokens, lookup), tokens
}

func accountWithStatus(status string) *Account {
	return &Account{ID: uuid.New(), Email: "patient@example.com", Status: status}
}

func TestResolve_NoCredentials(t *testing.T) {
	r, _ := newTestResolver(t, 15*time.Minute)

	_, failure := r.Resolve(context.Background(), "")
	if failure == nil {
		t.Fatal("expected failure")
	}
	if failure.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", failure.StatusCode)
	}
	if failure.Reason != ReasonMissingCredentials {
		t.Errorf("expected missing_credentials, got %s", failure.Reason)
	}
}

func TestResolve_InvalidToken(t *testing.T) {
	r, _ := newTestResolver(t, 15*time.Minute)

	_, failure := r.Resolve(context.Background(), "not-a-token")
	if failure == nil || failure.StatusCode != http.StatusUnauthorized || failure.Reason != ReasonInvalidOrExpired {
		t.Errorf("expected 401 invalid_or_expired, got %+v", failure)
	}
}

func TestResolve_ExpiredToken(t *testing.T) {
	account := accountWithStatus(StatusActive)
	r, tokens := newTestResolver(t, -1*time.Minute, account)

	token, err := tokens.IssueAccess(account.ID.String(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, failure := r.Resolve(context.Background(), token)
	if failure == nil || failure.StatusCode != http.StatusUnauthorized || failure.Reason != ReasonInvalidOrExpired {
		t.Errorf("expected 401 invalid_or_expired, got %+v", failure)
	}
}

func TestResolve_RefreshTokenRejected(t *testing.T) {
	account := accountWithStatus(StatusActive)
	r, tokens := newTestResolver(t, 15*time.Minute, account)

	refresh, err := tokens.IssueRefresh(account.ID.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, failure := r.Resolve(context.Background(), refresh)
	if failure == nil || failure.Reason != ReasonInvalidOrExpired {
		t.Errorf("refresh token must not pass access resolution, got %+v", failure)
	}
}

func TestResolve_UnknownSubject(t *testing.T) {
	r, tokens := newTestResolver(t, 15*time.Minute)

	token, err := tokens.IssueAccess(uuid.NewString(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, failure := r.Resolve(context.Background(), token)
	if failure == nil || failure.StatusCode != http.StatusUnauthorized || failure.Reason != ReasonNotFound {
		t.Errorf("expected 401 not_found, got %+v", failure)
	}
}

func TestResolve_NonUUIDSubject(t *testing.T) {
	r, tokens := newTestResolver(t, 15*time.Minute)

	token, err := tokens.IssueAccess("not-a-uuid", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, failure := r.Resolve(context.Background(), token)
	if failure == nil || failure.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %+v", failure)
	}
}

func TestResolve_LookupErrorIsNotFound(t *testing.T) {
	tokens, err := security.NewTokenService("resolver-test-secret-value-long", "HS256", 15*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := NewResolver(tokens, &mockLookup{err: fmt.Errorf("connection refused")})

	token, err := tokens.IssueAccess(uuid.NewString(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, failure := r.Resolve(context.Background(), token)
	if failure == nil || failure.Reason != ReasonNotFound {
		t.Errorf("lookup errors must collapse into not_found, got %+v", failure)
	}
}

func TestResolve_StatusGating(t *testing.T) {
	tests := []struct {
		status     string
		wantStatus int
		wantReason string
	}{
		{StatusDeleted, http.StatusUnauthorized, ReasonDeleted},
		{StatusSuspended, http.StatusForbidden, ReasonSuspended},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			account := accountWithStatus(tt.status)
			r, tokens := newTestResolver(t, 15*time.Minute, account)

			token, err := tokens.IssueAccess(account.ID.String(), nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			_, failure := r.Resolve(context.Background(), token)
			if failure == nil {
				t.Fatal("expected failure")
			}
			if failure.StatusCode != tt.wantStatus || failure.Reason != tt.wantReason {
				t.Errorf("got %d/%s, want %d/%s", failure.StatusCode, failure.Reason, tt.wantStatus, tt.wantReason)
			}
		})
	}
}

func TestResolve_ActiveAccount(t *testing.T) {
	account := accountWithStatus(StatusActive)
	r, tokens := newTestResolver(t, 15*time.Minute, account)

	token, err := tokens.IssueAccess(account.ID.String(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resolved, failure := r.Resolve(context.Background(), token)
	if failure != nil {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	if resolved.ID != account.ID {
		t.Errorf("resolved wrong account: got %s want %s", resolved.ID, account.ID)
	}
}

func TestResolveActive_PendingVerification(t *testing.T) {
	account := accountWithStatus(StatusPendingVerification)
	r, tokens := newTestResolver(t, 15*time.Minute, account)

	token, err := tokens.IssueAccess(account.ID.String(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Basic resolution succeeds for a pending account.
	if _, failure := r.Resolve(context.Background(), token); failure != nil {
		t.Fatalf("basic resolve should succeed for pending account, got %+v", failure)
	}

	// The active-only gate rejects it with 403.
	_, failure := r.ResolveActive(context.Background(), token)
	if failure == nil || failure.StatusCode != http.StatusForbidden || failure.Reason != ReasonInactive {
		t.Errorf("expected 403 inactive, got %+v", failure)
	}
}

func TestResolveOptional(t *testing.T) {
	account := accountWithStatus(StatusActive)
	r, tokens := newTestResolver(t, 15*time.Minute, account)

	if got := r.ResolveOptional(context.Background(), ""); got != nil {
		t.Errorf("anonymous caller should resolve to nil, got %+v", got)
	}
	if got := r.ResolveOptional(context.Background(), "garbage"); got != nil {
		t.Errorf("invalid token should resolve to nil, got %+v", got)
	}

	token, err := tokens.IssueAccess(account.ID.String(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := r.ResolveOptional(context.Background(), token)
	if got == nil || got.ID != account.ID {
		t.Errorf("expected resolved account, got %+v", got)
	}
}
