package account

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bloksphere/stratosphere-patient-app/internal/platform/audit"
	"github.com/bloksphere/stratosphere-patient-app/internal/platform/auth"
	"github.com/bloksphere/stratosphere-patient-app/internal/platform/security"
)

// repoLookup adapts the account repository to the resolver, the same way the
// server wires it at startup.
type repoLookup struct {
	repo AccountRepository
}

func (l *repoLookup) FindAccountByID(ctx context.Context, id uuid.UUID) (*auth.Account, error) {
	a, err := l.repo.GetByID(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &auth.Account{ID: a.ID, Email: a.Email, Status: a.Status}, nil
}

type flowServer struct {
	e        *echo.Echo
	accounts *mockAccountRepo
	tokens   *security.TokenService
	secret   string
}

func newFlowServer(t *testing.T) *flowServer {
	t.Helper()

	const secret = "test-secret-that-is-long-enough!"
	cipher, err := security.NewFieldCipher(bytes.Repeat([]byte("k"), 32))
	if err != nil {
		t.Fatal(err)
	}
	tokens, err := security.NewTokenService(secret, "HS256", 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	accounts := newMockAccountRepo()
	sessions := newMockSessionRepo()
	recorder := audit.NewRecorder(&captureStore{}, zerolog.New(io.Discard))
	svc := NewService(accounts, sessions, security.NewPasswordHasher("pepper"), cipher, tokens, recorder)
	resolver := auth.NewResolver(tokens, &repoLookup{repo: accounts})

	e := echo.New()
	NewHandler(svc).RegisterRoutes(e.Group("/api/v1"), resolver)
	return &flowServer{e: e, accounts: accounts, tokens: tokens, secret: secret}
}

func (s *flowServer) postJSON(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(payload)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *flowServer) getMe(t *testing.T, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decodePair(t *testing.T, rec *httptest.ResponseRecorder) TokenPair {
	t.Helper()
	var pair TokenPair
	if err := json.Unmarshal(rec.Body.Bytes(), &pair); err != nil {
		t.Fatalf("decoding token pair: %v", err)
	}
	return pair
}

// TestAuthFlow walks the full credential lifecycle over HTTP: registration,
// login, an authenticated call, misuse of the refresh token as a bearer,
// rejection of an expired access token, and refresh rotation yielding a
// working replacement pair.
func TestAuthFlow(t *testing.T) {
	s := newFlowServer(t)

	// Register, then activate the account the way email verification would.
	rec := s.postJSON(t, "/api/v1/auth/register", map[string]string{
		"email":    "ada@example.com",
		"password": "correct-horse",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	a, err := s.accounts.GetByEmail(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.accounts.UpdateStatus(context.Background(), a.ID, StatusActive); err != nil {
		t.Fatal(err)
	}

	rec = s.postJSON(t, "/api/v1/auth/login", map[string]string{
		"email":    "ada@example.com",
		"password": "correct-horse",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	pair := decodePair(t, rec)
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("login must return both tokens")
	}

	// The access token opens protected routes.
	if rec := s.getMe(t, pair.AccessToken); rec.Code != http.StatusOK {
		t.Fatalf("authenticated call: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	// The refresh token is not a bearer credential.
	if rec := s.getMe(t, pair.RefreshToken); rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh token as bearer: expected 401, got %d", rec.Code)
	}

	// An expired access token is rejected. Issue one with the same secret but
	// a lifetime already in the past.
	expiredIssuer, err := security.NewTokenService(s.secret, "HS256", -time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	expired, err := expiredIssuer.IssueAccess(a.ID.String(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if rec := s.getMe(t, expired); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired access token: expected 401, got %d", rec.Code)
	}

	// Refresh yields a rotated pair that works.
	rec = s.postJSON(t, "/api/v1/auth/refresh", map[string]string{
		"refresh_token": pair.RefreshToken,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	next := decodePair(t, rec)
	if next.RefreshToken == pair.RefreshToken {
		t.Error("refresh must rotate the refresh token")
	}
	if rec := s.getMe(t, next.AccessToken); rec.Code != http.StatusOK {
		t.Fatalf("refreshed access token: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	// The consumed refresh token is dead after rotation.
	rec = s.postJSON(t, "/api/v1/auth/refresh", map[string]string{
		"refresh_token": pair.RefreshToken,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token: expected 401, got %d", rec.Code)
	}
}
