package account

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bloksphere/stratosphere-patient-app/internal/platform/audit"
	"github.com/bloksphere/stratosphere-patient-app/internal/platform/security"
)

// -- Mock Repositories --

type mockAccountRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Account
}

func newMockAccountRepo() *mockAccountRepo {
	return &mockAccountRepo{items: make(map[uuid.UUID]*Account)}
}

func (m *mockAccountRepo) Create(_ context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.Email == a.Email {
			return ErrDuplicateEmail
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = time.Now()
	m.items[a.ID] = a
	return nil
}

func (m *mockAccountRepo) GetByID(_ context.Context, id uuid.UUID) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (m *mockAccountRepo) GetByEmail(_ context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.items {
		if a.Email == email {
			copied := *a
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockAccountRepo) Update(_ context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[a.ID]; !ok {
		return ErrNotFound
	}
	copied := *a
	m.items[a.ID] = &copied
	return nil
}

func (m *mockAccountRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	return nil
}

func (m *mockAccountRepo) UpdatePasswordHash(_ context.Context, id uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	a.PasswordHash = hash
	return nil
}

func (m *mockAccountRepo) MarkDeletionRequested(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	a.DeletionRequested = true
	return nil
}

func (m *mockAccountRepo) Delete(_ context.Context, id uuid.UUID) error {
	return m.UpdateStatus(context.Background(), id, StatusDeleted)
}

type mockSessionRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Session
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{items: make(map[uuid.UUID]*Session)}
}

func (m *mockSessionRepo) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	copied := *s
	m.items[s.ID] = &copied
	return nil
}

func (m *mockSessionRepo) GetByTokenHash(_ context.Context, hash string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.items {
		if s.RefreshTokenHash == hash {
			copied := *s
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockSessionRepo) Revoke(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok || s.RevokedAt != nil {
		return ErrNotFound
	}
	now := time.Now()
	s.RevokedAt = &now
	return nil
}

func (m *mockSessionRepo) RevokeAllForAccount(_ context.Context, accountID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, s := range m.items {
		if s.AccountID == accountID && s.RevokedAt == nil {
			s.RevokedAt = &now
		}
	}
	return nil
}

func (m *mockSessionRepo) Rotate(ctx context.Context, oldID uuid.UUID, next *Session) error {
	if err := m.Revoke(ctx, oldID); err != nil {
		return err
	}
	return m.Create(ctx, next)
}

func (m *mockSessionRepo) active(accountID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.items {
		if s.AccountID == accountID && s.RevokedAt == nil {
			n++
		}
	}
	return n
}

// -- Audit capture --

type captureStore struct {
	mu      sync.Mutex
	entries []*audit.Entry
}

func (c *captureStore) Append(_ context.Context, e *audit.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return nil
}

func (c *captureStore) actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Action
	}
	return out
}

func (c *captureStore) last() *audit.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return nil
	}
	return c.entries[len(c.entries)-1]
}

// -- Fixture --

type fixture struct {
	svc      *Service
	accounts *mockAccountRepo
	sessions *mockSessionRepo
	auditLog *captureStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cipher, err := security.NewFieldCipher(bytes.Repeat([]byte("k"), 32))
	if err != nil {
		t.Fatalf("creating cipher: %v", err)
	}
	tokens, err := security.NewTokenService("test-secret-that-is-long-enough!", "HS256", 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("creating token service: %v", err)
	}

	accounts := newMockAccountRepo()
	sessions := newMockSessionRepo()
	auditLog := &captureStore{}
	recorder := audit.NewRecorder(auditLog, zerolog.New(io.Discard))

	svc := NewService(accounts, sessions, security.NewPasswordHasher("pepper"), cipher, tokens, recorder)
	return &fixture{svc: svc, accounts: accounts, sessions: sessions, auditLog: auditLog}
}

func (f *fixture) register(t *testing.T, email, password string) *Account {
	t.Helper()
	first := "Ada"
	a, err := f.svc.Register(context.Background(), RegisterInput{
		Email:     email,
		Password:  password,
		FirstName: &first,
	}, audit.RequestMeta{})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	return a
}

func (f *fixture) activate(t *testing.T, id uuid.UUID) {
	t.Helper()
	if err := f.accounts.UpdateStatus(context.Background(), id, StatusActive); err != nil {
		t.Fatalf("activating account: %v", err)
	}
}

// -- Tests --

func TestRegister(t *testing.T) {
	f := newFixture(t)

	a := f.register(t, "ada@example.com", "correct-horse")

	if a.Status != StatusPendingVerification {
		t.Errorf("expected pending_verification, got %s", a.Status)
	}
	if a.PasswordHash == "" || a.PasswordHash == "correct-horse" {
		t.Error("password must be stored hashed")
	}
	if bytes.Contains(a.FirstNameEnc, []byte("Ada")) {
		t.Error("first name must be stored encrypted")
	}
	if got := f.auditLog.actions(); len(got) != 1 || got[0] != "user.register" {
		t.Errorf("expected user.register audit entry, got %v", got)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.register(t, "ada@example.com", "correct-horse")

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email:    "ada@example.com",
		Password: "another-pass",
	}, audit.RequestMeta{})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestRegister_WeakPassword(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email:    "ada@example.com",
		Password: "short",
	}, audit.RequestMeta{})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestRegister_InvalidEmail(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email:    "not-an-email",
		Password: "correct-horse",
	}, audit.RequestMeta{})
	if err == nil {
		t.Fatal("expected error for invalid email")
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "ada@example.com", "correct-horse")
	f.activate(t, a.ID)

	pair, err := f.svc.Login(context.Background(), "ada@example.com", "correct-horse", nil, audit.RequestMeta{})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Error("expected both tokens")
	}
	if pair.TokenType != "bearer" {
		t.Errorf("expected bearer token type, got %s", pair.TokenType)
	}
	if pair.ExpiresIn != int((15 * time.Minute).Seconds()) {
		t.Errorf("unexpected expires_in %d", pair.ExpiresIn)
	}
	if f.sessions.active(a.ID) != 1 {
		t.Error("expected one open session after login")
	}

	// The session stores only a hash of the refresh token.
	stored, err := f.sessions.GetByTokenHash(context.Background(), security.HashToken(pair.RefreshToken))
	if err != nil {
		t.Fatalf("session not found by token hash: %v", err)
	}
	if stored.RefreshTokenHash == pair.RefreshToken {
		t.Error("raw refresh token must not be persisted")
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "ada@example.com", "correct-horse")
	f.activate(t, a.ID)

	_, err := f.svc.Login(context.Background(), "ada@example.com", "wrong", nil, audit.RequestMeta{})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	entry := f.auditLog.last()
	if entry == nil || entry.Action != "user.login_failed" {
		t.Fatalf("expected user.login_failed entry, got %+v", entry)
	}
	if entry.ActorID != nil {
		t.Error("failed login must not be attributed to an account")
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Login(context.Background(), "ghost@example.com", "whatever-pass", nil, audit.RequestMeta{})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLogin_UnknownEmailCostsAComparison(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "ada@example.com", "correct-horse")
	f.activate(t, a.ID)
	ctx := context.Background()

	start := time.Now()
	if _, err := f.svc.Login(ctx, "ada@example.com", "wrong", nil, audit.RequestMeta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	knownDur := time.Since(start)

	start = time.Now()
	if _, err := f.svc.Login(ctx, "ghost@example.com", "wrong", nil, audit.RequestMeta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	unknownDur := time.Since(start)

	// Both branches must run one bcrypt comparison. Without the dummy
	// comparison the unknown-email path returns in microseconds while the
	// wrong-password path takes tens of milliseconds, so a generous factor
	// still catches the regression without flaking on scheduler noise.
	if unknownDur < knownDur/10 {
		t.Errorf("unknown-email login returned in %v vs %v for a wrong password; account existence is observable by timing", unknownDur, knownDur)
	}
}

func TestLogin_SuspendedAccount(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "ada@example.com", "correct-horse")
	if err := f.accounts.UpdateStatus(context.Background(), a.ID, StatusSuspended); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.Login(context.Background(), "ada@example.com", "correct-horse", nil, audit.RequestMeta{})
	if !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestLogin_PendingAccountAllowed(t *testing.T) {
	f := newFixture(t)
	f.register(t, "ada@example.com", "correct-horse")

	// Pending accounts may log in; only RequireActive endpoints reject them.
	_, err := f.svc.Login(context.Background(), "ada@example.com", "correct-horse", nil, audit.RequestMeta{})
	if err != nil {
		t.Fatalf("pending account login should succeed, got %v", err)
	}
}

func TestRefresh_RotatesSession(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "ada@example.com", "correct-horse")
	f.activate(t, a.ID)

	pair, err := f.svc.Login(context.Background(), "ada@example.com", "correct-horse", nil, audit.RequestMeta{})
	if err != nil {
		t.Fatal(err)
	}

	next, err := f.svc.Refresh(context.Background(), pair.RefreshToken, audit.RequestMeta{})
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Error("refresh must rotate the refresh token")
	}
	if f.sessions.active(a.ID) != 1 {
		t.Errorf("expected exactly one open session after rotation, got %d", f.sessions.active(a.ID))
	}

	// The old token is dead after rotation.
	if _, err := f.svc.Refresh(context.Background(), pair.RefreshToken, audit.RequestMeta{}); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession for rotated-out token, got %v", err)
	}
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "ada@example.com", "correct-horse")
	f.activate(t, a.ID)

	pair, err := f.svc.Login(context.Background(), "ada@example.com", "correct-horse", nil, audit.RequestMeta{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Refresh(context.Background(), pair.AccessToken, audit.RequestMeta{}); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession for access token, got %v", err)
	}
}

func TestRefresh_GarbageToken(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Refresh(context.Background(), "not-a-token", audit.RequestMeta{}); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "ada@example.com", "correct-horse")
	f.activate(t, a.ID)

	pair, err := f.svc.Login(context.Background(), "ada@example.com", "correct-horse", nil, audit.RequestMeta{})
	if err != nil {
		t.Fatal(err)
	}

	if err := f.svc.Logout(context.Background(), pair.RefreshToken, audit.RequestMeta{}); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if f.sessions.active(a.ID) != 0 {
		t.Error("expected no open sessions after logout")
	}

	// Logout is idempotent.
	if err := f.svc.Logout(context.Background(), pair.RefreshToken, audit.RequestMeta{}); err != nil {
		t.Errorf("repeat logout should succeed, got %v", err)
	}

	// A revoked session cannot refresh.
	if _, err := f.svc.Refresh(context.Background(), pair.RefreshToken, audit.RequestMeta{}); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession after logout, got %v", err)
	}
}

func TestVerifyEmail(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "ada@example.com", "correct-horse")

	if err := f.svc.VerifyEmail(context.Background(), a.ID, audit.RequestMeta{}); err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	stored, err := f.accounts.GetByID(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != StatusActive {
		t.Errorf("expected active, got %s", stored.Status)
	}
	if stored.EmailVerifiedAt == nil {
		t.Error("expected email_verified_at to be set")
	}

	// Verifying twice conflicts.
	if err := f.svc.VerifyEmail(context.Background(), a.ID, audit.RequestMeta{}); !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "ada@example.com", "correct-horse")
	f.activate(t, a.ID)

	if _, err := f.svc.Login(context.Background(), "ada@example.com", "correct-horse", nil, audit.RequestMeta{}); err != nil {
		t.Fatal(err)
	}

	err := f.svc.ChangePassword(context.Background(), a.ID, "correct-horse", "battery-staple", audit.RequestMeta{})
	if err != nil {
		t.Fatalf("change password failed: %v", err)
	}

	// All sessions are revoked after a password change.
	if f.sessions.active(a.ID) != 0 {
		t.Error("expected sessions revoked after password change")
	}

	// The old password no longer works, the new one does.
	if _, err := f.svc.Login(context.Background(), "ada@example.com", "correct-horse", nil, audit.RequestMeta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for old password, got %v", err)
	}
	if _, err := f.svc.Login(context.Background(), "ada@example.com", "battery-staple", nil, audit.RequestMeta{}); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestChangePassword_WrongCurrent(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "ada@example.com", "correct-horse")

	err := f.svc.ChangePassword(context.Background(), a.ID, "wrong", "battery-staple", audit.RequestMeta{})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestProfile_DecryptsFields(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "ada@example.com", "correct-horse")

	p, err := f.svc.Profile(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("profile failed: %v", err)
	}
	if p.FirstName == nil || *p.FirstName != "Ada" {
		t.Errorf("expected decrypted first name Ada, got %v", p.FirstName)
	}
	if p.LastName != nil {
		t.Errorf("expected nil last name, got %v", p.LastName)
	}
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "ada@example.com", "correct-horse")

	lastName := "Lovelace"
	consent := true
	p, err := f.svc.UpdateProfile(context.Background(), a.ID, UpdateProfileInput{
		LastName:         &lastName,
		MarketingConsent: &consent,
	}, audit.RequestMeta{})
	if err != nil {
		t.Fatalf("update profile failed: %v", err)
	}
	if p.LastName == nil || *p.LastName != "Lovelace" {
		t.Errorf("expected decrypted last name, got %v", p.LastName)
	}
	if !p.MarketingConsent {
		t.Error("expected marketing consent updated")
	}

	stored, _ := f.accounts.GetByID(context.Background(), a.ID)
	if bytes.Contains(stored.LastNameEnc, []byte("Lovelace")) {
		t.Error("last name must be stored encrypted")
	}
}
