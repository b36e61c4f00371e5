package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/bloksphere/stratosphere-patient-app/internal/platform/audit"
	"github.com/bloksphere/stratosphere-patient-app/internal/platform/security"
)

var (
	// ErrInvalidCredentials covers unknown email and wrong password alike.
	ErrInvalidCredentials = errors.New("account: invalid credentials")
	// ErrInvalidSession is returned when a refresh token does not map to a
	// usable session.
	ErrInvalidSession = errors.New("account: invalid session")
	// ErrAccountDisabled is returned on login for suspended or deleted accounts.
	ErrAccountDisabled = errors.New("account: account disabled")
	// ErrWeakPassword rejects passwords below the minimum length.
	ErrWeakPassword = errors.New("account: password must be at least 8 characters")
	// ErrNotPending is returned when verifying an account that is not awaiting
	// verification.
	ErrNotPending = errors.New("account: not pending verification")
)

const minPasswordLength = 8

type Service struct {
	accounts AccountRepository
	sessions SessionRepository
	hasher   *security.PasswordHasher
	cipher   *security.FieldCipher
	tokens   *security.TokenService
	auditor  *audit.Recorder
}

func NewService(
	accounts AccountRepository,
	sessions SessionRepository,
	hasher *security.PasswordHasher,
	cipher *security.FieldCipher,
	tokens *security.TokenService,
	auditor *audit.Recorder,
) *Service {
	return &Service{
		accounts: accounts,
		sessions: sessions,
		hasher:   hasher,
		cipher:   cipher,
		tokens:   tokens,
		auditor:  auditor,
	}
}

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	Email            string  `json:"email"`
	Password         string  `json:"password"`
	Phone            *string `json:"phone,omitempty"`
	FirstName        *string `json:"first_name,omitempty"`
	LastName         *string `json:"last_name,omitempty"`
	DateOfBirth      *string `json:"date_of_birth,omitempty"`
	NHSNumber        *string `json:"nhs_number,omitempty"`
	ClinicPatientID  *string `json:"clinic_patient_id,omitempty"`
	MarketingConsent bool    `json:"marketing_consent"`
}

// Register creates a pending_verification account with hashed password and
// encrypted identity fields.
func (s *Service) Register(ctx context.Context, in RegisterInput, meta audit.RequestMeta) (*Account, error) {
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, fmt.Errorf("account: invalid email address")
	}
	if len(in.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	firstName, err := s.cipher.EncryptPtr(in.FirstName)
	if err != nil {
		return nil, fmt.Errorf("encrypting first name: %w", err)
	}
	lastName, err := s.cipher.EncryptPtr(in.LastName)
	if err != nil {
		return nil, fmt.Errorf("encrypting last name: %w", err)
	}
	dob, err := s.cipher.EncryptPtr(in.DateOfBirth)
	if err != nil {
		return nil, fmt.Errorf("encrypting date of birth: %w", err)
	}

	now := time.Now().UTC()
	a := &Account{
		Email:            in.Email,
		Phone:            in.Phone,
		PasswordHash:     hash,
		FirstNameEnc:     firstName,
		LastNameEnc:      lastName,
		DateOfBirthEnc:   dob,
		NHSNumber:        in.NHSNumber,
		ClinicPatientID:  in.ClinicPatientID,
		Status:           StatusPendingVerification,
		MarketingConsent: in.MarketingConsent,
		DataConsentAt:    &now,
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, audit.Entry{
		ActorID:      &a.ID,
		Action:       "user.register",
		ResourceType: strPtr("account"),
		ResourceID:   &a.ID,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})
	return a, nil
}

// Login verifies credentials and opens a refresh session. Failed attempts are
// audited with a nil actor so unknown emails leave a trace without linking to
// an account.
func (s *Service) Login(ctx context.Context, email, password string, deviceInfo *string, meta audit.RequestMeta) (*TokenPair, error) {
	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Unknown emails still pay one bcrypt comparison, so this branch
			// cannot be told apart from a wrong password by timing.
			s.hasher.DummyVerify(password)
			s.auditFailedLogin(ctx, email, meta)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := s.hasher.Verify(password, a.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.auditFailedLogin(ctx, email, meta)
		return nil, ErrInvalidCredentials
	}

	if a.Status == StatusSuspended || a.Status == StatusDeleted {
		return nil, ErrAccountDisabled
	}

	pair, session, err := s.issuePair(a.ID, deviceInfo, meta)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("persisting session: %w", err)
	}

	s.auditor.Record(ctx, audit.Entry{
		ActorID:      &a.ID,
		Action:       "user.login",
		ResourceType: strPtr("session"),
		ResourceID:   &session.ID,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})
	return pair, nil
}

// Refresh redeems a refresh token and rotates the session: the old session is
// revoked and a new token pair and session replace it.
func (s *Service) Refresh(ctx context.Context, refreshToken string, meta audit.RequestMeta) (*TokenPair, error) {
	claims, err := s.tokens.Verify(refreshToken, security.TokenTypeRefresh)
	if err != nil {
		return nil, ErrInvalidSession
	}

	session, err := s.sessions.GetByTokenHash(ctx, security.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	if !session.Usable(time.Now()) {
		return nil, ErrInvalidSession
	}

	accountID, err := uuid.Parse(claims.Subject)
	if err != nil || accountID != session.AccountID {
		return nil, ErrInvalidSession
	}

	pair, next, err := s.issuePair(session.AccountID, session.DeviceInfo, meta)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Rotate(ctx, session.ID, next); err != nil {
		return nil, fmt.Errorf("rotating session: %w", err)
	}

	s.auditor.Record(ctx, audit.Entry{
		ActorID:      &session.AccountID,
		Action:       "user.token_refresh",
		ResourceType: strPtr("session"),
		ResourceID:   &next.ID,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})
	return pair, nil
}

// Logout revokes the session behind the presented refresh token. Unknown or
// already-revoked tokens are treated as success; logout is idempotent.
func (s *Service) Logout(ctx context.Context, refreshToken string, meta audit.RequestMeta) error {
	session, err := s.sessions.GetByTokenHash(ctx, security.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if err := s.sessions.Revoke(ctx, session.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	s.auditor.Record(ctx, audit.Entry{
		ActorID:      &session.AccountID,
		Action:       "user.logout",
		ResourceType: strPtr("session"),
		ResourceID:   &session.ID,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})
	return nil
}

// VerifyEmail transitions a pending account to active.
func (s *Service) VerifyEmail(ctx context.Context, accountID uuid.UUID, meta audit.RequestMeta) error {
	a, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if a.Status != StatusPendingVerification {
		return ErrNotPending
	}

	if err := s.accounts.UpdateStatus(ctx, accountID, StatusActive); err != nil {
		return err
	}
	now := time.Now().UTC()
	a.EmailVerifiedAt = &now
	if err := s.accounts.Update(ctx, a); err != nil {
		return err
	}

	s.auditor.Record(ctx, audit.Entry{
		ActorID:      &accountID,
		Action:       "user.verify_email",
		ResourceType: strPtr("account"),
		ResourceID:   &accountID,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})
	return nil
}

// ChangePassword verifies the current password, stores a new hash and revokes
// every open session for the account.
func (s *Service) ChangePassword(ctx context.Context, accountID uuid.UUID, current, next string, meta audit.RequestMeta) error {
	if len(next) < minPasswordLength {
		return ErrWeakPassword
	}

	a, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	ok, err := s.hasher.Verify(current, a.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.accounts.UpdatePasswordHash(ctx, accountID, hash); err != nil {
		return err
	}
	if err := s.sessions.RevokeAllForAccount(ctx, accountID); err != nil {
		return err
	}

	s.auditor.Record(ctx, audit.Entry{
		ActorID:      &accountID,
		Action:       "user.change_password",
		ResourceType: strPtr("account"),
		ResourceID:   &accountID,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})
	return nil
}

// Profile returns the decrypted owner view of an account.
func (s *Service) Profile(ctx context.Context, accountID uuid.UUID) (*Profile, error) {
	a, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	firstName, err := s.cipher.DecryptPtr(a.FirstNameEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypting first name: %w", err)
	}
	lastName, err := s.cipher.DecryptPtr(a.LastNameEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypting last name: %w", err)
	}
	dob, err := s.cipher.DecryptPtr(a.DateOfBirthEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypting date of birth: %w", err)
	}

	return &Profile{
		ID:               a.ID,
		Email:            a.Email,
		Phone:            a.Phone,
		FirstName:        firstName,
		LastName:         lastName,
		DateOfBirth:      dob,
		NHSNumber:        a.NHSNumber,
		ClinicPatientID:  a.ClinicPatientID,
		Status:           a.Status,
		MFAEnabled:       a.MFAEnabled,
		MarketingConsent: a.MarketingConsent,
		EmailVerifiedAt:  a.EmailVerifiedAt,
		CreatedAt:        a.CreatedAt,
	}, nil
}

// UpdateProfileInput carries the owner-editable profile fields.
type UpdateProfileInput struct {
	Phone            *string `json:"phone,omitempty"`
	FirstName        *string `json:"first_name,omitempty"`
	LastName         *string `json:"last_name,omitempty"`
	MarketingConsent *bool   `json:"marketing_consent,omitempty"`
}

// UpdateProfile applies partial updates to the owner-editable fields.
func (s *Service) UpdateProfile(ctx context.Context, accountID uuid.UUID, in UpdateProfileInput, meta audit.RequestMeta) (*Profile, error) {
	a, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if in.Phone != nil {
		a.Phone = in.Phone
	}
	if in.FirstName != nil {
		enc, err := s.cipher.Encrypt(*in.FirstName)
		if err != nil {
			return nil, fmt.Errorf("encrypting first name: %w", err)
		}
		a.FirstNameEnc = enc
	}
	if in.LastName != nil {
		enc, err := s.cipher.Encrypt(*in.LastName)
		if err != nil {
			return nil, fmt.Errorf("encrypting last name: %w", err)
		}
		a.LastNameEnc = enc
	}
	if in.MarketingConsent != nil {
		a.MarketingConsent = *in.MarketingConsent
	}

	if err := s.accounts.Update(ctx, a); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, audit.Entry{
		ActorID:      &accountID,
		Action:       "user.update_profile",
		ResourceType: strPtr("account"),
		ResourceID:   &accountID,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})
	return s.Profile(ctx, accountID)
}

func (s *Service) issuePair(accountID uuid.UUID, deviceInfo *string, meta audit.RequestMeta) (*TokenPair, *Session, error) {
	subject := accountID.String()

	access, err := s.tokens.IssueAccess(subject, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("issuing access token: %w", err)
	}
	refresh, err := s.tokens.IssueRefresh(subject)
	if err != nil {
		return nil, nil, fmt.Errorf("issuing refresh token: %w", err)
	}

	session := &Session{
		AccountID:        accountID,
		RefreshTokenHash: security.HashToken(refresh),
		IPAddress:        meta.IPAddress,
		UserAgent:        meta.UserAgent,
		DeviceInfo:       deviceInfo,
		ExpiresAt:        time.Now().Add(s.tokens.RefreshTTL()),
	}
	pair := &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(s.tokens.AccessTTL().Seconds()),
	}
	return pair, session, nil
}

func (s *Service) auditFailedLogin(ctx context.Context, email string, meta audit.RequestMeta) {
	s.auditor.Record(ctx, audit.Entry{
		ActorID:   nil,
		Action:    "user.login_failed",
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Details:   map[string]any{"email": email},
	})
}

func strPtr(s string) *string { return &s }
