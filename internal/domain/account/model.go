// Package account implements patient account lifecycle: registration,
// login/refresh/logout sessions, email verification, password changes and
// profile access. Name and date-of-birth fields are stored encrypted.
package account

import (
	"time"

	"github.com/google/uuid"
)

// Account statuses. New registrations start as pending_verification and move
// to active once the email address is confirmed.
const (
	StatusPendingVerification = "pending_verification"
	StatusActive              = "active"
	StatusSuspended           = "suspended"
	StatusDeleted             = "deleted"
)

// Account represents a patient account. Encrypted columns carry ciphertext
// produced by the field cipher and are never exposed in JSON directly.
type Account struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Email           string    `db:"email" json:"email"`
	Phone           *string   `db:"phone" json:"phone,omitempty"`
	PasswordHash    string    `db:"password_hash" json:"-"`
	FirstNameEnc    []byte    `db:"first_name_enc" json:"-"`
	LastNameEnc     []byte    `db:"last_name_enc" json:"-"`
	DateOfBirthEnc  []byte    `db:"date_of_birth_enc" json:"-"`
	NHSNumber       *string   `db:"nhs_number" json:"nhs_number,omitempty"`
	ClinicPatientID *string   `db:"clinic_patient_id" json:"clinic_patient_id,omitempty"`
	Status          string    `db:"status" json:"status"`

	EmailVerifiedAt *time.Time `db:"email_verified_at" json:"email_verified_at,omitempty"`
	MFAEnabled      bool       `db:"mfa_enabled" json:"mfa_enabled"`
	MFASecretEnc    []byte     `db:"mfa_secret_enc" json:"-"`

	MarketingConsent  bool       `db:"marketing_consent" json:"marketing_consent"`
	DataConsentAt     *time.Time `db:"data_consent_at" json:"data_consent_at,omitempty"`
	DeletionRequested bool       `db:"deletion_requested" json:"deletion_requested"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Session represents a refresh-token session. The raw refresh token is never
// stored; only its SHA-256 hash.
type Session struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	AccountID        uuid.UUID  `db:"account_id" json:"account_id"`
	RefreshTokenHash string     `db:"refresh_token_hash" json:"-"`
	IPAddress        *string    `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent        *string    `db:"user_agent" json:"user_agent,omitempty"`
	DeviceInfo       *string    `db:"device_info" json:"device_info,omitempty"`
	ExpiresAt        time.Time  `db:"expires_at" json:"expires_at"`
	RevokedAt        *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// Usable reports whether the session can still redeem its refresh token.
func (s *Session) Usable(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Profile is the decrypted, owner-facing view of an account.
type Profile struct {
	ID               uuid.UUID  `json:"id"`
	Email            string     `json:"email"`
	Phone            *string    `json:"phone,omitempty"`
	FirstName        *string    `json:"first_name,omitempty"`
	LastName         *string    `json:"last_name,omitempty"`
	DateOfBirth      *string    `json:"date_of_birth,omitempty"`
	NHSNumber        *string    `json:"nhs_number,omitempty"`
	ClinicPatientID  *string    `json:"clinic_patient_id,omitempty"`
	Status           string     `json:"status"`
	MFAEnabled       bool       `json:"mfa_enabled"`
	MarketingConsent bool       `json:"marketing_consent"`
	EmailVerifiedAt  *time.Time `json:"email_verified_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}
