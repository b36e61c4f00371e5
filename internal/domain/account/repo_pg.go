package account

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloksphere/stratosphere-patient-app/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Account Repository ===========

type accountRepoPG struct{ pool *pgxpool.Pool }

func NewAccountRepoPG(pool *pgxpool.Pool) AccountRepository {
	return &accountRepoPG{pool: pool}
}

func (r *accountRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const accountCols = `id, email, phone, password_hash, first_name_enc, last_name_enc,
	date_of_birth_enc, nhs_number, clinic_patient_id, status, email_verified_at,
	mfa_enabled, mfa_secret_enc, marketing_consent, data_consent_at,
	deletion_requested, created_at, updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Email, &a.Phone, &a.PasswordHash, &a.FirstNameEnc,
		&a.LastNameEnc, &a.DateOfBirthEnc, &a.NHSNumber, &a.ClinicPatientID,
		&a.Status, &a.EmailVerifiedAt, &a.MFAEnabled, &a.MFASecretEnc,
		&a.MarketingConsent, &a.DataConsentAt, &a.DeletionRequested,
		&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *accountRepoPG) Create(ctx context.Context, a *Account) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO accounts (id, email, phone, password_hash, first_name_enc,
			last_name_enc, date_of_birth_enc, nhs_number, clinic_patient_id, status,
			mfa_enabled, marketing_consent, data_consent_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		a.ID, a.Email, a.Phone, a.PasswordHash, a.FirstNameEnc,
		a.LastNameEnc, a.DateOfBirthEnc, a.NHSNumber, a.ClinicPatientID, a.Status,
		a.MFAEnabled, a.MarketingConsent, a.DataConsentAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (r *accountRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return scanAccount(r.conn(ctx).QueryRow(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE id = $1`, id))
}

func (r *accountRepoPG) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return scanAccount(r.conn(ctx).QueryRow(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE lower(email) = lower($1)`, email))
}

func (r *accountRepoPG) Update(ctx context.Context, a *Account) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE accounts SET phone=$2, first_name_enc=$3, last_name_enc=$4,
			date_of_birth_enc=$5, nhs_number=$6, clinic_patient_id=$7,
			email_verified_at=$8, mfa_enabled=$9, mfa_secret_enc=$10,
			marketing_consent=$11, data_consent_at=$12, deletion_requested=$13,
			updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.Phone, a.FirstNameEnc, a.LastNameEnc,
		a.DateOfBirthEnc, a.NHSNumber, a.ClinicPatientID,
		a.EmailVerifiedAt, a.MFAEnabled, a.MFASecretEnc,
		a.MarketingConsent, a.DataConsentAt, a.DeletionRequested)
	return err
}

func (r *accountRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE accounts SET status=$2, updated_at=NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *accountRepoPG) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE accounts SET password_hash=$2, updated_at=NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *accountRepoPG) MarkDeletionRequested(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE accounts SET deletion_requested=TRUE, updated_at=NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *accountRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	// Soft delete; the row is kept for audit continuity.
	return r.UpdateStatus(ctx, id, StatusDeleted)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// =========== Session Repository ===========

type sessionRepoPG struct{ pool *pgxpool.Pool }

func NewSessionRepoPG(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepoPG{pool: pool}
}

func (r *sessionRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const sessionCols = `id, account_id, refresh_token_hash, ip_address, user_agent,
	device_info, expires_at, revoked_at, created_at`

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.AccountID, &s.RefreshTokenHash, &s.IPAddress,
		&s.UserAgent, &s.DeviceInfo, &s.ExpiresAt, &s.RevokedAt, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepoPG) Create(ctx context.Context, s *Session) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO sessions (id, account_id, refresh_token_hash, ip_address,
			user_agent, device_info, expires_at)
		VALUES ($1,$2,$3,$4::inet,$5,$6,$7)`,
		s.ID, s.AccountID, s.RefreshTokenHash, s.IPAddress,
		s.UserAgent, s.DeviceInfo, s.ExpiresAt)
	return err
}

func (r *sessionRepoPG) GetByTokenHash(ctx context.Context, hash string) (*Session, error) {
	return scanSession(r.conn(ctx).QueryRow(ctx,
		`SELECT `+sessionCols+` FROM sessions WHERE refresh_token_hash = $1`, hash))
}

func (r *sessionRepoPG) Revoke(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE sessions SET revoked_at=NOW() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sessionRepoPG) RevokeAllForAccount(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE sessions SET revoked_at=NOW() WHERE account_id = $1 AND revoked_at IS NULL`, accountID)
	return err
}

func (r *sessionRepoPG) Rotate(ctx context.Context, oldID uuid.UUID, next *Session) error {
	return db.InTx(ctx, r.pool, func(ctx context.Context) error {
		if err := r.Revoke(ctx, oldID); err != nil {
			return err
		}
		return r.Create(ctx, next)
	})
}
