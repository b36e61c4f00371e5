package gdpr

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

// =========== Consent Repository ===========

type consentRepoPG struct{ pool *pgxpool.Pool }

func NewConsentRepoPG(pool *pgxpool.Pool) ConsentRepository {
	return &consentRepoPG{pool: pool}
}

func (r *consentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const consentCols = `id, account_id, consent_type, version, granted, granted_at,
	withdrawn_at, ip_address, user_agent`

func scanConsent(row pgx.Row) (*ConsentRecord, error) {
	var c ConsentRecord
	err := row.Scan(&c.ID, &c.AccountID, &c.ConsentType, &c.Version, &c.Granted,
		&c.GrantedAt, &c.WithdrawnAt, &c.IPAddress, &c.UserAgent)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *consentRepoPG) Append(ctx context.Context, c *ConsentRecord) error {
	c.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO consent_records (id, account_id, consent_type, version, granted,
			granted_at, withdrawn_at, ip_address, user_agent)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8::inet,$9)`,
		c.ID, c.AccountID, c.ConsentType, c.Version, c.Granted,
		c.GrantedAt, c.WithdrawnAt, c.IPAddress, c.UserAgent)
	return err
}

func (r *consentRepoPG) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*ConsentRecord, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+consentCols+` FROM consent_records WHERE account_id = $1
		 ORDER BY granted_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ConsentRecord
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *consentRepoPG) Latest(ctx context.Context, accountID uuid.UUID, consentType string) (*ConsentRecord, error) {
	return scanConsent(r.conn(ctx).QueryRow(ctx,
		`SELECT `+consentCols+` FROM consent_records
		 WHERE account_id = $1 AND consent_type = $2
		 ORDER BY granted_at DESC LIMIT 1`, accountID, consentType))
}

// =========== Data Request Repository ===========

type dataRequestRepoPG struct{ pool *pgxpool.Pool }

func NewDataRequestRepoPG(pool *pgxpool.Pool) DataRequestRepository {
	return &dataRequestRepoPG{pool: pool}
}

func (r *dataRequestRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const requestCols = `id, account_id, request_type, status, reason, download_link_enc,
	link_expires_at, completed_at, created_at, updated_at`

func scanRequest(row pgx.Row) (*DataRequest, error) {
	var d DataRequest
	err := row.Scan(&d.ID, &d.AccountID, &d.RequestType, &d.Status, &d.Reason,
		&d.DownloadLinkEnc, &d.LinkExpiresAt, &d.CompletedAt, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *dataRequestRepoPG) Create(ctx context.Context, req *DataRequest) error {
	req.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO data_requests (id, account_id, request_type, status, reason)
		VALUES ($1,$2,$3,$4,$5)`,
		req.ID, req.AccountID, req.RequestType, req.Status, req.Reason)
	return err
}

func (r *dataRequestRepoPG) GetByID(ctx context.Context, accountID, id uuid.UUID) (*DataRequest, error) {
	return scanRequest(r.conn(ctx).QueryRow(ctx,
		`SELECT `+requestCols+` FROM data_requests WHERE id = $1 AND account_id = $2`,
		id, accountID))
}

func (r *dataRequestRepoPG) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*DataRequest, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM data_requests WHERE account_id = $1`, accountID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+requestCols+` FROM data_requests WHERE account_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, accountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*DataRequest
	for rows.Next() {
		d, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

func (r *dataRequestRepoPG) HasOpen(ctx context.Context, accountID uuid.UUID, requestType string) (bool, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM data_requests
		WHERE account_id = $1 AND request_type = $2 AND status IN ($3, $4)`,
		accountID, requestType, StatusPending, StatusProcessing).Scan(&count)
	return count > 0, err
}
