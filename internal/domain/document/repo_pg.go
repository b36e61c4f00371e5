package document

import (
	"context"
	"errors"
	"fmt"

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

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const cols = `id, account_id, document_type, title, description_enc, object_key_enc,
	file_name, content_type, size_bytes, issued_at, synced, created_at`

func scan(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.AccountID, &d.Type, &d.Title, &d.DescriptionEnc,
		&d.ObjectKeyEnc, &d.FileName, &d.ContentType, &d.SizeBytes, &d.IssuedAt,
		&d.Synced, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repoPG) Create(ctx context.Context, d *Document) error {
	d.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO documents (id, account_id, document_type, title, description_enc,
			object_key_enc, file_name, content_type, size_bytes, issued_at, synced)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		d.ID, d.AccountID, d.Type, d.Title, d.DescriptionEnc,
		d.ObjectKeyEnc, d.FileName, d.ContentType, d.SizeBytes, d.IssuedAt, d.Synced)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, accountID, id uuid.UUID) (*Document, error) {
	return scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cols+` FROM documents WHERE id = $1 AND account_id = $2`, id, accountID))
}

func (r *repoPG) ListByAccount(ctx context.Context, accountID uuid.UUID, docType *string, limit, offset int) ([]*Document, int, error) {
	where := `WHERE account_id = $1`
	args := []interface{}{accountID}
	if docType != nil {
		args = append(args, *docType)
		where += fmt.Sprintf(` AND document_type = $%d`, len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM documents `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+cols+` FROM documents `+where+
			fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Document
	for rows.Next() {
		d, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}
