package appointment

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

const cols = `id, account_id, appointment_type, status, preferred_date, scheduled_at,
	reason_enc, notes_enc, video_link_enc, cancelled_at, created_at, updated_at`

func scan(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.AccountID, &a.Type, &a.Status, &a.PreferredDate,
		&a.ScheduledAt, &a.ReasonEnc, &a.NotesEnc, &a.VideoLinkEnc, &a.CancelledAt,
		&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointments (id, account_id, appointment_type, status,
			preferred_date, reason_enc)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		a.ID, a.AccountID, a.Type, a.Status, a.PreferredDate, a.ReasonEnc)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, accountID, id uuid.UUID) (*Appointment, error) {
	return scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cols+` FROM appointments WHERE id = $1 AND account_id = $2`, id, accountID))
}

func (r *repoPG) ListByAccount(ctx context.Context, accountID uuid.UUID, status *string, limit, offset int) ([]*Appointment, int, error) {
	where := `WHERE account_id = $1`
	args := []interface{}{accountID}
	if status != nil {
		args = append(args, *status)
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointments `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+cols+` FROM appointments `+where+
			fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET status=$2, preferred_date=$3, scheduled_at=$4,
			reason_enc=$5, notes_enc=$6, video_link_enc=$7, cancelled_at=$8,
			updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.Status, a.PreferredDate, a.ScheduledAt,
		a.ReasonEnc, a.NotesEnc, a.VideoLinkEnc, a.CancelledAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
