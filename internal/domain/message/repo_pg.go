package message

import (
	"context"
	"errors"
	"time"

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

// =========== Message Repository ===========

type messageRepoPG struct{ pool *pgxpool.Pool }

func NewMessageRepoPG(pool *pgxpool.Pool) MessageRepository {
	return &messageRepoPG{pool: pool}
}

func (r *messageRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const messageCols = `id, account_id, direction, subject_enc, body_enc, thread_id,
	parent_id, status, read_at, sent_at, created_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.AccountID, &m.Direction, &m.SubjectEnc, &m.BodyEnc,
		&m.ThreadID, &m.ParentID, &m.Status, &m.ReadAt, &m.SentAt, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *messageRepoPG) Create(ctx context.Context, m *Message) error {
	m.ID = uuid.New()
	if m.ThreadID == uuid.Nil {
		m.ThreadID = m.ID
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO messages (id, account_id, direction, subject_enc, body_enc,
			thread_id, parent_id, status, sent_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		m.ID, m.AccountID, m.Direction, m.SubjectEnc, m.BodyEnc,
		m.ThreadID, m.ParentID, m.Status, m.SentAt)
	return err
}

func (r *messageRepoPG) GetByID(ctx context.Context, accountID, id uuid.UUID) (*Message, error) {
	return scanMessage(r.conn(ctx).QueryRow(ctx,
		`SELECT `+messageCols+` FROM messages WHERE id = $1 AND account_id = $2`, id, accountID))
}

func (r *messageRepoPG) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*Message, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE account_id = $1`, accountID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+messageCols+` FROM messages WHERE account_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, accountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

func (r *messageRepoPG) ListThread(ctx context.Context, accountID, threadID uuid.UUID) ([]*Message, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+messageCols+` FROM messages WHERE thread_id = $1 AND account_id = $2
		 ORDER BY created_at ASC`, threadID, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *messageRepoPG) MarkRead(ctx context.Context, accountID, id uuid.UUID, readAt time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE messages SET status = $3, read_at = $4
		WHERE id = $1 AND account_id = $2 AND read_at IS NULL`,
		id, accountID, StatusRead, readAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Already read or absent; callers treat both as fine.
		return nil
	}
	return nil
}

// =========== Attachment Repository ===========

type attachmentRepoPG struct{ pool *pgxpool.Pool }

func NewAttachmentRepoPG(pool *pgxpool.Pool) AttachmentRepository {
	return &attachmentRepoPG{pool: pool}
}

func (r *attachmentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const attachmentCols = `id, message_id, file_name, content_type, size_bytes,
	object_key_enc, created_at`

func scanAttachment(row pgx.Row) (*Attachment, error) {
	var a Attachment
	err := row.Scan(&a.ID, &a.MessageID, &a.FileName, &a.ContentType, &a.SizeBytes,
		&a.ObjectKeyEnc, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *attachmentRepoPG) Create(ctx context.Context, a *Attachment) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO message_attachments (id, message_id, file_name, content_type,
			size_bytes, object_key_enc)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		a.ID, a.MessageID, a.FileName, a.ContentType, a.SizeBytes, a.ObjectKeyEnc)
	return err
}

func (r *attachmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Attachment, error) {
	return scanAttachment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+attachmentCols+` FROM message_attachments WHERE id = $1`, id))
}

func (r *attachmentRepoPG) ListByMessage(ctx context.Context, messageID uuid.UUID) ([]*Attachment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+attachmentCols+` FROM message_attachments WHERE message_id = $1
		 ORDER BY created_at ASC`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
