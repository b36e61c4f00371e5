package medication

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

// =========== Medication Repository ===========

type medicationRepoPG struct{ pool *pgxpool.Pool }

func NewMedicationRepoPG(pool *pgxpool.Pool) MedicationRepository {
	return &medicationRepoPG{pool: pool}
}

func (r *medicationRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const medicationCols = `id, account_id, medication_name, dosage, frequency, instructions_enc,
	started_at, ended_at, is_active, reminder_enabled, reminder_times, synced_from_clinic,
	created_at, updated_at`

func scanMedication(row pgx.Row) (*Medication, error) {
	var m Medication
	err := row.Scan(&m.ID, &m.AccountID, &m.Name, &m.Dosage, &m.Frequency, &m.InstructionsEnc,
		&m.StartedAt, &m.EndedAt, &m.Active, &m.ReminderEnabled, &m.ReminderTimes,
		&m.SyncedFromClinic, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *medicationRepoPG) Create(ctx context.Context, m *Medication) error {
	m.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_medications (id, account_id, medication_name, dosage, frequency,
			instructions_enc, started_at, is_active, reminder_enabled, reminder_times,
			synced_from_clinic)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		m.ID, m.AccountID, m.Name, m.Dosage, m.Frequency,
		m.InstructionsEnc, m.StartedAt, m.Active, m.ReminderEnabled, m.ReminderTimes,
		m.SyncedFromClinic)
	return err
}

func (r *medicationRepoPG) GetByID(ctx context.Context, accountID, id uuid.UUID) (*Medication, error) {
	return scanMedication(r.conn(ctx).QueryRow(ctx,
		`SELECT `+medicationCols+` FROM patient_medications WHERE id = $1 AND account_id = $2`,
		id, accountID))
}

func (r *medicationRepoPG) ListByAccount(ctx context.Context, accountID uuid.UUID, activeOnly bool, limit, offset int) ([]*Medication, int, error) {
	where := `WHERE account_id = $1`
	if activeOnly {
		where += ` AND is_active = TRUE`
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM patient_medications `+where, accountID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+medicationCols+` FROM patient_medications `+where+
			` ORDER BY medication_name LIMIT $2 OFFSET $3`,
		accountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

func (r *medicationRepoPG) Update(ctx context.Context, m *Medication) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_medications SET dosage=$2, frequency=$3, instructions_enc=$4,
			ended_at=$5, is_active=$6, reminder_enabled=$7, reminder_times=$8,
			updated_at=NOW()
		WHERE id = $1`,
		m.ID, m.Dosage, m.Frequency, m.InstructionsEnc,
		m.EndedAt, m.Active, m.ReminderEnabled, m.ReminderTimes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *medicationRepoPG) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM patient_medications WHERE id = $1 AND account_id = $2`, id, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// =========== Adherence Repository ===========

type adherenceRepoPG struct{ pool *pgxpool.Pool }

func NewAdherenceRepoPG(pool *pgxpool.Pool) AdherenceRepository {
	return &adherenceRepoPG{pool: pool}
}

func (r *adherenceRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const adherenceCols = `id, medication_id, scheduled_at, taken_at, skipped, skip_reason, created_at`

func scanAdherence(row pgx.Row) (*AdherenceLog, error) {
	var l AdherenceLog
	err := row.Scan(&l.ID, &l.MedicationID, &l.ScheduledAt, &l.TakenAt, &l.Skipped,
		&l.SkipReason, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *adherenceRepoPG) Create(ctx context.Context, l *AdherenceLog) error {
	l.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medication_adherence (id, medication_id, scheduled_at, taken_at,
			skipped, skip_reason)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		l.ID, l.MedicationID, l.ScheduledAt, l.TakenAt, l.Skipped, l.SkipReason)
	return err
}

func (r *adherenceRepoPG) ListSince(ctx context.Context, medicationID uuid.UUID, since time.Time) ([]*AdherenceLog, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+adherenceCols+` FROM medication_adherence
		 WHERE medication_id = $1 AND scheduled_at >= $2
		 ORDER BY scheduled_at DESC`, medicationID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*AdherenceLog
	for rows.Next() {
		l, err := scanAdherence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
