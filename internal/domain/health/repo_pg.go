package health

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

// =========== Measurement Repository ===========

type measurementRepoPG struct{ pool *pgxpool.Pool }

func NewMeasurementRepoPG(pool *pgxpool.Pool) MeasurementRepository {
	return &measurementRepoPG{pool: pool}
}

func (r *measurementRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const measurementCols = `id, account_id, measurement_type, value_primary, value_secondary,
	unit, measured_at, notes_enc, source, device_id, synced_at, created_at`

func scanMeasurement(row pgx.Row) (*HealthMeasurement, error) {
	var m HealthMeasurement
	err := row.Scan(&m.ID, &m.AccountID, &m.Type, &m.ValuePrimary, &m.ValueSecondary,
		&m.Unit, &m.MeasuredAt, &m.NotesEnc, &m.Source, &m.DeviceID, &m.SyncedAt,
		&m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *measurementRepoPG) Create(ctx context.Context, m *HealthMeasurement) error {
	m.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO health_measurements (id, account_id, measurement_type, value_primary,
			value_secondary, unit, measured_at, notes_enc, source, device_id, synced_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		m.ID, m.AccountID, m.Type, m.ValuePrimary,
		m.ValueSecondary, m.Unit, m.MeasuredAt, m.NotesEnc, m.Source, m.DeviceID, m.SyncedAt)
	return err
}

func (r *measurementRepoPG) GetByID(ctx context.Context, accountID, id uuid.UUID) (*HealthMeasurement, error) {
	return scanMeasurement(r.conn(ctx).QueryRow(ctx,
		`SELECT `+measurementCols+` FROM health_measurements WHERE id = $1 AND account_id = $2`,
		id, accountID))
}

func (r *measurementRepoPG) ListByAccount(ctx context.Context, accountID uuid.UUID, f MeasurementFilter, limit, offset int) ([]*HealthMeasurement, int, error) {
	where := `WHERE account_id = $1`
	args := []interface{}{accountID}

	if f.Type != nil {
		args = append(args, *f.Type)
		where += fmt.Sprintf(` AND measurement_type = $%d`, len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		where += fmt.Sprintf(` AND measured_at >= $%d`, len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		where += fmt.Sprintf(` AND measured_at <= $%d`, len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM health_measurements `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+measurementCols+` FROM health_measurements `+where+
			fmt.Sprintf(` ORDER BY measured_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*HealthMeasurement
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

func (r *measurementRepoPG) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM health_measurements WHERE id = $1 AND account_id = $2`, id, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// =========== Symptom Repository ===========

type symptomRepoPG struct{ pool *pgxpool.Pool }

func NewSymptomRepoPG(pool *pgxpool.Pool) SymptomRepository {
	return &symptomRepoPG{pool: pool}
}

func (r *symptomRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const symptomCols = `id, account_id, symptom_type, severity, duration_days, onset_at,
	notes_enc, created_at`

func scanSymptom(row pgx.Row) (*Symptom, error) {
	var s Symptom
	err := row.Scan(&s.ID, &s.AccountID, &s.Type, &s.Severity, &s.DurationDays,
		&s.OnsetAt, &s.NotesEnc, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *symptomRepoPG) Create(ctx context.Context, s *Symptom) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO symptoms (id, account_id, symptom_type, severity, duration_days,
			onset_at, notes_enc)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		s.ID, s.AccountID, s.Type, s.Severity, s.DurationDays, s.OnsetAt, s.NotesEnc)
	return err
}

func (r *symptomRepoPG) GetByID(ctx context.Context, accountID, id uuid.UUID) (*Symptom, error) {
	return scanSymptom(r.conn(ctx).QueryRow(ctx,
		`SELECT `+symptomCols+` FROM symptoms WHERE id = $1 AND account_id = $2`, id, accountID))
}

func (r *symptomRepoPG) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*Symptom, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM symptoms WHERE account_id = $1`, accountID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+symptomCols+` FROM symptoms WHERE account_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, accountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Symptom
	for rows.Next() {
		s, err := scanSymptom(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *symptomRepoPG) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM symptoms WHERE id = $1 AND account_id = $2`, id, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
