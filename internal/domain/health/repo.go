package health

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no row matches or the row belongs to another
// account. Ownership misses are indistinguishable from absence.
var ErrNotFound = errors.New("health: not found")

// MeasurementFilter narrows measurement listings.
type MeasurementFilter struct {
	Type *string
	From *time.Time
	To   *time.Time
}

type MeasurementRepository interface {
	Create(ctx context.Context, m *HealthMeasurement) error
	GetByID(ctx context.Context, accountID, id uuid.UUID) (*HealthMeasurement, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, f MeasurementFilter, limit, offset int) ([]*HealthMeasurement, int, error)
	Delete(ctx context.Context, accountID, id uuid.UUID) error
}

type SymptomRepository interface {
	Create(ctx context.Context, s *Symptom) error
	GetByID(ctx context.Context, accountID, id uuid.UUID) (*Symptom, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*Symptom, int, error)
	Delete(ctx context.Context, accountID, id uuid.UUID) error
}
