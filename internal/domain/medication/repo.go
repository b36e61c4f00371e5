package medication

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no row matches or the row belongs to another
// account. Ownership misses are indistinguishable from absence.
var ErrNotFound = errors.New("medication: not found")

type MedicationRepository interface {
	Create(ctx context.Context, m *Medication) error
	GetByID(ctx context.Context, accountID, id uuid.UUID) (*Medication, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, activeOnly bool, limit, offset int) ([]*Medication, int, error)
	Update(ctx context.Context, m *Medication) error
	Delete(ctx context.Context, accountID, id uuid.UUID) error
}

type AdherenceRepository interface {
	Create(ctx context.Context, l *AdherenceLog) error
	ListSince(ctx context.Context, medicationID uuid.UUID, since time.Time) ([]*AdherenceLog, error)
}
