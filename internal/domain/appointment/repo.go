package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("appointment: not found")

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, accountID, id uuid.UUID) (*Appointment, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, status *string, limit, offset int) ([]*Appointment, int, error)
	Update(ctx context.Context, a *Appointment) error
}
