package gdpr

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("gdpr: not found")

type ConsentRepository interface {
	// Append writes a new consent event; existing records are never updated.
	Append(ctx context.Context, c *ConsentRecord) error
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*ConsentRecord, error)
	// Latest returns the most recent record for a consent type.
	Latest(ctx context.Context, accountID uuid.UUID, consentType string) (*ConsentRecord, error)
}

type DataRequestRepository interface {
	Create(ctx context.Context, r *DataRequest) error
	GetByID(ctx context.Context, accountID, id uuid.UUID) (*DataRequest, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*DataRequest, int, error)
	// HasOpen reports whether the account already has a pending or processing
	// request of the given type.
	HasOpen(ctx context.Context, accountID uuid.UUID, requestType string) (bool, error)
}

// AccountMarker is the narrow account capability this package needs: flagging
// an account for erasure when a delete request is filed.
type AccountMarker interface {
	MarkDeletionRequested(ctx context.Context, accountID uuid.UUID) error
}
