package document

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("document: not found")

type Repository interface {
	Create(ctx context.Context, d *Document) error
	GetByID(ctx context.Context, accountID, id uuid.UUID) (*Document, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, docType *string, limit, offset int) ([]*Document, int, error)
}
