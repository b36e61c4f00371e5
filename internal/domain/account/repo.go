package account

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when no row matches.
var ErrNotFound = errors.New("account: not found")

// ErrDuplicateEmail is returned when a unique email constraint is violated.
var ErrDuplicateEmail = errors.New("account: email already registered")

type AccountRepository interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	Update(ctx context.Context, a *Account) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	// MarkDeletionRequested flags the account for erasure without changing
	// its status; the erasure job picks flagged accounts up later.
	MarkDeletionRequested(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	GetByTokenHash(ctx context.Context, hash string) (*Session, error)
	Revoke(ctx context.Context, id uuid.UUID) error
	RevokeAllForAccount(ctx context.Context, accountID uuid.UUID) error
	// Rotate revokes the old session and persists its replacement atomically.
	Rotate(ctx context.Context, oldID uuid.UUID, next *Session) error
}
