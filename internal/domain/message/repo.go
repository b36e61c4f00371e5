package message

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("message: not found")

type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, accountID, id uuid.UUID) (*Message, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*Message, int, error)
	ListThread(ctx context.Context, accountID, threadID uuid.UUID) ([]*Message, error)
	MarkRead(ctx context.Context, accountID, id uuid.UUID, readAt time.Time) error
}

type AttachmentRepository interface {
	Create(ctx context.Context, a *Attachment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Attachment, error)
	ListByMessage(ctx context.Context, messageID uuid.UUID) ([]*Attachment, error)
}
