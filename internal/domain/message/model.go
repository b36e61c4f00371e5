// Package message implements secure patient-clinic messaging. Subjects and
// bodies are stored encrypted, and attachment object keys are encrypted so
// the storage layout is not readable from the database.
package message

import (
	"time"

	"github.com/google/uuid"
)

// Message directions.
const (
	DirectionInbound  = "inbound"  // clinic to patient
	DirectionOutbound = "outbound" // patient to clinic
)

// Message statuses.
const (
	StatusDraft     = "draft"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// Message is a secure message. ThreadID groups a conversation; the first
// message of a thread is its own thread root.
type Message struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	AccountID  uuid.UUID  `db:"account_id" json:"-"`
	Direction  string     `db:"direction" json:"direction"`
	SubjectEnc []byte     `db:"subject_enc" json:"-"`
	BodyEnc    []byte     `db:"body_enc" json:"-"`
	ThreadID   uuid.UUID  `db:"thread_id" json:"thread_id"`
	ParentID   *uuid.UUID `db:"parent_id" json:"parent_id,omitempty"`
	Status     string     `db:"status" json:"status"`
	ReadAt     *time.Time `db:"read_at" json:"read_at,omitempty"`
	SentAt     *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// Attachment is file metadata for a message. The object key points into the
// blob store and is stored encrypted.
type Attachment struct {
	ID            uuid.UUID `db:"id" json:"id"`
	MessageID     uuid.UUID `db:"message_id" json:"message_id"`
	FileName      string    `db:"file_name" json:"file_name"`
	ContentType   string    `db:"content_type" json:"content_type"`
	SizeBytes     int64     `db:"size_bytes" json:"size_bytes"`
	ObjectKeyEnc  []byte    `db:"object_key_enc" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// View is the API shape with decrypted subject and body.
type View struct {
	Message
	Subject     *string       `json:"subject,omitempty"`
	Body        *string       `json:"body,omitempty"`
	Attachments []*Attachment `json:"attachments,omitempty"`
}
