// Package document exposes clinic-issued documents to their patient. Document
// bytes live in the blob store; the database row holds metadata with the
// description and object key encrypted. Every download is audited.
package document

import (
	"time"

	"github.com/google/uuid"
)

// Document types.
var validTypes = map[string]bool{
	"prescription":      true,
	"test_result":       true,
	"letter":            true,
	"discharge_summary": true,
	"referral":          true,
}

// Document is a clinic-issued document belonging to one patient.
type Document struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	AccountID      uuid.UUID  `db:"account_id" json:"-"`
	Type           string     `db:"document_type" json:"type"`
	Title          string     `db:"title" json:"title"`
	DescriptionEnc []byte     `db:"description_enc" json:"-"`
	ObjectKeyEnc   []byte     `db:"object_key_enc" json:"-"`
	FileName       string     `db:"file_name" json:"file_name"`
	ContentType    string     `db:"content_type" json:"content_type"`
	SizeBytes      int64      `db:"size_bytes" json:"size_bytes"`
	IssuedAt       *time.Time `db:"issued_at" json:"issued_at,omitempty"`
	Synced         bool       `db:"synced" json:"synced"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// View is the API shape with the decrypted description. The object key never
// leaves the service; clients get presigned URLs instead.
type View struct {
	Document
	Description *string `json:"description,omitempty"`
}
