// Package gdpr implements consent records and data subject requests. Consents
// are append-style: granting or withdrawing writes a new record rather than
// mutating the old one. Export download links are stored encrypted.
package gdpr

import (
	"time"

	"github.com/google/uuid"
)

// Consent types.
var validConsentTypes = map[string]bool{
	"data_processing":  true,
	"marketing":        true,
	"research":         true,
	"clinic_data_sync": true,
}

// Data request kinds.
const (
	RequestExport  = "export"
	RequestDelete  = "delete"
	RequestRectify = "rectify"
)

// Data request statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusRejected   = "rejected"
)

// ConsentRecord is one grant or withdrawal event.
type ConsentRecord struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	AccountID   uuid.UUID  `db:"account_id" json:"-"`
	ConsentType string     `db:"consent_type" json:"consent_type"`
	Version     string     `db:"version" json:"version"`
	Granted     bool       `db:"granted" json:"granted"`
	GrantedAt   time.Time  `db:"granted_at" json:"granted_at"`
	WithdrawnAt *time.Time `db:"withdrawn_at" json:"withdrawn_at,omitempty"`
	IPAddress   *string    `db:"ip_address" json:"-"`
	UserAgent   *string    `db:"user_agent" json:"-"`
}

// DataRequest is a data subject request. For exports, DownloadLinkEnc holds
// the encrypted link once processing completes.
type DataRequest struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	AccountID       uuid.UUID  `db:"account_id" json:"-"`
	RequestType     string     `db:"request_type" json:"request_type"`
	Status          string     `db:"status" json:"status"`
	Reason          *string    `db:"reason" json:"reason,omitempty"`
	DownloadLinkEnc []byte     `db:"download_link_enc" json:"-"`
	LinkExpiresAt   *time.Time `db:"link_expires_at" json:"link_expires_at,omitempty"`
	CompletedAt     *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// RequestView is the API shape with the decrypted download link when present
// and unexpired.
type RequestView struct {
	DataRequest
	DownloadLink *string `json:"download_link,omitempty"`
}
