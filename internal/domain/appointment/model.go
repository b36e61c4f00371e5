// Package appointment implements patient-side appointment requests. Patients
// create and cancel requests; confirmation and completion come from the clinic
// side through an external integration.
package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Appointment types.
var validTypes = map[string]bool{
	"routine":   true,
	"follow_up": true,
	"urgent":    true,
	"phone":     true,
	"video":     true,
}

// Appointment statuses.
const (
	StatusRequested = "requested"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
	StatusNoShow    = "no_show"
)

// Appointment is a patient appointment request. Reason, clinic notes and the
// video call link are stored encrypted.
type Appointment struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	AccountID     uuid.UUID  `db:"account_id" json:"-"`
	Type          string     `db:"appointment_type" json:"type"`
	Status        string     `db:"status" json:"status"`
	PreferredDate *time.Time `db:"preferred_date" json:"preferred_date,omitempty"`
	ScheduledAt   *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	ReasonEnc     []byte     `db:"reason_enc" json:"-"`
	NotesEnc      []byte     `db:"notes_enc" json:"-"`
	VideoLinkEnc  []byte     `db:"video_link_enc" json:"-"`
	CancelledAt   *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Cancellable reports whether the patient may still cancel.
func (a *Appointment) Cancellable() bool {
	return a.Status == StatusRequested || a.Status == StatusConfirmed
}

// View is the API shape with decrypted fields.
type View struct {
	Appointment
	Reason    *string `json:"reason,omitempty"`
	Notes     *string `json:"notes,omitempty"`
	VideoLink *string `json:"video_link,omitempty"`
}
