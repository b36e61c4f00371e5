// Package medication implements patient medication tracking: self-managed
// and clinic-synced medications, dose reminders, and adherence logging.
// Dosage instructions are stored encrypted.
package medication

import (
	"time"

	"github.com/google/uuid"
)

// Medication is a single entry on a patient's medication list. Entries with
// SyncedFromClinic set originate from the clinic record and cannot be deleted
// by the patient.
type Medication struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	AccountID        uuid.UUID  `db:"account_id" json:"-"`
	Name             string     `db:"medication_name" json:"medication_name"`
	Dosage           *string    `db:"dosage" json:"dosage,omitempty"`
	Frequency        *string    `db:"frequency" json:"frequency,omitempty"`
	InstructionsEnc  []byte     `db:"instructions_enc" json:"-"`
	StartedAt        *time.Time `db:"started_at" json:"started_at,omitempty"`
	EndedAt          *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	Active           bool       `db:"is_active" json:"is_active"`
	ReminderEnabled  bool       `db:"reminder_enabled" json:"reminder_enabled"`
	ReminderTimes    []string   `db:"reminder_times" json:"reminder_times,omitempty"`
	SyncedFromClinic bool       `db:"synced_from_clinic" json:"synced_from_clinic"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// AdherenceLog records one scheduled dose and whether it was taken or skipped.
// A log with neither TakenAt nor Skipped counts as a missed dose.
type AdherenceLog struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	MedicationID uuid.UUID  `db:"medication_id" json:"medication_id"`
	ScheduledAt  time.Time  `db:"scheduled_at" json:"scheduled_at"`
	TakenAt      *time.Time `db:"taken_at" json:"taken_at,omitempty"`
	Skipped      bool       `db:"skipped" json:"skipped"`
	SkipReason   *string    `db:"skip_reason" json:"skip_reason,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// MedicationView is the API shape with decrypted instructions.
type MedicationView struct {
	Medication
	Instructions *string `json:"instructions,omitempty"`
}

// AdherenceSummary aggregates dose logs over a window.
type AdherenceSummary struct {
	MedicationID   uuid.UUID `json:"medication_id"`
	MedicationName string    `json:"medication_name"`
	TotalDoses     int       `json:"total_doses"`
	TakenDoses     int       `json:"taken_doses"`
	SkippedDoses   int       `json:"skipped_doses"`
	MissedDoses    int       `json:"missed_doses"`
	AdherenceRate  float64   `json:"adherence_rate"`
}
