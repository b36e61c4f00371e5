// Package health implements patient-recorded health data: measurements
// (blood pressure, weight, glucose and similar) and symptom reports. Free-text
// notes are stored encrypted.
package health

import (
	"time"

	"github.com/google/uuid"
)

// Measurement types accepted from patient devices and manual entry.
var validMeasurementTypes = map[string]bool{
	"blood_pressure":    true,
	"heart_rate":        true,
	"weight":            true,
	"blood_glucose":     true,
	"temperature":       true,
	"oxygen_saturation": true,
	"steps":             true,
	"sleep":             true,
}

// Measurement sources.
const (
	SourceManual = "manual"
	SourceDevice = "device"
	SourceSync   = "sync"
)

// HealthMeasurement is a single patient-recorded value. Blood pressure uses
// both values (systolic/diastolic); most types use only ValuePrimary.
type HealthMeasurement struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	AccountID      uuid.UUID  `db:"account_id" json:"-"`
	Type           string     `db:"measurement_type" json:"type"`
	ValuePrimary   float64    `db:"value_primary" json:"value_primary"`
	ValueSecondary *float64   `db:"value_secondary" json:"value_secondary,omitempty"`
	Unit           string     `db:"unit" json:"unit"`
	MeasuredAt     time.Time  `db:"measured_at" json:"measured_at"`
	NotesEnc       []byte     `db:"notes_enc" json:"-"`
	Source         string     `db:"source" json:"source"`
	DeviceID       *string    `db:"device_id" json:"device_id,omitempty"`
	SyncedAt       *time.Time `db:"synced_at" json:"synced_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Symptom is a patient-reported symptom with a 1-10 severity scale.
type Symptom struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	AccountID    uuid.UUID  `db:"account_id" json:"-"`
	Type         string     `db:"symptom_type" json:"type"`
	Severity     int        `db:"severity" json:"severity"`
	DurationDays *int       `db:"duration_days" json:"duration_days,omitempty"`
	OnsetAt      *time.Time `db:"onset_at" json:"onset_at,omitempty"`
	NotesEnc     []byte     `db:"notes_enc" json:"-"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// MeasurementView is the API shape with decrypted notes.
type MeasurementView struct {
	HealthMeasurement
	Notes *string `json:"notes,omitempty"`
}

// SymptomView is the API shape with decrypted notes.
type SymptomView struct {
	Symptom
	Notes *string `json:"notes,omitempty"`
}
