package medication

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/bloksphere/stratosphere-patient-app/internal/platform/audit"
	"github.com/bloksphere/stratosphere-patient-app/internal/platform/security"
)

// ErrClinicManaged is returned when a patient tries to delete a medication
// that was synced from the clinic record.
var ErrClinicManaged = errors.New("medication: clinic-prescribed medications cannot be deleted")

// Adherence window bounds in days.
const (
	AdherenceDaysDefault = 30
	AdherenceDaysMin     = 7
	AdherenceDaysMax     = 365
)

type Service struct {
	medications MedicationRepository
	adherence   AdherenceRepository
	cipher      *security.FieldCipher
	auditor     *audit.Recorder
}

func NewService(
	medications MedicationRepository,
	adherence AdherenceRepository,
	cipher *security.FieldCipher,
	auditor *audit.Recorder,
) *Service {
	return &Service{
		medications: medications,
		adherence:   adherence,
		cipher:      cipher,
		auditor:     auditor,
	}
}

// CreateInput carries a new self-managed medication.
type CreateInput struct {
	Name            string     `json:"medication_name"`
	Dosage          *string    `json:"dosage,omitempty"`
	Frequency       *string    `json:"frequency,omitempty"`
	Instructions    *string    `json:"instructions,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	ReminderEnabled bool       `json:"reminder_enabled"`
	ReminderTimes   []string   `json:"reminder_times,omitempty"`
}

func (s *Service) Create(ctx context.Context, accountID uuid.UUID, in CreateInput, meta audit.RequestMeta) (*MedicationView, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("medication: name is required")
	}

	instructions, err := s.cipher.EncryptPtr(in.Instructions)
	if err != nil {
		return nil, fmt.Errorf("encrypting instructions: %w", err)
	}

	m := &Medication{
		AccountID:       accountID,
		Name:            in.Name,
		Dosage:          in.Dosage,
		Frequency:       in.Frequency,
		InstructionsEnc: instructions,
		StartedAt:       in.StartedAt,
		Active:          true,
		ReminderEnabled: in.ReminderEnabled,
		ReminderTimes:   in.ReminderTimes,
	}
	if err := s.medications.Create(ctx, m); err != nil {
		return nil, err
	}

	s.audit(ctx, accountID, "medication.create", "medication", m.ID, meta)
	return &MedicationView{Medication: *m, Instructions: in.Instructions}, nil
}

func (s *Service) Get(ctx context.Context, accountID, id uuid.UUID, meta audit.RequestMeta) (*MedicationView, error) {
	m, err := s.medications.GetByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}

	instructions, err := s.cipher.DecryptPtr(m.InstructionsEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypting instructions: %w", err)
	}

	s.audit(ctx, accountID, "medication.read", "medication", m.ID, meta)
	return &MedicationView{Medication: *m, Instructions: instructions}, nil
}

func (s *Service) List(ctx context.Context, accountID uuid.UUID, activeOnly bool, limit, offset int) ([]*MedicationView, int, error) {
	items, total, err := s.medications.ListByAccount(ctx, accountID, activeOnly, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	out := make([]*MedicationView, 0, len(items))
	for _, m := range items {
		instructions, err := s.cipher.DecryptPtr(m.InstructionsEnc)
		if err != nil {
			return nil, 0, fmt.Errorf("decrypting instructions: %w", err)
		}
		out = append(out, &MedicationView{Medication: *m, Instructions: instructions})
	}
	return out, total, nil
}

// UpdateInput applies partial updates. Nil fields are left unchanged.
type UpdateInput struct {
	Dosage          *string    `json:"dosage,omitempty"`
	Frequency       *string    `json:"frequency,omitempty"`
	Instructions    *string    `json:"instructions,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	Active          *bool      `json:"is_active,omitempty"`
	ReminderEnabled *bool      `json:"reminder_enabled,omitempty"`
	ReminderTimes   []string   `json:"reminder_times,omitempty"`
}

func (s *Service) Update(ctx context.Context, accountID, id uuid.UUID, in UpdateInput, meta audit.RequestMeta) (*MedicationView, error) {
	m, err := s.medications.GetByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}

	if in.Dosage != nil {
		m.Dosage = in.Dosage
	}
	if in.Frequency != nil {
		m.Frequency = in.Frequency
	}
	if in.Instructions != nil {
		enc, err := s.cipher.Encrypt(*in.Instructions)
		if err != nil {
			return nil, fmt.Errorf("encrypting instructions: %w", err)
		}
		m.InstructionsEnc = enc
	}
	if in.EndedAt != nil {
		m.EndedAt = in.EndedAt
	}
	if in.Active != nil {
		m.Active = *in.Active
	}
	if in.ReminderEnabled != nil {
		m.ReminderEnabled = *in.ReminderEnabled
	}
	if in.ReminderTimes != nil {
		m.ReminderTimes = in.ReminderTimes
	}

	if err := s.medications.Update(ctx, m); err != nil {
		return nil, err
	}

	instructions, err := s.cipher.DecryptPtr(m.InstructionsEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypting instructions: %w", err)
	}

	s.audit(ctx, accountID, "medication.update", "medication", m.ID, meta)
	return &MedicationView{Medication: *m, Instructions: instructions}, nil
}

func (s *Service) Delete(ctx context.Context, accountID, id uuid.UUID, meta audit.RequestMeta) error {
	m, err := s.medications.GetByID(ctx, accountID, id)
	if err != nil {
		return err
	}
	if m.SyncedFromClinic {
		return ErrClinicManaged
	}

	if err := s.medications.Delete(ctx, accountID, id); err != nil {
		return err
	}
	s.audit(ctx, accountID, "medication.delete", "medication", id, meta)
	return nil
}

// LogDoseInput carries an adherence event.
type LogDoseInput struct {
	TakenAt    *time.Time `json:"taken_at,omitempty"`
	SkipReason *string    `json:"skip_reason,omitempty"`
}

// LogTaken records a taken dose. Ownership is checked before writing.
func (s *Service) LogTaken(ctx context.Context, accountID, medicationID uuid.UUID, in LogDoseInput, meta audit.RequestMeta) (*AdherenceLog, error) {
	if _, err := s.medications.GetByID(ctx, accountID, medicationID); err != nil {
		return nil, err
	}

	at := time.Now().UTC()
	if in.TakenAt != nil {
		at = *in.TakenAt
	}
	l := &AdherenceLog{
		MedicationID: medicationID,
		ScheduledAt:  at,
		TakenAt:      &at,
	}
	if err := s.adherence.Create(ctx, l); err != nil {
		return nil, err
	}

	s.audit(ctx, accountID, "medication.dose_taken", "medication", medicationID, meta)
	return l, nil
}

// LogSkipped records a skipped dose.
func (s *Service) LogSkipped(ctx context.Context, accountID, medicationID uuid.UUID, in LogDoseInput, meta audit.RequestMeta) (*AdherenceLog, error) {
	if _, err := s.medications.GetByID(ctx, accountID, medicationID); err != nil {
		return nil, err
	}

	l := &AdherenceLog{
		MedicationID: medicationID,
		ScheduledAt:  time.Now().UTC(),
		Skipped:      true,
		SkipReason:   in.SkipReason,
	}
	if err := s.adherence.Create(ctx, l); err != nil {
		return nil, err
	}

	s.audit(ctx, accountID, "medication.dose_skipped", "medication", medicationID, meta)
	return l, nil
}

// Adherence summarizes dose logs over the trailing window. The window is
// clamped to the default when out of bounds.
func (s *Service) Adherence(ctx context.Context, accountID, medicationID uuid.UUID, days int, meta audit.RequestMeta) (*AdherenceSummary, error) {
	if days < AdherenceDaysMin || days > AdherenceDaysMax {
		days = AdherenceDaysDefault
	}

	m, err := s.medications.GetByID(ctx, accountID, medicationID)
	if err != nil {
		return nil, err
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	logs, err := s.adherence.ListSince(ctx, medicationID, since)
	if err != nil {
		return nil, err
	}

	sum := &AdherenceSummary{
		MedicationID:   medicationID,
		MedicationName: m.Name,
		TotalDoses:     len(logs),
	}
	for _, l := range logs {
		switch {
		case l.Skipped:
			sum.SkippedDoses++
		case l.TakenAt != nil:
			sum.TakenDoses++
		}
	}
	sum.MissedDoses = sum.TotalDoses - sum.TakenDoses - sum.SkippedDoses
	if sum.TotalDoses > 0 {
		sum.AdherenceRate = math.Round(float64(sum.TakenDoses)/float64(sum.TotalDoses)*1000) / 10
	}

	s.audit(ctx, accountID, "medication.adherence_read", "medication", medicationID, meta)
	return sum, nil
}

func (s *Service) audit(ctx context.Context, actorID uuid.UUID, action, resourceType string, resourceID uuid.UUID, meta audit.RequestMeta) {
	s.auditor.Record(ctx, audit.Entry{
		ActorID:      &actorID,
		Action:       action,
		ResourceType: &resourceType,
		ResourceID:   &resourceID,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})
}
