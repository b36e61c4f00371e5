package health

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bloksphere/stratosphere-patient-app/internal/platform/audit"
	"github.com/bloksphere/stratosphere-patient-app/internal/platform/security"
)

type Service struct {
	measurements MeasurementRepository
	symptoms     SymptomRepository
	cipher       *security.FieldCipher
	auditor      *audit.Recorder
}

func NewService(
	measurements MeasurementRepository,
	symptoms SymptomRepository,
	cipher *security.FieldCipher,
	auditor *audit.Recorder,
) *Service {
	return &Service{
		measurements: measurements,
		symptoms:     symptoms,
		cipher:       cipher,
		auditor:      auditor,
	}
}

// CreateMeasurementInput carries a new measurement.
type CreateMeasurementInput struct {
	Type           string     `json:"type"`
	ValuePrimary   float64    `json:"value_primary"`
	ValueSecondary *float64   `json:"value_secondary,omitempty"`
	Unit           string     `json:"unit"`
	MeasuredAt     *time.Time `json:"measured_at,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
	Source         string     `json:"source"`
	DeviceID       *string    `json:"device_id,omitempty"`
}

func (s *Service) CreateMeasurement(ctx context.Context, accountID uuid.UUID, in CreateMeasurementInput, meta audit.RequestMeta) (*MeasurementView, error) {
	if !validMeasurementTypes[in.Type] {
		return nil, fmt.Errorf("health: invalid measurement type %q", in.Type)
	}
	if in.Unit == "" {
		return nil, fmt.Errorf("health: unit is required")
	}
	if in.Source == "" {
		in.Source = SourceManual
	}

	notes, err := s.cipher.EncryptPtr(in.Notes)
	if err != nil {
		return nil, fmt.Errorf("encrypting notes: %w", err)
	}

	measuredAt := time.Now().UTC()
	if in.MeasuredAt != nil {
		measuredAt = *in.MeasuredAt
	}

	m := &HealthMeasurement{
		AccountID:      accountID,
		Type:           in.Type,
		ValuePrimary:   in.ValuePrimary,
		ValueSecondary: in.ValueSecondary,
		Unit:           in.Unit,
		MeasuredAt:     measuredAt,
		NotesEnc:       notes,
		Source:         in.Source,
		DeviceID:       in.DeviceID,
	}
	if err := s.measurements.Create(ctx, m); err != nil {
		return nil, err
	}

	s.audit(ctx, accountID, "health.measurement_create", "health_measurement", m.ID, meta)
	return &MeasurementView{HealthMeasurement: *m, Notes: in.Notes}, nil
}

func (s *Service) GetMeasurement(ctx context.Context, accountID, id uuid.UUID, meta audit.RequestMeta) (*MeasurementView, error) {
	m, err := s.measurements.GetByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}

	notes, err := s.cipher.DecryptPtr(m.NotesEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypting notes: %w", err)
	}

	s.audit(ctx, accountID, "health.measurement_read", "health_measurement", m.ID, meta)
	return &MeasurementView{HealthMeasurement: *m, Notes: notes}, nil
}

func (s *Service) ListMeasurements(ctx context.Context, accountID uuid.UUID, f MeasurementFilter, limit, offset int) ([]*MeasurementView, int, error) {
	items, total, err := s.measurements.ListByAccount(ctx, accountID, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	out := make([]*MeasurementView, 0, len(items))
	for _, m := range items {
		notes, err := s.cipher.DecryptPtr(m.NotesEnc)
		if err != nil {
			return nil, 0, fmt.Errorf("decrypting notes: %w", err)
		}
		out = append(out, &MeasurementView{HealthMeasurement: *m, Notes: notes})
	}
	return out, total, nil
}

func (s *Service) DeleteMeasurement(ctx context.Context, accountID, id uuid.UUID, meta audit.RequestMeta) error {
	if err := s.measurements.Delete(ctx, accountID, id); err != nil {
		return err
	}
	s.audit(ctx, accountID, "health.measurement_delete", "health_measurement", id, meta)
	return nil
}

// CreateSymptomInput carries a new symptom report.
type CreateSymptomInput struct {
	Type         string     `json:"type"`
	Severity     int        `json:"severity"`
	DurationDays *int       `json:"duration_days,omitempty"`
	OnsetAt      *time.Time `json:"onset_at,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
}

func (s *Service) CreateSymptom(ctx context.Context, accountID uuid.UUID, in CreateSymptomInput, meta audit.RequestMeta) (*SymptomView, error) {
	if in.Type == "" {
		return nil, fmt.Errorf("health: symptom type is required")
	}
	if in.Severity < 1 || in.Severity > 10 {
		return nil, fmt.Errorf("health: severity must be between 1 and 10")
	}

	notes, err := s.cipher.EncryptPtr(in.Notes)
	if err != nil {
		return nil, fmt.Errorf("encrypting notes: %w", err)
	}

	sym := &Symptom{
		AccountID:    accountID,
		Type:         in.Type,
		Severity:     in.Severity,
		DurationDays: in.DurationDays,
		OnsetAt:      in.OnsetAt,
		NotesEnc:     notes,
	}
	if err := s.symptoms.Create(ctx, sym); err != nil {
		return nil, err
	}

	s.audit(ctx, accountID, "health.symptom_create", "symptom", sym.ID, meta)
	return &SymptomView{Symptom: *sym, Notes: in.Notes}, nil
}

func (s *Service) GetSymptom(ctx context.Context, accountID, id uuid.UUID, meta audit.RequestMeta) (*SymptomView, error) {
	sym, err := s.symptoms.GetByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}

	notes, err := s.cipher.DecryptPtr(sym.NotesEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypting notes: %w", err)
	}

	s.audit(ctx, accountID, "health.symptom_read", "symptom", sym.ID, meta)
	return &SymptomView{Symptom: *sym, Notes: notes}, nil
}

func (s *Service) ListSymptoms(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*SymptomView, int, error) {
	items, total, err := s.symptoms.ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	out := make([]*SymptomView, 0, len(items))
	for _, sym := range items {
		notes, err := s.cipher.DecryptPtr(sym.NotesEnc)
		if err != nil {
			return nil, 0, fmt.Errorf("decrypting notes: %w", err)
		}
		out = append(out, &SymptomView{Symptom: *sym, Notes: notes})
	}
	return out, total, nil
}

func (s *Service) DeleteSymptom(ctx context.Context, accountID, id uuid.UUID, meta audit.RequestMeta) error {
	if err := s.symptoms.Delete(ctx, accountID, id); err != nil {
		return err
	}
	s.audit(ctx, accountID, "health.symptom_delete", "symptom", id, meta)
	return nil
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
