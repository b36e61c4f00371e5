package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bloksphere/stratosphere-patient-app/internal/platform/audit"
	"github.com/bloksphere/stratosphere-patient-app/internal/platform/security"
)

// ErrNotCancellable is returned when an appointment is past the point of
// patient cancellation.
var ErrNotCancellable = errors.New("appointment: no longer cancellable")

type Service struct {
	repo    Repository
	cipher  *security.FieldCipher
	auditor *audit.Recorder
}

func NewService(repo Repository, cipher *security.FieldCipher, auditor *audit.Recorder) *Service {
	return &Service{repo: repo, cipher: cipher, auditor: auditor}
}

// CreateInput carries a new appointment request.
type CreateInput struct {
	Type          string     `json:"type"`
	PreferredDate *time.Time `json:"preferred_date,omitempty"`
	Reason        *string    `json:"reason,omitempty"`
}

func (s *Service) Create(ctx context.Context, accountID uuid.UUID, in CreateInput, meta audit.RequestMeta) (*View, error) {
	if !validTypes[in.Type] {
		return nil, fmt.Errorf("appointment: invalid type %q", in.Type)
	}

	reason, err := s.cipher.EncryptPtr(in.Reason)
	if err != nil {
		return nil, fmt.Errorf("encrypting reason: %w", err)
	}

	a := &Appointment{
		AccountID:     accountID,
		Type:          in.Type,
		Status:        StatusRequested,
		PreferredDate: in.PreferredDate,
		ReasonEnc:     reason,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	s.audit(ctx, accountID, "appointment.request", a.ID, meta)
	return &View{Appointment: *a, Reason: in.Reason}, nil
}

func (s *Service) Get(ctx context.Context, accountID, id uuid.UUID, meta audit.RequestMeta) (*View, error) {
	a, err := s.repo.GetByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}

	view, err := s.decrypt(a)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, accountID, "appointment.read", a.ID, meta)
	return view, nil
}

func (s *Service) List(ctx context.Context, accountID uuid.UUID, status *string, limit, offset int) ([]*View, int, error) {
	items, total, err := s.repo.ListByAccount(ctx, accountID, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	out := make([]*View, 0, len(items))
	for _, a := range items {
		view, err := s.decrypt(a)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, view)
	}
	return out, total, nil
}

// Cancel moves a requested or confirmed appointment to cancelled.
func (s *Service) Cancel(ctx context.Context, accountID, id uuid.UUID, meta audit.RequestMeta) (*View, error) {
	a, err := s.repo.GetByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	if !a.Cancellable() {
		return nil, ErrNotCancellable
	}

	now := time.Now().UTC()
	a.Status = StatusCancelled
	a.CancelledAt = &now
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}

	s.audit(ctx, accountID, "appointment.cancel", a.ID, meta)
	return s.decrypt(a)
}

func (s *Service) decrypt(a *Appointment) (*View, error) {
	reason, err := s.cipher.DecryptPtr(a.ReasonEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypting reason: %w", err)
	}
	notes, err := s.cipher.DecryptPtr(a.NotesEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypting notes: %w", err)
	}
	videoLink, err := s.cipher.DecryptPtr(a.VideoLinkEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypting video link: %w", err)
	}
	return &View{Appointment: *a, Reason: reason, Notes: notes, VideoLink: videoLink}, nil
}

func (s *Service) audit(ctx context.Context, actorID uuid.UUID, action string, resourceID uuid.UUID, meta audit.RequestMeta) {
	resourceType := "appointment"
	s.auditor.Record(ctx, audit.Entry{
		ActorID:      &actorID,
		Action:       action,
		ResourceType: &resourceType,
		ResourceID:   &resourceID,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})
}
