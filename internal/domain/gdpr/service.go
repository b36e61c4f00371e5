package gdpr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bloksphere/stratosphere-patient-app/internal/platform/audit"
	"github.com/bloksphere/stratosphere-patient-app/internal/platform/security"
)

// ErrDuplicateRequest is returned when an open request of the same type
// already exists.
var ErrDuplicateRequest = errors.New("gdpr: an open request of this type already exists")

type Service struct {
	consents ConsentRepository
	requests DataRequestRepository
	accounts AccountMarker
	cipher   *security.FieldCipher
	auditor  *audit.Recorder
}

func NewService(
	consents ConsentRepository,
	requests DataRequestRepository,
	accounts AccountMarker,
	cipher *security.FieldCipher,
	auditor *audit.Recorder,
) *Service {
	return &Service{
		consents: consents,
		requests: requests,
		accounts: accounts,
		cipher:   cipher,
		auditor:  auditor,
	}
}

// ConsentInput carries a consent grant or withdrawal.
type ConsentInput struct {
	ConsentType string `json:"consent_type"`
	Version     string `json:"version"`
}

// GrantConsent appends a granted consent record.
func (s *Service) GrantConsent(ctx context.Context, accountID uuid.UUID, in ConsentInput, meta audit.RequestMeta) (*ConsentRecord, error) {
	return s.appendConsent(ctx, accountID, in, true, meta)
}

// WithdrawConsent appends a withdrawal record for the consent type.
func (s *Service) WithdrawConsent(ctx context.Context, accountID uuid.UUID, in ConsentInput, meta audit.RequestMeta) (*ConsentRecord, error) {
	return s.appendConsent(ctx, accountID, in, false, meta)
}

func (s *Service) appendConsent(ctx context.Context, accountID uuid.UUID, in ConsentInput, granted bool, meta audit.RequestMeta) (*ConsentRecord, error) {
	if !validConsentTypes[in.ConsentType] {
		return nil, fmt.Errorf("gdpr: invalid consent type %q", in.ConsentType)
	}
	if in.Version == "" {
		return nil, fmt.Errorf("gdpr: consent version is required")
	}

	now := time.Now().UTC()
	c := &ConsentRecord{
		AccountID:   accountID,
		ConsentType: in.ConsentType,
		Version:     in.Version,
		Granted:     granted,
		GrantedAt:   now,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
	}
	if !granted {
		c.WithdrawnAt = &now
	}
	if err := s.consents.Append(ctx, c); err != nil {
		return nil, err
	}

	action := "gdpr.consent_grant"
	if !granted {
		action = "gdpr.consent_withdraw"
	}
	s.audit(ctx, accountID, action, "consent_record", c.ID, meta)
	return c, nil
}

// ListConsents returns the full consent history, newest first.
func (s *Service) ListConsents(ctx context.Context, accountID uuid.UUID) ([]*ConsentRecord, error) {
	return s.consents.ListByAccount(ctx, accountID)
}

// HasConsent reports whether the latest record for the type is a grant.
func (s *Service) HasConsent(ctx context.Context, accountID uuid.UUID, consentType string) (bool, error) {
	latest, err := s.consents.Latest(ctx, accountID, consentType)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return latest.Granted, nil
}

// CreateRequestInput carries a new data subject request.
type CreateRequestInput struct {
	RequestType string  `json:"request_type"`
	Reason      *string `json:"reason,omitempty"`
}

// CreateRequest files a data subject request. Delete requests also flag the
// account for erasure; the erasure itself runs externally.
func (s *Service) CreateRequest(ctx context.Context, accountID uuid.UUID, in CreateRequestInput, meta audit.RequestMeta) (*RequestView, error) {
	switch in.RequestType {
	case RequestExport, RequestDelete, RequestRectify:
	default:
		return nil, fmt.Errorf("gdpr: invalid request type %q", in.RequestType)
	}

	open, err := s.requests.HasOpen(ctx, accountID, in.RequestType)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, ErrDuplicateRequest
	}

	req := &DataRequest{
		AccountID:   accountID,
		RequestType: in.RequestType,
		Status:      StatusPending,
		Reason:      in.Reason,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}

	if in.RequestType == RequestDelete {
		if err := s.accounts.MarkDeletionRequested(ctx, accountID); err != nil {
			return nil, fmt.Errorf("flagging account for erasure: %w", err)
		}
	}

	s.audit(ctx, accountID, "gdpr.request_create", "data_request", req.ID, meta)
	return &RequestView{DataRequest: *req}, nil
}

// GetRequest returns one of the account's requests, decrypting the download
// link when it is present and still valid.
func (s *Service) GetRequest(ctx context.Context, accountID, id uuid.UUID, meta audit.RequestMeta) (*RequestView, error) {
	req, err := s.requests.GetByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}

	view := &RequestView{DataRequest: *req}
	if len(req.DownloadLinkEnc) > 0 && req.LinkExpiresAt != nil && time.Now().Before(*req.LinkExpiresAt) {
		link, err := s.cipher.Decrypt(req.DownloadLinkEnc)
		if err != nil {
			return nil, fmt.Errorf("decrypting download link: %w", err)
		}
		view.DownloadLink = &link
	}

	s.audit(ctx, accountID, "gdpr.request_read", "data_request", req.ID, meta)
	return view, nil
}

// ListRequests returns the account's requests without download links.
func (s *Service) ListRequests(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*RequestView, int, error) {
	items, total, err := s.requests.ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	out := make([]*RequestView, 0, len(items))
	for _, req := range items {
		out = append(out, &RequestView{DataRequest: *req})
	}
	return out, total, nil
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
