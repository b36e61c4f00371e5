package document

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/bloksphere/stratosphere-patient-app/internal/platform/audit"
	"github.com/bloksphere/stratosphere-patient-app/internal/platform/blobstore"
	"github.com/bloksphere/stratosphere-patient-app/internal/platform/security"
)

type Service struct {
	repo    Repository
	cipher  *security.FieldCipher
	blobs   blobstore.BlobStore
	auditor *audit.Recorder
}

func NewService(repo Repository, cipher *security.FieldCipher, blobs blobstore.BlobStore, auditor *audit.Recorder) *Service {
	return &Service{repo: repo, cipher: cipher, blobs: blobs, auditor: auditor}
}

// IngestInput carries a document coming in from the clinic sync.
type IngestInput struct {
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	FileName    string     `json:"file_name"`
	ContentType string     `json:"content_type"`
	SizeBytes   int64      `json:"size_bytes"`
	IssuedAt    *time.Time `json:"issued_at,omitempty"`
}

// Ingest stores document bytes in the blob store and records the metadata
// row. It is driven by the clinic synchronisation, not by patient requests.
func (s *Service) Ingest(ctx context.Context, accountID uuid.UUID, in IngestInput, body io.Reader) (*View, error) {
	if !validTypes[in.Type] {
		return nil, fmt.Errorf("document: invalid type %q", in.Type)
	}
	if in.Title == "" || in.FileName == "" {
		return nil, fmt.Errorf("document: title and file_name are required")
	}

	key := blobstore.ObjectKey(accountID, in.FileName)
	if err := s.blobs.Put(ctx, key, in.ContentType, body, in.SizeBytes); err != nil {
		return nil, fmt.Errorf("storing document: %w", err)
	}

	description, err := s.cipher.EncryptPtr(in.Description)
	if err != nil {
		return nil, fmt.Errorf("encrypting description: %w", err)
	}
	keyEnc, err := s.cipher.Encrypt(key)
	if err != nil {
		return nil, fmt.Errorf("encrypting object key: %w", err)
	}

	d := &Document{
		AccountID:      accountID,
		Type:           in.Type,
		Title:          in.Title,
		DescriptionEnc: description,
		ObjectKeyEnc:   keyEnc,
		FileName:       in.FileName,
		ContentType:    in.ContentType,
		SizeBytes:      in.SizeBytes,
		IssuedAt:       in.IssuedAt,
		Synced:         true,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}

	return &View{Document: *d, Description: in.Description}, nil
}

// Get returns document metadata with the decrypted description.
func (s *Service) Get(ctx context.Context, accountID, id uuid.UUID, meta audit.RequestMeta) (*View, error) {
	d, err := s.repo.GetByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}

	description, err := s.cipher.DecryptPtr(d.DescriptionEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypting description: %w", err)
	}

	s.audit(ctx, accountID, "document.read", d.ID, meta)
	return &View{Document: *d, Description: description}, nil
}

// List returns the account's documents, optionally filtered by type.
func (s *Service) List(ctx context.Context, accountID uuid.UUID, docType *string, limit, offset int) ([]*View, int, error) {
	items, total, err := s.repo.ListByAccount(ctx, accountID, docType, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	out := make([]*View, 0, len(items))
	for _, d := range items {
		description, err := s.cipher.DecryptPtr(d.DescriptionEnc)
		if err != nil {
			return nil, 0, fmt.Errorf("decrypting description: %w", err)
		}
		out = append(out, &View{Document: *d, Description: description})
	}
	return out, total, nil
}

// DownloadURL returns a presigned URL for the document bytes and audits the
// access.
func (s *Service) DownloadURL(ctx context.Context, accountID, id uuid.UUID, meta audit.RequestMeta) (string, error) {
	d, err := s.repo.GetByID(ctx, accountID, id)
	if err != nil {
		return "", err
	}

	key, err := s.cipher.Decrypt(d.ObjectKeyEnc)
	if err != nil {
		return "", fmt.Errorf("decrypting object key: %w", err)
	}

	url, err := s.blobs.PresignGet(ctx, key)
	if err != nil {
		return "", fmt.Errorf("presigning document: %w", err)
	}

	s.audit(ctx, accountID, "document.download", d.ID, meta)
	return url, nil
}

func (s *Service) audit(ctx context.Context, actorID uuid.UUID, action string, resourceID uuid.UUID, meta audit.RequestMeta) {
	resourceType := "document"
	s.auditor.Record(ctx, audit.Entry{
		ActorID:      &actorID,
		Action:       action,
		ResourceType: &resourceType,
		ResourceID:   &resourceID,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})
}
