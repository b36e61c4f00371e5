package message

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bloksphere/stratosphere-patient-app/internal/platform/audit"
	"github.com/bloksphere/stratosphere-patient-app/internal/platform/blobstore"
	"github.com/bloksphere/stratosphere-patient-app/internal/platform/security"
)

type Service struct {
	messages    MessageRepository
	attachments AttachmentRepository
	cipher      *security.FieldCipher
	blobs       blobstore.BlobStore
	auditor     *audit.Recorder
}

func NewService(
	messages MessageRepository,
	attachments AttachmentRepository,
	cipher *security.FieldCipher,
	blobs blobstore.BlobStore,
	auditor *audit.Recorder,
) *Service {
	return &Service{
		messages:    messages,
		attachments: attachments,
		cipher:      cipher,
		blobs:       blobs,
		auditor:     auditor,
	}
}

// SendInput carries an outbound message.
type SendInput struct {
	Subject  string     `json:"subject"`
	Body     string     `json:"body"`
	ThreadID *uuid.UUID `json:"thread_id,omitempty"`
	ParentID *uuid.UUID `json:"parent_id,omitempty"`
}

// Send creates an outbound message. Replies must reference a thread the
// sender already participates in.
func (s *Service) Send(ctx context.Context, accountID uuid.UUID, in SendInput, meta audit.RequestMeta) (*View, error) {
	if strings.TrimSpace(in.Subject) == "" {
		return nil, fmt.Errorf("message: subject is required")
	}
	if strings.TrimSpace(in.Body) == "" {
		return nil, fmt.Errorf("message: body is required")
	}

	subject, err := s.cipher.Encrypt(in.Subject)
	if err != nil {
		return nil, fmt.Errorf("encrypting subject: %w", err)
	}
	body, err := s.cipher.Encrypt(in.Body)
	if err != nil {
		return nil, fmt.Errorf("encrypting body: %w", err)
	}

	var threadID uuid.UUID
	if in.ThreadID != nil {
		thread, err := s.messages.ListThread(ctx, accountID, *in.ThreadID)
		if err != nil {
			return nil, err
		}
		if len(thread) == 0 {
			return nil, ErrNotFound
		}
		threadID = *in.ThreadID
	}

	now := time.Now().UTC()
	m := &Message{
		AccountID:  accountID,
		Direction:  DirectionOutbound,
		SubjectEnc: subject,
		BodyEnc:    body,
		ThreadID:   threadID,
		ParentID:   in.ParentID,
		Status:     StatusSent,
		SentAt:     &now,
	}
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, err
	}

	s.audit(ctx, accountID, "message.send", m.ID, meta)
	return &View{Message: *m, Subject: &in.Subject, Body: &in.Body}, nil
}

// Get returns a decrypted message with its attachments and marks inbound
// messages as read on first open.
func (s *Service) Get(ctx context.Context, accountID, id uuid.UUID, meta audit.RequestMeta) (*View, error) {
	m, err := s.messages.GetByID(ctx, accountID, id)
	if err != nil {
		return nil, err
	}

	if m.Direction == DirectionInbound && m.ReadAt == nil {
		now := time.Now().UTC()
		if err := s.messages.MarkRead(ctx, accountID, id, now); err != nil {
			return nil, err
		}
		m.Status = StatusRead
		m.ReadAt = &now
	}

	view, err := s.decrypt(m)
	if err != nil {
		return nil, err
	}
	view.Attachments, err = s.attachments.ListByMessage(ctx, m.ID)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, accountID, "message.read", m.ID, meta)
	return view, nil
}

// List returns the account's messages, newest first.
func (s *Service) List(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*View, int, error) {
	items, total, err := s.messages.ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	out := make([]*View, 0, len(items))
	for _, m := range items {
		view, err := s.decrypt(m)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, view)
	}
	return out, total, nil
}

// Thread returns a full conversation in chronological order.
func (s *Service) Thread(ctx context.Context, accountID, threadID uuid.UUID, meta audit.RequestMeta) ([]*View, error) {
	items, err := s.messages.ListThread(ctx, accountID, threadID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}

	out := make([]*View, 0, len(items))
	for _, m := range items {
		view, err := s.decrypt(m)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}

	s.audit(ctx, accountID, "message.thread_read", threadID, meta)
	return out, nil
}

// UploadTicket is a presigned upload slot: the client PUTs the file to URL,
// then registers the attachment with ObjectKey via AttachFile.
type UploadTicket struct {
	ObjectKey string `json:"object_key"`
	URL       string `json:"url"`
	ExpiresIn int64  `json:"expires_in"`
}

// UploadURL issues a presigned upload URL for a new attachment object,
// namespaced under the uploading account.
func (s *Service) UploadURL(ctx context.Context, accountID uuid.UUID, fileName, contentType string) (*UploadTicket, error) {
	if fileName == "" {
		return nil, fmt.Errorf("message: file_name is required")
	}

	key := blobstore.ObjectKey(accountID, fileName)
	url, err := s.blobs.PresignPut(ctx, key, contentType)
	if err != nil {
		return nil, fmt.Errorf("presigning upload: %w", err)
	}

	return &UploadTicket{
		ObjectKey: key,
		URL:       url,
		ExpiresIn: int64(blobstore.PresignTTL.Seconds()),
	}, nil
}

// AttachFileInput registers an already-uploaded object as an attachment.
type AttachFileInput struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	ObjectKey   string `json:"object_key"`
}

// AttachFile links an uploaded object to one of the account's messages.
func (s *Service) AttachFile(ctx context.Context, accountID, messageID uuid.UUID, in AttachFileInput, meta audit.RequestMeta) (*Attachment, error) {
	if in.FileName == "" || in.ObjectKey == "" {
		return nil, fmt.Errorf("message: file_name and object_key are required")
	}
	if in.SizeBytes > blobstore.MaxObjectSize {
		return nil, fmt.Errorf("message: attachment exceeds the %d byte limit", blobstore.MaxObjectSize)
	}

	// Ownership check; attaching to someone else's message reads as absence.
	if _, err := s.messages.GetByID(ctx, accountID, messageID); err != nil {
		return nil, err
	}

	keyEnc, err := s.cipher.Encrypt(in.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("encrypting object key: %w", err)
	}

	a := &Attachment{
		MessageID:    messageID,
		FileName:     in.FileName,
		ContentType:  in.ContentType,
		SizeBytes:    in.SizeBytes,
		ObjectKeyEnc: keyEnc,
	}
	if err := s.attachments.Create(ctx, a); err != nil {
		return nil, err
	}

	s.audit(ctx, accountID, "message.attach", a.ID, meta)
	return a, nil
}

// AttachmentURL returns a presigned download URL for an attachment on one of
// the account's messages.
func (s *Service) AttachmentURL(ctx context.Context, accountID, attachmentID uuid.UUID, meta audit.RequestMeta) (string, error) {
	a, err := s.attachments.GetByID(ctx, attachmentID)
	if err != nil {
		return "", err
	}
	if _, err := s.messages.GetByID(ctx, accountID, a.MessageID); err != nil {
		return "", err
	}

	key, err := s.cipher.Decrypt(a.ObjectKeyEnc)
	if err != nil {
		return "", fmt.Errorf("decrypting object key: %w", err)
	}

	url, err := s.blobs.PresignGet(ctx, key)
	if err != nil {
		return "", fmt.Errorf("presigning attachment: %w", err)
	}

	s.audit(ctx, accountID, "message.attachment_download", attachmentID, meta)
	return url, nil
}

func (s *Service) decrypt(m *Message) (*View, error) {
	subject, err := s.cipher.DecryptPtr(m.SubjectEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypting subject: %w", err)
	}
	body, err := s.cipher.DecryptPtr(m.BodyEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypting body: %w", err)
	}
	return &View{Message: *m, Subject: subject, Body: body}, nil
}

func (s *Service) audit(ctx context.Context, actorID uuid.UUID, action string, resourceID uuid.UUID, meta audit.RequestMeta) {
	resourceType := "message"
	s.auditor.Record(ctx, audit.Entry{
		ActorID:      &actorID,
		Action:       action,
		ResourceType: &resourceType,
		ResourceID:   &resourceID,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})
}
