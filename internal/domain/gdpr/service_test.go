package gdpr

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bloksphere/stratosphere-patient-app/internal/platform/audit"
	"github.com/bloksphere/stratosphere-patient-app/internal/platform/security"
)

// -- Mock Repositories --

type mockConsentRepo struct {
	records []*ConsentRecord
}

func (m *mockConsentRepo) Append(_ context.Context, c *ConsentRecord) error {
	c.ID = uuid.New()
	copied := *c
	m.records = append(m.records, &copied)
	return nil
}

func (m *mockConsentRepo) ListByAccount(_ context.Context, accountID uuid.UUID) ([]*ConsentRecord, error) {
	var out []*ConsentRecord
	for _, c := range m.records {
		if c.AccountID != accountID {
			continue
		}
		copied := *c
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GrantedAt.After(out[j].GrantedAt) })
	return out, nil
}

func (m *mockConsentRepo) Latest(_ context.Context, accountID uuid.UUID, consentType string) (*ConsentRecord, error) {
	var latest *ConsentRecord
	for _, c := range m.records {
		if c.AccountID != accountID || c.ConsentType != consentType {
			continue
		}
		if latest == nil || c.GrantedAt.After(latest.GrantedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

type mockRequestRepo struct {
	items map[uuid.UUID]*DataRequest
}

func newMockRequestRepo() *mockRequestRepo {
	return &mockRequestRepo{items: make(map[uuid.UUID]*DataRequest)}
}

func (m *mockRequestRepo) Create(_ context.Context, r *DataRequest) error {
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	copied := *r
	m.items[r.ID] = &copied
	return nil
}

func (m *mockRequestRepo) GetByID(_ context.Context, accountID, id uuid.UUID) (*DataRequest, error) {
	r, ok := m.items[id]
	if !ok || r.AccountID != accountID {
		return nil, ErrNotFound
	}
	copied := *r
	return &copied, nil
}

func (m *mockRequestRepo) ListByAccount(_ context.Context, accountID uuid.UUID, limit, offset int) ([]*DataRequest, int, error) {
	var out []*DataRequest
	for _, r := range m.items {
		if r.AccountID != accountID {
			continue
		}
		copied := *r
		out = append(out, &copied)
	}
	return out, len(out), nil
}

func (m *mockRequestRepo) HasOpen(_ context.Context, accountID uuid.UUID, requestType string) (bool, error) {
	for _, r := range m.items {
		if r.AccountID == accountID && r.RequestType == requestType &&
			(r.Status == StatusPending || r.Status == StatusProcessing) {
			return true, nil
		}
	}
	return false, nil
}

type mockMarker struct {
	flagged []uuid.UUID
}

func (m *mockMarker) MarkDeletionRequested(_ context.Context, accountID uuid.UUID) error {
	m.flagged = append(m.flagged, accountID)
	return nil
}

type captureStore struct {
	entries []*audit.Entry
}

func (c *captureStore) Append(_ context.Context, e *audit.Entry) error {
	c.entries = append(c.entries, e)
	return nil
}

type fixture struct {
	svc      *Service
	consents *mockConsentRepo
	requests *mockRequestRepo
	marker   *mockMarker
	cipher   *security.FieldCipher
	store    *captureStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cipher, err := security.NewFieldCipher(bytes.Repeat([]byte("k"), 32))
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		consents: &mockConsentRepo{},
		requests: newMockRequestRepo(),
		marker:   &mockMarker{},
		cipher:   cipher,
		store:    &captureStore{},
	}
	f.svc = NewService(f.consents, f.requests, f.marker, cipher,
		audit.NewRecorder(f.store, zerolog.New(io.Discard)))
	return f
}

// -- Tests --

func TestGrantConsent(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	ip := "203.0.113.7"

	rec, err := f.svc.GrantConsent(context.Background(), owner, ConsentInput{
		ConsentType: "marketing",
		Version:     "2.1",
	}, audit.RequestMeta{IPAddress: &ip})
	if err != nil {
		t.Fatalf("grant failed: %v", err)
	}

	if !rec.Granted {
		t.Error("record should be a grant")
	}
	if rec.WithdrawnAt != nil {
		t.Error("grant must not carry a withdrawal timestamp")
	}
	if rec.IPAddress == nil || *rec.IPAddress != ip {
		t.Error("request ip should be recorded on the consent")
	}
	if len(f.store.entries) != 1 || f.store.entries[0].Action != "gdpr.consent_grant" {
		t.Errorf("expected consent_grant audit entry, got %+v", f.store.entries)
	}
}

func TestGrantConsent_InvalidType(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GrantConsent(context.Background(), uuid.New(), ConsentInput{
		ConsentType: "telepathy",
		Version:     "1.0",
	}, audit.RequestMeta{})
	if err == nil {
		t.Fatal("expected error for unknown consent type")
	}
}

func TestWithdrawConsent_AppendsNewRecord(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	ctx := context.Background()

	if _, err := f.svc.GrantConsent(ctx, owner, ConsentInput{ConsentType: "research", Version: "1.0"}, audit.RequestMeta{}); err != nil {
		t.Fatal(err)
	}
	rec, err := f.svc.WithdrawConsent(ctx, owner, ConsentInput{ConsentType: "research", Version: "1.0"}, audit.RequestMeta{})
	if err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}

	if rec.Granted || rec.WithdrawnAt == nil {
		t.Error("withdrawal must be recorded as granted=false with a timestamp")
	}
	if len(f.consents.records) != 2 {
		t.Fatalf("expected 2 records in history, got %d", len(f.consents.records))
	}

	granted, err := f.svc.HasConsent(ctx, owner, "research")
	if err != nil {
		t.Fatal(err)
	}
	if granted {
		t.Error("latest record is a withdrawal, HasConsent should be false")
	}
}

func TestHasConsent_NoHistory(t *testing.T) {
	f := newFixture(t)

	granted, err := f.svc.HasConsent(context.Background(), uuid.New(), "marketing")
	if err != nil {
		t.Fatalf("HasConsent failed: %v", err)
	}
	if granted {
		t.Error("no history should mean no consent")
	}
}

func TestCreateRequest_Export(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()

	view, err := f.svc.CreateRequest(context.Background(), owner, CreateRequestInput{
		RequestType: RequestExport,
	}, audit.RequestMeta{})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if view.Status != StatusPending {
		t.Errorf("new requests start pending, got %s", view.Status)
	}
	if view.DownloadLink != nil {
		t.Error("a fresh request has no download link")
	}
	if len(f.marker.flagged) != 0 {
		t.Error("export requests must not flag the account for erasure")
	}
	if len(f.store.entries) != 1 || f.store.entries[0].Action != "gdpr.request_create" {
		t.Errorf("expected request_create audit entry, got %+v", f.store.entries)
	}
}

func TestCreateRequest_DeleteFlagsAccount(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()

	reason := "leaving the clinic"
	_, err := f.svc.CreateRequest(context.Background(), owner, CreateRequestInput{
		RequestType: RequestDelete,
		Reason:      &reason,
	}, audit.RequestMeta{})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if len(f.marker.flagged) != 1 || f.marker.flagged[0] != owner {
		t.Errorf("delete request should flag the account, flagged=%v", f.marker.flagged)
	}
}

func TestCreateRequest_DuplicateOpen(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	ctx := context.Background()

	if _, err := f.svc.CreateRequest(ctx, owner, CreateRequestInput{RequestType: RequestExport}, audit.RequestMeta{}); err != nil {
		t.Fatal(err)
	}
	_, err := f.svc.CreateRequest(ctx, owner, CreateRequestInput{RequestType: RequestExport}, audit.RequestMeta{})
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}

	// A different type is still allowed.
	if _, err := f.svc.CreateRequest(ctx, owner, CreateRequestInput{RequestType: RequestRectify}, audit.RequestMeta{}); err != nil {
		t.Fatalf("different request type should be accepted: %v", err)
	}
}

func TestCreateRequest_InvalidType(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateRequest(context.Background(), uuid.New(), CreateRequestInput{
		RequestType: "forget_me_softly",
	}, audit.RequestMeta{})
	if err == nil {
		t.Fatal("expected error for unknown request type")
	}
}

func TestGetRequest_DecryptsValidLink(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	ctx := context.Background()

	view, err := f.svc.CreateRequest(ctx, owner, CreateRequestInput{RequestType: RequestExport}, audit.RequestMeta{})
	if err != nil {
		t.Fatal(err)
	}

	// Simulate the export worker completing the request.
	link := "https://exports.example.com/bundle.zip?sig=abc"
	enc, err := f.cipher.Encrypt(link)
	if err != nil {
		t.Fatal(err)
	}
	stored := f.requests.items[view.ID]
	expires := time.Now().Add(time.Hour)
	stored.Status = StatusCompleted
	stored.DownloadLinkEnc = enc
	stored.LinkExpiresAt = &expires

	got, err := f.svc.GetRequest(ctx, owner, view.ID, audit.RequestMeta{})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.DownloadLink == nil || *got.DownloadLink != link {
		t.Error("expected decrypted download link on completed request")
	}
}

func TestGetRequest_ExpiredLinkOmitted(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	ctx := context.Background()

	view, err := f.svc.CreateRequest(ctx, owner, CreateRequestInput{RequestType: RequestExport}, audit.RequestMeta{})
	if err != nil {
		t.Fatal(err)
	}

	enc, err := f.cipher.Encrypt("https://exports.example.com/old.zip")
	if err != nil {
		t.Fatal(err)
	}
	stored := f.requests.items[view.ID]
	expired := time.Now().Add(-time.Minute)
	stored.Status = StatusCompleted
	stored.DownloadLinkEnc = enc
	stored.LinkExpiresAt = &expired

	got, err := f.svc.GetRequest(ctx, owner, view.ID, audit.RequestMeta{})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.DownloadLink != nil {
		t.Error("expired links must not be surfaced")
	}
}

func TestGetRequest_ForeignAccount(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	ctx := context.Background()

	view, err := f.svc.CreateRequest(ctx, owner, CreateRequestInput{RequestType: RequestExport}, audit.RequestMeta{})
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.svc.GetRequest(ctx, uuid.New(), view.ID, audit.RequestMeta{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign account should see not found, got %v", err)
	}
}

func TestListRequests(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	ctx := context.Background()

	if _, err := f.svc.CreateRequest(ctx, owner, CreateRequestInput{RequestType: RequestExport}, audit.RequestMeta{}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.CreateRequest(ctx, uuid.New(), CreateRequestInput{RequestType: RequestExport}, audit.RequestMeta{}); err != nil {
		t.Fatal(err)
	}

	items, total, err := f.svc.ListRequests(ctx, owner, 20, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Errorf("expected only the owner's request, got total=%d len=%d", total, len(items))
	}
	if items[0].DownloadLink != nil {
		t.Error("list view must not include download links")
	}
}
