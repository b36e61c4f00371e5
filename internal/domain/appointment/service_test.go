package appointment

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bloksphere/stratosphere-patient-app/internal/platform/audit"
	"github.com/bloksphere/stratosphere-patient-app/internal/platform/security"
)

type mockRepo struct {
	items map[uuid.UUID]*Appointment
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Appointment)}
}

func (m *mockRepo) Create(_ context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = time.Now()
	copied := *a
	m.items[a.ID] = &copied
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, accountID, id uuid.UUID) (*Appointment, error) {
	a, ok := m.items[id]
	if !ok || a.AccountID != accountID {
		return nil, ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (m *mockRepo) ListByAccount(_ context.Context, accountID uuid.UUID, status *string, limit, offset int) ([]*Appointment, int, error) {
	var out []*Appointment
	for _, a := range m.items {
		if a.AccountID != accountID {
			continue
		}
		if status != nil && a.Status != *status {
			continue
		}
		copied := *a
		out = append(out, &copied)
	}
	return out, len(out), nil
}

func (m *mockRepo) Update(_ context.Context, a *Appointment) error {
	if _, ok := m.items[a.ID]; !ok {
		return ErrNotFound
	}
	copied := *a
	m.items[a.ID] = &copied
	return nil
}

type captureStore struct {
	entries []*audit.Entry
}

func (c *captureStore) Append(_ context.Context, e *audit.Entry) error {
	c.entries = append(c.entries, e)
	return nil
}

func newTestService(t *testing.T) (*Service, *mockRepo, *captureStore) {
	t.Helper()
	cipher, err := security.NewFieldCipher(bytes.Repeat([]byte("k"), 32))
	if err != nil {
		t.Fatal(err)
	}
	repo := newMockRepo()
	store := &captureStore{}
	return NewService(repo, cipher, audit.NewRecorder(store, zerolog.New(io.Discard))), repo, store
}

func TestCreate(t *testing.T) {
	svc, repo, store := newTestService(t)
	owner := uuid.New()

	reason := "persistent cough"
	view, err := svc.Create(context.Background(), owner, CreateInput{
		Type:   "routine",
		Reason: &reason,
	}, audit.RequestMeta{})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if view.Status != StatusRequested {
		t.Errorf("expected requested status, got %s", view.Status)
	}
	if bytes.Contains(repo.items[view.ID].ReasonEnc, []byte("cough")) {
		t.Error("reason must be stored encrypted")
	}
	if len(store.entries) != 1 || store.entries[0].Action != "appointment.request" {
		t.Errorf("expected appointment.request audit entry, got %+v", store.entries)
	}
}

func TestCreate_InvalidType(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), uuid.New(), CreateInput{Type: "walk_in"}, audit.RequestMeta{})
	if err == nil {
		t.Fatal("expected error for invalid type")
	}
}

func TestGet_DecryptsAndEnforcesOwnership(t *testing.T) {
	svc, _, _ := newTestService(t)
	owner := uuid.New()

	reason := "follow up on results"
	view, err := svc.Create(context.Background(), owner, CreateInput{Type: "follow_up", Reason: &reason}, audit.RequestMeta{})
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.Get(context.Background(), owner, view.ID, audit.RequestMeta{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Reason == nil || *got.Reason != reason {
		t.Errorf("expected decrypted reason, got %v", got.Reason)
	}

	if _, err := svc.Get(context.Background(), uuid.New(), view.ID, audit.RequestMeta{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign account, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	svc, _, store := newTestService(t)
	owner := uuid.New()

	view, err := svc.Create(context.Background(), owner, CreateInput{Type: "video"}, audit.RequestMeta{})
	if err != nil {
		t.Fatal(err)
	}

	cancelled, err := svc.Cancel(context.Background(), owner, view.ID, audit.RequestMeta{})
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", cancelled.Status)
	}
	if cancelled.CancelledAt == nil {
		t.Error("expected cancelled_at to be set")
	}

	// Cancelling again conflicts.
	if _, err := svc.Cancel(context.Background(), owner, view.ID, audit.RequestMeta{}); !errors.Is(err, ErrNotCancellable) {
		t.Fatalf("expected ErrNotCancellable, got %v", err)
	}

	last := store.entries[len(store.entries)-1]
	if last.Action != "appointment.cancel" {
		t.Errorf("expected appointment.cancel audit entry, got %s", last.Action)
	}
}

func TestCancel_CompletedRejected(t *testing.T) {
	svc, repo, _ := newTestService(t)
	owner := uuid.New()

	view, err := svc.Create(context.Background(), owner, CreateInput{Type: "urgent"}, audit.RequestMeta{})
	if err != nil {
		t.Fatal(err)
	}
	repo.items[view.ID].Status = StatusCompleted

	if _, err := svc.Cancel(context.Background(), owner, view.ID, audit.RequestMeta{}); !errors.Is(err, ErrNotCancellable) {
		t.Fatalf("expected ErrNotCancellable, got %v", err)
	}
}

func TestList_FilterByStatus(t *testing.T) {
	svc, repo, _ := newTestService(t)
	owner := uuid.New()

	first, err := svc.Create(context.Background(), owner, CreateInput{Type: "routine"}, audit.RequestMeta{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Create(context.Background(), owner, CreateInput{Type: "phone"}, audit.RequestMeta{}); err != nil {
		t.Fatal(err)
	}
	repo.items[first.ID].Status = StatusConfirmed

	status := StatusConfirmed
	items, total, err := svc.List(context.Background(), owner, &status, 20, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("expected 1 confirmed appointment, got %d", total)
	}
	if items[0].ID != first.ID {
		t.Error("unexpected appointment in filtered list")
	}
}
