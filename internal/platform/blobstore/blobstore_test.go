package blobstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestObjectKey(t *testing.T) {
	owner := uuid.New()

	key := ObjectKey(owner, "Lab Results.PDF")
	if !strings.HasPrefix(key, "documents/"+owner.String()+"/") {
		t.Errorf("key not namespaced under owner: %s", key)
	}
	if !strings.HasSuffix(key, ".pdf") {
		t.Errorf("expected lowered extension, got %s", key)
	}

	// Keys must be unique even for identical inputs.
	if ObjectKey(owner, "a.pdf") == ObjectKey(owner, "a.pdf") {
		t.Error("expected unique keys for repeated filenames")
	}

	if strings.Contains(ObjectKey(owner, "noext"), ".") {
		t.Error("filename without extension should produce key without one")
	}
}

func TestMemoryStore_PutAndPresign(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	key := "documents/u/1.pdf"
	if err := store.Put(ctx, key, "application/pdf", strings.NewReader("content"), 7); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	data, ok := store.Object(key)
	if !ok || string(data) != "content" {
		t.Fatalf("stored object mismatch: %q %v", data, ok)
	}

	url, err := store.PresignGet(ctx, key)
	if err != nil {
		t.Fatalf("presign get failed: %v", err)
	}
	if !strings.Contains(url, key) {
		t.Errorf("presigned url should reference key, got %s", url)
	}
}

func TestMemoryStore_PresignGetMissing(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.PresignGet(context.Background(), "documents/u/missing.pdf")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	key := "documents/u/2.png"
	if err := store.Put(ctx, key, "image/png", strings.NewReader("x"), 1); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok := store.Object(key); ok {
		t.Error("object still present after delete")
	}

	// Deleting a missing key is not an error.
	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("repeat delete should be a no-op, got %v", err)
	}
}
