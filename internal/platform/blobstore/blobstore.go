// Package blobstore provides object storage for patient documents. Documents
// are written to an S3-compatible bucket and served to clients through
// short-lived presigned URLs so the API never proxies file bytes.
package blobstore

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrObjectNotFound is returned when the requested object key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// PresignTTL is how long generated download and upload URLs stay valid.
const PresignTTL = 15 * time.Minute

// MaxObjectSize is the maximum accepted object size in bytes (50 MB).
const MaxObjectSize = 50 * 1024 * 1024

// BlobStore is the contract for document storage backends.
type BlobStore interface {
	// Put uploads an object under the given key.
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	// PresignGet returns a time-limited download URL for an existing object.
	PresignGet(ctx context.Context, key string) (string, error)
	// PresignPut returns a time-limited upload URL for the given key.
	PresignPut(ctx context.Context, key, contentType string) (string, error)
	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// ObjectKey builds a storage key for a document owned by the given user.
// Keys are namespaced per owner so bucket policies can be scoped if needed.
func ObjectKey(ownerID uuid.UUID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return "documents/" + ownerID.String() + "/" + uuid.New().String() + ext
}
