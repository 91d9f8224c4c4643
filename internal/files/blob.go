package files

import (
	"context"
	"time"
)

// ObjectInfo is one stored blob as reported by a listing.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Disposition selects how a presigned link serves the object.
type Disposition string

const (
	DispositionInline     Disposition = "inline"
	DispositionAttachment Disposition = "attachment"
)

// BlobStore is the object-storage surface the attachment service depends on.
// Keys are opaque to implementations; the service owns the key layout.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Copy(ctx context.Context, srcKey, dstKey string) error
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key, filename string, disposition Disposition, ttl time.Duration) (string, error)
	Health(ctx context.Context) error
}
