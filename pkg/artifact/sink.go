// Package artifact persists raw prompt/output/thinking blobs per invocation
// and provides the recorder that guarantees artifacts are durable before an
// invocation is marked complete.
package artifact

import (
	"context"
	"errors"
)

// Pointer references a stored blob. Opaque to callers.
type Pointer string

// ErrNotFound indicates the pointer references no stored blob.
var ErrNotFound = errors.New("artifact not found")

// ErrUnavailable indicates the sink could not serve the request after
// best-effort retries.
var ErrUnavailable = errors.New("artifact sink unavailable")

// Sink is an append-only blob store. Blob content is opaque; the sink must
// tolerate concurrent writers.
type Sink interface {
	// Put stores blob under a caller-supplied key and returns a pointer.
	// Storing the same key twice is allowed; the pointer stays valid.
	Put(ctx context.Context, key string, blob []byte) (Pointer, error)

	// Get retrieves a blob by pointer.
	Get(ctx context.Context, ptr Pointer) ([]byte, error)
}
