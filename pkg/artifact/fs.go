package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// FSSink stores blobs content-addressed under a root directory:
// <root>/<aa>/<sha256>. Writes go through a temp file plus rename so a crash
// mid-write leaves either nothing or a complete blob.
type FSSink struct {
	root string
}

// NewFSSink creates the root directory if needed.
func NewFSSink(root string) (*FSSink, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact root: %w", err)
	}
	return &FSSink{root: root}, nil
}

// Put implements Sink. The key participates only in the pointer, not the
// layout; identical content is stored once.
func (s *FSSink) Put(ctx context.Context, key string, blob []byte) (Pointer, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sum := sha256.Sum256(blob)
	digest := hex.EncodeToString(sum[:])
	dir := filepath.Join(s.root, digest[:2])
	final := filepath.Join(dir, digest)

	if _, err := os.Stat(final); err == nil {
		return Pointer(digest), nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(blob); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return Pointer(digest), nil
}

// Get implements Sink.
func (s *FSSink) Get(ctx context.Context, ptr Pointer) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest := string(ptr)
	if len(digest) < 3 {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.root, digest[:2], digest))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return data, nil
}
