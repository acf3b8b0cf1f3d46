package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// MemorySink is an in-memory Sink for tests and single-process runs.
type MemorySink struct {
	mu    sync.RWMutex
	blobs map[Pointer][]byte
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{blobs: make(map[Pointer][]byte)}
}

// Put implements Sink.
func (s *MemorySink) Put(_ context.Context, _ string, blob []byte) (Pointer, error) {
	sum := sha256.Sum256(blob)
	ptr := Pointer(hex.EncodeToString(sum[:]))

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[ptr]; !ok {
		s.blobs[ptr] = append([]byte(nil), blob...)
	}
	return ptr, nil
}

// Get implements Sink.
func (s *MemorySink) Get(_ context.Context, ptr Pointer) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[ptr]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), blob...), nil
}

// Len returns the number of stored blobs.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
