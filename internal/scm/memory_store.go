package scm

import (
	"context"
	"sync"
)

// MemoryHeadStore keeps polled heads in process memory
type MemoryHeadStore struct {
	mu    sync.Mutex
	heads map[string]map[string]string
}

// NewMemoryHeadStore creates an empty store
func NewMemoryHeadStore() *MemoryHeadStore {
	return &MemoryHeadStore{heads: make(map[string]map[string]string)}
}

func headKey(jobName, remoteURL string) string {
	return jobName + "\x00" + remoteURL
}

// GetHeads implements HeadStore
func (s *MemoryHeadStore) GetHeads(ctx context.Context, jobName, remoteURL string) (map[string]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.heads[headKey(jobName, remoteURL)]
	if !ok {
		return nil, false, nil
	}
	heads := make(map[string]string, len(stored))
	for ref, sha := range stored {
		heads[ref] = sha
	}
	return heads, true, nil
}

// SaveHeads implements HeadStore
func (s *MemoryHeadStore) SaveHeads(ctx context.Context, jobName, remoteURL string, heads map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make(map[string]string, len(heads))
	for ref, sha := range heads {
		stored[ref] = sha
	}
	s.heads[headKey(jobName, remoteURL)] = stored
	return nil
}
