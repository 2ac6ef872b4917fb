package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// PollStateStore remembers the heads seen by the git poller per job remote.
// It implements scm.HeadStore.
type PollStateStore struct {
	db DBTX
}

// NewPollStateStore creates a new poll state store
func NewPollStateStore(pool *Pool) *PollStateStore {
	return &PollStateStore{db: pool}
}

// NewPollStateStoreWithDB creates a poll state store with a custom DBTX implementation
func NewPollStateStoreWithDB(db DBTX) *PollStateStore {
	return &PollStateStore{db: db}
}

// GetHeads returns the stored heads; ok is false when nothing was stored
func (s *PollStateStore) GetHeads(ctx context.Context, jobName, remoteURL string) (map[string]string, bool, error) {
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT heads FROM poll_heads WHERE job_name = $1 AND remote_url = $2`,
		jobName, remoteURL,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load heads: %w", err)
	}

	heads := map[string]string{}
	if err := json.Unmarshal(raw, &heads); err != nil {
		return nil, false, fmt.Errorf("failed to decode heads: %w", err)
	}
	return heads, true, nil
}

// SaveHeads replaces the stored heads of a job remote
func (s *PollStateStore) SaveHeads(ctx context.Context, jobName, remoteURL string, heads map[string]string) error {
	if heads == nil {
		heads = map[string]string{}
	}
	raw, err := json.Marshal(heads)
	if err != nil {
		return fmt.Errorf("failed to encode heads: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO poll_heads (job_name, remote_url, heads, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (job_name, remote_url) DO UPDATE SET heads = EXCLUDED.heads, updated_at = NOW()`,
		jobName, remoteURL, raw,
	)
	if err != nil {
		return fmt.Errorf("failed to save heads: %w", err)
	}
	return nil
}
