package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/bucketbridge/bucketbridge/internal/database"
	"github.com/bucketbridge/bucketbridge/internal/models"
	"github.com/bucketbridge/bucketbridge/internal/services"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockDispatcher records dispatched events
type mockDispatcher struct {
	mu        sync.Mutex
	events    []*models.PushEvent
	triggered int
	err       error
}

func (m *mockDispatcher) Dispatch(ctx context.Context, event *models.PushEvent) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.triggered, m.err
}

// mockDeliveryStore records and lists deliveries in memory
type mockDeliveryStore struct {
	mu         sync.Mutex
	recorded   []database.RecordDeliveryParams
	deliveries []*database.WebhookDelivery
	recordErr  error
	listErr    error
	lastLimit  int
}

func (m *mockDeliveryStore) RecordDelivery(ctx context.Context, params database.RecordDeliveryParams) (*database.WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorded = append(m.recorded, params)
	if m.recordErr != nil {
		return nil, m.recordErr
	}
	return &database.WebhookDelivery{ID: fmt.Sprintf("d-%d", len(m.recorded))}, nil
}

func (m *mockDeliveryStore) ListRecentDeliveries(ctx context.Context, limit int) ([]*database.WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	return m.deliveries, m.listErr
}

// mockJobs is a name-indexed JobLookup
type mockJobs map[string]*models.Job

func (m mockJobs) GetJob(ctx context.Context, name string) (*models.Job, error) {
	if job, ok := m[name]; ok {
		return job, nil
	}
	return nil, fmt.Errorf("%w: %s", services.ErrJobNotFound, name)
}

// mockLogs serves poll logs from memory
type mockLogs map[string]string

func (m mockLogs) Read(jobName string) (string, error) {
	if text, ok := m[jobName]; ok {
		return text, nil
	}
	return "", fmt.Errorf("read polling log: %w", os.ErrNotExist)
}
