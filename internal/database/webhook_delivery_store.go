package database

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MaxStoredPayload is the number of payload bytes kept per delivery
const MaxStoredPayload = 64 * 1024

// WebhookDelivery is one inbound GitBucket push webhook
type WebhookDelivery struct {
	ID            string    `json:"id"`
	RepositoryURL string    `json:"repository_url"`
	Ref           *string   `json:"ref,omitempty"`
	AfterSHA      *string   `json:"after_sha,omitempty"`
	Payload       string    `json:"payload"`
	StatusCode    int       `json:"status_code"`
	ErrorMessage  *string   `json:"error_message,omitempty"`
	JobsTriggered int       `json:"jobs_triggered"`
	CreatedAt     time.Time `json:"created_at"`
}

// IsSuccess returns true if the delivery was successful (2xx status code)
func (d *WebhookDelivery) IsSuccess() bool {
	return d.StatusCode >= 200 && d.StatusCode < 300
}

// PayloadPreview returns a truncated preview of the payload
func (d *WebhookDelivery) PayloadPreview(maxLen int) string {
	if len(d.Payload) > maxLen {
		return d.Payload[:maxLen] + "..."
	}
	return d.Payload
}

// WebhookDeliveryStore handles webhook delivery persistence
type WebhookDeliveryStore struct {
	db DBTX
}

// NewWebhookDeliveryStore creates a new webhook delivery store
func NewWebhookDeliveryStore(pool *Pool) *WebhookDeliveryStore {
	return &WebhookDeliveryStore{db: pool}
}

// NewWebhookDeliveryStoreWithDB creates a webhook delivery store with a custom DBTX implementation.
// This is primarily used for testing with pgxmock.
func NewWebhookDeliveryStoreWithDB(db DBTX) *WebhookDeliveryStore {
	return &WebhookDeliveryStore{db: db}
}

// RecordDeliveryParams holds parameters for recording a webhook delivery
type RecordDeliveryParams struct {
	RepositoryURL string
	Ref           *string
	AfterSHA      *string // last pushed commit
	Payload       []byte
	StatusCode    int
	ErrorMessage  *string
	JobsTriggered int
}

// RecordDelivery stores a delivery, truncating the payload to MaxStoredPayload bytes
func (s *WebhookDeliveryStore) RecordDelivery(ctx context.Context, params RecordDeliveryParams) (*WebhookDelivery, error) {
	payload := params.Payload
	if len(payload) > MaxStoredPayload {
		payload = payload[:MaxStoredPayload]
	}

	var d WebhookDelivery
	err := s.db.QueryRow(ctx,
		`INSERT INTO webhook_deliveries (id, repository_url, ref, after_sha, payload, status_code, error_message, jobs_triggered)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, repository_url, ref, after_sha, payload, status_code, error_message, jobs_triggered, created_at`,
		uuid.New().String(), params.RepositoryURL, params.Ref, params.AfterSHA, string(payload),
		params.StatusCode, params.ErrorMessage, params.JobsTriggered,
	).Scan(&d.ID, &d.RepositoryURL, &d.Ref, &d.AfterSHA, &d.Payload,
		&d.StatusCode, &d.ErrorMessage, &d.JobsTriggered, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListRecentDeliveries returns the newest deliveries first
func (s *WebhookDeliveryStore) ListRecentDeliveries(ctx context.Context, limit int) ([]*WebhookDelivery, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, repository_url, ref, after_sha, payload, status_code, error_message, jobs_triggered, created_at
		 FROM webhook_deliveries
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []*WebhookDelivery
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.RepositoryURL, &d.Ref, &d.AfterSHA, &d.Payload,
			&d.StatusCode, &d.ErrorMessage, &d.JobsTriggered, &d.CreatedAt); err != nil {
			return nil, err
		}
		deliveries = append(deliveries, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return deliveries, nil
}
