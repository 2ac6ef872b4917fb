package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/bucketbridge/bucketbridge/internal/database"
)

const (
	defaultDeliveryLimit = 20
	maxDeliveryLimit     = 100
	previewLength        = 200
)

// DeliveryLister lists recorded webhook deliveries
type DeliveryLister interface {
	ListRecentDeliveries(ctx context.Context, limit int) ([]*database.WebhookDelivery, error)
}

// DeliveryResponse is the JSON view of a webhook delivery
type DeliveryResponse struct {
	ID            string    `json:"id"`
	RepositoryURL string    `json:"repository_url"`
	Ref           string    `json:"ref,omitempty"`
	AfterSHA      string    `json:"after_sha,omitempty"`
	StatusCode    int       `json:"status_code"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
	JobsTriggered int       `json:"jobs_triggered"`
	Preview       string    `json:"payload_preview"`
	CreatedAt     time.Time `json:"created_at"`
}

// DeliveriesHandler serves GET /gitbucket-deliveries
type DeliveriesHandler struct {
	store  DeliveryLister
	logger *slog.Logger
}

// NewDeliveriesHandler creates a delivery log handler
func NewDeliveriesHandler(store DeliveryLister, logger *slog.Logger) *DeliveriesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeliveriesHandler{store: store, logger: logger}
}

// ServeHTTP lists recent deliveries, newest first. ?limit= caps the count.
func (h *DeliveriesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit := defaultDeliveryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxDeliveryLimit)
	}

	deliveries, err := h.store.ListRecentDeliveries(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list webhook deliveries", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}

	resp := make([]DeliveryResponse, 0, len(deliveries))
	for _, d := range deliveries {
		item := DeliveryResponse{
			ID:            d.ID,
			RepositoryURL: d.RepositoryURL,
			StatusCode:    d.StatusCode,
			Success:       d.IsSuccess(),
			JobsTriggered: d.JobsTriggered,
			Preview:       d.PayloadPreview(previewLength),
			CreatedAt:     d.CreatedAt,
		}
		if d.Ref != nil {
			item.Ref = *d.Ref
		}
		if d.AfterSHA != nil {
			item.AfterSHA = *d.AfterSHA
		}
		if d.ErrorMessage != nil {
			item.Error = *d.ErrorMessage
		}
		resp = append(resp, item)
	}
	writeJSON(w, http.StatusOK, resp)
}
