package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/bucketbridge/bucketbridge/internal/database"
	"github.com/bucketbridge/bucketbridge/internal/models"
)

// MaxPayloadBytes caps the webhook request body
const MaxPayloadBytes = 5 << 20

// Dispatcher hands a push event to the matching jobs
type Dispatcher interface {
	Dispatch(ctx context.Context, event *models.PushEvent) (int, error)
}

// DeliveryRecorder persists webhook deliveries
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, params database.RecordDeliveryParams) (*database.WebhookDelivery, error)
}

// WebhookResponse is the JSON response for accepted webhooks
type WebhookResponse struct {
	Status        string `json:"status"`
	JobsTriggered int    `json:"jobs_triggered"`
}

// WebhookHandler receives GitBucket push notifications
type WebhookHandler struct {
	dispatcher    Dispatcher
	deliveryStore DeliveryRecorder // optional
	logger        *slog.Logger
}

// NewWebhookHandler creates a webhook handler
func NewWebhookHandler(dispatcher Dispatcher, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{dispatcher: dispatcher, logger: logger}
}

// WithDeliveryStore adds a store for tracking webhook deliveries
func (h *WebhookHandler) WithDeliveryStore(store DeliveryRecorder) *WebhookHandler {
	h.deliveryStore = store
	return h
}

// ServeHTTP handles POST /{webhook-path}/
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxPayloadBytes)
	payload, err := readPayload(r)
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		h.recordDelivery(r.Context(), nil, payload, status, 0, err)
		writeError(w, status, err.Error())
		return
	}

	event, err := models.ParsePushEvent(payload)
	if err != nil {
		h.logger.Warn("rejected webhook payload", "error", err)
		h.recordDelivery(r.Context(), nil, payload, http.StatusBadRequest, 0, err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info("received push", "repository", event.RepositoryURL(), "ref", event.Ref, "pusher", event.PusherName())

	triggered, err := h.dispatcher.Dispatch(r.Context(), event)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrInvalidPayload) {
			status = http.StatusBadRequest
		}
		h.logger.Error("dispatch failed", "repository", event.RepositoryURL(), "error", err)
		h.recordDelivery(r.Context(), event, payload, status, 0, err)
		writeError(w, status, "failed to dispatch push")
		return
	}

	h.recordDelivery(r.Context(), event, payload, http.StatusOK, triggered, nil)
	writeJSON(w, http.StatusOK, WebhookResponse{Status: "ok", JobsTriggered: triggered})
}

var errMissingPayload = errors.New("payload should not be null")

// readPayload returns the push JSON, either the raw body for JSON requests
// or the "payload" form field otherwise
func readPayload(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		if len(body) == 0 {
			return nil, errMissingPayload
		}
		return body, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	if _, ok := r.PostForm["payload"]; !ok {
		return nil, errMissingPayload
	}
	return []byte(r.PostForm.Get("payload")), nil
}

// recordDelivery stores the delivery if a store is configured. Failures are
// logged and otherwise ignored.
func (h *WebhookHandler) recordDelivery(ctx context.Context, event *models.PushEvent, payload []byte, status, triggered int, deliveryErr error) {
	if h.deliveryStore == nil {
		return
	}

	params := database.RecordDeliveryParams{
		Payload:       payload,
		StatusCode:    status,
		JobsTriggered: triggered,
	}
	if event != nil {
		params.RepositoryURL = event.RepositoryURL()
		if event.Ref != "" {
			ref := event.Ref
			params.Ref = &ref
		}
		if commit, ok := event.LastCommit(); ok {
			sha := commit.ID
			params.AfterSHA = &sha
		}
	}
	if deliveryErr != nil {
		msg := deliveryErr.Error()
		params.ErrorMessage = &msg
	}

	if _, err := h.deliveryStore.RecordDelivery(ctx, params); err != nil {
		h.logger.Warn("failed to record webhook delivery", "error", err)
	}
}
