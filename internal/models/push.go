// Package models holds the data types shared across the bridge: push webhook
// payloads, job configuration and build reports.
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPayload is returned when a webhook body is not a usable push event
var ErrInvalidPayload = errors.New("invalid push payload")

// User identifies a pusher or repository owner
type User struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Repository is the repository section of a push payload
type Repository struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
	ForkCount   int    `json:"forks"`
	IsPrivate   bool   `json:"private"`
	Owner       *User  `json:"owner"`
}

// PushEvent represents a GitBucket push webhook.
// Pusher is nil for payloads sent by older GitBucket versions.
type PushEvent struct {
	Pusher     *User       `json:"pusher"`
	Ref        string      `json:"ref"`
	Commits    []Commit    `json:"commits"`
	Repository *Repository `json:"repository"`
}

// PusherName returns the trimmed pusher name, or "" when the pusher is unknown
func (e *PushEvent) PusherName() string {
	if e.Pusher == nil {
		return ""
	}
	return strings.TrimSpace(e.Pusher.Name)
}

// LastCommit returns the most recent commit of the push, if any
func (e *PushEvent) LastCommit() (Commit, bool) {
	if len(e.Commits) == 0 {
		return Commit{}, false
	}
	return e.Commits[len(e.Commits)-1], true
}

// RepositoryURL returns the repository URL, or "" when absent
func (e *PushEvent) RepositoryURL() string {
	if e.Repository == nil {
		return ""
	}
	return e.Repository.URL
}

// ParsePushEvent decodes a JSON webhook body into a PushEvent
func ParsePushEvent(payload []byte) (*PushEvent, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%w: payload should not be null", ErrInvalidPayload)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	repo, ok := fields["repository"]
	if !ok || !isJSONObject(repo) {
		return nil, fmt.Errorf("%w: missing repository", ErrInvalidPayload)
	}

	var event PushEvent
	if err := json.Unmarshal(trimmed, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &event, nil
}

// PushEventFromValue converts an already decoded JSON value (for example a
// map[string]any) into a PushEvent
func PushEventFromValue(v any) (*PushEvent, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: payload should not be null", ErrInvalidPayload)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return ParsePushEvent(data)
}

func isJSONObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
