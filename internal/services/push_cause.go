package services

// PushCause explains why a build was started by a push
type PushCause struct {
	PushedBy   string
	PollingLog string
}

// NewPushCause creates a cause; pushedBy may be empty for older payloads
func NewPushCause(pushedBy, pollingLog string) *PushCause {
	return &PushCause{PushedBy: pushedBy, PollingLog: pollingLog}
}

// ShortDescription is the one-line text shown on the build
func (c *PushCause) ShortDescription() string {
	if c.PushedBy == "" {
		return "Started by GitBucket push"
	}
	return "Started by GitBucket push by " + c.PushedBy
}
