package models

// ChangeLogEntry is one commit recorded in a build's change set
type ChangeLogEntry struct {
	ID  string `json:"id"`
	Msg string `json:"msg"`
}

// Build is a finished build as reported by the build host.
// URL and StatusIcon are relative to the host's root URL.
type Build struct {
	ID             string           `json:"id"`
	Number         int              `json:"number"`
	Result         string           `json:"result"`
	URL            string           `json:"url"`
	StatusIcon     string           `json:"status_icon"`
	JobDisplayName string           `json:"job_display_name"`
	Changes        []ChangeLogEntry `json:"changes"`
}
