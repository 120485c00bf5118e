package model

import (
	"github.com/parsey/docpreview/internal/progress"
)

// WebSocket message types
const (
	WSMessageTypeStatus   = "status"
	WSMessageTypeUpload   = "upload"
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSStatusMessage is the first message of a stream: the run as stored
type WSStatusMessage struct {
	Type   string             `json:"type"`
	RunID  string             `json:"runId"`
	Status *RunStatusResponse `json:"status"`
}

// WSUploadMessage reports upload progress of a run
type WSUploadMessage struct {
	Type    string            `json:"type"`
	RunID   string            `json:"runId"`
	State   progress.RunState `json:"state"`
	Percent int               `json:"percent"`
}

// WSProgressMessage reports a processing estimate
type WSProgressMessage struct {
	Type     string            `json:"type"`
	RunID    string            `json:"runId"`
	State    progress.RunState `json:"state"`
	Progress progress.State    `json:"progress"`
}

// WSCompleteMessage represents run completion
type WSCompleteMessage struct {
	Type   string      `json:"type"`
	RunID  string      `json:"runId"`
	Result interface{} `json:"result"`
}

// WSErrorMessage represents a run failure
type WSErrorMessage struct {
	Type  string   `json:"type"`
	RunID string   `json:"runId"`
	Error RunError `json:"error"`
}
