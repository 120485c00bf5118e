package model

import (
	"time"

	"github.com/parsey/docpreview/internal/client"
	"github.com/parsey/docpreview/internal/progress"
)

// RunRecord is the stored state of one analysis run
type RunRecord struct {
	ID        string                 `json:"id"`
	SessionID string                 `json:"sessionId"`
	FileName  string                 `json:"fileName"`
	FileSize  int64                  `json:"fileSize"`
	Run       progress.Run           `json:"run"`
	Result    *client.AnalysisResult `json:"result,omitempty"`
	ErrorCode string                 `json:"errorCode,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// Run error codes
const (
	RunErrorBackend       = "BACKEND_ERROR"
	RunErrorTimeout       = "BACKEND_TIMEOUT"
	RunErrorNotScientific = "NOT_SCIENTIFIC_PAPER"
	RunErrorSuperseded    = "SUPERSEDED"
	RunErrorEnqueue       = "ENQUEUE_FAILED"
)

// AnalysisTaskPayload contains the data for an analysis job
type AnalysisTaskPayload struct {
	RunID       string `json:"runId"`
	SessionID   string `json:"sessionId"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// RunStartResponse represents the response when starting an analysis
type RunStartResponse struct {
	RunID     string            `json:"runId"`
	SessionID string            `json:"sessionId"`
	State     progress.RunState `json:"state"`
	CreatedAt time.Time         `json:"createdAt"`
}

// RunStatusResponse represents the current state of an analysis run
type RunStatusResponse struct {
	RunID         string            `json:"runId"`
	State         progress.RunState `json:"state"`
	UploadPercent int               `json:"uploadPercent"`
	Progress      progress.State    `json:"progress"`
	Phase         *progress.Phase   `json:"phase,omitempty"`
	Message       string            `json:"message"`
	Error         *RunError         `json:"error,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RunResultResponse carries the analysis and its rendered report
type RunResultResponse struct {
	RunID                string                 `json:"runId"`
	State                progress.RunState      `json:"state"`
	Result               *client.AnalysisResult `json:"result"`
	ComplianceReportHTML string                 `json:"complianceReportHtml,omitempty"`
	Error                *RunError              `json:"error,omitempty"`
}

// PhasesResponse describes the simulated processing pipeline
type PhasesResponse struct {
	Phases          []progress.Phase `json:"phases"`
	TotalDurationMs int64            `json:"totalDurationMs"`
	TickMs          int64            `json:"tickMs"`
}
