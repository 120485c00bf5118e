package model

import (
	"github.com/parsey/docpreview/internal/preview"
)

// PreviewResponse is the preview slot state returned to the viewer
type PreviewResponse struct {
	SessionID string          `json:"sessionId"`
	Preview   preview.Preview `json:"preview"`
	Zoom      preview.Zoom    `json:"zoom"`
}

// ZoomRequest represents a viewer zoom action
type ZoomRequest struct {
	Action string `json:"action" validate:"required,oneof=in out reset"`
}

type ZoomResponse struct {
	SessionID string       `json:"sessionId"`
	Zoom      preview.Zoom `json:"zoom"`
}

type TeardownResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
}
