package model

import (
	"github.com/parsey/docpreview/internal/resource"
)

// GenerateRequest represents the request to generate gallery images
type GenerateRequest struct {
	ModelName         string  `json:"modelName" validate:"required"`
	Prompt            string  `json:"prompt" validate:"required,min=10,max=500"`
	NumImages         int     `json:"numImages" validate:"required,min=1,max=8"`
	NumInferenceSteps int     `json:"numInferenceSteps" validate:"omitempty,min=10,max=100"`
	GuidanceScale     float64 `json:"guidanceScale" validate:"omitempty,min=1,max=20"`
	Seed              *int64  `json:"seed,omitempty"`
}

// Backend defaults applied when a field is omitted
const (
	DefaultInferenceSteps = 50
	DefaultGuidanceScale  = 7.5
)

// GalleryImage is one generated image served through a resource handle
type GalleryImage struct {
	Handle   resource.Handle `json:"handle"`
	Seed     int64           `json:"seed"`
	Filename string          `json:"filename"`
}

// GenerateResponse represents the gallery after a generation
type GenerateResponse struct {
	SessionID             string         `json:"sessionId"`
	ModelName             string         `json:"modelName"`
	Prompt                string         `json:"prompt"`
	Images                []GalleryImage `json:"images"`
	GenerationTimeSeconds float64        `json:"generationTimeSeconds"`
}
