package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/parsey/docpreview/internal/config"
)

// ImageGenerator defines the interface for the image generation backend
type ImageGenerator interface {
	Health(ctx context.Context) (*HealthStatus, error)
	ListModels(ctx context.Context) ([]ModelInfo, error)
	PromptExamples(ctx context.Context) ([]PromptExample, error)
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// ModelInfo describes a diffusion model the backend can load
type ModelInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Path        string `json:"path"`
	Available   bool   `json:"available"`
}

type PromptExample struct {
	Category    string `json:"category"`
	Title       string `json:"title"`
	Prompt      string `json:"prompt"`
	Description string `json:"description"`
}

// GenerateRequest represents the request for image generation
type GenerateRequest struct {
	ModelName         string  `json:"model_name"`
	Prompt            string  `json:"prompt"`
	NumImages         int     `json:"num_images"`
	NumInferenceSteps int     `json:"num_inference_steps,omitempty"`
	GuidanceScale     float64 `json:"guidance_scale,omitempty"`
	Seed              *int64  `json:"seed,omitempty"`
}

// GeneratedImage carries one base64-encoded PNG
type GeneratedImage struct {
	ImageData string `json:"image_data"`
	Seed      int64  `json:"seed"`
	Filename  string `json:"filename"`
}

// GenerateResponse represents the response from image generation
type GenerateResponse struct {
	Success               bool                   `json:"success"`
	ModelName             string                 `json:"model_name"`
	Prompt                string                 `json:"prompt"`
	NumImages             int                    `json:"num_images"`
	Images                []GeneratedImage       `json:"images"`
	GenerationTimeSeconds float64                `json:"generation_time_seconds"`
	Metadata              map[string]interface{} `json:"metadata"`
}

// GenerationClient implements ImageGenerator for the diffusion API
type GenerationClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewGenerationClient creates a new image generation client
func NewGenerationClient(cfg *config.GenerationConfig) *GenerationClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &GenerationClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
	}
}

func (c *GenerationClient) Health(ctx context.Context) (*HealthStatus, error) {
	return getHealth(ctx, c.httpClient, c.baseURL+"/health")
}

// ListModels lists the models the backend knows about
func (c *GenerationClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var models []ModelInfo
	if err := c.get(ctx, "/api/models", &models); err != nil {
		return nil, err
	}
	return models, nil
}

// PromptExamples returns the backend's curated prompts
func (c *GenerationClient) PromptExamples(ctx context.Context) ([]PromptExample, error) {
	var examples []PromptExample
	if err := c.get(ctx, "/api/prompts/examples", &examples); err != nil {
		return nil, err
	}
	return examples, nil
}

// Generate asks the backend for a batch of images
func (c *GenerationClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	log.Printf("[generation] model=%s images=%d steps=%d", req.ModelName, req.NumImages, req.NumInferenceSteps)
	respBody, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	return ParseGeneration(respBody)
}

func (c *GenerationClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	respBody, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return &SchemaMismatchError{Field: "$", Reason: err.Error()}
	}
	return nil
}

func (c *GenerationClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[generation] %s failed with status %d", req.URL.Path, resp.StatusCode)
		return nil, statusError(resp.StatusCode, respBody)
	}
	return respBody, nil
}
