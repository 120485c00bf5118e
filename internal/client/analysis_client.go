package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/parsey/docpreview/internal/config"
)

// DocumentAnalyzer defines the interface for document analysis operations
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, file File, onUpload func(pct int)) (*AnalysisResult, error)
	Classify(ctx context.Context, file File) (*ClassificationResult, error)
	Health(ctx context.Context) (*HealthStatus, error)
}

// File is an upload forwarded to a backend.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Paragraph is one detected paragraph region
type Paragraph struct {
	Index      int          `json:"index"`
	Text       string       `json:"text"`
	WordCount  int          `json:"word_count"`
	Confidence *float64     `json:"confidence,omitempty"`
	BBox       *BoundingBox `json:"bbox,omitempty"`
}

type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

type WordFrequency struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// TextAnalysis holds the word statistics of the document
type TextAnalysis struct {
	TotalWords      int             `json:"total_words"`
	UniqueWords     int             `json:"unique_words"`
	WordFrequencies map[string]int  `json:"word_frequencies"`
	TopWords        []WordFrequency `json:"top_words"`
}

// Compliance is the result of the word and paragraph count rules
type Compliance struct {
	IsCompliant         bool     `json:"is_compliant"`
	WordsCompliant      bool     `json:"words_compliant"`
	ParagraphsCompliant bool     `json:"paragraphs_compliant"`
	WordCount           int      `json:"word_count"`
	ParagraphCount      int      `json:"paragraph_count"`
	WordDifference      int      `json:"word_difference"`
	ParagraphDifference int      `json:"paragraph_difference"`
	RecommendedActions  []string `json:"recommended_actions"`
}

// AnalysisResult is the response of the unified analyze endpoint
type AnalysisResult struct {
	DocumentID               string       `json:"document_id"`
	Filename                 string       `json:"filename"`
	AnalyzedAt               string       `json:"analyzed_at"`
	ProcessingTimeMs         float64      `json:"processing_time_ms"`
	IsScientificPaper        bool         `json:"is_scientific_paper"`
	ClassificationConfidence *float64     `json:"classification_confidence"`
	Paragraphs               []Paragraph  `json:"paragraphs"`
	TextAnalysis             TextAnalysis `json:"text_analysis"`
	Compliance               Compliance   `json:"compliance"`
	ComplianceReportMarkdown string       `json:"compliance_report_markdown"`
}

// ClassificationResult is the response of the classify-only endpoint
type ClassificationResult struct {
	Filename          string  `json:"filename"`
	IsScientificPaper bool    `json:"is_scientific_paper"`
	Confidence        float64 `json:"confidence"`
}

// HealthStatus is a backend health payload. Fields differ per backend.
type HealthStatus map[string]interface{}

// AnalysisClient implements DocumentAnalyzer for the document analysis API
type AnalysisClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewAnalysisClient creates a new document analysis client
func NewAnalysisClient(cfg *config.AnalysisConfig) *AnalysisClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &AnalysisClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
	}
}

// Analyze runs classification, paragraph detection, text analysis and
// compliance in one call. onUpload receives upload progress 0..100 and
// always sees 100 before the response is parsed.
func (c *AnalysisClient) Analyze(ctx context.Context, file File, onUpload func(pct int)) (*AnalysisResult, error) {
	body, err := c.postFile(ctx, "/api/v1/analyze", file, onUpload)
	if err != nil {
		return nil, err
	}
	return ParseAnalysis(body)
}

// Classify only checks whether the document is a scientific paper
func (c *AnalysisClient) Classify(ctx context.Context, file File) (*ClassificationResult, error) {
	body, err := c.postFile(ctx, "/api/v1/classify", file, nil)
	if err != nil {
		return nil, err
	}

	var result ClassificationResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &SchemaMismatchError{Field: "$", Reason: err.Error()}
	}
	return &result, nil
}

// Health checks if the analysis service is available
func (c *AnalysisClient) Health(ctx context.Context) (*HealthStatus, error) {
	return getHealth(ctx, c.httpClient, c.baseURL+"/api/v1/health")
}

func (c *AnalysisClient) postFile(ctx context.Context, endpoint string, file File, onUpload func(pct int)) ([]byte, error) {
	payload, contentType, err := multipartBody(file)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}

	progress := newProgressReader(payload, onUpload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, progress)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.ContentLength = int64(len(payload))
	req.Header.Set("Content-Type", contentType)

	log.Printf("[analysis] POST %s (%s, %d bytes)", endpoint, file.Name, len(file.Data))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()
	progress.finish()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[analysis] %s failed with status %d", endpoint, resp.StatusCode)
		return nil, statusError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

func multipartBody(file File) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func getHealth(ctx context.Context, hc *http.Client, url string) (*HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, body)
	}

	var status HealthStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, &SchemaMismatchError{Field: "$", Reason: err.Error()}
	}
	return &status, nil
}
