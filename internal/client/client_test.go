package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/parsey/docpreview/internal/config"
)

const analysisJSON = `{
	"document_id": "doc-1",
	"filename": "paper.pdf",
	"analyzed_at": "2025-10-25T14:30:00Z",
	"processing_time_ms": 3452.5,
	"is_scientific_paper": true,
	"classification_confidence": 0.91,
	"paragraphs": [{"index": 0, "text": "Intro", "word_count": 1}],
	"text_analysis": {"total_words": 2100, "unique_words": 600, "word_frequencies": {"data": 3}, "top_words": [{"word": "data", "count": 3}]},
	"compliance": {
		"is_compliant": false, "words_compliant": true, "paragraphs_compliant": false,
		"word_count": 2100, "paragraph_count": 1, "word_difference": 100, "paragraph_difference": -7,
		"recommended_actions": ["add 7 paragraphs"]
	},
	"compliance_report_markdown": "# Report"
}`

func newAnalysisTestClient(t *testing.T, h http.HandlerFunc) *AnalysisClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewAnalysisClient(&config.AnalysisConfig{BaseURL: srv.URL, Timeout: 5})
}

func testFile() File {
	return File{Name: "paper.pdf", ContentType: "application/pdf", Data: []byte(strings.Repeat("x", 64*1024))}
}

func TestAnalyze_Success(t *testing.T) {
	var gotName string
	c := newAnalysisTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/analyze" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
		} else {
			gotName = hdr.Filename
			_, _ = io.Copy(io.Discard, f)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, analysisJSON)
	})

	var (
		mu       sync.Mutex
		progress []int
	)
	result, err := c.Analyze(context.Background(), testFile(), func(pct int) {
		mu.Lock()
		progress = append(progress, pct)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if gotName != "paper.pdf" {
		t.Errorf("expected filename paper.pdf, got %q", gotName)
	}
	if result.DocumentID != "doc-1" || !result.IsScientificPaper || result.Compliance.ParagraphDifference != -7 {
		t.Errorf("unexpected result %+v", result)
	}
	if result.ClassificationConfidence == nil || *result.ClassificationConfidence != 0.91 {
		t.Errorf("expected confidence 0.91")
	}

	if len(progress) == 0 || progress[len(progress)-1] != 100 {
		t.Fatalf("expected upload progress ending at 100, got %v", progress)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] <= progress[i-1] {
			t.Fatalf("upload progress not strictly increasing: %v", progress)
		}
	}
}

func TestAnalyze_StatusMapping(t *testing.T) {
	tests := []struct {
		status  int
		body    string
		kind    ErrorKind
		message string
	}{
		{400, `{"detail": "Formato não suportado: docx"}`, KindInvalidFormat, "Formato não suportado: docx"},
		{400, `{"errors": [{"message": "bad page"}]}`, KindInvalidFormat, "bad page"},
		{400, `not json`, KindInvalidFormat, msgInvalidFormat},
		{413, ``, KindTooLarge, msgTooLarge},
		{415, ``, KindUnsupportedMedia, msgUnsupportedMedia},
		{500, `{"detail": "boom"}`, KindServerError, msgServerError},
		{422, `{"detail": "not a paper"}`, KindUnknown, "not a paper"},
		{503, ``, KindUnknown, msgUnknown},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newAnalysisTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := c.Analyze(context.Background(), testFile(), nil)
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Kind != tt.kind || apiErr.Status != tt.status || apiErr.Message != tt.message {
				t.Errorf("got kind=%s status=%d message=%q", apiErr.Kind, apiErr.Status, apiErr.Message)
			}
		})
	}
}

func TestErrorKindsHaveDistinctMessages(t *testing.T) {
	msgs := []string{msgInvalidFormat, msgTooLarge, msgUnsupportedMedia, msgServerError, msgTimeout, msgConnection, msgUnknown}
	seen := make(map[string]bool)
	for _, m := range msgs {
		if seen[m] {
			t.Errorf("duplicate message %q", m)
		}
		seen[m] = true
	}
}

func TestAnalyze_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c := NewAnalysisClient(&config.AnalysisConfig{BaseURL: srv.URL})
	c.httpClient.Timeout = 50 * time.Millisecond

	_, err := c.Analyze(context.Background(), testFile(), nil)
	if !IsKind(err, KindTimeout) {
		t.Errorf("expected timeout, got %v", err)
	}
}

func TestAnalyze_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewAnalysisClient(&config.AnalysisConfig{BaseURL: url, Timeout: 5})
	_, err := c.Analyze(context.Background(), testFile(), nil)
	if !IsKind(err, KindConnection) {
		t.Errorf("expected connection error, got %v", err)
	}
}

func TestAnalyze_SchemaMismatch(t *testing.T) {
	c := newAnalysisTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = io.WriteString(w, `{"document_id": "x"}`)
	})

	_, err := c.Analyze(context.Background(), testFile(), nil)
	var schemaErr *SchemaMismatchError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaMismatchError, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	c := newAnalysisTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/classify" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = io.WriteString(w, `{"filename": "paper.pdf", "is_scientific_paper": false, "confidence": 0.2}`)
	})

	res, err := c.Classify(context.Background(), testFile())
	if err != nil {
		t.Fatal(err)
	}
	if res.IsScientificPaper || res.Confidence != 0.2 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestHealth(t *testing.T) {
	c := newAnalysisTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"status": "healthy", "version": "1.0.0"}`)
	})

	status, err := c.Health(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if (*status)["status"] != "healthy" {
		t.Errorf("unexpected health %v", *status)
	}
}
