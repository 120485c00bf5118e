package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/parsey/docpreview/internal/client"
	"github.com/parsey/docpreview/internal/config"
	"github.com/parsey/docpreview/internal/model"
	"github.com/parsey/docpreview/internal/progress"
)

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestAnalysis(t *testing.T) (*AnalysisService, *fakeQueue, *testClock) {
	t.Helper()
	est, err := NewEstimator(&config.ProgressConfig{TotalDurationMs: 10000, Phases: config.DefaultPhases})
	if err != nil {
		t.Fatal(err)
	}
	q := &fakeQueue{}
	clock := &testClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewAnalysisService(NewMemoryRunStore(), q, est, testUploadPolicy(), 100*time.Millisecond, time.Minute)
	svc.now = clock.now
	return svc, q, clock
}

func TestAnalysisService_Start(t *testing.T) {
	ctx := context.Background()
	svc, q, _ := newTestAnalysis(t)

	resp, err := svc.Start(ctx, "s1", pdfFile("paper.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.State != progress.RunUploading {
		t.Errorf("expected uploading, got %s", resp.State)
	}
	if len(q.tasks) != 1 || q.tasks[0].Type() != TaskTypeAnalysis {
		t.Fatalf("expected one analysis task, got %d", len(q.tasks))
	}

	var payload model.AnalysisTaskPayload
	if err := json.Unmarshal(q.tasks[0].Payload(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.RunID != resp.RunID || payload.FileName != "paper.pdf" {
		t.Errorf("unexpected payload %+v", payload)
	}
	if !svc.IsCurrent(ctx, resp.RunID) {
		t.Error("expected new run to be current")
	}
}

func TestAnalysisService_StartRejectsUpload(t *testing.T) {
	svc, q, _ := newTestAnalysis(t)

	_, err := svc.Start(context.Background(), "s1", pdfFile("paper.docx"))
	if !errors.Is(err, ErrUnsupportedExtension) {
		t.Errorf("expected ErrUnsupportedExtension, got %v", err)
	}
	if len(q.tasks) != 0 {
		t.Error("expected nothing enqueued")
	}
}

func TestAnalysisService_EnqueueFailureFailsRun(t *testing.T) {
	ctx := context.Background()
	svc, q, _ := newTestAnalysis(t)
	q.err = errors.New("redis down")

	if _, err := svc.Start(ctx, "s1", pdfFile("paper.pdf")); err == nil {
		t.Fatal("expected error")
	}
	runID, _ := svc.runs.CurrentRun(ctx, "s1")
	st, err := svc.Status(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if st.State != progress.RunErrored || st.Error == nil || st.Error.Code != model.RunErrorEnqueue {
		t.Errorf("expected enqueue failure, got %+v", st)
	}
}

func TestAnalysisService_SupersedesPreviousRun(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestAnalysis(t)

	first, err := svc.Start(ctx, "s1", pdfFile("a.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Start(ctx, "s1", pdfFile("b.pdf"))
	if err != nil {
		t.Fatal(err)
	}

	if svc.IsCurrent(ctx, first.RunID) {
		t.Error("first run should no longer be current")
	}
	st, _ := svc.Status(ctx, first.RunID)
	if st.State != progress.RunErrored || st.Error.Code != model.RunErrorSuperseded {
		t.Errorf("expected first run superseded, got %+v", st)
	}
	if !svc.IsCurrent(ctx, second.RunID) {
		t.Error("second run should be current")
	}

	// A late worker update for the superseded run is rejected.
	if _, err := svc.Complete(ctx, first.RunID, &client.AnalysisResult{IsScientificPaper: true}); !errors.Is(err, progress.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestAnalysisService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestAnalysis(t)

	start, err := svc.Start(ctx, "s1", pdfFile("paper.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	id := start.RunID

	if _, moved, err := svc.MarkUploading(ctx, id, 40); err != nil || moved {
		t.Fatalf("upload 40: moved=%v err=%v", moved, err)
	}
	st, _ := svc.Status(ctx, id)
	if st.UploadPercent != 40 || !strings.Contains(st.Message, "40%") {
		t.Errorf("unexpected upload status %+v", st)
	}

	if _, moved, err := svc.MarkUploading(ctx, id, 100); err != nil || !moved {
		t.Fatalf("upload 100: moved=%v err=%v", moved, err)
	}
	if _, moved, err := svc.MarkProcessing(ctx, id); err != nil || moved {
		t.Fatalf("MarkProcessing on processing run: moved=%v err=%v", moved, err)
	}

	clock.advance(5 * time.Second)
	st, _ = svc.Status(ctx, id)
	if st.State != progress.RunProcessing || st.Progress.OverallPercent != 50 {
		t.Errorf("expected 50%% processing, got %+v", st.Progress)
	}
	if st.Phase == nil || st.Phase.ID != "paragraphs" {
		t.Errorf("expected paragraphs phase, got %+v", st.Phase)
	}

	if _, err := svc.Result(ctx, id); !errors.Is(err, ErrRunNotFinished) {
		t.Errorf("expected ErrRunNotFinished, got %v", err)
	}

	result := &client.AnalysisResult{
		IsScientificPaper:        true,
		ComplianceReportMarkdown: "# Report\n\n| rule | ok |\n|---|---|\n| title | yes |\n",
	}
	if _, err := svc.Complete(ctx, id, result); err != nil {
		t.Fatal(err)
	}

	res, err := svc.Result(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != progress.RunCompleted || res.Error != nil {
		t.Errorf("unexpected result %+v", res)
	}
	if !strings.Contains(res.ComplianceReportHTML, "<h1>Report</h1>") || !strings.Contains(res.ComplianceReportHTML, "<table>") {
		t.Errorf("expected rendered report, got %q", res.ComplianceReportHTML)
	}

	st, _ = svc.Status(ctx, id)
	if st.Progress.OverallPercent != 100 {
		t.Errorf("expected 100%% after completion, got %v", st.Progress.OverallPercent)
	}

	reset, err := svc.Reset(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if reset.State != progress.RunIdle {
		t.Errorf("expected idle after reset, got %s", reset.State)
	}
}

func TestAnalysisService_NotScientificKeepsResult(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestAnalysis(t)

	start, _ := svc.Start(ctx, "s1", pdfFile("invoice.pdf"))
	if _, _, err := svc.MarkProcessing(ctx, start.RunID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Complete(ctx, start.RunID, &client.AnalysisResult{Filename: "invoice.pdf"}); err != nil {
		t.Fatal(err)
	}

	res, err := svc.Result(ctx, start.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != progress.RunErrored || res.Error.Code != model.RunErrorNotScientific {
		t.Errorf("expected not-scientific error, got %+v", res)
	}
	if res.Result == nil || res.Result.Filename != "invoice.pdf" {
		t.Error("expected partial result kept")
	}
}

func TestAnalysisService_ResetActiveRun(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestAnalysis(t)

	start, _ := svc.Start(ctx, "s1", pdfFile("paper.pdf"))
	if _, err := svc.Reset(ctx, start.RunID); !errors.Is(err, progress.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestAnalysisService_Forget(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestAnalysis(t)

	start, _ := svc.Start(ctx, "s1", pdfFile("paper.pdf"))
	if err := svc.Forget(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if svc.IsCurrent(ctx, start.RunID) {
		t.Error("expected no current run")
	}
	st, _ := svc.Status(ctx, start.RunID)
	if st.State != progress.RunErrored {
		t.Errorf("expected forgotten run errored, got %s", st.State)
	}
	if err := svc.Forget(ctx, "s1"); err != nil {
		t.Errorf("second Forget: %v", err)
	}
}

func TestAnalysisService_UnknownRun(t *testing.T) {
	svc, _, _ := newTestAnalysis(t)
	if _, err := svc.Status(context.Background(), "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}
