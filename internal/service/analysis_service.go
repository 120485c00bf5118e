package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/parsey/docpreview/internal/client"
	"github.com/parsey/docpreview/internal/config"
	"github.com/parsey/docpreview/internal/model"
	"github.com/parsey/docpreview/internal/preview"
	"github.com/parsey/docpreview/internal/progress"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const (
	TaskTypeAnalysis = "analysis:process"
	QueueAnalysis    = "analysis"

	ReasonSuperseded    = "superseded by a newer analysis"
	ReasonNotScientific = "the document is not a scientific paper"
)

// TaskEnqueuer is the part of *asynq.Client the service needs
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewEstimator builds the phase estimator from configuration
func NewEstimator(cfg *config.ProgressConfig) (*progress.Estimator, error) {
	phases := make([]progress.Phase, len(cfg.Phases))
	for i, p := range cfg.Phases {
		phases[i] = progress.Phase{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Description: p.Description,
			Weight:      p.Weight,
		}
	}
	return progress.NewEstimator(phases, time.Duration(cfg.TotalDurationMs)*time.Millisecond)
}

// AnalysisService manages analysis runs. One run is current per session; a
// new Start supersedes the previous run instead of queueing behind it.
type AnalysisService struct {
	runs        RunStore
	queue       TaskEnqueuer
	estimator   *progress.Estimator
	uploads     *UploadPolicy
	tick        time.Duration
	taskTimeout time.Duration
	markdown    goldmark.Markdown
	now         func() time.Time

	// serializes read-modify-write of run records
	mu sync.Mutex

	watchMu  sync.Mutex
	watchers map[string]func()
}

func NewAnalysisService(runs RunStore, queue TaskEnqueuer, estimator *progress.Estimator, uploads *UploadPolicy, tick, taskTimeout time.Duration) *AnalysisService {
	return &AnalysisService{
		runs:        runs,
		queue:       queue,
		estimator:   estimator,
		uploads:     uploads,
		tick:        tick,
		taskTimeout: taskTimeout,
		markdown:    goldmark.New(goldmark.WithExtensions(extension.GFM)),
		now:         time.Now,
		watchers:    make(map[string]func()),
	}
}

// Watch registers fn to run once if runID is superseded while the watch is
// in place. fn runs on the goroutine that superseded the run, after the
// run was recorded as errored. The returned func removes the watch.
func (s *AnalysisService) Watch(runID string, fn func()) (unwatch func()) {
	s.watchMu.Lock()
	s.watchers[runID] = fn
	s.watchMu.Unlock()

	return func() {
		s.watchMu.Lock()
		delete(s.watchers, runID)
		s.watchMu.Unlock()
	}
}

func (s *AnalysisService) notifySuperseded(runID string) {
	s.watchMu.Lock()
	fn, ok := s.watchers[runID]
	delete(s.watchers, runID)
	s.watchMu.Unlock()

	if ok {
		fn()
	}
}

// Estimator returns the phase estimator used for processing progress
func (s *AnalysisService) Estimator() *progress.Estimator {
	return s.estimator
}

// Tick returns the progress broadcast interval
func (s *AnalysisService) Tick() time.Duration {
	return s.tick
}

// Phases describes the simulated pipeline
func (s *AnalysisService) Phases() *model.PhasesResponse {
	return &model.PhasesResponse{
		Phases:          s.estimator.Phases(),
		TotalDurationMs: s.estimator.Total().Milliseconds(),
		TickMs:          s.tick.Milliseconds(),
	}
}

// Start queues a new analysis run for the session
func (s *AnalysisService) Start(ctx context.Context, sessionID string, file preview.SourceFile) (*model.RunStartResponse, error) {
	if err := s.uploads.Check(file.Name, file.Size); err != nil {
		return nil, err
	}

	now := s.now()
	rec := &model.RunRecord{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		FileName:  file.Name,
		FileSize:  file.Size,
		Run:       progress.NewRun(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := rec.Run.StartUpload(); err != nil {
		return nil, err
	}
	if err := s.runs.SaveRun(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}

	prev, err := s.runs.SetCurrent(ctx, sessionID, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark run current: %w", err)
	}
	if prev != "" && prev != rec.ID {
		s.supersede(ctx, prev)
	}

	task, err := newAnalysisTask(&model.AnalysisTaskPayload{
		RunID:       rec.ID,
		SessionID:   sessionID,
		FileName:    file.Name,
		ContentType: file.MediaType,
		Data:        file.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(QueueAnalysis),
		asynq.MaxRetry(0),
	}
	if s.taskTimeout > 0 {
		opts = append(opts, asynq.Timeout(s.taskTimeout))
	}
	if _, err := s.queue.EnqueueContext(ctx, task, opts...); err != nil {
		if _, ferr := s.Fail(ctx, rec.ID, model.RunErrorEnqueue, "failed to queue the analysis"); ferr != nil {
			log.Printf("Failed to mark run %s as failed: %v", rec.ID, ferr)
		}
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	log.Printf("Analysis run %s queued for session %s (%s)", rec.ID, sessionID, file.Name)
	return &model.RunStartResponse{
		RunID:     rec.ID,
		SessionID: sessionID,
		State:     rec.Run.State,
		CreatedAt: now,
	}, nil
}

// Status recomputes the run's progress from its processing start time
func (s *AnalysisService) Status(ctx context.Context, runID string) (*model.RunStatusResponse, error) {
	rec, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return s.statusOf(rec), nil
}

func (s *AnalysisService) statusOf(rec *model.RunRecord) *model.RunStatusResponse {
	st := rec.Run.Progress(s.estimator, s.now())
	resp := &model.RunStatusResponse{
		RunID:         rec.ID,
		State:         rec.Run.State,
		UploadPercent: rec.Run.UploadPercent,
		Progress:      st,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}

	phases := s.estimator.Phases()
	switch rec.Run.State {
	case progress.RunIdle:
		resp.Message = "Waiting for a document"
	case progress.RunUploading:
		resp.Message = fmt.Sprintf("Uploading document... %d%%", rec.Run.UploadPercent)
	case progress.RunProcessing:
		phase := phases[st.PhaseIndex]
		resp.Phase = &phase
		resp.Message = phase.DisplayName
	case progress.RunCompleted:
		resp.Message = "Analysis complete"
	case progress.RunErrored:
		resp.Message = rec.Run.Reason
		resp.Error = &model.RunError{Code: rec.ErrorCode, Message: rec.Run.Reason}
	}
	return resp
}

// Result returns the analysis with its compliance report rendered to HTML.
// Errored runs return their partial result when one was received.
func (s *AnalysisService) Result(ctx context.Context, runID string) (*model.RunResultResponse, error) {
	rec, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !rec.Run.Terminal() {
		return nil, ErrRunNotFinished
	}

	resp := &model.RunResultResponse{
		RunID:  rec.ID,
		State:  rec.Run.State,
		Result: rec.Result,
	}
	if rec.Run.State == progress.RunErrored {
		resp.Error = &model.RunError{Code: rec.ErrorCode, Message: rec.Run.Reason}
	}
	if rec.Result != nil && rec.Result.ComplianceReportMarkdown != "" {
		html, err := s.renderMarkdown(rec.Result.ComplianceReportMarkdown)
		if err != nil {
			log.Printf("Failed to render compliance report for run %s: %v", rec.ID, err)
		} else {
			resp.ComplianceReportHTML = html
		}
	}
	return resp, nil
}

func (s *AnalysisService) renderMarkdown(md string) (string, error) {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Reset returns a finished run to idle
func (s *AnalysisService) Reset(ctx context.Context, runID string) (*model.RunStatusResponse, error) {
	rec, err := s.update(ctx, runID, func(rec *model.RunRecord) error {
		if err := rec.Run.Reset(); err != nil {
			return err
		}
		rec.Result = nil
		rec.ErrorCode = ""
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.statusOf(rec), nil
}

// Forget supersedes the session's current run and clears it
func (s *AnalysisService) Forget(ctx context.Context, sessionID string) error {
	runID, err := s.runs.CurrentRun(ctx, sessionID)
	if err != nil {
		return err
	}
	if runID == "" {
		return nil
	}
	if err := s.runs.ClearCurrent(ctx, sessionID); err != nil {
		return err
	}
	s.supersede(ctx, runID)
	return nil
}

func (s *AnalysisService) supersede(ctx context.Context, runID string) {
	var failed bool
	_, err := s.update(context.WithoutCancel(ctx), runID, func(rec *model.RunRecord) error {
		if !rec.Run.Active() {
			return nil
		}
		rec.ErrorCode = model.RunErrorSuperseded
		if err := rec.Run.Fail(ReasonSuperseded, s.now()); err != nil {
			return err
		}
		failed = true
		return nil
	})
	if err != nil && !errors.Is(err, ErrRunNotFound) {
		log.Printf("Failed to supersede run %s: %v", runID, err)
	}
	if failed {
		s.notifySuperseded(runID)
	}
}

// IsCurrent reports whether runID is still the current run of its session
func (s *AnalysisService) IsCurrent(ctx context.Context, runID string) bool {
	rec, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return false
	}
	current, err := s.runs.CurrentRun(ctx, rec.SessionID)
	if err != nil {
		log.Printf("Failed to read current run of session %s: %v", rec.SessionID, err)
		return false
	}
	return current == runID
}

// MarkUploading records upload progress (called by worker). The first
// report of 100 moves the run to processing and returns true.
func (s *AnalysisService) MarkUploading(ctx context.Context, runID string, pct int) (*model.RunRecord, bool, error) {
	var moved bool
	rec, err := s.update(ctx, runID, func(rec *model.RunRecord) error {
		var err error
		moved, err = rec.Run.Upload(pct, s.now())
		return err
	})
	return rec, moved, err
}

// MarkProcessing forces the move to processing (called by worker). It is a
// no-op for a run that is already processing.
func (s *AnalysisService) MarkProcessing(ctx context.Context, runID string) (*model.RunRecord, bool, error) {
	var moved bool
	rec, err := s.update(ctx, runID, func(rec *model.RunRecord) error {
		if rec.Run.State == progress.RunProcessing {
			return nil
		}
		var err error
		moved, err = rec.Run.Upload(100, s.now())
		return err
	})
	return rec, moved, err
}

// Complete stores the analysis result (called by worker). A document that
// is not a scientific paper ends errored with the result kept.
func (s *AnalysisService) Complete(ctx context.Context, runID string, result *client.AnalysisResult) (*model.RunRecord, error) {
	return s.update(ctx, runID, func(rec *model.RunRecord) error {
		now := s.now()
		if !result.IsScientificPaper {
			if err := rec.Run.Fail(ReasonNotScientific, now); err != nil {
				return err
			}
			rec.ErrorCode = model.RunErrorNotScientific
		} else if err := rec.Run.Complete(now); err != nil {
			return err
		}
		rec.Result = result
		return nil
	})
}

// Fail marks the run as errored (called by worker)
func (s *AnalysisService) Fail(ctx context.Context, runID, code, message string) (*model.RunRecord, error) {
	return s.update(ctx, runID, func(rec *model.RunRecord) error {
		if err := rec.Run.Fail(message, s.now()); err != nil {
			return err
		}
		rec.ErrorCode = code
		return nil
	})
}

func (s *AnalysisService) update(ctx context.Context, runID string, fn func(rec *model.RunRecord) error) (*model.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := fn(rec); err != nil {
		return rec, err
	}
	rec.UpdatedAt = s.now()
	if err := s.runs.SaveRun(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}
	return rec, nil
}

func newAnalysisTask(payload *model.AnalysisTaskPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAnalysis, data), nil
}
