package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/parsey/docpreview/internal/client"
	"github.com/parsey/docpreview/internal/model"
	"github.com/parsey/docpreview/internal/progress"
	"github.com/parsey/docpreview/internal/service"
)

// Notifier receives run events for the subscribers of a run.
// *websocket.Hub implements it.
type Notifier interface {
	BroadcastUpload(runID string, state progress.RunState, percent int)
	BroadcastProgress(runID string, st progress.State)
	BroadcastComplete(runID string, result interface{})
	BroadcastError(runID string, code, message string)
}

// AnalysisWorker processes analysis jobs
type AnalysisWorker struct {
	analysis *service.AnalysisService
	analyzer client.DocumentAnalyzer
	notifier Notifier
}

// NewAnalysisWorker creates a new analysis worker
func NewAnalysisWorker(analysis *service.AnalysisService, analyzer client.DocumentAnalyzer, notifier Notifier) *AnalysisWorker {
	return &AnalysisWorker{
		analysis: analysis,
		analyzer: analyzer,
		notifier: notifier,
	}
}

// ProcessTask handles analysis task processing. Writes that end the run use
// a context detached from the task so a cancelled task still leaves the run
// in a terminal state.
func (w *AnalysisWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.AnalysisTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal analysis payload: %v: %w", err, asynq.SkipRetry)
	}

	runID := payload.RunID
	ticks := &tickForwarder{worker: w, runID: runID}
	defer ticks.stop()

	// Watch before the currency check so a supersede in between is seen.
	unwatch := w.analysis.Watch(runID, func() {
		ticks.stop()
		w.notifier.BroadcastError(runID, model.RunErrorSuperseded, service.ReasonSuperseded)
	})
	defer unwatch()

	if !w.analysis.IsCurrent(ctx, runID) {
		log.Printf("Analysis run %s superseded before it started", runID)
		return nil
	}
	log.Printf("Starting analysis run: %s", runID)

	result, err := w.analyzer.Analyze(ctx, client.File{
		Name:        payload.FileName,
		ContentType: payload.ContentType,
		Data:        payload.Data,
	}, func(pct int) {
		w.onUpload(ctx, runID, pct, ticks)
	})
	ticks.stop()

	final := context.WithoutCancel(ctx)
	if !w.analysis.IsCurrent(final, runID) {
		w.markSuperseded(final, runID)
		return nil
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			w.failRun(final, runID, model.RunErrorBackend, "analysis cancelled")
			return err
		}
		code := model.RunErrorBackend
		if client.IsKind(err, client.KindTimeout) || errors.Is(err, context.DeadlineExceeded) {
			code = model.RunErrorTimeout
		}
		w.failRun(final, runID, code, err.Error())
		return fmt.Errorf("analysis of run %s failed: %v: %w", runID, err, asynq.SkipRetry)
	}

	if rec, moved, err := w.analysis.MarkProcessing(final, runID); err != nil {
		log.Printf("Failed to mark run %s processing: %v", runID, err)
	} else if moved {
		w.notifier.BroadcastUpload(runID, rec.Run.State, rec.Run.UploadPercent)
	}

	rec, err := w.analysis.Complete(final, runID, result)
	if err != nil {
		if errors.Is(err, progress.ErrInvalidTransition) {
			log.Printf("Analysis run %s finished elsewhere: %v", runID, err)
			return nil
		}
		w.failRun(final, runID, model.RunErrorBackend, "failed to save result")
		return err
	}

	if rec.Run.State == progress.RunErrored {
		w.notifier.BroadcastError(runID, rec.ErrorCode, rec.Run.Reason)
		log.Printf("Analysis run %s rejected: %s", runID, rec.Run.Reason)
		return nil
	}

	w.notifier.BroadcastProgress(runID, w.analysis.Estimator().Final())
	res, err := w.analysis.Result(final, runID)
	if err != nil {
		log.Printf("Failed to load result of run %s: %v", runID, err)
		w.notifier.BroadcastComplete(runID, result)
	} else {
		w.notifier.BroadcastComplete(runID, res)
	}

	log.Printf("Analysis run %s completed", runID)
	return nil
}

func (w *AnalysisWorker) onUpload(ctx context.Context, runID string, pct int, ticks *tickForwarder) {
	rec, moved, err := w.analysis.MarkUploading(ctx, runID, pct)
	if err != nil {
		// Superseded runs reject further uploads.
		return
	}
	w.notifier.BroadcastUpload(runID, rec.Run.State, rec.Run.UploadPercent)
	if moved {
		ticks.start(ctx, rec.Run.ProcessingStartedAt)
	}
}

func (w *AnalysisWorker) failRun(ctx context.Context, runID, code, msg string) {
	if _, err := w.analysis.Fail(ctx, runID, code, msg); err != nil {
		log.Printf("Failed to mark run %s as failed: %v", runID, err)
		return
	}
	w.notifier.BroadcastError(runID, code, msg)
}

func (w *AnalysisWorker) markSuperseded(ctx context.Context, runID string) {
	_, err := w.analysis.Fail(ctx, runID, model.RunErrorSuperseded, service.ReasonSuperseded)
	if err != nil && !errors.Is(err, progress.ErrInvalidTransition) {
		log.Printf("Failed to mark run %s superseded: %v", runID, err)
	}
	log.Printf("Analysis run %s superseded, result dropped", runID)
}

// tickForwarder relays estimator ticks to the notifier while the backend
// is processing. stop waits until the last tick was sent; once stopped it
// never starts again.
type tickForwarder struct {
	worker *AnalysisWorker
	runID  string

	mu      sync.Mutex
	sub     *progress.Subscription
	done    chan struct{}
	stopped bool
}

func (f *tickForwarder) start(ctx context.Context, startedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub != nil || f.stopped {
		return
	}

	svc := f.worker.analysis
	f.sub = svc.Estimator().Subscribe(ctx, startedAt, svc.Tick())
	f.done = make(chan struct{})

	go func(sub *progress.Subscription, done chan struct{}) {
		defer close(done)
		for st := range sub.C() {
			f.worker.notifier.BroadcastProgress(f.runID, st)
		}
	}(f.sub, f.done)
}

func (f *tickForwarder) stop() {
	f.mu.Lock()
	f.stopped = true
	sub, done := f.sub, f.done
	f.mu.Unlock()

	if sub == nil {
		return
	}
	sub.Stop()
	<-done
}
