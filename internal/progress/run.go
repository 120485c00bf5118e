package progress

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when a run is asked to move to a state it
// cannot reach from where it is.
var ErrInvalidTransition = errors.New("invalid run state transition")

type RunState string

const (
	RunIdle       RunState = "idle"
	RunUploading  RunState = "uploading"
	RunProcessing RunState = "processing"
	RunCompleted  RunState = "completed"
	RunErrored    RunState = "errored"
)

// Run is the lifecycle of one analysis request:
//
//	idle -> uploading(0..100) -> processing -> completed | errored
//
// errored is reachable from uploading and processing. The terminal states
// only leave through Reset. Run is a plain value so it can be stored as JSON.
type Run struct {
	State               RunState  `json:"state"`
	UploadPercent       int       `json:"uploadPercent"`
	ProcessingStartedAt time.Time `json:"processingStartedAt,omitempty"`
	FinishedAt          time.Time `json:"finishedAt,omitempty"`
	Reason              string    `json:"reason,omitempty"`
}

// NewRun returns a run in the idle state.
func NewRun() Run {
	return Run{State: RunIdle}
}

// Terminal reports whether the run has finished.
func (r Run) Terminal() bool {
	return r.State == RunCompleted || r.State == RunErrored
}

// Active reports whether the run is uploading or processing.
func (r Run) Active() bool {
	return r.State == RunUploading || r.State == RunProcessing
}

func (r *Run) StartUpload() error {
	if r.State != RunIdle {
		return r.invalid(RunUploading)
	}
	r.State = RunUploading
	r.UploadPercent = 0
	return nil
}

// Upload records upload progress. Reaching 100 moves the run to processing
// and stamps ProcessingStartedAt; the return value reports that move.
func (r *Run) Upload(pct int, now time.Time) (bool, error) {
	if r.State != RunUploading {
		return false, r.invalid(RunUploading)
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if pct > r.UploadPercent {
		r.UploadPercent = pct
	}
	if r.UploadPercent < 100 {
		return false, nil
	}
	r.State = RunProcessing
	r.ProcessingStartedAt = now
	return true, nil
}

func (r *Run) Complete(now time.Time) error {
	if r.State != RunProcessing {
		return r.invalid(RunCompleted)
	}
	r.State = RunCompleted
	r.FinishedAt = now
	return nil
}

func (r *Run) Fail(reason string, now time.Time) error {
	if !r.Active() {
		return r.invalid(RunErrored)
	}
	r.State = RunErrored
	r.Reason = reason
	r.FinishedAt = now
	return nil
}

// Reset returns a finished run to idle. In-flight runs cannot be reset.
func (r *Run) Reset() error {
	if r.Active() {
		return r.invalid(RunIdle)
	}
	*r = NewRun()
	return nil
}

// Progress derives the processing estimate for the run at now.
func (r Run) Progress(e *Estimator, now time.Time) State {
	switch r.State {
	case RunProcessing:
		return e.At(now.Sub(r.ProcessingStartedAt))
	case RunCompleted:
		return e.Final()
	case RunErrored:
		if r.ProcessingStartedAt.IsZero() {
			return e.At(0)
		}
		return e.At(r.FinishedAt.Sub(r.ProcessingStartedAt))
	default:
		return e.At(0)
	}
}

func (r *Run) invalid(to RunState) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.State, to)
}
