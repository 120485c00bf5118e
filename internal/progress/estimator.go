// Package progress estimates how far a single opaque backend call has
// advanced by mapping elapsed wall-clock time onto weighted phases.
//
// Nothing here observes the backend. The numbers are a pure function of
// elapsed time and the static phase table, so they can be recomputed at
// any point from a start timestamp instead of being accumulated.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPhases is returned by NewEstimator for an unusable phase table.
var ErrInvalidPhases = errors.New("invalid phase table")

// Phase is one weighted step of the simulated pipeline.
type Phase struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	Weight      int    `json:"weight"`
}

// State is the estimated progress at one instant.
type State struct {
	ElapsedMillis     int64   `json:"elapsedMs"`
	PhaseIndex        int     `json:"phaseIndex"`
	PhaseID           string  `json:"phaseId"`
	IntraPhasePercent float64 `json:"intraPhasePercent"`
	OverallPercent    float64 `json:"overallPercent"`
}

// Done reports whether the estimate has reached the end of the last phase.
func (s State) Done() bool {
	return s.OverallPercent >= 100
}

type Estimator struct {
	phases     []Phase
	boundaries []float64 // boundaries[i] is the overall percent where phase i starts
	total      time.Duration
}

// NewEstimator validates phases and precomputes their boundaries. Weights
// must be positive and sum to 100.
func NewEstimator(phases []Phase, total time.Duration) (*Estimator, error) {
	if len(phases) == 0 {
		return nil, fmt.Errorf("%w: no phases", ErrInvalidPhases)
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: total duration must be positive, got %s", ErrInvalidPhases, total)
	}

	boundaries := make([]float64, len(phases)+1)
	sum := 0
	for i, p := range phases {
		if p.Weight <= 0 {
			return nil, fmt.Errorf("%w: phase %q has weight %d", ErrInvalidPhases, p.ID, p.Weight)
		}
		boundaries[i] = float64(sum)
		sum += p.Weight
	}
	if sum != 100 {
		return nil, fmt.Errorf("%w: weights sum to %d, want 100", ErrInvalidPhases, sum)
	}
	boundaries[len(phases)] = 100

	return &Estimator{
		phases:     append([]Phase(nil), phases...),
		boundaries: boundaries,
		total:      total,
	}, nil
}

// Phases returns a copy of the phase table.
func (e *Estimator) Phases() []Phase {
	return append([]Phase(nil), e.phases...)
}

// Total returns the simulated duration of the whole pipeline.
func (e *Estimator) Total() time.Duration {
	return e.total
}

// At returns the estimate after elapsed time.
func (e *Estimator) At(elapsed time.Duration) State {
	if elapsed < 0 {
		elapsed = 0
	}

	overall := float64(elapsed) / float64(e.total) * 100
	if overall > 100 {
		overall = 100
	}

	idx := len(e.phases) - 1
	for i := range e.phases {
		if overall < e.boundaries[i+1] {
			idx = i
			break
		}
	}

	intra := (overall - e.boundaries[idx]) / float64(e.phases[idx].Weight) * 100

	return State{
		ElapsedMillis:     elapsed.Milliseconds(),
		PhaseIndex:        idx,
		PhaseID:           e.phases[idx].ID,
		IntraPhasePercent: clampPercent(intra),
		OverallPercent:    overall,
	}
}

// Final is the state reported once the pipeline is known to be finished.
func (e *Estimator) Final() State {
	return e.At(e.total)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
