package model

import (
	"sync"
	"time"
)

// BatchStats aggregates the outcome of one verification batch.
type BatchStats struct {
	Industry        string    `json:"industry,omitempty"`
	Found           int       `json:"found"`
	AfterDedup      int       `json:"after_dedup"`
	Saved           int       `json:"saved"`
	RegistryMatches int       `json:"registry_matches"`
	Errors          []string  `json:"errors,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}

// Duration returns the wall-clock time the batch took.
func (s *BatchStats) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Phase names reported through JobState.
const (
	PhaseIdle        = "idle"
	PhaseNormalizing = "normalizing"
	PhaseDeduping    = "deduping"
	PhaseScoring     = "scoring"
	PhaseSaving      = "saving"
	PhaseVerifying   = "verifying"
	PhaseDone        = "done"
)

// JobState is the observable state of a running batch. The pipeline writes
// it, the serve endpoint reads it concurrently; all access goes through
// the mutex. It replaces ad-hoc shared status maps: the pipeline itself
// stays stateless between runs and a fresh JobState is passed per batch.
type JobState struct {
	mu            sync.Mutex
	phase         string
	processed     int
	total         int
	stopRequested bool
}

// NewJobState returns a JobState in the idle phase.
func NewJobState() *JobState {
	return &JobState{phase: PhaseIdle}
}

// SetPhase records the pipeline phase currently executing.
func (j *JobState) SetPhase(phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.phase = phase
}

// SetProgress records how far through the current phase the batch is.
func (j *JobState) SetProgress(processed, total int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.processed = processed
	j.total = total
}

// Reset returns the state to idle for a new batch, clearing any
// previous stop request.
func (j *JobState) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.phase = PhaseIdle
	j.processed = 0
	j.total = 0
	j.stopRequested = false
}

// RequestStop asks the pipeline to stop at the next record boundary.
func (j *JobState) RequestStop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stopRequested = true
}

// StopRequested reports whether a stop has been requested.
func (j *JobState) StopRequested() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stopRequested
}

// JobSnapshot is a point-in-time copy of JobState for reporting.
type JobSnapshot struct {
	Phase         string `json:"phase"`
	Processed     int    `json:"processed"`
	Total         int    `json:"total"`
	StopRequested bool   `json:"stop_requested"`
}

// Snapshot returns a consistent copy of the current state.
func (j *JobState) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobSnapshot{
		Phase:         j.phase,
		Processed:     j.processed,
		Total:         j.total,
		StopRequested: j.stopRequested,
	}
}
