package models

import "time"

/*
Job status constants and the external integer status codes for use
throughout the codebase. Centralizing these avoids magic strings and
keeps the wire contract in one place.
*/

// Status is the lifecycle state of a job. Transitions are monotonic:
// queued -> running -> {succeeded|failed}. Terminal states are never
// overwritten.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// External integer status codes. This mapping is a stable client
// contract and must not change.
const (
	CodePending   = 0 // queued or running
	CodeSucceeded = 1
	CodeFailed    = 2
)

// Code maps a status to its external integer code. Unknown statuses map
// to CodeFailed.
func (s Status) Code() int {
	switch s {
	case StatusQueued, StatusRunning:
		return CodePending
	case StatusSucceeded:
		return CodeSucceeded
	case StatusFailed:
		return CodeFailed
	default:
		return CodeFailed
	}
}

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// JobRecord is the authoritative lifecycle record for one submitted job.
// The job store exclusively owns mutation; everything handed out of the
// store is a copy.
type JobRecord struct {
	ID           string
	Status       Status
	CreatedAt    time.Time
	Progress     float64
	Stage        string
	ProgressText string
	Result       *GenerationResult
	Error        string
	Env          string
}

// Event types published on a job's event channel. The terminal "done"
// event is always the last one delivered.
const (
	EventResult = "result"
	EventError  = "error"
	EventDone   = "done"
)

// Event is one notification delivered to a streaming waiter.
type Event struct {
	Type    string            `json:"type"`
	Result  *GenerationResult `json:"result,omitempty"`
	Content string            `json:"content,omitempty"`
}

// GenerationRequest carries the parameters of one generation job. The
// serving layer treats it as opaque; only the runner and the engine
// interpret the fields.
type GenerationRequest struct {
	Prompt         string  `json:"prompt"`
	Lyrics         string  `json:"lyrics"`
	Model          string  `json:"model,omitempty"`
	BatchSize      int     `json:"batch_size,omitempty"`
	InferenceSteps int     `json:"inference_steps,omitempty"`
	AudioDuration  float64 `json:"audio_duration,omitempty"`
	Seed           string  `json:"seed,omitempty"`
	AudioFormat    string  `json:"audio_format,omitempty"`
	// SequentialRuns > 1 splits the batch into that many single-item runs
	// to bound device memory; progress is remapped so the externally
	// observed value stays monotonic across run boundaries.
	SequentialRuns   int  `json:"sequential_runs,omitempty"`
	FullAnalysisOnly bool `json:"full_analysis_only,omitempty"`
}
