package entity

import (
	"time"

	"github.com/google/uuid"

	"finspread/constants"
)

// StageAttempt is one audit-trail entry: a single stage invocation with
// its method, attempt number, and outcome.
type StageAttempt struct {
	Stage      constants.Stage `json:"stage"`
	Attempt    int             `json:"attempt"`
	Method     string          `json:"method"`
	Outcome    string          `json:"outcome"` // "success" | "recoverable_failure" | "fatal_failure"
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// PipelineRun is the mutable, per-document state machine instance.
// It is owned exclusively by the worker driving the run; no other
// goroutine writes to it.
type PipelineRun struct {
	ID         uuid.UUID               `json:"id"`
	DocumentID uuid.UUID               `json:"document_id"`
	Stage      constants.Stage         `json:"stage"`
	Status     constants.RunStatus     `json:"status"`
	Attempts   map[constants.Stage]int `json:"attempts"`
	History    []StageAttempt          `json:"history"`
	Errors     []string                `json:"errors,omitempty"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt *time.Time              `json:"finished_at,omitempty"`

	// Output, populated on completed or needs_manual_review.
	Bundle  *StatementBundle               `json:"bundle,omitempty"`
	Report  *ValidationReport              `json:"report,omitempty"`
	Metrics map[string]map[string]*float64 `json:"metrics,omitempty"`
}

// NewPipelineRun initializes a run at the first stage in pending state.
func NewPipelineRun(documentID uuid.UUID) *PipelineRun {
	return &PipelineRun{
		ID:         uuid.New(),
		DocumentID: documentID,
		Stage:      constants.StageIngestion,
		Status:     constants.RunStatusPending,
		Attempts:   make(map[constants.Stage]int),
		StartedAt:  time.Now().UTC(),
	}
}

// RecordAttempt appends an audit entry and bumps the per-stage counter.
func (r *PipelineRun) RecordAttempt(a StageAttempt) {
	r.History = append(r.History, a)
	r.Attempts[a.Stage]++
	if a.Error != "" {
		r.Errors = append(r.Errors, string(a.Stage)+": "+a.Error)
	}
}

// Finish marks the run terminal with the given status.
func (r *PipelineRun) Finish(status constants.RunStatus) {
	r.Status = status
	now := time.Now().UTC()
	r.FinishedAt = &now
}
