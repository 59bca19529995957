package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a generation job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"

	// JobStatusNotFound is returned by lookups only. It is never stored.
	JobStatusNotFound JobStatus = "not_found"
)

// Terminal reports whether no further transition is allowed out of s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is a storable status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Rank orders statuses along queued -> processing -> terminal.
func (s JobStatus) Rank() int {
	switch s {
	case JobStatusQueued:
		return 1
	case JobStatusProcessing:
		return 2
	case JobStatusCompleted, JobStatusFailed:
		return 3
	}
	return 0
}

// CanTransition reports whether from -> to is allowed. Rewriting the current
// status is allowed so status writes stay idempotent.
func CanTransition(from, to JobStatus) bool {
	if !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	switch from {
	case JobStatusQueued:
		return to == JobStatusProcessing || to == JobStatusFailed
	case JobStatusProcessing:
		return to.Terminal()
	}
	return false
}

// Job tracks one asynchronous itinerary generation. The API returns the job ID on
// POST /api/v1/itineraries; the client polls GET /api/v1/itineraries/jobs/{jobID}
// until status is completed or failed.
type Job struct {
	ID         string    `db:"job_id"      json:"jobId"`
	StorageKey int64     `db:"storage_key" json:"-"`
	Status     JobStatus `db:"status"      json:"status"`
	Prompt     *string   `db:"prompt"      json:"-"`
	Result     *Result   `db:"result"      json:"result,omitempty"`
	Error      *string   `db:"error"       json:"error,omitempty"`
	CreatedAt  time.Time `db:"created_at"  json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at"  json:"updatedAt"`
}

// ResultKind tags which variant a Result holds.
type ResultKind string

const (
	ResultKindRaw        ResultKind = "raw"
	ResultKindNormalized ResultKind = "normalized"
)

// Result is the payload of a completed job: either the untouched model output
// (Raw) or a normalized itinerary document (Normalized).
type Result struct {
	Kind      ResultKind     `json:"kind"`
	Raw       string         `json:"raw,omitempty"`
	Itinerary map[string]any `json:"itinerary,omitempty"`
}

// RawResult wraps unprocessed model output.
func RawResult(text string) *Result {
	return &Result{Kind: ResultKindRaw, Raw: text}
}

// NormalizedResult wraps a normalized itinerary document.
func NormalizedResult(doc map[string]any) *Result {
	return &Result{Kind: ResultKindNormalized, Itinerary: doc}
}

// Processed reports whether the result went through server-side normalization.
func (r *Result) Processed() bool {
	return r != nil && r.Kind == ResultKindNormalized
}

// UnmarshalJSON rejects unknown kinds so consumers can switch exhaustively.
func (r *Result) UnmarshalJSON(b []byte) error {
	type plain Result
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	switch p.Kind {
	case ResultKindRaw, ResultKindNormalized:
	default:
		return fmt.Errorf("unknown result kind %q", p.Kind)
	}
	*r = Result(p)
	return nil
}

// StatusView is what a status lookup returns to the client.
type StatusView struct {
	JobID     string     `json:"jobId"`
	Status    JobStatus  `json:"status"`
	Result    *Result    `json:"result,omitempty"`
	Processed *bool      `json:"processed,omitempty"`
	Error     string     `json:"error,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// View projects a job onto the client-facing status shape.
func (j *Job) View() StatusView {
	v := StatusView{JobID: j.ID, Status: j.Status}
	updated := j.UpdatedAt
	v.UpdatedAt = &updated
	switch j.Status {
	case JobStatusCompleted:
		v.Result = j.Result
		processed := j.Result.Processed()
		v.Processed = &processed
	case JobStatusFailed:
		if j.Error != nil {
			v.Error = *j.Error
		}
	}
	return v
}
