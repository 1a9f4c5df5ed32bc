// Package gate composes authorization, schema lookup, parameter validation
// and script execution into one request: every call ends in a Result.
package gate

import (
	"time"

	"github.com/frahmantamala/scriptdeck/internal"
)

type Status string

const (
	StatusSucceeded         Status = "succeeded"
	StatusFailed            Status = "failed"
	StatusTimedOut          Status = "timed_out"
	StatusDenied            Status = "denied"
	StatusNotFound          Status = "not_found"
	StatusInvalidParameters Status = "invalid_parameters"
	StatusInternalError     Status = "internal_error"
)

// ran reports whether a process was spawned on the way to this status.
func (s Status) ran() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusTimedOut
}

// Result is the outcome of one execution request. It is never persisted as
// is; the audit trail keeps a summary.
type Result struct {
	ExecutionID      string                     `json:"execution_id"`
	Success          bool                       `json:"success"`
	Status           Status                     `json:"status"`
	ModuleID         string                     `json:"module_id"`
	Output           string                     `json:"output,omitempty"`
	Truncated        bool                       `json:"truncated,omitempty"`
	Error            string                     `json:"error,omitempty"`
	Stderr           string                     `json:"stderr,omitempty"`
	ExitCode         *int                       `json:"exit_code,omitempty"`
	ValidationErrors []internal.ValidationError `json:"validation_errors,omitempty"`
	ElapsedMs        float64                    `json:"elapsed_ms"`
	StartedAt        time.Time                  `json:"started_at"`
}

// Redact drops the captured error stream for callers who may not see it.
func (r *Result) Redact() {
	r.Stderr = ""
}

type ExecuteRequest struct {
	Parameters map[string]interface{} `json:"parameters"`
}
