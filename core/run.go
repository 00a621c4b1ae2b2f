package core

import "time"

// RunStatus represents the lifecycle state of an enrichment pass.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusError     RunStatus = "error"
)

// IsValid checks if the run status is valid
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusError:
		return true
	}
	return false
}

// IsTerminal returns true if the run is in a final state
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusError
}

// RunRecord audits one enrichment pass. Exactly one RunRecord exists per
// pass: created with status running, mutated as stages complete, and
// finalized to completed or error. Runs are never deleted by the pipeline.
type RunRecord struct {
	ID               int64      `json:"id"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	Status           RunStatus  `json:"status"`
	SourcesCount     int        `json:"sources_count"`
	EntriesFetched   int        `json:"entries_fetched"`
	EntriesProcessed int        `json:"entries_processed"`
	EntriesAddedToKB int        `json:"entries_added_to_kb"`
	ErrorMessage     string     `json:"error_message,omitempty"`
}
