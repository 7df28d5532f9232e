package domain

import "time"

// RunStatus is the lifecycle state of an export run
type RunStatus string

const (
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// ExportRun represents one execution of the export pipeline
type ExportRun struct {
	ID           string     `json:"id"`
	Org          string     `json:"org"`
	OutputFile   string     `json:"output_file"`
	Properties   []string   `json:"properties"`
	Debug        bool       `json:"debug"`
	Status       RunStatus  `json:"status"`
	RowsWritten  int        `json:"rows_written"`
	Skipped      int        `json:"skipped"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Summary      *Summary   `json:"summary,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Duration returns how long the run took, or zero while it is in progress
func (r *ExportRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RepoStatus is the outcome for a single repository within a run
type RepoStatus string

const (
	RepoStatusExported RepoStatus = "exported"
	RepoStatusSkipped  RepoStatus = "skipped"
	RepoStatusFailed   RepoStatus = "failed"
)

// RepoResult records what happened to one repository during a run
type RepoResult struct {
	RunID        string     `json:"run_id"`
	Repo         string     `json:"repo"`
	Status       RepoStatus `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
