package model

import "time"

// RunState tracks one certificate pipeline run through the ledger.
type RunState string

const (
	RunScheduled        RunState = "scheduled"
	RunStarted          RunState = "started"
	RunResultsCollected RunState = "results_collected"
	RunMerged           RunState = "merged"
	RunCompleted        RunState = "completed"
	// RunSkipped marks a run whose subject type has no catalog entries.
	RunSkipped RunState = "skipped"
	// RunAborted marks a run whose case could not be loaded.
	RunAborted RunState = "aborted"
)

// Terminal reports whether no further transitions are expected.
func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunSkipped || s == RunAborted
}

// RunOutcome is the ledger copy of one category fetch.
type RunOutcome struct {
	Category   string `json:"category"`
	Status     string `json:"status"`
	FileName   string `json:"file_name,omitempty"`
	FileURL    string `json:"file_url,omitempty"`
	Pendency   bool   `json:"pendency"`
	HolderName string `json:"holder_name,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Run is one ledger entry, queryable by case id.
type Run struct {
	ID          string       `json:"id"`
	CaseID      int64        `json:"case_id"`
	SubjectType string       `json:"subject_type"`
	State       RunState     `json:"state"`
	Outcomes    []RunOutcome `json:"outcomes"`
	Errors      []string     `json:"errors"`
	DossierName string       `json:"dossier_name,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
}

// CaseCommit is everything a run writes at the end, applied atomically.
type CaseCommit struct {
	CaseID      int64
	OwnerID     int64
	Slots       map[Slot]string
	Status      CaseStatus
	DossierLink *string
}
