package models

import "time"

// RepoState is the reconciler's view of a destination repository.
type RepoState string

const (
	RepoAbsent  RepoState = "absent"
	RepoPresent RepoState = "present"
)

// DatasetError is the serializable form of a per-dataset failure.
type DatasetError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
}

// Artifact is one generated source file.
type Artifact struct {
	Language string `json:"language"`
	Path     string `json:"path"` // relative to the repository root
	Digest   string `json:"digest"`
}

// DatasetResult contains the outcome of one dataset's materialize/generate/reconcile pass.
type DatasetResult struct {
	Slug        string        `json:"slug"`
	Name        string        `json:"name"`
	InitialRepo RepoState     `json:"initial_repo,omitempty"`
	Created     bool          `json:"created"`
	Committed   bool          `json:"committed"`
	Artifacts   []Artifact    `json:"artifacts,omitempty"`
	Error       *DatasetError `json:"error"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     time.Time     `json:"ended_at"`
	DurationSec float64       `json:"duration_sec"`
}

// RunResult aggregates the outcome of one pipeline pass.
type RunResult struct {
	EngineVersion    string          `json:"engine_version"`
	Cancelled        bool            `json:"cancelled"`
	TotalDatasets    int             `json:"total_datasets"`
	Selected         int             `json:"selected"`
	Succeeded        int             `json:"succeeded"`
	Failed           int             `json:"failed"`
	Skipped          int             `json:"skipped"`
	Committed        int             `json:"committed"`
	Created          int             `json:"created"`
	EngineCost       float64         `json:"engine_cost"`
	TotalDurationSec float64         `json:"total_duration_sec"`
	StartedAt        time.Time       `json:"started_at"`
	EndedAt          time.Time       `json:"ended_at"`
	Results          []DatasetResult `json:"results"`
}
