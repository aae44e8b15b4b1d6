package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial" // at least one source failed or timed out
	RunStatusFailed    RunStatus = "failed"
)

type SearchRun struct {
	ID              string     `json:"id" db:"id"`
	SearchName      string     `json:"search_name" db:"search_name"`
	CriteriaJSON    string     `json:"criteria" db:"criteria_json"`
	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	FinishedAt      *time.Time `json:"finished_at" db:"finished_at"`
	Status          RunStatus  `json:"status" db:"status"`
	Total           int        `json:"total" db:"total"`
	SourcesFailed   int        `json:"sources_failed" db:"sources_failed"`
	ExecutionTimeMs int64      `json:"execution_time_ms" db:"execution_time_ms"`
}

type SourceRun struct {
	ID       int64        `json:"id" db:"id"`
	RunID    string       `json:"run_id" db:"run_id"`
	SourceID string       `json:"source_id" db:"source_id"`
	Report   SourceReport `json:"report"`
}

type SourceStats struct {
	SourceID      string     `json:"source_id" db:"source_id"`
	LastRunAt     *time.Time `json:"last_run_at" db:"last_run_at"`
	LastStatus    string     `json:"last_status" db:"last_status"`
	Runs          int        `json:"runs" db:"runs"`
	SuccessRate   float64    `json:"success_rate" db:"success_rate"`
	AvgDurationMs int64      `json:"avg_duration_ms" db:"avg_duration_ms"`
}
