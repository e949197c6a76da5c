package entity

import "time"

// BulkItemResult records the outcome of a single request within a bulk
// job.
type BulkItemResult struct {
	RequestID int64  `json:"request_id"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// BulkJob is the ephemeral coordinator state for one bulk operation. It
// is held in memory for a completion TTL and never persisted.
type BulkJob struct {
	ID             string                   `json:"id"`
	RequestIDs     []int64                  `json:"request_ids"`
	Action         string                   `json:"action"`
	Comments       string                   `json:"comments,omitempty"`
	ActorID        string                   `json:"actor_id"`
	Status         string                   `json:"status"`
	Results        map[int64]BulkItemResult `json:"results"`
	ProcessedCount int                      `json:"processed_count"`
	TotalCount     int                      `json:"total_count"`
	StartedAt      time.Time                `json:"started_at"`
	FinishedAt     *time.Time               `json:"finished_at,omitempty"`
}

// BulkProgress is the polling view of a running job
type BulkProgress struct {
	JobID          string `json:"job_id"`
	Status         string `json:"status"`
	ProcessedCount int    `json:"processed_count"`
	TotalCount     int    `json:"total_count"`
}
