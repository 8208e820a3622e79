package jobs

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Kind selects what a job does when a worker picks it up.
type Kind string

const (
	// KindRevalidate re-runs alignment and budget checks over a batch
	// table and refreshes the overflow reports.
	KindRevalidate Kind = "revalidate"
	// KindRepack patches a container image from the canonical table.
	KindRepack Kind = "repack"
)

type JobPayload struct {
	Kind Kind `json:"kind"`
	// Container narrows the job to one container id; empty means all.
	Container string `json:"container"`
	// TablePath points at the batch CSV that triggered the job.
	TablePath string `json:"table_path"`
}

type PipelineJob struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	DedupeKey string     `json:"dedupe_key"`
	Payload   JobPayload `json:"payload"`
	Status    Status     `json:"status"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   JobPayload
}
