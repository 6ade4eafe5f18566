package common

import "time"

const (
	JobTypeBlur = "blur"
)

// JobMessage asks a worker to blur Source with one kernel size.
type JobMessage struct {
	Type       string `json:"type"`
	RunID      string `json:"run_id"`
	Source     string `json:"source"`
	KernelSize int    `json:"kernel_size"`
	OutputPath string `json:"output_path"`
	Kernel     string `json:"kernel"`
	Border     string `json:"border"`
}

// ResultMessage carries a finished job back to the assembler. Payload is
// the encoded bitmap, zstd-compressed; Error is set instead when the job failed.
type ResultMessage struct {
	RunID       string  `json:"run_id"`
	KernelSize  int     `json:"kernel_size"`
	OutputPath  string  `json:"output_path"`
	WorkerID    string  `json:"worker_id"`
	ProcessTime float64 `json:"process_time"`
	Payload     []byte  `json:"payload,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// RunInfo describes one submitted run.
type RunInfo struct {
	ID           string    `json:"id"`
	Source       string    `json:"source"`
	Sizes        []int     `json:"sizes"`
	Kernel       string    `json:"kernel"`
	Border       string    `json:"border"`
	ExpectedJobs int       `json:"expected_jobs"`
	StartTime    time.Time `json:"start_time"`
}
