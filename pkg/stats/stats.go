package stats

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// JobResult holds timing and outcome for one kernel size
type JobResult struct {
	KernelSize int
	OutputPath string
	Elapsed    time.Duration
	WorkerID   string
	Err        error
}

// RunReport holds timing and metadata for a whole run
type RunReport struct {
	RunID     string
	Source    string
	Kernel    string
	Border    string
	PoolSize  int
	Timestamp time.Time
	TotalTime time.Duration
	Jobs      []JobResult
}

// Failed returns the jobs that ended with an error.
func (r RunReport) Failed() []JobResult {
	var failed []JobResult
	for _, j := range r.Jobs {
		if j.Err != nil {
			failed = append(failed, j)
		}
	}
	return failed
}

// AverageTime is the mean elapsed time of the jobs that succeeded.
func (r RunReport) AverageTime() time.Duration {
	var sum time.Duration
	n := 0
	for _, j := range r.Jobs {
		if j.Err == nil {
			sum += j.Elapsed
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / time.Duration(n)
}

// WriteRunReport writes the report to dir/run_<timestamp>.txt and returns the path.
func WriteRunReport(dir string, r RunReport) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	timestamp := r.Timestamp.Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(dir, fmt.Sprintf("run_%s.txt", timestamp))

	file, err := os.Create(resultsFile)
	if err != nil {
		return "", fmt.Errorf("failed to create results file: %w", err)
	}
	defer file.Close()

	fmt.Fprintf(file, "=== Box Blur Run Results ===\n")
	fmt.Fprintf(file, "Timestamp: %s\n", r.Timestamp.Format("2006-01-02 15:04:05"))
	if r.RunID != "" {
		fmt.Fprintf(file, "Run: %s\n", r.RunID)
	}
	fmt.Fprintf(file, "Source: %s\n", r.Source)
	fmt.Fprintf(file, "Kernel: %s\n", r.Kernel)
	fmt.Fprintf(file, "Border: %s\n", r.Border)
	fmt.Fprintf(file, "Pool size: %d\n", r.PoolSize)
	fmt.Fprintf(file, "Jobs: %d (%d failed)\n", len(r.Jobs), len(r.Failed()))
	fmt.Fprintf(file, "Total execution time: %.2fs\n", r.TotalTime.Seconds())
	fmt.Fprintf(file, "Average time per job: %.2fs\n", r.AverageTime().Seconds())

	fmt.Fprintf(file, "\nJobs:\n")
	for _, j := range r.Jobs {
		if j.Err != nil {
			fmt.Fprintf(file, "  %2d. FAILED %s: %v\n", j.KernelSize, j.OutputPath, j.Err)
			continue
		}
		fmt.Fprintf(file, "  %2d. %s %.3fs", j.KernelSize, j.OutputPath, j.Elapsed.Seconds())
		if j.WorkerID != "" {
			fmt.Fprintf(file, " (%s)", j.WorkerID)
		}
		fmt.Fprintf(file, "\n")
	}

	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to write results file: %w", err)
	}
	return resultsFile, nil
}
