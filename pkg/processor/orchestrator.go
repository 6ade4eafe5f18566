package processor

import (
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"go-blur/pkg/config"
	"go-blur/pkg/stats"
)

var ErrJobsFailed = errors.New("one or more blur jobs failed")

// Run blurs cfg.Source once per requested size. At most cfg.PoolSize jobs
// run at a time; each job owns its image, kernel and buffers, and a failed
// job never stops its siblings.
func Run(cfg config.Config) (stats.RunReport, error) {
	report := stats.RunReport{
		Source:    cfg.Source,
		Kernel:    cfg.Kernel,
		Border:    cfg.Border,
		PoolSize:  cfg.PoolSize,
		Timestamp: time.Now(),
	}
	if err := cfg.Validate(); err != nil {
		return report, fmt.Errorf("invalid config: %w", err)
	}

	log.Printf("=== Starting Box Blur ===")
	log.Printf("Source: %s, sizes: %v, pool size: %d", cfg.Source, cfg.Sizes, cfg.PoolSize)

	results := make([]stats.JobResult, len(cfg.Sizes))
	var g errgroup.Group
	g.SetLimit(cfg.PoolSize)
	for i, size := range cfg.Sizes {
		i, size := i, size
		g.Go(func() error {
			res := RunJob(cfg, size)
			if res.Err != nil {
				log.Printf("Job %d failed: %v", size, res.Err)
			} else {
				log.Printf("%s finished in %.3fs", res.OutputPath, res.Elapsed.Seconds())
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	report.Jobs = results
	report.TotalTime = time.Since(report.Timestamp)
	log.Printf("=== Box Blur Complete: %d jobs in %.2fs ===", len(results), report.TotalTime.Seconds())

	if cfg.ReportDir != "" {
		if path, err := stats.WriteRunReport(cfg.ReportDir, report); err != nil {
			log.Printf("Failed to write run report: %v", err)
		} else {
			log.Printf("Results written to %s", path)
		}
	}

	return report, JobsError(report)
}

// JobsError joins the failures of a report under ErrJobsFailed, or returns
// nil if every job succeeded.
func JobsError(report stats.RunReport) error {
	failed := report.Failed()
	if len(failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(failed))
	for _, j := range failed {
		errs = append(errs, fmt.Errorf("size %d: %w", j.KernelSize, j.Err))
	}
	return fmt.Errorf("%w: %d of %d: %w", ErrJobsFailed, len(failed), len(report.Jobs), errors.Join(errs...))
}
