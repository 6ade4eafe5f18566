package coordinator

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"go-blur/pkg/common"
	"go-blur/pkg/config"
	"go-blur/pkg/queue"
)

type Coordinator struct {
	redisClient *queue.RedisClient
	cfg         config.Config
}

func NewCoordinator(redisClient *queue.RedisClient, cfg config.Config) *Coordinator {
	return &Coordinator{
		redisClient: redisClient,
		cfg:         cfg,
	}
}

// Submit queues one job per requested kernel size and returns the run ID.
func (c *Coordinator) Submit(ctx context.Context) (string, error) {
	if err := c.cfg.Validate(); err != nil {
		return "", fmt.Errorf("invalid config: %w", err)
	}

	startTime := time.Now()
	runID := strconv.FormatInt(startTime.UnixNano(), 36)

	info := &common.RunInfo{
		ID:           runID,
		Source:       c.cfg.Source,
		Sizes:        c.cfg.Sizes,
		Kernel:       c.cfg.Kernel,
		Border:       c.cfg.Border,
		ExpectedJobs: len(c.cfg.Sizes),
		StartTime:    startTime,
	}
	if err := c.redisClient.StoreRunInfo(ctx, info); err != nil {
		return "", fmt.Errorf("failed to store run info: %w", err)
	}

	for _, size := range c.cfg.Sizes {
		// An invalid size is still queued so its worker reports the failure
		// and the run completes.
		outputPath, err := c.cfg.OutputPath(size)
		if err != nil {
			log.Printf("Coordinator: Run %s size %d: %v", runID, size, err)
		}
		job := &common.JobMessage{
			Type:       common.JobTypeBlur,
			RunID:      runID,
			Source:     c.cfg.Source,
			KernelSize: size,
			OutputPath: outputPath,
			Kernel:     c.cfg.Kernel,
			Border:     c.cfg.Border,
		}
		if _, err := c.redisClient.AddJob(ctx, job); err != nil {
			return "", fmt.Errorf("failed to queue size %d: %w", size, err)
		}
	}

	log.Printf("Coordinator: Run %s queued %d jobs for %s in %.2fs",
		runID, len(c.cfg.Sizes), c.cfg.Source, time.Since(startTime).Seconds())
	return runID, nil
}
