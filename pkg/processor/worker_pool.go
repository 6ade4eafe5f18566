package processor

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"go-blur/pkg/bitmap"
	"go-blur/pkg/common"
	"go-blur/pkg/config"
	"go-blur/pkg/queue"
)

// WorkerPool consumes blur jobs from the jobs stream and publishes the
// encoded results.
type WorkerPool struct {
	redisClient   *queue.RedisClient
	cfg           config.Config
	numWorkers    int
	workerID      string
	jobsProcessed atomic.Int64
	process       func(*common.JobMessage) *common.ResultMessage
	ctx           context.Context
	cancel        context.CancelFunc
}

func NewWorkerPool(redisClient *queue.RedisClient, cfg config.Config, workerID string) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	numWorkers := cfg.Redis.Workers
	if numWorkers < 1 {
		numWorkers = 1
	}
	if cfg.Redis.Visibility <= 0 {
		cfg.Redis.Visibility = config.Default().Redis.Visibility
	}

	wp := &WorkerPool{
		redisClient: redisClient,
		cfg:         cfg,
		numWorkers:  numWorkers,
		workerID:    workerID,
		ctx:         ctx,
		cancel:      cancel,
	}
	wp.process = wp.processJob
	return wp
}

func (wp *WorkerPool) Start() {
	var wg sync.WaitGroup

	for i := 0; i < wp.numWorkers; i++ {
		wg.Add(1)
		go wp.worker(i, &wg)
	}

	wg.Add(1)
	go wp.retryMonitor(&wg)

	log.Printf("WorkerPool: Started %d workers", wp.numWorkers)
	wg.Wait()
}

func (wp *WorkerPool) Stop() {
	log.Println("WorkerPool: Shutting down...")
	wp.cancel()
}

// Processed is the number of jobs this pool has published results for.
func (wp *WorkerPool) Processed() int64 {
	return wp.jobsProcessed.Load()
}

func (wp *WorkerPool) worker(id int, wg *sync.WaitGroup) {
	defer wg.Done()

	consumer := fmt.Sprintf("%s-worker-%d", wp.workerID, id)
	log.Printf("Worker %d started as consumer %s", id, consumer)

	for {
		select {
		case <-wp.ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		default:
			msgID, job, err := wp.redisClient.ReadJob(wp.ctx, consumer, wp.cfg.Redis.Block)
			if err != nil {
				if wp.ctx.Err() == nil {
					log.Printf("Worker %d read error: %v", id, err)
				}
				if msgID != "" {
					_ = wp.redisClient.AckJob(wp.ctx, msgID)
				}
				continue
			}
			if job == nil {
				continue
			}
			wp.handle(consumer, msgID, job)
		}
	}
}

// handle publishes the outcome of one job and acknowledges it. A job is
// left pending only if its result could not be published.
func (wp *WorkerPool) handle(consumer, msgID string, job *common.JobMessage) {
	if job.Type != common.JobTypeBlur {
		log.Printf("%s: invalid job type %q", consumer, job.Type)
		_ = wp.redisClient.AckJob(wp.ctx, msgID)
		return
	}

	stop := wp.keepAlive(consumer, msgID)
	result := wp.process(job)
	stop()
	result.WorkerID = consumer
	if result.Error != "" {
		log.Printf("%s: job %d failed: %s", consumer, job.KernelSize, result.Error)
	}

	if _, err := wp.redisClient.AddResult(wp.ctx, result); err != nil {
		log.Printf("%s failed to publish result for size %d: %v", consumer, job.KernelSize, err)
		return
	}
	_ = wp.redisClient.AckJob(wp.ctx, msgID)

	if count := wp.jobsProcessed.Add(1); count%10 == 0 {
		log.Printf("WorkerPool: Processed %d jobs total", count)
	}
}

// keepAlive touches msgID every third of the visibility timeout until the
// returned stop func is called, so the retry monitor only claims jobs whose
// worker has gone away.
func (wp *WorkerPool) keepAlive(consumer, msgID string) (stop func()) {
	ctx, cancel := context.WithCancel(wp.ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(max(wp.cfg.Redis.Visibility/3, time.Millisecond))
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := wp.redisClient.TouchJob(ctx, consumer, msgID); err != nil && ctx.Err() == nil {
					log.Printf("%s failed to refresh job %s: %v", consumer, msgID, err)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// processJob runs the blur for one job. Failures are terminal and reported
// in the result rather than retried.
func (wp *WorkerPool) processJob(job *common.JobMessage) *common.ResultMessage {
	startTime := time.Now()
	result := &common.ResultMessage{
		RunID:      job.RunID,
		KernelSize: job.KernelSize,
		OutputPath: job.OutputPath,
	}

	cfg := wp.cfg
	cfg.Kernel = job.Kernel
	cfg.Border = job.Border

	payload, err := encodeJob(cfg, job)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Payload = payload
	result.ProcessTime = time.Since(startTime).Seconds()
	return result
}

func encodeJob(cfg config.Config, job *common.JobMessage) ([]byte, error) {
	if err := config.CheckSize(job.KernelSize); err != nil {
		return nil, err
	}
	img, err := BlurImage(cfg, job.Source, job.KernelSize)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := bitmap.EncodeTo(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	payload, err := queue.CompressPayload(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to compress result: %w", err)
	}
	return payload, nil
}

func (wp *WorkerPool) retryMonitor(wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(wp.cfg.Redis.Visibility)
	defer ticker.Stop()

	consumer := fmt.Sprintf("%s-retry-monitor", wp.workerID)

	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-ticker.C:
			claimedIDs, err := wp.redisClient.ClaimStaleJobs(wp.ctx, consumer, wp.cfg.Redis.Visibility, 50)
			if err != nil {
				log.Printf("Failed to claim stale jobs: %v", err)
				continue
			}

			if len(claimedIDs) == 0 {
				continue
			}
			log.Printf("Claimed %d stale jobs for retry", len(claimedIDs))
			for range claimedIDs {
				msgID, job, err := wp.redisClient.ReadClaimedJob(wp.ctx, consumer)
				if err != nil || job == nil {
					break
				}
				wp.handle(consumer, msgID, job)
			}
		}
	}
}
