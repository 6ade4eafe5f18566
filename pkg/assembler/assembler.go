package assembler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go-blur/pkg/bitmap"
	"go-blur/pkg/common"
	"go-blur/pkg/config"
	"go-blur/pkg/preview"
	"go-blur/pkg/queue"
	"go-blur/pkg/stats"
)

type Assembler struct {
	redisClient *queue.RedisClient
	cfg         config.Config
	assemblerID string
	runMap      map[string]*RunAssembly
	mutex       sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc

	// OnRunComplete, if set, is called once per run after its last result.
	OnRunComplete func(stats.RunReport)
}

type RunAssembly struct {
	info      *common.RunInfo
	results   []stats.JobResult
	received  map[int]bool // in-memory duplicate tracking
	completed bool
	mutex     sync.Mutex
}

func NewAssembler(redisClient *queue.RedisClient, cfg config.Config, assemblerID string) *Assembler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Assembler{
		redisClient: redisClient,
		cfg:         cfg,
		assemblerID: assemblerID,
		runMap:      make(map[string]*RunAssembly),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (a *Assembler) Start() {
	var wg sync.WaitGroup

	wg.Add(1)
	go a.resultProcessor(&wg)

	wg.Add(1)
	go a.checkpointMonitor(&wg)

	log.Printf("Assembler %s started", a.assemblerID)
	wg.Wait()
}

func (a *Assembler) Stop() {
	log.Println("Assembler: Shutting down...")
	a.cancel()
}

func (a *Assembler) resultProcessor(wg *sync.WaitGroup) {
	defer wg.Done()

	consumer := fmt.Sprintf("assembler-%s", a.assemblerID)

	for {
		select {
		case <-a.ctx.Done():
			return
		default:
			msgID, result, err := a.redisClient.ReadResult(a.ctx, consumer, a.cfg.Redis.Block)
			if err != nil {
				if a.ctx.Err() == nil {
					log.Printf("Assembler read error: %v", err)
				}
				if msgID != "" {
					_ = a.redisClient.AckResult(a.ctx, msgID)
				}
				continue
			}

			if result == nil {
				continue
			}

			if err := a.processResult(a.ctx, result); err != nil {
				log.Printf("Failed to process result: %v", err)
			} else {
				_ = a.redisClient.AckResult(a.ctx, msgID)
			}
		}
	}
}

// processResult persists one job's output and records it against its run.
// Writing failures are terminal for the job and recorded, not retried.
func (a *Assembler) processResult(ctx context.Context, res *common.ResultMessage) error {
	assembly, err := a.getOrCreateAssembly(ctx, res.RunID)
	if err != nil {
		return fmt.Errorf("failed to get assembly: %w", err)
	}

	assembly.mutex.Lock()
	defer assembly.mutex.Unlock()

	if assembly.completed {
		return nil
	}

	if assembly.received[res.KernelSize] {
		log.Printf("Size %d for run %s already received (idempotent)", res.KernelSize, res.RunID)
		return nil
	}

	jobResult := stats.JobResult{
		KernelSize: res.KernelSize,
		OutputPath: res.OutputPath,
		WorkerID:   res.WorkerID,
		Elapsed:    time.Duration(res.ProcessTime * float64(time.Second)),
	}
	switch {
	case res.Error != "":
		jobResult.Err = errors.New(res.Error)
	default:
		jobResult.Err = a.writeOutput(res)
	}
	if jobResult.Err != nil {
		log.Printf("Job %d of run %s failed: %v", res.KernelSize, res.RunID, jobResult.Err)
	} else {
		log.Printf("%s finished in %.3fs (%s)", res.OutputPath, res.ProcessTime, res.WorkerID)
	}

	assembly.received[res.KernelSize] = true
	assembly.results = append(assembly.results, jobResult)

	completedCount, err := a.redisClient.MarkJobCompleted(ctx, res.RunID, res.KernelSize)
	if err != nil {
		log.Printf("Warning: failed to mark size %d of run %s as completed in Redis: %v", res.KernelSize, res.RunID, err)
		completedCount = int64(len(assembly.received))
	}

	if int(completedCount) >= assembly.info.ExpectedJobs {
		assembly.completed = true
		a.finishRun(assembly)
	}

	return nil
}

func (a *Assembler) writeOutput(res *common.ResultMessage) error {
	data, err := queue.DecompressPayload(res.Payload)
	if err != nil {
		return fmt.Errorf("failed to decompress result: %w", err)
	}

	img, err := a.cfg.Decoder().DecodeFrom(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("result payload: %w", err)
	}

	if err := bitmap.Encode(img, res.OutputPath); err != nil {
		return err
	}

	if a.cfg.Preview.Enabled {
		if err := preview.Write(img, preview.Path(res.OutputPath), a.cfg.Preview.MaxDimension); err != nil {
			log.Printf("Preview for %s failed: %v", res.OutputPath, err)
		}
	}
	return nil
}

func (a *Assembler) finishRun(assembly *RunAssembly) {
	info := assembly.info
	report := stats.RunReport{
		RunID:     info.ID,
		Source:    info.Source,
		Kernel:    info.Kernel,
		Border:    info.Border,
		PoolSize:  a.cfg.Redis.Workers,
		Timestamp: info.StartTime,
		TotalTime: time.Since(info.StartTime),
		Jobs:      assembly.results,
	}

	log.Printf("Run %s assembled: %d jobs (%d failed) in %.2fs",
		info.ID, len(report.Jobs), len(report.Failed()), report.TotalTime.Seconds())

	if a.cfg.ReportDir != "" {
		if path, err := stats.WriteRunReport(a.cfg.ReportDir, report); err != nil {
			log.Printf("Failed to write run report: %v", err)
		} else {
			log.Printf("Results written to %s", path)
		}
	}

	if a.OnRunComplete != nil {
		a.OnRunComplete(report)
	}
}

func (a *Assembler) getOrCreateAssembly(ctx context.Context, runID string) (*RunAssembly, error) {
	a.mutex.RLock()
	if assembly, exists := a.runMap[runID]; exists {
		a.mutex.RUnlock()
		return assembly, nil
	}
	a.mutex.RUnlock()

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if assembly, exists := a.runMap[runID]; exists {
		return assembly, nil
	}

	info, err := a.redisClient.GetRunInfo(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run info: %w", err)
	}

	assembly := &RunAssembly{
		info:     info,
		received: make(map[int]bool),
	}

	a.runMap[runID] = assembly

	log.Printf("Created assembly for run %s (%s, %d jobs expected)",
		runID, info.Source, info.ExpectedJobs)

	return assembly, nil
}

func (a *Assembler) checkpointMonitor(wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.mutex.RLock()
			activeRuns := len(a.runMap)
			var incompleteCount int
			for _, assembly := range a.runMap {
				assembly.mutex.Lock()
				if !assembly.completed {
					incompleteCount++
					log.Printf("Run %s progress: %d/%d jobs received",
						assembly.info.ID, len(assembly.received), assembly.info.ExpectedJobs)
				}
				assembly.mutex.Unlock()
			}
			a.mutex.RUnlock()

			if activeRuns > 0 {
				log.Printf("Assembler status: %d active runs, %d incomplete",
					activeRuns, incompleteCount)
			}
		}
	}
}
