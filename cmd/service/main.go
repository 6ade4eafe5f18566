package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go-blur/pkg/assembler"
	"go-blur/pkg/config"
	"go-blur/pkg/coordinator"
	"go-blur/pkg/processor"
	"go-blur/pkg/queue"
	"go-blur/pkg/stats"
)

const (
	exitError      = 1
	exitJobsFailed = 3
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Printf("Error: %v", err)
		if errors.Is(err, processor.ErrJobsFailed) {
			os.Exit(exitJobsFailed)
		}
		os.Exit(exitError)
	}
}

type options struct {
	configPath string
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	defaults := config.Default()

	root := &cobra.Command{
		Use:           "blur",
		Short:         "Box-blur a 24-bit bitmap at several kernel sizes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, &cfg, &opts.cfg)
			opts.cfg = cfg
			return nil
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "YAML config file")
	f.StringVar(&opts.cfg.Source, "source", defaults.Source, "Source bitmap")
	f.IntSliceVar(&opts.cfg.Sizes, "sizes", defaults.Sizes, "Odd kernel sizes to run")
	f.StringVar(&opts.cfg.OutputDir, "output", defaults.OutputDir, "Output directory")
	f.StringVar(&opts.cfg.OutputTemplate, "template", defaults.OutputTemplate, "Output filename template")
	f.IntVar(&opts.cfg.PoolSize, "pool", defaults.PoolSize, "Number of jobs running at once")
	f.IntVar(&opts.cfg.ConvolveWorkers, "workers", defaults.ConvolveWorkers, "Goroutines per convolution")
	f.StringVar(&opts.cfg.Border, "border", defaults.Border, "Border policy: compat or consistent")
	f.StringVar(&opts.cfg.Kernel, "kernel", defaults.Kernel, "Kernel: box, gaussian, or a weight expression in i, j, size, radius")
	f.StringVar(&opts.cfg.ReportDir, "report-dir", defaults.ReportDir, "Directory for the run report (empty disables)")
	f.BoolVar(&opts.cfg.Preview.Enabled, "preview", defaults.Preview.Enabled, "Also write a QOI preview per output")
	f.StringVar(&opts.cfg.Redis.Addr, "redis", defaults.Redis.Addr, "Redis address")
	f.IntVar(&opts.cfg.Redis.Workers, "redis-workers", defaults.Redis.Workers, "Number of queue consumers")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run every kernel size locally",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runLocal(opts.cfg)
			},
		},
		&cobra.Command{
			Use:   "submit",
			Short: "Queue one job per kernel size on Redis",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRedis(opts.cfg, func(client *queue.RedisClient) error {
					_, err := coordinator.NewCoordinator(client, opts.cfg).Submit(cmd.Context())
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "worker",
			Short: "Consume blur jobs from Redis",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRedis(opts.cfg, func(client *queue.RedisClient) error {
					runWorker(client, opts.cfg)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "assembler",
			Short: "Write finished outputs from Redis results",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRedis(opts.cfg, func(client *queue.RedisClient) error {
					runAssembler(client, opts.cfg)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "all",
			Short: "Submit, process and assemble one run in this process",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRedis(opts.cfg, func(client *queue.RedisClient) error {
					return runAll(cmd.Context(), client, opts.cfg)
				})
			},
		},
	)
	return root
}

// applyFlags copies every flag the user set over the file-loaded config.
func applyFlags(cmd *cobra.Command, cfg *config.Config, flags *config.Config) {
	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	set("source", func() { cfg.Source = flags.Source })
	set("sizes", func() { cfg.Sizes = flags.Sizes })
	set("output", func() { cfg.OutputDir = flags.OutputDir })
	set("template", func() { cfg.OutputTemplate = flags.OutputTemplate })
	set("pool", func() { cfg.PoolSize = flags.PoolSize })
	set("workers", func() { cfg.ConvolveWorkers = flags.ConvolveWorkers })
	set("border", func() { cfg.Border = flags.Border })
	set("kernel", func() { cfg.Kernel = flags.Kernel })
	set("report-dir", func() { cfg.ReportDir = flags.ReportDir })
	set("preview", func() { cfg.Preview.Enabled = flags.Preview.Enabled })
	set("redis", func() { cfg.Redis.Addr = flags.Redis.Addr })
	set("redis-workers", func() { cfg.Redis.Workers = flags.Redis.Workers })
}

func runLocal(cfg config.Config) error {
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	_, err := processor.Run(cfg)
	return err
}

func withRedis(cfg config.Config, fn func(client *queue.RedisClient) error) error {
	log.Printf("Redis: %s, prefix: %s", cfg.Redis.Addr, cfg.Redis.Prefix)
	client, err := queue.NewRedisClient(context.Background(), cfg.Redis.Addr, cfg.Redis.Prefix)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer client.Close()

	if err := client.EnsureGroups(context.Background()); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return fn(client)
}

func serviceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, time.Now().Unix())
}

func signals() chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	return sigChan
}

func runWorker(client *queue.RedisClient, cfg config.Config) {
	workerPool := processor.NewWorkerPool(client, cfg, serviceID())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		workerPool.Start()
	}()

	<-signals()
	workerPool.Stop()
	wg.Wait()
}

func runAssembler(client *queue.RedisClient, cfg config.Config) {
	imageAssembler := assembler.NewAssembler(client, cfg, serviceID())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		imageAssembler.Start()
	}()

	<-signals()
	imageAssembler.Stop()
	wg.Wait()
}

// runAll stops once the submitted run is assembled or on SIGINT/SIGTERM.
func runAll(ctx context.Context, client *queue.RedisClient, cfg config.Config) error {
	id := serviceID()
	workerPool := processor.NewWorkerPool(client, cfg, id)
	imageAssembler := assembler.NewAssembler(client, cfg, id)

	var runID string
	reports := make(chan stats.RunReport, 1)
	var mu sync.Mutex
	imageAssembler.OnRunComplete = func(r stats.RunReport) {
		mu.Lock()
		defer mu.Unlock()
		if r.RunID != runID {
			return
		}
		select {
		case reports <- r:
		default:
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		workerPool.Start()
	}()
	go func() {
		defer wg.Done()
		imageAssembler.Start()
	}()

	mu.Lock()
	submitted, err := coordinator.NewCoordinator(client, cfg).Submit(ctx)
	runID = submitted
	mu.Unlock()

	var result error
	if err != nil {
		result = err
	} else {
		select {
		case report := <-reports:
			result = processor.JobsError(report)
		case <-signals():
			log.Println("Shutting down all components...")
		}
	}

	workerPool.Stop()
	imageAssembler.Stop()
	wg.Wait()
	log.Println("Service shutdown complete")
	return result
}
