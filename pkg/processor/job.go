package processor

import (
	"fmt"
	"log"
	"time"

	"go-blur/pkg/bitmap"
	"go-blur/pkg/blur"
	"go-blur/pkg/config"
	"go-blur/pkg/preview"
	"go-blur/pkg/stats"
)

// BlurImage decodes a private copy of source and blurs it with a kernel of
// the given size. Nothing is returned if any step fails.
func BlurImage(cfg config.Config, source string, size int) (*bitmap.Image, error) {
	kernel, err := cfg.BuildKernel(size)
	if err != nil {
		return nil, err
	}
	border, err := cfg.BorderPolicy()
	if err != nil {
		return nil, err
	}

	img, err := cfg.Decoder().Decode(source)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	blur.Apply(img, kernel, blur.Options{
		Workers: cfg.ConvolveWorkers,
		Border:  border,
	})
	return img, nil
}

// RunJob runs decode, convolve and encode for one kernel size and writes the
// result to the size's output path.
func RunJob(cfg config.Config, size int) stats.JobResult {
	startTime := time.Now()
	result := stats.JobResult{KernelSize: size}

	outputPath, err := cfg.OutputPath(size)
	if err != nil {
		result.Err = err
		return result
	}
	result.OutputPath = outputPath

	img, err := BlurImage(cfg, cfg.Source, size)
	if err != nil {
		result.Err = err
		return result
	}

	if err := bitmap.Encode(img, outputPath); err != nil {
		result.Err = fmt.Errorf("failed to encode image: %w", err)
		return result
	}

	if cfg.Preview.Enabled {
		if err := preview.Write(img, preview.Path(outputPath), cfg.Preview.MaxDimension); err != nil {
			log.Printf("Preview for %s failed: %v", outputPath, err)
		}
	}

	result.Elapsed = time.Since(startTime)
	return result
}
