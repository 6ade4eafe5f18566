package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v2"

	"go-blur/pkg/bitmap"
	"go-blur/pkg/blur"
)

const (
	// SizePlaceholder marks where the zero-padded kernel size goes in OutputTemplate.
	SizePlaceholder = "{size}"

	// MaxKernelSize is the largest size that fits the two-digit filename slot.
	MaxKernelSize = 99
)

// Config is everything a run needs; nothing is read from globals.
type Config struct {
	Source          string  `yaml:"source"`
	Sizes           []int   `yaml:"sizes"`
	OutputDir       string  `yaml:"output_dir"`
	OutputTemplate  string  `yaml:"output_template"`
	PoolSize        int     `yaml:"pool_size"`
	ConvolveWorkers int     `yaml:"convolve_workers"`
	Border          string  `yaml:"border"`
	Kernel          string  `yaml:"kernel"` // box, gaussian, or a weight expression
	MaxPixelBytes   int64   `yaml:"max_pixel_bytes"`
	ReportDir       string  `yaml:"report_dir"`
	Preview         Preview `yaml:"preview"`
	Redis           Redis   `yaml:"redis"`
}

type Preview struct {
	Enabled      bool `yaml:"enabled"`
	MaxDimension uint `yaml:"max_dimension"`
}

type Redis struct {
	Addr       string        `yaml:"addr"`
	Prefix     string        `yaml:"prefix"`
	Block      time.Duration `yaml:"block"`
	Visibility time.Duration `yaml:"visibility"`
	Workers    int           `yaml:"workers"`
}

// Default mirrors the original run: one source file, odd sizes 11 through 89.
func Default() Config {
	return Config{
		Source:          "f7.bmp",
		Sizes:           lo.RangeWithSteps(11, 91, 2),
		OutputDir:       ".",
		OutputTemplate:  "Blur" + SizePlaceholder + ".bmp",
		PoolSize:        runtime.NumCPU(),
		ConvolveWorkers: runtime.NumCPU(),
		Border:          blur.BorderCompat.String(),
		Kernel:          "box",
		MaxPixelBytes:   bitmap.DefaultMaxPixelBytes,
		Preview: Preview{
			MaxDimension: 256,
		},
		Redis: Redis{
			Addr:       "localhost:6379",
			Prefix:     "blur",
			Block:      5 * time.Second,
			Visibility: 30 * time.Second,
			Workers:    runtime.NumCPU(),
		},
	}
}

// Load reads a YAML file over the defaults. A missing path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file '%s': %w", path, err)
	}
	return cfg, nil
}

// kernelProbeSize is the smallest size with a nonzero radius, used to check
// the kernel setting once before any job runs.
const kernelProbeSize = 3

// Validate checks the run-wide settings before any job starts. Individual
// kernel sizes are checked by their own job, so one bad size fails only
// that job.
func (c Config) Validate() error {
	var errs []error
	if c.Source == "" {
		errs = append(errs, errors.New("source path is empty"))
	}
	if len(c.Sizes) == 0 {
		errs = append(errs, errors.New("no kernel sizes requested"))
	}
	if dups := lo.FindDuplicates(c.Sizes); len(dups) > 0 {
		errs = append(errs, fmt.Errorf("duplicate kernel sizes %v", dups))
	}
	if c.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("pool size %d, want at least 1", c.PoolSize))
	}
	if _, err := c.BorderPolicy(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.BuildKernel(kernelProbeSize); err != nil {
		errs = append(errs, fmt.Errorf("kernel %q: %w", c.Kernel, err))
	}
	if !strings.Contains(c.OutputTemplate, SizePlaceholder) {
		errs = append(errs, fmt.Errorf("output template %q has no %s", c.OutputTemplate, SizePlaceholder))
	}
	if c.Preview.Enabled && c.Preview.MaxDimension == 0 {
		errs = append(errs, errors.New("preview max dimension is 0"))
	}
	return errors.Join(errs...)
}

// CheckSize accepts odd sizes from 1 to MaxKernelSize.
func CheckSize(size int) error {
	if err := blur.CheckSize(size); err != nil {
		return err
	}
	if size > MaxKernelSize {
		return fmt.Errorf("%w: %d does not fit a two-digit name", blur.ErrInvalidKernelSize, size)
	}
	return nil
}

// OutputName substitutes the two-digit size into template.
func OutputName(template string, size int) (string, error) {
	if err := CheckSize(size); err != nil {
		return "", err
	}
	return strings.ReplaceAll(template, SizePlaceholder, fmt.Sprintf("%02d", size)), nil
}

// OutputPath is the file a job for size writes to.
func (c Config) OutputPath(size int) (string, error) {
	name, err := OutputName(c.OutputTemplate, size)
	if err != nil {
		return "", err
	}
	return filepath.Join(c.OutputDir, name), nil
}

// BorderPolicy parses the border setting.
func (c Config) BorderPolicy() (blur.BorderPolicy, error) {
	return blur.ParseBorder(c.Border)
}

// BuildKernel creates the kernel for size according to c.Kernel.
func (c Config) BuildKernel(size int) (*blur.Kernel, error) {
	switch c.Kernel {
	case "", "box":
		return blur.Box(size)
	case "gaussian":
		return blur.Gaussian(size)
	}
	return blur.FromExpression(size, c.Kernel)
}

// Decoder returns a bitmap decoder bounded by MaxPixelBytes.
func (c Config) Decoder() *bitmap.Decoder {
	return &bitmap.Decoder{MaxPixelBytes: c.MaxPixelBytes}
}
