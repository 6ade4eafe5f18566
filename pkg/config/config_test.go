package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-blur/pkg/blur"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Sizes, 40)
	assert.Equal(t, 11, cfg.Sizes[0])
	assert.Equal(t, 89, cfg.Sizes[len(cfg.Sizes)-1])
	border, err := cfg.BorderPolicy()
	require.NoError(t, err)
	assert.Equal(t, blur.BorderCompat, border)
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		size int
		want string
	}{
		{1, "Blur01.bmp"},
		{5, "Blur05.bmp"},
		{11, "Blur11.bmp"},
		{89, "Blur89.bmp"},
		{99, "Blur99.bmp"},
	}
	for _, tt := range tests {
		got, err := OutputName("Blur{size}.bmp", tt.size)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	for _, size := range []int{0, 4, 100, 101, -1} {
		_, err := OutputName("Blur{size}.bmp", size)
		assert.ErrorIs(t, err, blur.ErrInvalidKernelSize, "size %d", size)
	}
}

func TestOutputPath(t *testing.T) {
	cfg := Default()
	cfg.OutputDir = "out"
	got, err := cfg.OutputPath(13)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("out", "Blur13.bmp"), got)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no source", func(c *Config) { c.Source = "" }},
		{"no sizes", func(c *Config) { c.Sizes = nil }},
		{"duplicates", func(c *Config) { c.Sizes = []int{11, 13, 11} }},
		{"pool size", func(c *Config) { c.PoolSize = 0 }},
		{"border", func(c *Config) { c.Border = "wrap" }},
		{"misspelled kernel", func(c *Config) { c.Kernel = "gausian" }},
		{"expression", func(c *Config) { c.Kernel = "i +" }},
		{"template", func(c *Config) { c.OutputTemplate = "Blur.bmp" }},
		{"preview", func(c *Config) { c.Preview = Preview{Enabled: true} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateLeavesSizesToJobs(t *testing.T) {
	cfg := Default()
	cfg.Sizes = []int{3, 12, 101}
	assert.NoError(t, cfg.Validate())

	_, err := cfg.OutputPath(12)
	assert.ErrorIs(t, err, blur.ErrInvalidKernelSize)
	_, err = cfg.OutputPath(101)
	assert.ErrorIs(t, err, blur.ErrInvalidKernelSize)
}

func TestValidateAcceptsKernels(t *testing.T) {
	for _, kernel := range []string{"", "box", "gaussian", "exp(-(i*i + j*j) / (2 * radius))"} {
		cfg := Default()
		cfg.Kernel = kernel
		assert.NoError(t, cfg.Validate(), kernel)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blur.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source: in/photo.bmp
sizes: [3, 5, 7]
pool_size: 2
border: consistent
kernel: gaussian
redis:
  addr: redis:6379
  block: 2s
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "in/photo.bmp", cfg.Source)
	assert.Equal(t, []int{3, 5, 7}, cfg.Sizes)
	assert.Equal(t, 2, cfg.PoolSize)
	border, err := cfg.BorderPolicy()
	require.NoError(t, err)
	assert.Equal(t, blur.BorderConsistent, border)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2*time.Second, cfg.Redis.Block)
	assert.Equal(t, "blur", cfg.Redis.Prefix)
	require.NoError(t, cfg.Validate())

	k, err := cfg.BuildKernel(5)
	require.NoError(t, err)
	assert.Greater(t, k.At(2, 2), k.At(0, 0))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sizes: [3\nunknown: 1\n"), 0644))
	_, err = Load(path)
	assert.Error(t, err)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Source, cfg.Source)
}

func TestBuildKernelExpression(t *testing.T) {
	cfg := Default()
	cfg.Kernel = "1"
	k, err := cfg.BuildKernel(3)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/9, k.At(0, 0), 1e-15)
}
