package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-blur/pkg/config"
	"go-blur/pkg/queue"
)

func TestSubmitQueuesOneJobPerSize(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client, err := queue.NewRedisClient(ctx, mr.Addr(), "test")
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.EnsureGroups(ctx))

	cfg := config.Default()
	cfg.Source = "in.bmp"
	cfg.Sizes = []int{3, 5}
	cfg.OutputDir = "out"

	runID, err := NewCoordinator(client, cfg).Submit(ctx)
	require.NoError(t, err)

	info, err := client.GetRunInfo(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 2, info.ExpectedJobs)
	assert.Equal(t, "in.bmp", info.Source)

	for _, size := range cfg.Sizes {
		_, job, err := client.ReadJob(ctx, "w", 50*time.Millisecond)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, runID, job.RunID)
		assert.Equal(t, size, job.KernelSize)
		want, err := cfg.OutputPath(size)
		require.NoError(t, err)
		assert.Equal(t, want, job.OutputPath)
	}
}

func TestSubmitRejectsInvalidConfig(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client, err := queue.NewRedisClient(ctx, mr.Addr(), "test")
	require.NoError(t, err)
	defer client.Close()

	cfg := config.Default()
	cfg.Kernel = "gausian"
	_, err = NewCoordinator(client, cfg).Submit(ctx)
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Sizes = []int{3, 3}
	_, err = NewCoordinator(client, cfg).Submit(ctx)
	assert.Error(t, err)
}

func TestSubmitQueuesInvalidSizes(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client, err := queue.NewRedisClient(ctx, mr.Addr(), "test")
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.EnsureGroups(ctx))

	cfg := config.Default()
	cfg.Sizes = []int{3, 12}
	runID, err := NewCoordinator(client, cfg).Submit(ctx)
	require.NoError(t, err)

	info, err := client.GetRunInfo(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 2, info.ExpectedJobs)

	_, first, err := client.ReadJob(ctx, "w", 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 3, first.KernelSize)

	_, second, err := client.ReadJob(ctx, "w", 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, 12, second.KernelSize)
	assert.Empty(t, second.OutputPath)
}
