package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"go-blur/pkg/common"
)

const (
	workersGroup    = "workers"
	assemblersGroup = "assemblers"
)

type RedisClient struct {
	client *redis.Client
	prefix string
}

func NewRedisClient(ctx context.Context, addr, prefix string) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisClient{
		client: client,
		prefix: prefix,
	}, nil
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

func (r *RedisClient) jobsStream() string {
	return r.prefix + ":jobs"
}

func (r *RedisClient) resultsStream() string {
	return r.prefix + ":results"
}

func (r *RedisClient) runInfoKey(runID string) string {
	return fmt.Sprintf("%s:run:%s:info", r.prefix, runID)
}

func (r *RedisClient) runCompletedKey(runID string) string {
	return fmt.Sprintf("%s:run:%s:completed", r.prefix, runID)
}

// EnsureGroups creates both consumer groups, reading from the start of each
// stream so jobs queued before a worker starts are not lost.
func (r *RedisClient) EnsureGroups(ctx context.Context) error {
	for stream, group := range map[string]string{
		r.jobsStream():    workersGroup,
		r.resultsStream(): assemblersGroup,
	} {
		err := r.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("create group %s on %s: %w", group, stream, err)
		}
	}
	return nil
}

func (r *RedisClient) AddJob(ctx context.Context, job *common.JobMessage) (string, error) {
	return r.add(ctx, r.jobsStream(), job)
}

func (r *RedisClient) AddResult(ctx context.Context, res *common.ResultMessage) (string, error) {
	return r.add(ctx, r.resultsStream(), res)
}

func (r *RedisClient) add(ctx context.Context, stream string, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	return r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{"data": b},
	}).Result()
}

// ReadJob blocks up to block for the next job. A nil job with a nil error
// means nothing arrived in time.
func (r *RedisClient) ReadJob(ctx context.Context, consumer string, block time.Duration) (string, *common.JobMessage, error) {
	var job common.JobMessage
	id, ok, err := r.read(ctx, r.jobsStream(), workersGroup, consumer, block, &job)
	if err != nil || !ok {
		return "", nil, err
	}
	return id, &job, nil
}

func (r *RedisClient) ReadResult(ctx context.Context, consumer string, block time.Duration) (string, *common.ResultMessage, error) {
	var res common.ResultMessage
	id, ok, err := r.read(ctx, r.resultsStream(), assemblersGroup, consumer, block, &res)
	if err != nil || !ok {
		return "", nil, err
	}
	return id, &res, nil
}

func (r *RedisClient) read(ctx context.Context, stream, group, consumer string, block time.Duration, v any) (string, bool, error) {
	result, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    1,
		Block:    block,
	}).Result()

	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil || len(result) == 0 || len(result[0].Messages) == 0 {
		return "", false, err
	}

	msg := result[0].Messages[0]
	if err := json.Unmarshal(bytesFromInterface(msg.Values["data"]), v); err != nil {
		return msg.ID, false, fmt.Errorf("decode message %s: %w", msg.ID, err)
	}
	return msg.ID, true, nil
}

func (r *RedisClient) AckJob(ctx context.Context, id string) error {
	return r.client.XAck(ctx, r.jobsStream(), workersGroup, id).Err()
}

func (r *RedisClient) AckResult(ctx context.Context, id string) error {
	return r.client.XAck(ctx, r.resultsStream(), assemblersGroup, id).Err()
}

func (r *RedisClient) StoreRunInfo(ctx context.Context, info *common.RunInfo) error {
	b, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.runInfoKey(info.ID), b, 24*time.Hour).Err()
}

func (r *RedisClient) GetRunInfo(ctx context.Context, runID string) (*common.RunInfo, error) {
	data, err := r.client.Get(ctx, r.runInfoKey(runID)).Result()
	if err != nil {
		return nil, err
	}

	var info common.RunInfo
	if err := json.Unmarshal([]byte(data), &info); err != nil {
		return nil, err
	}

	return &info, nil
}

// MarkJobCompleted records size as finished for the run and returns how many
// distinct sizes are now complete.
func (r *RedisClient) MarkJobCompleted(ctx context.Context, runID string, size int) (int64, error) {
	key := r.runCompletedKey(runID)
	if err := r.client.SAdd(ctx, key, size).Err(); err != nil {
		return 0, err
	}
	r.client.Expire(ctx, key, 24*time.Hour)
	return r.client.SCard(ctx, key).Result()
}

// ClaimStaleJobs takes over jobs another consumer read but never acknowledged.
func (r *RedisClient) ClaimStaleJobs(ctx context.Context, consumer string, minIdle time.Duration, count int) ([]string, error) {
	pending, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.jobsStream(),
		Group:  workersGroup,
		Idle:   minIdle,
		Count:  int64(count),
		Start:  "-",
		End:    "+",
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil || len(pending) == 0 {
		return nil, err
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}

	claimed, err := r.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   r.jobsStream(),
		Group:    workersGroup,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()

	if err != nil {
		return nil, err
	}

	claimedIDs := make([]string, 0, len(claimed))
	for _, c := range claimed {
		claimedIDs = append(claimedIDs, c.ID)
	}

	return claimedIDs, nil
}

// TouchJob reclaims a pending job for the consumer already working on it,
// resetting its idle time so ClaimStaleJobs leaves it alone.
func (r *RedisClient) TouchJob(ctx context.Context, consumer, id string) error {
	return r.client.XClaimJustID(ctx, &redis.XClaimArgs{
		Stream:   r.jobsStream(),
		Group:    workersGroup,
		Consumer: consumer,
		Messages: []string{id},
	}).Err()
}

// ReadClaimedJob returns one job already pending for consumer, such as one
// handed over by ClaimStaleJobs.
func (r *RedisClient) ReadClaimedJob(ctx context.Context, consumer string) (string, *common.JobMessage, error) {
	result, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    workersGroup,
		Consumer: consumer,
		Streams:  []string{r.jobsStream(), "0"},
		Count:    1,
		Block:    -1,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil, nil
	}
	if err != nil || len(result) == 0 || len(result[0].Messages) == 0 {
		return "", nil, err
	}

	msg := result[0].Messages[0]
	var job common.JobMessage
	if err := json.Unmarshal(bytesFromInterface(msg.Values["data"]), &job); err != nil {
		return msg.ID, nil, fmt.Errorf("decode message %s: %w", msg.ID, err)
	}
	return msg.ID, &job, nil
}

func bytesFromInterface(v interface{}) []byte {
	switch t := v.(type) {
	case string:
		return []byte(t)
	case []byte:
		return t
	default:
		b, _ := json.Marshal(t)
		return b
	}
}
