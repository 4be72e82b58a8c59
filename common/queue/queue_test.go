package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/agentflow/common/config"
	"github.com/lyzr/agentflow/common/logger"
	"github.com/lyzr/agentflow/common/redis"
)

func newTestQueue(t *testing.T) (*Jobs, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := logger.New("error", "json")
	client := redis.NewClient(rdb, log)

	q, err := New(context.Background(), client, config.EngineConfig{
		JobStream:     "wf.jobs",
		ConsumerGroup: "engine_workers",
		Concurrency:   1,
		ReclaimAfter:  time.Minute,
	}, log)
	require.NoError(t, err)
	return q, client
}

func readOne(t *testing.T, client *redis.Client) goredis.XMessage {
	t.Helper()
	streams, err := client.ReadFromStreamGroup(context.Background(), "engine_workers", "test-consumer", "wf.jobs", 1, time.Millisecond)
	require.NoError(t, err)
	require.Len(t, streams, 1)
	require.Len(t, streams[0].Messages, 1)
	return streams[0].Messages[0]
}

func pendingCount(t *testing.T, client *redis.Client) int64 {
	t.Helper()
	pending, err := client.GetUnderlying().XPending(context.Background(), "wf.jobs", "engine_workers").Result()
	require.NoError(t, err)
	return pending.Count
}

func TestEnqueueProcessAck(t *testing.T) {
	q, client := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &Job{
		RunID:      "run-1",
		WorkflowID: "wf-1",
		NodeID:     "start",
		Input:      map[string]any{"name": "Ada"},
	}))

	msg := readOne(t, client)

	var handled *Job
	q.process(ctx, msg, func(ctx context.Context, job *Job) error {
		handled = job
		return nil
	})

	require.NotNil(t, handled)
	assert.Equal(t, "run-1", handled.RunID)
	assert.Equal(t, "start", handled.NodeID)
	assert.Equal(t, "Ada", handled.Input["name"])

	assert.Equal(t, int64(0), pendingCount(t, client))
}

func TestFailedJobStaysPending(t *testing.T) {
	q, client := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &Job{RunID: "run-1", NodeID: "n"}))
	msg := readOne(t, client)

	q.process(ctx, msg, func(ctx context.Context, job *Job) error {
		return errors.New("db down")
	})

	assert.Equal(t, int64(1), pendingCount(t, client))
}

func TestMalformedMessageDropped(t *testing.T) {
	q, client := newTestQueue(t)
	ctx := context.Background()

	_, err := client.AddToStream(ctx, "wf.jobs", map[string]interface{}{"unexpected": "value"})
	require.NoError(t, err)

	msg := readOne(t, client)

	called := false
	q.process(ctx, msg, func(ctx context.Context, job *Job) error {
		called = true
		return nil
	})

	assert.False(t, called)
	assert.Equal(t, int64(0), pendingCount(t, client))
}

func TestUndecodableJobDropped(t *testing.T) {
	q, client := newTestQueue(t)
	ctx := context.Background()

	_, err := client.AddToStream(ctx, "wf.jobs", map[string]interface{}{"job": "{not json"})
	require.NoError(t, err)

	msg := readOne(t, client)

	called := false
	q.process(ctx, msg, func(ctx context.Context, job *Job) error {
		called = true
		return nil
	})

	assert.False(t, called)
	assert.Equal(t, int64(0), pendingCount(t, client))
}
