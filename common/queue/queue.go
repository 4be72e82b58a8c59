package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lyzr/agentflow/common/config"
	"github.com/lyzr/agentflow/common/logger"
	"github.com/lyzr/agentflow/common/redis"
)

// Job is one unit of work: execute a single node of a run. Workers are
// stateless; everything needed to execute the node travels in the job
// or is loaded from the database by run and workflow id.
type Job struct {
	RunID      string         `json:"run_id"`
	WorkflowID string         `json:"workflow_id"`
	NodeID     string         `json:"node_id"`
	Input      map[string]any `json:"input"`
}

// Enqueuer pushes jobs onto the work stream
type Enqueuer interface {
	Enqueue(ctx context.Context, job *Job) error
}

// HandlerFunc processes one job. A nil return acknowledges the
// message; a non-nil return leaves it pending for reclaim.
type HandlerFunc func(ctx context.Context, job *Job) error

// Jobs is the Redis-stream backed job queue. Jobs are delivered
// through a consumer group and acknowledged only after the handler
// returns, so a crashed worker's jobs are redelivered via reclaim.
type Jobs struct {
	client   *redis.Client
	cfg      config.EngineConfig
	consumer string
	log      *logger.Logger
}

// New creates the job queue and ensures the consumer group exists
func New(ctx context.Context, client *redis.Client, cfg config.EngineConfig, log *logger.Logger) (*Jobs, error) {
	if err := client.CreateStreamGroup(ctx, cfg.JobStream, cfg.ConsumerGroup); err != nil {
		return nil, err
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "worker"
	}

	return &Jobs{
		client:   client,
		cfg:      cfg,
		consumer: fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		log:      log,
	}, nil
}

// Enqueue adds a job to the work stream
func (q *Jobs) Enqueue(ctx context.Context, job *Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	id, err := q.client.AddToStream(ctx, q.cfg.JobStream, map[string]interface{}{
		"job": string(payload),
	})
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}

	q.log.Debug("job enqueued",
		"message_id", id,
		"run_id", job.RunID,
		"node_id", job.NodeID)
	return nil
}

// Consume runs the consumer loop until ctx is cancelled. It starts
// cfg.Concurrency reader goroutines plus one reclaim goroutine and
// blocks until all of them exit.
func (q *Jobs) Consume(ctx context.Context, handler HandlerFunc) {
	var wg sync.WaitGroup

	for i := 0; i < q.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			q.readLoop(ctx, fmt.Sprintf("%s-%d", q.consumer, n), handler)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		q.reclaimLoop(ctx, handler)
	}()

	wg.Wait()
}

func (q *Jobs) readLoop(ctx context.Context, consumer string, handler HandlerFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := q.client.ReadFromStreamGroup(ctx, q.cfg.ConsumerGroup, consumer, q.cfg.JobStream, 1, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.log.Error("stream read failed", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.process(ctx, msg, handler)
			}
		}
	}
}

// reclaimLoop periodically claims messages that have been pending
// longer than ReclaimAfter, which redelivers jobs from dead workers.
func (q *Jobs) reclaimLoop(ctx context.Context, handler HandlerFunc) {
	ticker := time.NewTicker(q.cfg.ReclaimAfter)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		msgs, err := q.client.ClaimIdleMessages(ctx, q.cfg.JobStream, q.cfg.ConsumerGroup, q.consumer, q.cfg.ReclaimAfter, 10)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.log.Error("reclaim failed", "error", err)
			continue
		}

		for _, msg := range msgs {
			q.log.Warn("reclaimed stale job", "message_id", msg.ID)
			q.process(ctx, msg, handler)
		}
	}
}

func (q *Jobs) process(ctx context.Context, msg goredis.XMessage, handler HandlerFunc) {
	raw, ok := msg.Values["job"].(string)
	if !ok {
		q.log.Error("malformed stream message, dropping", "message_id", msg.ID)
		q.ack(ctx, msg.ID)
		return
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		q.log.Error("undecodable job, dropping", "message_id", msg.ID, "error", err)
		q.ack(ctx, msg.ID)
		return
	}

	if err := handler(ctx, &job); err != nil {
		// Left pending for the reclaim loop
		q.log.Error("job handler failed",
			"message_id", msg.ID,
			"run_id", job.RunID,
			"node_id", job.NodeID,
			"error", err)
		return
	}

	q.ack(ctx, msg.ID)
}

func (q *Jobs) ack(ctx context.Context, messageID string) {
	if err := q.client.AckStreamMessage(ctx, q.cfg.JobStream, q.cfg.ConsumerGroup, messageID); err != nil {
		q.log.Error("ack failed", "message_id", messageID, "error", err)
	}
}
