// Package queue is a Redis-backed task queue with at-least-once delivery.
// Tasks move from the pending list to a per-consumer processing list and are
// acknowledged only after handling (late ack, prefetch 1); a consumer that
// dies mid-task leaves the payload in its processing list for redelivery at
// the next startup. Failed tasks park in a retry set scored by due time.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storeforge/storeforge-backend/internal/pkg/metrics"
)

const (
	pendingKey = "queue:tasks"
	retryKey   = "queue:retry"

	// TaskProvision and TaskDelete are the task names the worker dispatches on.
	TaskProvision = "provision_store"
	TaskDelete    = "delete_store"
)

// Task is the wire payload.
type Task struct {
	Task    string `json:"task"`
	StoreID string `json:"store_id"`
	Attempt int    `json:"attempt"`
}

// Queue enqueues tasks for the worker.
type Queue struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// NewClient dials Redis from a URL (redis://host:port/db).
func NewClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Enqueue pushes a task onto the pending list with attempt 0.
func (q *Queue) Enqueue(ctx context.Context, task, storeID string) error {
	payload, err := json.Marshal(Task{Task: task, StoreID: storeID})
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, pendingKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", task, err)
	}
	return nil
}

// Handler processes one task delivery. A nil return acknowledges the task.
type Handler func(ctx context.Context, t Task) error

// ExhaustedHook runs after the final failed attempt, before the ack.
type ExhaustedHook func(ctx context.Context, t Task, err error)

// Consumer pulls tasks one at a time and drives retries.
type Consumer struct {
	rdb       *redis.Client
	workerID  string
	handler   Handler
	exhausted ExhaustedHook
	logger    *slog.Logger

	MaxRetries int
	BaseDelay  time.Duration
	// PopTimeout bounds each blocking pop so the loop can promote due
	// retries and observe ctx between deliveries.
	PopTimeout time.Duration

	now func() time.Time
}

func NewConsumer(rdb *redis.Client, workerID string, handler Handler, exhausted ExhaustedHook, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		rdb:        rdb,
		workerID:   workerID,
		handler:    handler,
		exhausted:  exhausted,
		logger:     logger,
		MaxRetries: 3,
		BaseDelay:  60 * time.Second,
		PopTimeout: time.Second,
		now:        time.Now,
	}
}

func (c *Consumer) processingKey() string {
	return "queue:processing:" + c.workerID
}

// Run consumes until ctx is cancelled. Orphans from a previous crash of the
// same worker id are requeued first.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.RecoverOrphans(ctx); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.promoteDueRetries(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("queue_promote_failed", "error", err)
		}
		payload, err := c.rdb.BRPopLPush(ctx, pendingKey, c.processingKey(), c.PopTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("queue_pop_failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		c.handleDelivery(ctx, payload)
	}
}

// RecoverOrphans moves any payloads left in this consumer's processing list
// back onto the pending list.
func (c *Consumer) RecoverOrphans(ctx context.Context) error {
	for {
		payload, err := c.rdb.RPopLPush(ctx, c.processingKey(), pendingKey).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("recover orphans: %w", err)
		}
		c.logger.Info("queue_orphan_requeued", "payload", payload)
	}
}

// handleDelivery runs the handler and acks or reschedules. The payload is
// removed from the processing list in every branch; only a crash leaves it
// behind, which RecoverOrphans handles.
func (c *Consumer) handleDelivery(ctx context.Context, payload string) {
	defer c.ack(ctx, payload)

	var t Task
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		c.logger.Error("queue_bad_payload", "payload", payload, "error", err)
		return
	}
	start := c.now()
	err := c.handler(ctx, t)
	metrics.TaskDurationSeconds.WithLabelValues(t.Task).Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.TasksTotal.WithLabelValues(t.Task, "ok").Inc()
		return
	}

	c.logger.Error("task_failed", "task", t.Task, "store_id", t.StoreID, "attempt", t.Attempt, "error", err)
	// Retry while attempt < MaxRetries: the initial delivery plus MaxRetries
	// redeliveries before the task is declared dead.
	if t.Attempt >= c.MaxRetries {
		metrics.TasksTotal.WithLabelValues(t.Task, "exhausted").Inc()
		if c.exhausted != nil {
			c.exhausted(ctx, t, err)
		}
		return
	}
	if schedErr := c.scheduleRetry(ctx, t); schedErr != nil {
		c.logger.Error("queue_retry_schedule_failed", "task", t.Task, "error", schedErr)
		return
	}
	metrics.TasksTotal.WithLabelValues(t.Task, "retry").Inc()
}

func (c *Consumer) ack(ctx context.Context, payload string) {
	if err := c.rdb.LRem(ctx, c.processingKey(), 1, payload).Err(); err != nil {
		c.logger.Error("queue_ack_failed", "error", err)
	}
}

// scheduleRetry parks the task in the retry set, due at now + delay, with
// delay growing linearly per attempt.
func (c *Consumer) scheduleRetry(ctx context.Context, t Task) error {
	t.Attempt++
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	due := c.now().Add(time.Duration(t.Attempt) * c.BaseDelay)
	return c.rdb.ZAdd(ctx, retryKey, redis.Z{
		Score:  float64(due.Unix()),
		Member: payload,
	}).Err()
}

// promoteDueRetries moves retry entries whose due time has passed back onto
// the pending list.
func (c *Consumer) promoteDueRetries(ctx context.Context) error {
	nowScore := strconv.FormatInt(c.now().Unix(), 10)
	members, err := c.rdb.ZRangeByScore(ctx, retryKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: nowScore,
	}).Result()
	if err != nil {
		return err
	}
	for _, m := range members {
		removed, err := c.rdb.ZRem(ctx, retryKey, m).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		if err := c.rdb.LPush(ctx, pendingKey, m).Err(); err != nil {
			return err
		}
	}
	return nil
}
