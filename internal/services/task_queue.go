package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/huangang/cocode/internal/config"
	"github.com/huangang/cocode/internal/metrics"
	"github.com/huangang/cocode/pkg/logger"
)

const (
	TaskTypeAIChat = "ai:chat"
)

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("task queue closed")

// AIChatTask asks the assistant to answer a chat message addressed to the AI.
type AIChatTask struct {
	ProjectID      string `json:"project_id"`
	Prompt         string `json:"prompt"`
	RequestedBy    string `json:"requested_by"`
	RequestedEmail string `json:"requested_email"`
	MessageID      string `json:"message_id"`
}

// TaskProcessor handles one AI chat task.
type TaskProcessor func(context.Context, *AIChatTask) error

// TaskQueue defines the interface for background AI task processing
type TaskQueue interface {
	// Enqueue adds a task to the queue
	Enqueue(ctx context.Context, task *AIChatTask) error
	// IsAsync returns true if queue processes tasks through Redis
	IsAsync() bool
	// Close gracefully shuts down the queue
	Close() error
}

// NewTaskQueue returns an asynq-backed queue when Redis is enabled and reachable,
// otherwise an in-process queue.
func NewTaskQueue(cfg *config.RedisConfig) TaskQueue {
	if cfg.Enabled {
		queue, err := NewAsyncQueue(cfg)
		if err == nil {
			logger.Info().Str("addr", cfg.Addr).Msg("[TaskQueue] async queue initialized")
			return queue
		}
		logger.Warn().Err(err).Msg("[TaskQueue] Redis unavailable, falling back to sync mode")
	} else {
		logger.Info().Msg("[TaskQueue] sync queue initialized (Redis disabled)")
	}
	return NewSyncQueue()
}

// AsyncQueue implements TaskQueue using asynq (Redis-based)
type AsyncQueue struct {
	client *asynq.Client
}

func redisClientOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewAsyncQueue creates a new Redis-based async queue
func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	redisOpt := redisClientOpt(cfg)

	client := asynq.NewClient(redisOpt)

	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

func (q *AsyncQueue) Enqueue(ctx context.Context, task *AIChatTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeAIChat, payload),
		asynq.Queue("default"),
		asynq.MaxRetry(2),
		asynq.Timeout(3*time.Minute),
	)
	if err != nil {
		return err
	}

	metrics.TasksEnqueued.WithLabelValues(TaskTypeAIChat, "async").Inc()
	logger.Debug().Str("task_id", info.ID).Str("queue", info.Queue).Str("project_id", task.ProjectID).Msg("[AsyncQueue] task enqueued")
	return nil
}

func (q *AsyncQueue) IsAsync() bool {
	return true
}

func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// SyncQueue runs tasks on a goroutine in this process (no Redis).
type SyncQueue struct {
	mu        sync.RWMutex
	processor TaskProcessor
	closed    bool
	wg        sync.WaitGroup
}

func NewSyncQueue() *SyncQueue {
	return &SyncQueue{}
}

// SetProcessor sets the function that handles tasks.
func (q *SyncQueue) SetProcessor(processor TaskProcessor) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processor = processor
}

// Enqueue starts the task without blocking the caller.
func (q *SyncQueue) Enqueue(_ context.Context, task *AIChatTask) error {
	// wg.Add happens under the read lock so it cannot race Close's Wait.
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	processor := q.processor
	if processor == nil {
		logger.Warn().Msg("[SyncQueue] no processor set, task dropped")
		return nil
	}

	metrics.TasksEnqueued.WithLabelValues(TaskTypeAIChat, "sync").Inc()
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if err := processor(context.Background(), task); err != nil {
			logger.Warn().Err(err).Str("project_id", task.ProjectID).Msg("[SyncQueue] task processing failed")
		}
	}()

	return nil
}

func (q *SyncQueue) IsAsync() bool {
	return false
}

// Close rejects new tasks and waits for in-flight ones.
func (q *SyncQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
	return nil
}
