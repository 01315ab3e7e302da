package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/huangang/cocode/internal/config"
	"github.com/huangang/cocode/pkg/logger"
)

// Worker consumes AI chat tasks from Redis.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor TaskProcessor
	running   bool
	mu        sync.Mutex
}

// NewWorker returns nil when Redis is disabled.
func NewWorker(cfg *config.RedisConfig) *Worker {
	if !cfg.Enabled {
		return nil
	}

	server := asynq.NewServer(
		redisClientOpt(cfg),
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Warn().Err(err).Str("task_type", task.Type()).Msg("[Worker] task failed")
			}),
		},
	)

	return &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
	}
}

func (w *Worker) SetProcessor(processor TaskProcessor) {
	w.processor = processor
}

// Start begins processing tasks
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.mux.HandleFunc(TaskTypeAIChat, w.handleAIChatTask)

	// Start does not trap signals; shutdown is driven by Stop.
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	w.running = true
	logger.Info().Msg("[Worker] async worker started")
	return nil
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	w.server.Shutdown()
	w.running = false
	logger.Info().Msg("[Worker] shutdown complete")
}

func (w *Worker) handleAIChatTask(ctx context.Context, t *asynq.Task) error {
	var task AIChatTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		// a payload that cannot decode will never succeed on retry
		return fmt.Errorf("decode %s payload: %v: %w", TaskTypeAIChat, err, asynq.SkipRetry)
	}

	if w.processor == nil {
		logger.Warn().Msg("[Worker] no processor set")
		return nil
	}

	return w.processor(ctx, &task)
}
