package services

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/huangang/cocode/internal/config"
)

func TestNewWorker_DisabledRedis(t *testing.T) {
	if w := NewWorker(&config.RedisConfig{Enabled: false}); w != nil {
		t.Error("expected nil worker when Redis is disabled")
	}
}

func TestWorker_HandleAIChatTask(t *testing.T) {
	w := &Worker{}

	err := w.handleAIChatTask(context.Background(), asynq.NewTask(TaskTypeAIChat, []byte("{not json")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("expected SkipRetry for undecodable payload, got %v", err)
	}

	var got *AIChatTask
	w.SetProcessor(func(ctx context.Context, task *AIChatTask) error {
		got = task
		return nil
	})
	payload := []byte(`{"project_id":"P","prompt":"hi","requested_by":"u1"}`)
	if err := w.handleAIChatTask(context.Background(), asynq.NewTask(TaskTypeAIChat, payload)); err != nil {
		t.Fatalf("handleAIChatTask() error = %v", err)
	}
	if got == nil || got.ProjectID != "P" || got.Prompt != "hi" {
		t.Errorf("processor got %+v", got)
	}
}
