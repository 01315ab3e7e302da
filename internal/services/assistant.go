package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/huangang/cocode/internal/metrics"
	"github.com/huangang/cocode/internal/models"
	"github.com/huangang/cocode/internal/realtime"
	"github.com/huangang/cocode/pkg/logger"
)

// AIMention addresses a chat message to the assistant.
const AIMention = "@ai"

var mentionPattern = regexp.MustCompile(`(?i)@ai\b`)

// Publisher broadcasts chat messages to a project room.
type Publisher interface {
	Publish(ctx context.Context, projectID string, msg realtime.ChatMessage) error
}

// FileTreeSaver persists a file tree produced by the assistant.
type FileTreeSaver interface {
	SaveFileTree(projectID string, tree models.FileTree) error
}

// ChatAssistant answers project chat messages that mention @ai.
type ChatAssistant struct {
	generator Generator
	queue     TaskQueue
	publisher Publisher
	trees     FileTreeSaver
	activity  *ActivityService
}

func NewChatAssistant(generator Generator, queue TaskQueue, publisher Publisher, trees FileTreeSaver, activity *ActivityService) *ChatAssistant {
	return &ChatAssistant{
		generator: generator,
		queue:     queue,
		publisher: publisher,
		trees:     trees,
		activity:  activity,
	}
}

// Mentioned reports whether text addresses the assistant.
func Mentioned(text string) bool {
	return mentionPattern.MatchString(text)
}

// StripMention removes every @ai mention and surrounding whitespace.
func StripMention(text string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(mentionPattern.ReplaceAllString(text, " ")), " "))
}

// HandleChatMessage enqueues an AI task when msg mentions the assistant.
// It reports whether a task was queued.
func (a *ChatAssistant) HandleChatMessage(ctx context.Context, projectID string, msg realtime.HumanMessage) (bool, error) {
	if !Mentioned(msg.Text) {
		return false, nil
	}
	prompt := StripMention(msg.Text)
	if prompt == "" {
		return false, nil
	}

	task := &AIChatTask{
		ProjectID:      projectID,
		Prompt:         prompt,
		RequestedBy:    msg.Sender.ID,
		RequestedEmail: msg.Sender.Email,
		MessageID:      msg.ID,
	}
	if err := a.queue.Enqueue(ctx, task); err != nil {
		return false, fmt.Errorf("enqueue ai task: %w", err)
	}
	return true, nil
}

// ProcessAITask generates the assistant's reply, stores any file tree and
// broadcasts the reply to the project room.
func (a *ChatAssistant) ProcessAITask(ctx context.Context, task *AIChatTask) error {
	raw, err := a.generator.Generate(ctx, task.Prompt)
	if err != nil {
		a.publishFailure(ctx, task, err)
		// the room already saw the failure notice
		return fmt.Errorf("generate ai reply: %v: %w", err, asynq.SkipRetry)
	}

	reply, err := realtime.ParseAIReply(raw)
	if err != nil {
		metrics.RealtimeMalformed.WithLabelValues("ai").Inc()
		logger.Warn().Err(err).Str("project_id", task.ProjectID).Msg("AI reply is not a valid payload, sending as text")
	}

	if reply.HasFileTree() && a.trees != nil {
		if err := a.trees.SaveFileTree(task.ProjectID, reply.FileTree); err != nil {
			logger.Error().Err(err).Str("project_id", task.ProjectID).Msg("failed to save AI file tree")
		}
	}

	if err := a.publisher.Publish(ctx, task.ProjectID, reply); err != nil {
		return fmt.Errorf("publish ai reply: %w", err)
	}

	a.activity.Record(ActivityEntry{
		ProjectID: task.ProjectID,
		UserID:    task.RequestedBy,
		Action:    "ai.reply",
		Message:   fmt.Sprintf("answered %s", task.RequestedEmail),
		Extra:     map[string]interface{}{"files": len(reply.FileTree), "message_id": task.MessageID},
	})
	return nil
}

func (a *ChatAssistant) publishFailure(ctx context.Context, task *AIChatTask, cause error) {
	text := fmt.Sprintf("Sorry, I could not answer that right now (%s).", cause.Error())
	if err := a.publisher.Publish(ctx, task.ProjectID, realtime.NewAIMessage(text, nil)); err != nil {
		logger.Warn().Err(err).Str("project_id", task.ProjectID).Msg("failed to publish AI failure notice")
	}
}
