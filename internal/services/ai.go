package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/huangang/cocode/internal/config"
	"github.com/huangang/cocode/internal/metrics"
	"github.com/huangang/cocode/pkg/logger"
	"github.com/huangang/cocode/pkg/response"
	"github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"google.golang.org/genai"
)

// SystemInstruction is sent with every prompt.
const SystemInstruction = `You are an expert in MERN and Development. You always write code in a modular way and break the code up wherever possible, following best practices. You use understandable comments in the code. You create files as needed. You write code while maintaining the working of previous code. You always write code that is scalable and maintainable. In your code you always handle errors and exceptions.

Always answer with a single JSON object of the form {"text": string, "fileTree": object}. "text" is your reply to the user. "fileTree" is optional: include it only when you produce or change code, mapping each relative file path (for example "app.js" or "routes/user.js") to the complete file contents as a string. Never use file names like routes/index.js.`

// Generator produces model output for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type completionFunc func(ctx context.Context, cfg *config.AIConfig, system, prompt string) (string, error)

// AIGateway forwards prompts to the configured provider behind a circuit breaker.
type AIGateway struct {
	cfg     config.AIConfig
	call    completionFunc
	breaker *gobreaker.CircuitBreaker
}

func NewAIGateway(cfg config.AIConfig) *AIGateway {
	return newAIGateway(cfg, providerFunc(cfg.Provider))
}

func newAIGateway(cfg config.AIConfig, call completionFunc) *AIGateway {
	if cfg.Provider == "" {
		cfg.Provider = "gemini"
	}
	return &AIGateway{
		cfg:  cfg,
		call: call,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "ai-" + cfg.Provider,
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// Cancellation by the caller is not a provider failure.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("AI circuit breaker state changed")
			},
		}),
	}
}

func (g *AIGateway) Provider() string {
	return g.cfg.Provider
}

// Generate returns the model's raw text for prompt. Blank prompts are rejected
// without contacting the provider.
func (g *AIGateway) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		metrics.AIRequests.WithLabelValues(g.cfg.Provider, "rejected").Inc()
		return "", response.NewBadRequest("prompt is required")
	}

	if g.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(g.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	start := time.Now()
	out, err := g.breaker.Execute(func() (interface{}, error) {
		text, err := g.call(ctx, &g.cfg, SystemInstruction, prompt)
		if err != nil && errors.Is(ctx.Err(), context.Canceled) && !errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%w: %w", context.Canceled, err)
		}
		return text, err
	})
	metrics.AIRequestDuration.WithLabelValues(g.cfg.Provider).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.AIRequests.WithLabelValues(g.cfg.Provider, "error").Inc()
		logger.Error().Err(err).Str("provider", g.cfg.Provider).Str("model", g.cfg.Model).Msg("AI generation failed")
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", response.NewUpstream("AI provider temporarily unavailable", err)
		}
		return "", response.NewUpstream("AI provider failed", err)
	}

	text := out.(string)
	metrics.AIRequests.WithLabelValues(g.cfg.Provider, "ok").Inc()
	logger.Debug().Str("provider", g.cfg.Provider).Int("prompt_len", len(prompt)).Int("response_len", len(text)).Msg("AI generation finished")
	return text, nil
}

// providerFunc dispatches on the configured provider name.
func providerFunc(provider string) completionFunc {
	switch provider {
	case "anthropic":
		return callAnthropic
	case "ollama":
		return callOllama
	case "openai":
		return callOpenAI
	default:
		return callGemini
	}
}

// callGemini uses Google's generative model, asking for JSON output.
func callGemini(ctx context.Context, cfg *config.AIConfig, system, prompt string) (string, error) {
	if cfg.APIKey == "" {
		return "", errors.New("GOOGLE_AI_KEY is not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("Gemini client error: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}
	return resp.Text(), nil
}

// callOpenAI handles OpenAI and OpenAI-compatible endpoints.
func callOpenAI(ctx context.Context, cfg *config.AIConfig, system, prompt string) (string, error) {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(clientConfig)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:      cfg.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}

func callAnthropic(ctx context.Context, cfg *config.AIConfig, system, prompt string) (string, error) {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	return content.String(), nil
}

func callOllama(ctx context.Context, cfg *config.AIConfig, system, prompt string) (string, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid Ollama base URL: %w", err)
	}
	client := api.NewClient(u, http.DefaultClient)

	model := cfg.Model
	if model == "" {
		model = "llama3"
	}

	var content strings.Builder
	err = client.Chat(ctx, &api.ChatRequest{
		Model: model,
		Messages: []api.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
	}, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("Ollama API error: %w", err)
	}
	return content.String(), nil
}
