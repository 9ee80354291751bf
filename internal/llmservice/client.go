package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"legal-researcher/internal/config"
	"legal-researcher/internal/helper"
	"legal-researcher/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// NewModel builds the chat model named by cfg.
func NewModel(cfg config.LLMConfig) (llms.Model, error) {
	log.Debug().Str("provider", cfg.Provider).Str("model", cfg.Model).Msg("creating inference model")
	switch cfg.Provider {
	case "openai":
		key := strings.TrimPrefix(cfg.Key, "Bearer ")
		if key == "" {
			return nil, fmt.Errorf("%w: no API key for %s", models.ErrMissingCredential, cfg.Provider)
		}
		opts := []openai.Option{
			openai.WithToken(key),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, err
		}
		return llm, nil
	case "ollama":
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, err
		}
		return llm, nil
	case "googleai":
		if cfg.Key == "" {
			return nil, fmt.Errorf("%w: no API key for %s", models.ErrMissingCredential, cfg.Provider)
		}
		llm, err := googleai.New(context.Background(),
			googleai.WithAPIKey(cfg.Key),
			googleai.WithDefaultModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to init googleai model: %w", err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("unsupported inference provider %q", cfg.Provider)
	}
}

// Client wraps a chat model with per-call timeouts and retries.
type Client struct {
	model       llms.Model
	temperature float64
	timeout     time.Duration
	maxRetries  int
	retryWait   time.Duration
}

func NewClient(model llms.Model, cfg config.Config) *Client {
	return &Client{
		model:       model,
		temperature: cfg.InferenceLLM.Temperature,
		timeout:     cfg.Pipeline.CallTimeout,
		maxRetries:  cfg.Pipeline.MaxRetries,
		retryWait:   cfg.Pipeline.RetryInterval,
	}
}

// New builds the configured inference model and wraps it.
func New(cfg config.Config) (*Client, error) {
	model, err := NewModel(cfg.InferenceLLM)
	if err != nil {
		return nil, err
	}
	return NewClient(model, cfg), nil
}

// Generate sends one system + human exchange and returns the reply text.
func (c *Client) Generate(ctx context.Context, persona models.Persona, prompt string) (string, error) {
	return c.Chat(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, SystemPrompt(persona, "")),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	})
}

// Chat sends messages and returns the first choice. Timeouts map to
// models.ErrTimeout and other transport failures to models.ErrUnavailable,
// both after retries are spent.
func (c *Client) Chat(ctx context.Context, messages []llms.MessageContent) (string, error) {
	var text string
	start := time.Now()
	err := helper.Retry(ctx, "llm", c.maxRetries, c.retryWait, c.timeout, func(ctx context.Context) error {
		resp, err := c.model.GenerateContent(ctx, messages, llms.WithTemperature(c.temperature))
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return helper.Permanent(fmt.Errorf("%w: model returned no choices", models.ErrMalformedResponse))
		}
		text = resp.Choices[0].Content
		return nil
	})
	switch {
	case err == nil:
		log.Debug().Dur("elapsed", time.Since(start)).Int("chars", len(text)).Msg("model replied")
		return text, nil
	case errors.Is(err, models.ErrMalformedResponse), errors.Is(err, context.Canceled):
		return "", err
	case errors.Is(err, context.DeadlineExceeded):
		return "", fmt.Errorf("%w: after %s: %v", models.ErrTimeout, time.Since(start).Round(time.Millisecond), err)
	default:
		return "", fmt.Errorf("%w: %w", models.ErrUnavailable, err)
	}
}

// SystemPrompt renders a persona, followed by extra instructions when given.
func SystemPrompt(p models.Persona, extra string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s.\nGoal: %s\n%s", p.Role, p.Goal, p.Backstory)
	if extra != "" {
		b.WriteString("\n\n")
		b.WriteString(extra)
	}
	return b.String()
}
