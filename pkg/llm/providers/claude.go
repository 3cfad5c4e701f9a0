// Package providers contains the concrete LLM backends behind the gateway:
// Claude, Gemini, and Azure OpenAI.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/priorauth-labs/caseflow/pkg/llm"
	"github.com/priorauth-labs/caseflow/pkg/models"
)

// Claude backs POLICY_REASONING and other reasoning-heavy task categories.
type Claude struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

// NewClaude creates a Claude provider from an API key.
func NewClaude(apiKey, model string, maxTokens int) *Claude {
	return &Claude{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Name implements llm.ProviderClient.
func (c *Claude) Name() models.Provider { return models.ProviderClaude }

// Analyze implements llm.ProviderClient.
func (c *Claude) Analyze(ctx context.Context, req llm.AnalyzeRequest) (*llm.AnalyzeResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	system := req.SystemPrompt
	if req.JSONMode {
		// Claude has no native JSON mode; instruct and let the gateway
		// strip any markdown fencing.
		if system != "" {
			system += "\n\n"
		}
		system += "Respond with a single valid JSON object and nothing else."
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	start := time.Now()
	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, c.classify(err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return &llm.AnalyzeResult{
		Text: sb.String(),
		Usage: llm.Usage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
			LatencyMS:    time.Since(start).Milliseconds(),
			Model:        c.model,
		},
	}, nil
}

// Embed implements llm.ProviderClient. Claude exposes no embedding API;
// the gateway routes embeddings through Gemini.
func (c *Claude) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	return nil, fmt.Errorf("claude embeddings: %w", errors.ErrUnsupported)
}

// HealthCheck implements llm.ProviderClient.
func (c *Claude) HealthCheck(ctx context.Context) error {
	_, err := c.Analyze(ctx, llm.AnalyzeRequest{Prompt: "ping", MaxTokens: 8})
	return err
}

func (c *Claude) classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return llm.NewProviderError(models.ProviderClaude, apiErr.StatusCode, err)
	}
	return fmt.Errorf("claude request failed: %w", err)
}
