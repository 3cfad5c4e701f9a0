package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/priorauth-labs/caseflow/pkg/llm"
	"github.com/priorauth-labs/caseflow/pkg/models"
)

// AzureOpenAI backs general text tasks as the last fallback in most routes.
type AzureOpenAI struct {
	model      *openai.LLM
	deployment string
	maxTokens  int
}

// NewAzureOpenAI creates an Azure OpenAI provider for one deployment.
func NewAzureOpenAI(endpoint, apiKey, deployment, apiVersion string, maxTokens int) (*AzureOpenAI, error) {
	model, err := openai.New(
		openai.WithAPIType(openai.APITypeAzure),
		openai.WithBaseURL(endpoint),
		openai.WithToken(apiKey),
		openai.WithModel(deployment),
		openai.WithAPIVersion(apiVersion),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure OpenAI client: %w", err)
	}
	return &AzureOpenAI{model: model, deployment: deployment, maxTokens: maxTokens}, nil
}

// Name implements llm.ProviderClient.
func (a *AzureOpenAI) Name() models.Provider { return models.ProviderAzureOpenAI }

// Analyze implements llm.ProviderClient.
func (a *AzureOpenAI) Analyze(ctx context.Context, req llm.AnalyzeRequest) (*llm.AnalyzeResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = a.maxTokens
	}

	messages := []llms.MessageContent{}
	if req.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	opts := []llms.CallOption{
		llms.WithTemperature(req.Temperature),
		llms.WithMaxTokens(maxTokens),
	}
	if req.JSONMode {
		opts = append(opts, llms.WithJSONMode())
	}

	start := time.Now()
	resp, err := a.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, a.classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &llm.ProviderError{
			Provider:  models.ProviderAzureOpenAI,
			Transient: true,
			Err:       errors.New("no completion choices returned"),
		}
	}

	choice := resp.Choices[0]
	usage := llm.Usage{
		LatencyMS: time.Since(start).Milliseconds(),
		Model:     a.deployment,
	}
	if n, ok := choice.GenerationInfo["PromptTokens"].(int); ok {
		usage.InputTokens = n
	}
	if n, ok := choice.GenerationInfo["CompletionTokens"].(int); ok {
		usage.OutputTokens = n
	}

	return &llm.AnalyzeResult{Text: choice.Content, Usage: usage}, nil
}

// Embed implements llm.ProviderClient. Embeddings route through Gemini.
func (a *AzureOpenAI) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	return nil, fmt.Errorf("azure openai embeddings: %w", errors.ErrUnsupported)
}

// HealthCheck implements llm.ProviderClient.
func (a *AzureOpenAI) HealthCheck(ctx context.Context) error {
	_, err := a.Analyze(ctx, llm.AnalyzeRequest{Prompt: "ping", MaxTokens: 8})
	return err
}

// classify maps langchaingo errors onto the gateway taxonomy. The client
// surfaces HTTP failures as formatted strings, so status detection falls
// back to substring matching.
func (a *AzureOpenAI) classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"),
		strings.Contains(msg, "invalid api key"), strings.Contains(msg, "access denied"):
		return llm.NewProviderError(models.ProviderAzureOpenAI, 401, err)
	case strings.Contains(msg, "404"), strings.Contains(msg, "deploymentnotfound"),
		strings.Contains(msg, "model not found"):
		return llm.NewProviderError(models.ProviderAzureOpenAI, 404, err)
	case strings.Contains(msg, "400"), strings.Contains(msg, "invalid request"):
		return llm.NewProviderError(models.ProviderAzureOpenAI, 400, err)
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"):
		return llm.NewProviderError(models.ProviderAzureOpenAI, 429, err)
	default:
		return fmt.Errorf("azure openai request failed: %w", err)
	}
}
