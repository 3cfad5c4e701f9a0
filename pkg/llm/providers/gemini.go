package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/priorauth-labs/caseflow/pkg/llm"
	"github.com/priorauth-labs/caseflow/pkg/models"
)

// Gemini backs general text tasks and is the sole embedding channel.
type Gemini struct {
	client         *genai.Client
	model          string
	embeddingModel string
	maxTokens      int
}

// NewGemini creates a Gemini provider from an API key.
func NewGemini(ctx context.Context, apiKey, model, embeddingModel string, maxTokens int) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Gemini{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
		maxTokens:      maxTokens,
	}, nil
}

// Name implements llm.ProviderClient.
func (g *Gemini) Name() models.Provider { return models.ProviderGemini }

// Analyze implements llm.ProviderClient.
func (g *Gemini) Analyze(ctx context.Context, req llm.AnalyzeRequest) (*llm.AnalyzeResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.maxTokens
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(maxTokens),
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}

	start := time.Now()
	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, g.classify(err)
	}

	text := result.Text()
	if text == "" {
		return nil, &llm.ProviderError{
			Provider:  models.ProviderGemini,
			Transient: true,
			Err:       errors.New("empty completion"),
		}
	}

	usage := llm.Usage{
		LatencyMS: time.Since(start).Milliseconds(),
		Model:     g.model,
	}
	if result.UsageMetadata != nil {
		usage.InputTokens = int(result.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(result.UsageMetadata.CandidatesTokenCount)
	}

	return &llm.AnalyzeResult{Text: text, Usage: usage}, nil
}

// Embed implements llm.ProviderClient. gemini-embedding-001 produces
// 768-dimensional vectors.
func (g *Gemini) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	result, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, contents,
		&genai.EmbedContentConfig{TaskType: parseTaskType(taskType)})
	if err != nil {
		return nil, g.classify(err)
	}
	if len(result.Embeddings) == 0 {
		return nil, &llm.ProviderError{
			Provider:  models.ProviderGemini,
			Transient: true,
			Err:       errors.New("no embeddings returned"),
		}
	}
	return result.Embeddings[0].Values, nil
}

// HealthCheck implements llm.ProviderClient.
func (g *Gemini) HealthCheck(ctx context.Context) error {
	_, err := g.Analyze(ctx, llm.AnalyzeRequest{Prompt: "ping", MaxTokens: 8})
	return err
}

func (g *Gemini) classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return llm.NewProviderError(models.ProviderGemini, apiErr.Code, err)
	}
	return fmt.Errorf("gemini request failed: %w", err)
}

func parseTaskType(taskType string) string {
	switch taskType {
	case "RETRIEVAL_DOCUMENT", "RETRIEVAL_QUERY", "CLASSIFICATION", "CLUSTERING":
		return taskType
	default:
		return "SEMANTIC_SIMILARITY"
	}
}
