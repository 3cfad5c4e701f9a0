// Package llm implements the LLM gateway: task-based provider routing with
// per-provider circuit breakers, transient-vs-permanent error
// classification, retry policy, wall-clock timeouts, and usage/cost
// accounting.
package llm

import (
	"context"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

// ResponseFormat selects how provider output is handled.
type ResponseFormat string

const (
	FormatJSON ResponseFormat = "json"
	FormatText ResponseFormat = "text"
)

// AnalyzeRequest is the provider-level request shape.
type AnalyzeRequest struct {
	Prompt       string
	SystemPrompt string
	Temperature  float64
	JSONMode     bool
	MaxTokens    int
}

// Usage carries token counts and latency attached to every response.
type Usage struct {
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	LatencyMS    int64  `json:"latency_ms"`
	Model        string `json:"model"`
}

// AnalyzeResult is the raw provider output before gateway-level parsing.
type AnalyzeResult struct {
	Text  string
	Usage Usage
}

// ProviderClient is the capability set every LLM backend implements. The
// gateway interacts only through this interface; adding a provider requires
// one implementation plus a routing table entry.
type ProviderClient interface {
	Name() models.Provider
	Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error)
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
	HealthCheck(ctx context.Context) error
}

// Request is the gateway-level generate request.
type Request struct {
	Task           models.TaskCategory
	Prompt         string
	SystemPrompt   string
	Temperature    float64
	ResponseFormat ResponseFormat
	MaxTokens      int
	CaseID         string
}

// Response is the gateway-level result. Payload is set for JSON requests,
// Text for text requests.
type Response struct {
	Payload  map[string]any      `json:"payload,omitempty"`
	Text     string              `json:"response,omitempty"`
	Provider models.Provider     `json:"provider"`
	Task     models.TaskCategory `json:"task_category"`
	Usage    Usage               `json:"_usage"`
}

// Generator is the narrow interface consumers (policy reasoner, strategic
// intelligence, waypoint letters) depend on. *Gateway implements it; tests
// inject mocks.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Embedder produces fixed-dimension vectors for similarity work.
type Embedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error)
}
