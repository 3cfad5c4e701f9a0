package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priorauth-labs/caseflow/pkg/config"
	"github.com/priorauth-labs/caseflow/pkg/models"
)

type fakeProvider struct {
	name    models.Provider
	analyze func(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error)
	calls   int
	lastReq AnalyzeRequest
}

func (f *fakeProvider) Name() models.Provider { return f.name }

func (f *fakeProvider) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	f.calls++
	f.lastReq = req
	return f.analyze(ctx, req)
}

func (f *fakeProvider) Embed(context.Context, string, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (f *fakeProvider) HealthCheck(context.Context) error { return nil }

func textResult(text string) func(context.Context, AnalyzeRequest) (*AnalyzeResult, error) {
	return func(context.Context, AnalyzeRequest) (*AnalyzeResult, error) {
		return &AnalyzeResult{Text: text, Usage: Usage{InputTokens: 10, OutputTokens: 5}}, nil
	}
}

func failWith(err error) func(context.Context, AnalyzeRequest) (*AnalyzeResult, error) {
	return func(context.Context, AnalyzeRequest) (*AnalyzeResult, error) {
		return nil, err
	}
}

func testConfig() config.GatewayConfig {
	return config.GatewayConfig{
		Timeout:             5 * time.Second,
		BreakerThreshold:    3,
		BreakerCooldown:     20 * time.Millisecond,
		TransientRetryDelay: time.Millisecond,
		Routing: map[models.TaskCategory][]models.Provider{
			models.TaskPolicyReasoning: {models.ProviderClaude, models.ProviderGemini},
		},
	}
}

func newTestGateway(cfg config.GatewayConfig, providers ...ProviderClient) *Gateway {
	g := NewGateway(cfg, providers, nil)
	g.sleep = func(context.Context, time.Duration) error { return nil }
	return g
}

func TestGenerateRoutesByTaskCategory(t *testing.T) {
	claude := &fakeProvider{name: models.ProviderClaude, analyze: textResult("from claude")}
	gemini := &fakeProvider{name: models.ProviderGemini, analyze: textResult("from gemini")}
	g := newTestGateway(testConfig(), claude, gemini)

	resp, err := g.Generate(context.Background(), Request{
		Task:           models.TaskPolicyReasoning,
		Prompt:         "assess",
		ResponseFormat: FormatText,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProviderClaude, resp.Provider)
	assert.Equal(t, "from claude", resp.Text)
	assert.Zero(t, gemini.calls)
}

func TestGenerateFallsThroughOnPermanentFailure(t *testing.T) {
	claude := &fakeProvider{
		name:    models.ProviderClaude,
		analyze: failWith(NewProviderError(models.ProviderClaude, 401, errors.New("bad key"))),
	}
	gemini := &fakeProvider{name: models.ProviderGemini, analyze: textResult("fallback")}
	g := newTestGateway(testConfig(), claude, gemini)

	resp, err := g.Generate(context.Background(), Request{
		Task:           models.TaskPolicyReasoning,
		ResponseFormat: FormatText,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProviderGemini, resp.Provider)
	assert.Equal(t, 1, claude.calls, "permanent failure must not be retried on the same provider")
}

func TestGenerateRetriesTransientOnce(t *testing.T) {
	attempts := 0
	claude := &fakeProvider{name: models.ProviderClaude}
	claude.analyze = func(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
		attempts++
		if attempts == 1 {
			return nil, NewProviderError(models.ProviderClaude, 429, errors.New("rate limited"))
		}
		return &AnalyzeResult{Text: "ok"}, nil
	}
	g := newTestGateway(testConfig(), claude)

	resp, err := g.Generate(context.Background(), Request{
		Task:           models.TaskPolicyReasoning,
		ResponseFormat: FormatText,
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 2, attempts)
}

func TestGenerateExhaustedWrapsLastCause(t *testing.T) {
	cause := NewProviderError(models.ProviderClaude, 400, errors.New("rejected"))
	claude := &fakeProvider{name: models.ProviderClaude, analyze: failWith(cause)}
	g := newTestGateway(testConfig(), claude)

	_, err := g.Generate(context.Background(), Request{Task: models.TaskPolicyReasoning})
	assert.ErrorIs(t, err, ErrGatewayExhausted)
	assert.Contains(t, err.Error(), "rejected")
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	claude := &fakeProvider{
		name:    models.ProviderClaude,
		analyze: failWith(NewProviderError(models.ProviderClaude, 403, errors.New("forbidden"))),
	}
	g := newTestGateway(testConfig(), claude)
	req := Request{Task: models.TaskPolicyReasoning}

	for i := 0; i < 3; i++ {
		_, err := g.Generate(context.Background(), req)
		require.Error(t, err)
	}
	assert.Equal(t, 3, claude.calls)

	// Breaker is open: the provider is skipped without a call.
	_, err := g.Generate(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 3, claude.calls)
}

func TestBreakerProbesAfterCooldown(t *testing.T) {
	failing := true
	claude := &fakeProvider{name: models.ProviderClaude}
	claude.analyze = func(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
		if failing {
			return nil, NewProviderError(models.ProviderClaude, 403, errors.New("forbidden"))
		}
		return &AnalyzeResult{Text: "recovered"}, nil
	}
	g := newTestGateway(testConfig(), claude)
	req := Request{Task: models.TaskPolicyReasoning, ResponseFormat: FormatText}

	for i := 0; i < 3; i++ {
		_, _ = g.Generate(context.Background(), req)
	}
	failing = false

	time.Sleep(30 * time.Millisecond)
	resp, err := g.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Text)
}

func TestGenerateParsesFencedJSON(t *testing.T) {
	claude := &fakeProvider{
		name:    models.ProviderClaude,
		analyze: textResult("```json\n{\"coverage_status\": \"LIKELY_COVERED\"}\n```"),
	}
	g := newTestGateway(testConfig(), claude)

	resp, err := g.Generate(context.Background(), Request{
		Task:           models.TaskPolicyReasoning,
		ResponseFormat: FormatJSON,
	})
	require.NoError(t, err)
	assert.Equal(t, "LIKELY_COVERED", resp.Payload["coverage_status"])
}

func TestGenerateInvalidJSONFallsThrough(t *testing.T) {
	claude := &fakeProvider{name: models.ProviderClaude, analyze: textResult("not json at all")}
	gemini := &fakeProvider{name: models.ProviderGemini, analyze: textResult(`{"ok": true}`)}
	g := newTestGateway(testConfig(), claude, gemini)

	resp, err := g.Generate(context.Background(), Request{
		Task:           models.TaskPolicyReasoning,
		ResponseFormat: FormatJSON,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProviderGemini, resp.Provider)
	assert.Equal(t, 1, claude.calls, "parse failures are permanent")
}

type upperScrubber struct{}

func (upperScrubber) Scrub(data string) string { return strings.ToUpper(data) }

func TestScrubberAppliedBeforeProviderCall(t *testing.T) {
	claude := &fakeProvider{name: models.ProviderClaude, analyze: textResult("ok")}
	g := newTestGateway(testConfig(), claude)
	g.SetScrubber(upperScrubber{})

	_, err := g.Generate(context.Background(), Request{
		Task:           models.TaskPolicyReasoning,
		Prompt:         "patient data",
		SystemPrompt:   "system",
		ResponseFormat: FormatText,
	})
	require.NoError(t, err)
	assert.Equal(t, "PATIENT DATA", claude.lastReq.Prompt)
	assert.Equal(t, "SYSTEM", claude.lastReq.SystemPrompt)
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripFences(tt.in))
	}
}

func TestIsTransientClassification(t *testing.T) {
	assert.True(t, IsTransient(NewProviderError(models.ProviderClaude, 429, errors.New("x"))))
	assert.True(t, IsTransient(NewProviderError(models.ProviderClaude, 503, errors.New("x"))))
	assert.False(t, IsTransient(NewProviderError(models.ProviderClaude, 401, errors.New("x"))))
	assert.False(t, IsTransient(&parseError{provider: models.ProviderClaude, err: errors.New("x")}))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(nil))
}

func TestCost(t *testing.T) {
	assert.InDelta(t, 3.00+15.00, Cost(models.ProviderClaude, 1_000_000, 1_000_000), 1e-9)
	assert.Zero(t, Cost(models.Provider("unknown"), 1000, 1000))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, CosineSimilarity(nil, nil))
}
