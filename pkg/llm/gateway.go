package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/priorauth-labs/caseflow/pkg/config"
	"github.com/priorauth-labs/caseflow/pkg/models"
)

// UsageRecorder persists one accounting row per provider call. Recording is
// best-effort and must never fail the call.
type UsageRecorder interface {
	Record(ctx context.Context, row models.LLMUsage)
}

// Scrubber removes direct identifiers from text before it is sent to a
// provider.
type Scrubber interface {
	Scrub(data string) string
}

// Gateway routes task categories to an ordered provider list and enforces
// retries, circuit breakers, and wall-clock timeouts. Safe under concurrent
// calls; breaker state is process-wide and internally synchronized.
type Gateway struct {
	cfg       config.GatewayConfig
	providers map[models.Provider]ProviderClient
	breakers  map[models.Provider]*gobreaker.CircuitBreaker
	usage     UsageRecorder
	scrubber  Scrubber

	// sleep is swapped out by tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGateway constructs a gateway over the given provider registry. usage
// may be nil to disable accounting.
func NewGateway(cfg config.GatewayConfig, providers []ProviderClient, usage UsageRecorder) *Gateway {
	registry := make(map[models.Provider]ProviderClient, len(providers))
	breakers := make(map[models.Provider]*gobreaker.CircuitBreaker, len(providers))
	for _, p := range providers {
		registry[p.Name()] = p
		threshold := uint32(cfg.BreakerThreshold)
		breakers[p.Name()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        string(p.Name()),
			MaxRequests: 1, // one probe after cooldown
			Timeout:     cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Info("Circuit breaker state change",
					"provider", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return &Gateway{
		cfg:       cfg,
		providers: registry,
		breakers:  breakers,
		usage:     usage,
		sleep:     sleepCtx,
	}
}

// SetScrubber installs an identifier scrubber applied to every outbound
// prompt. Call before serving traffic.
func (g *Gateway) SetScrubber(s Scrubber) {
	g.scrubber = s
}

// Generate routes the request through the provider preference list for its
// task category. The whole call, retries included, is bounded by the
// configured wall-clock timeout.
func (g *Gateway) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	if g.scrubber != nil {
		req.Prompt = g.scrubber.Scrub(req.Prompt)
		req.SystemPrompt = g.scrubber.Scrub(req.SystemPrompt)
	}

	order, ok := g.cfg.Routing[req.Task]
	if !ok || len(order) == 0 {
		order = []models.Provider{models.ProviderGemini, models.ProviderAzureOpenAI, models.ProviderClaude}
	}

	var lastErr error
	for _, name := range order {
		client, ok := g.providers[name]
		if !ok {
			continue
		}

		resp, err := g.attempt(ctx, client, req)
		if err == nil {
			return resp, nil
		}
		if isBreakerOpen(err) {
			slog.Debug("Skipping provider with open breaker",
				"provider", name, "task", req.Task)
			continue
		}

		lastErr = err
		if !IsTransient(err) {
			slog.Warn("Provider failed permanently, trying next",
				"provider", name, "task", req.Task, "error", err)
			continue
		}

		// Transient: short fixed backoff, then retry the same provider once.
		slog.Warn("Provider failed transiently, retrying once",
			"provider", name, "task", req.Task, "error", err)
		if err := g.sleep(ctx, g.cfg.TransientRetryDelay); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrGatewayExhausted, lastErr)
		}

		resp, err = g.attempt(ctx, client, req)
		if err == nil {
			return resp, nil
		}
		if !isBreakerOpen(err) {
			lastErr = err
		}
		slog.Warn("Provider retry failed, trying next",
			"provider", name, "task", req.Task, "error", err)
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no provider available for task %s", req.Task)
	}
	return nil, fmt.Errorf("%w: %w", ErrGatewayExhausted, lastErr)
}

// attempt runs one provider call through its circuit breaker. Response
// parsing happens inside the breaker so an unusable payload counts as a
// provider failure.
func (g *Gateway) attempt(ctx context.Context, client ProviderClient, req Request) (*Response, error) {
	breaker := g.breakers[client.Name()]

	result, err := breaker.Execute(func() (any, error) {
		start := time.Now()
		raw, err := client.Analyze(ctx, AnalyzeRequest{
			Prompt:       req.Prompt,
			SystemPrompt: req.SystemPrompt,
			Temperature:  req.Temperature,
			JSONMode:     req.ResponseFormat == FormatJSON,
			MaxTokens:    req.MaxTokens,
		})
		if err != nil {
			g.recordUsage(ctx, client.Name(), req, Usage{LatencyMS: time.Since(start).Milliseconds()})
			return nil, err
		}
		if raw.Usage.LatencyMS == 0 {
			raw.Usage.LatencyMS = time.Since(start).Milliseconds()
		}

		resp := &Response{
			Provider: client.Name(),
			Task:     req.Task,
			Usage:    raw.Usage,
		}
		if req.ResponseFormat == FormatJSON {
			payload, perr := parseJSONResponse(raw.Text)
			if perr != nil {
				g.recordUsage(ctx, client.Name(), req, raw.Usage)
				return nil, &parseError{provider: client.Name(), err: perr}
			}
			resp.Payload = payload
		} else {
			resp.Text = raw.Text
		}

		g.recordUsage(ctx, client.Name(), req, raw.Usage)
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Response), nil
}

func (g *Gateway) recordUsage(ctx context.Context, provider models.Provider, req Request, usage Usage) {
	if g.usage == nil {
		return
	}
	g.usage.Record(ctx, models.LLMUsage{
		CaseID:        req.CaseID,
		CorrelationID: CorrelationIDFrom(ctx),
		Provider:      provider,
		Model:         usage.Model,
		TaskCategory:  req.Task,
		InputTokens:   usage.InputTokens,
		OutputTokens:  usage.OutputTokens,
		CostUSD:       Cost(provider, usage.InputTokens, usage.OutputTokens),
		LatencyMS:     usage.LatencyMS,
		CreatedAt:     time.Now().UTC(),
	})
}

// Embed returns a fixed-dimension vector via the Gemini embedding channel.
func (g *Gateway) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	client, ok := g.providers[models.ProviderGemini]
	if !ok {
		return nil, ErrEmbeddingUnavailable
	}
	return client.Embed(ctx, text, taskType)
}

// EmbedBatch embeds multiple texts sequentially through the same channel.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := g.Embed(ctx, text, taskType)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

// HealthCheck probes every registered provider with a trivial prompt.
func (g *Gateway) HealthCheck(ctx context.Context) map[models.Provider]bool {
	health := make(map[models.Provider]bool, len(g.providers))
	for name, client := range g.providers {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		health[name] = client.HealthCheck(probeCtx) == nil
		cancel()
	}
	return health
}

// CosineSimilarity computes cosine similarity between two vectors. Returns
// 0 for mismatched or zero-magnitude inputs.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// parseJSONResponse parses provider output as a JSON object, stripping
// markdown code fences some providers wrap around JSON payloads.
func parseJSONResponse(text string) (map[string]any, error) {
	cleaned := stripFences(text)
	var payload map[string]any
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}
	return payload, nil
}

// stripFences removes a surrounding ```json ... ``` (or plain ```) block.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the language tag line ("json").
		trimmed = trimmed[idx+1:]
	}
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

func isBreakerOpen(err error) bool {
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
