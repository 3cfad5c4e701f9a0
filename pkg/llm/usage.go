package llm

import (
	"context"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

// correlationKey carries the per-request correlation ID through context so
// all LLM calls from one case/request can be joined later.
type correlationKey struct{}

// WithCorrelationID attaches a correlation ID to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFrom extracts the correlation ID, or "" when absent.
func CorrelationIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		return id
	}
	return ""
}

// providerPrice is USD per input/output token.
type providerPrice struct {
	input  float64
	output float64
}

// prices are provider-specific constants (USD per token).
var prices = map[models.Provider]providerPrice{
	models.ProviderClaude:      {input: 3.00 / 1e6, output: 15.00 / 1e6},
	models.ProviderGemini:      {input: 1.25 / 1e6, output: 5.00 / 1e6},
	models.ProviderAzureOpenAI: {input: 2.50 / 1e6, output: 10.00 / 1e6},
}

// Cost computes the USD cost of a call from token counts.
func Cost(provider models.Provider, inputTokens, outputTokens int) float64 {
	p, ok := prices[provider]
	if !ok {
		return 0
	}
	return float64(inputTokens)*p.input + float64(outputTokens)*p.output
}

var (
	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caseflow_llm_requests_total",
		Help: "LLM provider calls by provider and task category.",
	}, []string{"provider", "task"})

	metricTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caseflow_llm_tokens_total",
		Help: "LLM tokens consumed by provider and direction.",
	}, []string{"provider", "direction"})

	metricCost = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "caseflow_llm_cost_usd_total",
		Help: "Accumulated LLM spend in USD by provider.",
	}, []string{"provider"})
)

// DBUsageRecorder persists usage rows to the llm_usage table and updates
// prometheus counters. All writes are best-effort: failures are logged and
// never propagate to the calling request.
type DBUsageRecorder struct {
	db *sqlx.DB
}

// NewDBUsageRecorder creates a recorder over the shared database client.
func NewDBUsageRecorder(db *sqlx.DB) *DBUsageRecorder {
	return &DBUsageRecorder{db: db}
}

// Record implements UsageRecorder.
func (r *DBUsageRecorder) Record(ctx context.Context, row models.LLMUsage) {
	metricRequests.WithLabelValues(string(row.Provider), string(row.TaskCategory)).Inc()
	metricTokens.WithLabelValues(string(row.Provider), "input").Add(float64(row.InputTokens))
	metricTokens.WithLabelValues(string(row.Provider), "output").Add(float64(row.OutputTokens))
	metricCost.WithLabelValues(string(row.Provider)).Add(row.CostUSD)

	if r.db == nil {
		return
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO llm_usage
		   (case_id, correlation_id, provider, model, task_category,
		    input_tokens, output_tokens, cost_usd, latency_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		nullable(row.CaseID), row.CorrelationID, row.Provider, row.Model, row.TaskCategory,
		row.InputTokens, row.OutputTokens, row.CostUSD, row.LatencyMS, row.CreatedAt,
	)
	if err != nil {
		slog.Warn("Failed to record LLM usage",
			"provider", row.Provider, "task", row.TaskCategory, "error", err)
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
