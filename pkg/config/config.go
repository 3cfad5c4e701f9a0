// Package config loads and validates caseflow configuration from the
// environment. Knobs cover the LLM gateway, policy analysis thresholds,
// strategy scoring weights, strategic-intelligence caching, monitoring
// bounds, and filesystem roots for prompts, policies, and waypoints.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

// GatewayConfig configures the LLM gateway.
type GatewayConfig struct {
	// Wall-clock timeout for one Generate call, retries included.
	Timeout time.Duration

	ClaudeModel     string
	GeminiModel     string
	AzureDeployment string
	AzureEndpoint   string
	AzureAPIVersion string
	ClaudeMaxTokens int
	GeminiMaxTokens int
	AzureMaxTokens  int
	EmbeddingModel  string
	EmbedDim        int

	BreakerThreshold    int
	BreakerCooldown     time.Duration
	TransientRetryDelay time.Duration

	// Routing maps a task category to an ordered provider preference list.
	Routing map[models.TaskCategory][]models.Provider
}

// AnalysisConfig bounds policy analysis and iterative refinement.
type AnalysisConfig struct {
	LowConfidenceThreshold  float64
	MaxRefinementIterations int
}

// IntelligenceConfig configures strategic-intelligence caching and corpus.
type IntelligenceConfig struct {
	CacheTTL            time.Duration
	SimilarityThreshold float64
	MaxSimilarCases     int
	HistoricalDataPath  string
}

// MonitoringConfig bounds the monitoring loop. Both values come from the
// source system and are deliberately configuration knobs.
type MonitoringConfig struct {
	StaleThreshold int
	MaxIterations  int
}

// Config is the umbrella configuration object returned by Load and used
// throughout the application.
type Config struct {
	Gateway      GatewayConfig
	Analysis     AnalysisConfig
	Intelligence IntelligenceConfig
	Monitoring   MonitoringConfig

	ScoringWeights models.ScoringWeights

	PromptsDir          string
	PoliciesDir         string
	DecisionRubricsPath string
	MedicationAliases   map[string][]string
	AliasesPath         string
	WaypointsDir        string

	PolicyCacheDefaultVersion string

	// WSAuthToken gates WebSocket connections outside development.
	WSAuthToken string
}

// Load reads configuration from the environment, applying defaults for
// every knob. It returns ErrInvalidConfig for values that cannot be used.
func Load() (*Config, error) {
	timeoutSec, err := intEnv("GATEWAY_TIMEOUT_SECONDS", 180)
	if err != nil {
		return nil, err
	}
	breakerThreshold, err := intEnv("BREAKER_THRESHOLD", 3)
	if err != nil {
		return nil, err
	}
	cooldownSec, err := intEnv("BREAKER_COOLDOWN_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	retryDelaySec, err := intEnv("TRANSIENT_RETRY_DELAY_SECONDS", 2)
	if err != nil {
		return nil, err
	}
	embedDim, err := intEnv("EMBED_DIM", 768)
	if err != nil {
		return nil, err
	}
	cacheTTLHours, err := intEnv("CACHE_TTL_HOURS", 24)
	if err != nil {
		return nil, err
	}
	staleThreshold, err := intEnv("MONITORING_STALE_THRESHOLD", 2)
	if err != nil {
		return nil, err
	}
	maxMonitoring, err := intEnv("MONITORING_MAX_ITERATIONS", 10)
	if err != nil {
		return nil, err
	}
	maxRefinement, err := intEnv("MAX_REFINEMENT_ITERATIONS", 2)
	if err != nil {
		return nil, err
	}
	lowConfidence, err := floatEnv("LOW_CONFIDENCE_THRESHOLD", 0.70)
	if err != nil {
		return nil, err
	}

	weights := models.ScoringWeights{
		Speed:         0.30,
		Approval:      0.40,
		LowRework:     0.20,
		PatientBurden: 0.10,
	}
	if weights.Speed, err = floatEnv("SCORING_WEIGHT_SPEED", weights.Speed); err != nil {
		return nil, err
	}
	if weights.Approval, err = floatEnv("SCORING_WEIGHT_APPROVAL", weights.Approval); err != nil {
		return nil, err
	}
	if weights.LowRework, err = floatEnv("SCORING_WEIGHT_LOW_REWORK", weights.LowRework); err != nil {
		return nil, err
	}
	if weights.PatientBurden, err = floatEnv("SCORING_WEIGHT_PATIENT_BURDEN", weights.PatientBurden); err != nil {
		return nil, err
	}
	if err := ValidateWeights(weights); err != nil {
		return nil, err
	}

	cfg := &Config{
		Gateway: GatewayConfig{
			Timeout:             time.Duration(timeoutSec) * time.Second,
			ClaudeModel:         getEnvOrDefault("CLAUDE_MODEL", "claude-sonnet-4-20250514"),
			GeminiModel:         getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-pro"),
			AzureDeployment:     getEnvOrDefault("AZURE_OPENAI_DEPLOYMENT", "gpt-4o"),
			AzureEndpoint:       os.Getenv("AZURE_OPENAI_ENDPOINT"),
			AzureAPIVersion:     getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-02-01"),
			ClaudeMaxTokens:     mustIntEnv("CLAUDE_MAX_TOKENS", 8192),
			GeminiMaxTokens:     mustIntEnv("GEMINI_MAX_TOKENS", 8192),
			AzureMaxTokens:      mustIntEnv("AZURE_MAX_TOKENS", 4096),
			EmbeddingModel:      getEnvOrDefault("GEMINI_EMBEDDING_MODEL", "gemini-embedding-001"),
			EmbedDim:            embedDim,
			BreakerThreshold:    breakerThreshold,
			BreakerCooldown:     time.Duration(cooldownSec) * time.Second,
			TransientRetryDelay: time.Duration(retryDelaySec) * time.Second,
			Routing:             DefaultRouting(),
		},
		Analysis: AnalysisConfig{
			LowConfidenceThreshold:  lowConfidence,
			MaxRefinementIterations: maxRefinement,
		},
		Intelligence: IntelligenceConfig{
			CacheTTL:            time.Duration(cacheTTLHours) * time.Hour,
			SimilarityThreshold: 0.5,
			MaxSimilarCases:     20,
			HistoricalDataPath:  getEnvOrDefault("HISTORICAL_DATA_PATH", "./data/historical_cases.json"),
		},
		Monitoring: MonitoringConfig{
			StaleThreshold: staleThreshold,
			MaxIterations:  maxMonitoring,
		},
		ScoringWeights:            weights,
		PromptsDir:                getEnvOrDefault("PROMPTS_DIR", "./prompts"),
		PoliciesDir:               getEnvOrDefault("POLICIES_DIR", "./policies"),
		DecisionRubricsPath:       getEnvOrDefault("DECISION_RUBRICS_PATH", "./data/decision_rubrics.json"),
		AliasesPath:               getEnvOrDefault("MEDICATION_ALIASES_PATH", "./data/medication_aliases.json"),
		WaypointsDir:              getEnvOrDefault("WAYPOINTS_DIR", "./waypoints"),
		PolicyCacheDefaultVersion: getEnvOrDefault("POLICY_CACHE_DEFAULT_VERSION", "latest"),
		WSAuthToken:               os.Getenv("WS_AUTH_TOKEN"),
	}

	return cfg, nil
}

// DefaultRouting is the static task-to-provider preference table. Reasoning
// tasks prefer Claude; general text tasks prefer Gemini, then Azure.
func DefaultRouting() map[models.TaskCategory][]models.Provider {
	reasoning := []models.Provider{models.ProviderClaude, models.ProviderGemini, models.ProviderAzureOpenAI}
	general := []models.Provider{models.ProviderGemini, models.ProviderAzureOpenAI, models.ProviderClaude}
	return map[models.TaskCategory][]models.Provider{
		models.TaskPolicyReasoning:   reasoning,
		models.TaskAppealStrategy:    reasoning,
		models.TaskPolicyQA:          reasoning,
		models.TaskAppealDrafting:    general,
		models.TaskSummaryGeneration: general,
		models.TaskDataExtraction:    general,
		models.TaskNotification:      general,
	}
}

// ValidateWeights rejects scoring weights that do not sum to 1.0 (within
// floating-point epsilon).
func ValidateWeights(w models.ScoringWeights) error {
	if math.Abs(w.Sum()-1.0) > 1e-9 {
		return fmt.Errorf("%w: scoring weights sum to %.6f, want 1.0", ErrInvalidConfig, w.Sum())
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func intEnv(key string, defaultVal int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s: %v", ErrInvalidConfig, key, err)
	}
	return v, nil
}

func mustIntEnv(key string, defaultVal int) int {
	v, err := intEnv(key, defaultVal)
	if err != nil {
		return defaultVal
	}
	return v
}

func floatEnv(key string, defaultVal float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s: %v", ErrInvalidConfig, key, err)
	}
	return v, nil
}
