package intelligence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/priorauth-labs/caseflow/pkg/config"
	"github.com/priorauth-labs/caseflow/pkg/llm"
	"github.com/priorauth-labs/caseflow/pkg/models"
	"github.com/priorauth-labs/caseflow/pkg/prompts"
)

const synthesisSystemPrompt = `You are a prior-authorization strategist. ` +
	`Given outcome analytics over historically similar cases, produce actionable ` +
	`guidance for the current submission. Ground every insight in the supplied ` +
	`statistics; do not invent rates.`

// Confidence tier boundaries.
const (
	tierHighFloor     = 0.80
	tierModerateFloor = 0.65
)

// Service produces strategic insights for a case: similarity search over the
// corpus, pattern and compensating-factor analytics, one LLM synthesis call,
// all behind a cohort-keyed cache.
type Service struct {
	gateway       llm.Generator
	prompts       *prompts.Store
	cache         *Cache
	corpus        []models.HistoricalCase
	aliases       map[string][]string
	relationships []FactorRelationship
	cfg           config.IntelligenceConfig
}

// NewService creates the strategic-intelligence service.
func NewService(gateway llm.Generator, promptStore *prompts.Store, cache *Cache, corpus []models.HistoricalCase, aliases map[string][]string, cfg config.IntelligenceConfig) *Service {
	return &Service{
		gateway:       gateway,
		prompts:       promptStore,
		cache:         cache,
		corpus:        corpus,
		aliases:       aliases,
		relationships: DefaultFactorRelationships,
		cfg:           cfg,
	}
}

// Insights returns the strategic insights for a case profile, from cache
// when a fresh cohort row exists.
func (s *Service) Insights(ctx context.Context, caseID string, profile CaseProfile) (*models.StrategicInsights, error) {
	key := CacheKey(profile)

	if s.cache != nil {
		cached, hit, err := s.cache.Get(ctx, key)
		if err != nil {
			slog.Warn("Intelligence cache read failed", "case_id", caseID, "error", err)
		} else if hit {
			slog.Info("Intelligence cache hit", "case_id", caseID, "cache_key", key)
			return cached, nil
		}
	}

	similar := FindSimilar(profile, s.corpus, s.cfg.SimilarityThreshold, s.cfg.MaxSimilarCases)
	patterns := AnalyzePatterns(similar)
	compensating := AnalyzeCompensatingFactors(profile, s.corpus, s.aliases, s.relationships)

	insights := &models.StrategicInsights{
		CacheKey:               key,
		Medication:             normalizeKeyPart(profile.Medication),
		ICD10Family:            icd10Family(profile.ICD10Code),
		Payer:                  normalizeKeyPart(profile.Payer),
		SeverityClassification: normalizeKeyPart(profile.Severity.Classification),
		SimilarCases:           similar,
		Patterns:               patterns,
		CompensatingFactors:    compensating,
		GeneratedAt:            time.Now().UTC(),
	}
	insights.Confidence = confidence(len(similar))
	insights.ConfidenceTier = confidenceTier(insights.Confidence)

	if err := s.synthesize(ctx, caseID, insights); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, key, caseID, insights); err != nil {
			slog.Warn("Intelligence cache write failed", "case_id", caseID, "error", err)
		}
	}
	return insights, nil
}

// synthesize fills the narrative sections of the insights with a single
// reasoning call over the computed analytics.
func (s *Service) synthesize(ctx context.Context, caseID string, insights *models.StrategicInsights) error {
	prompt, _, err := s.prompts.Load(ctx, "intelligence/synthesis", map[string]any{
		"cohort_size":          insights.Patterns.CohortSize,
		"pattern_analysis":     insights.Patterns,
		"similar_cases":        summarizeSimilar(insights.SimilarCases),
		"compensating_factors": insights.CompensatingFactors,
		"medication":           insights.Medication,
		"payer":                insights.Payer,
	})
	if err != nil {
		return fmt.Errorf("load synthesis prompt: %w", err)
	}

	resp, err := s.gateway.Generate(ctx, llm.Request{
		Task:           models.TaskPolicyReasoning,
		Prompt:         prompt,
		SystemPrompt:   synthesisSystemPrompt,
		Temperature:    0.2,
		ResponseFormat: llm.FormatJSON,
		CaseID:         caseID,
	})
	if err != nil {
		return fmt.Errorf("intelligence synthesis: %w", err)
	}

	var parsed struct {
		DocumentationInsights   []string       `json:"documentation_insights"`
		PayerInsights           []string       `json:"payer_insights"`
		TimingRecommendations   []string       `json:"timing_recommendations"`
		RiskFactors             []string       `json:"risk_factors"`
		RecommendedActions      []string       `json:"recommended_actions"`
		CounterfactualScenarios []string       `json:"counterfactual_scenarios"`
		AgenticInsights         map[string]any `json:"agentic_insights"`
	}
	data, err := json.Marshal(resp.Payload)
	if err != nil {
		return fmt.Errorf("re-marshal synthesis payload: %w", err)
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse synthesis payload: %w", err)
	}

	insights.DocumentationInsights = parsed.DocumentationInsights
	insights.PayerInsights = parsed.PayerInsights
	insights.TimingRecommendations = parsed.TimingRecommendations
	insights.RiskFactors = parsed.RiskFactors
	insights.RecommendedActions = parsed.RecommendedActions
	insights.CounterfactualScenarios = parsed.CounterfactualScenarios
	insights.AgenticInsights = parsed.AgenticInsights
	return nil
}

// summarizeSimilar compacts similar cases for the prompt; full corpus
// records would blow the context for large cohorts.
func summarizeSimilar(similar []models.SimilarCase) []map[string]any {
	out := make([]map[string]any, 0, len(similar))
	for _, s := range similar {
		out = append(out, map[string]any{
			"score":            s.Score,
			"outcome":          s.Case.Outcome,
			"payer":            s.Case.Payer,
			"days_to_decision": s.Case.DaysToDecision,
			"docs_present":     s.Case.DocumentationPresent,
			"docs_missing":     s.Case.DocumentationMissing,
		})
	}
	return out
}

// confidence grows with cohort size and saturates at 0.95.
func confidence(cohortSize int) float64 {
	return math.Min(0.95, 0.5+0.02*float64(cohortSize))
}

func confidenceTier(c float64) string {
	switch {
	case c >= tierHighFloor:
		return "high"
	case c >= tierModerateFloor:
		return "moderate"
	default:
		return "low"
	}
}
