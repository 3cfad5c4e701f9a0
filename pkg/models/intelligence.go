package models

import "time"

// Severity holds the disease-severity signal used for similarity matching.
type Severity struct {
	Classification string   `json:"classification,omitempty"`
	CDAIScore      *float64 `json:"cdai_score,omitempty"`
	HBIScore       *float64 `json:"hbi_score,omitempty"`
	CRP            *float64 `json:"crp,omitempty"`
	Albumin        *float64 `json:"albumin,omitempty"`
	ESR            *float64 `json:"esr,omitempty"`
}

// HistoricalCase is one corpus record used for similarity matching and
// pattern analytics.
type HistoricalCase struct {
	CaseRef              string            `json:"case_ref"`
	Medication           string            `json:"medication"`
	DiagnosisCode        string            `json:"diagnosis_code"`
	Payer                string            `json:"payer"`
	Severity             Severity          `json:"severity"`
	PriorTreatments      []string          `json:"prior_treatments,omitempty"`
	Outcome              HistoricalOutcome `json:"outcome"`
	DaysToDecision       int               `json:"days_to_decision,omitempty"`
	DocumentationPresent []string          `json:"documentation_present,omitempty"`
	DocumentationMissing []string          `json:"documentation_missing,omitempty"`
	SubmissionDate       string            `json:"submission_date,omitempty"`
}

// SimilarCase pairs a corpus record with its weighted similarity score.
type SimilarCase struct {
	Case       HistoricalCase     `json:"case"`
	Score      float64            `json:"score"`
	Components map[string]float64 `json:"components,omitempty"`
}

// DocumentationImpact is an approval-rate delta attributable to the presence
// of a documentation type.
type DocumentationImpact struct {
	DocumentationType string  `json:"documentation_type"`
	RateWith          float64 `json:"rate_with"`
	RateWithout       float64 `json:"rate_without"`
	Delta             float64 `json:"delta"`
	SupportWith       int     `json:"support_with"`
	SupportWithout    int     `json:"support_without"`
}

// TimingPattern is an approval-rate observation bucketed by submission
// day-of-week.
type TimingPattern struct {
	DayOfWeek    string  `json:"day_of_week"`
	ApprovalRate float64 `json:"approval_rate"`
	CaseCount    int     `json:"case_count"`
}

// PatternAnalysis aggregates outcome analytics over a similar-case cohort.
type PatternAnalysis struct {
	CohortSize           int                   `json:"cohort_size"`
	ApprovalRate         float64               `json:"approval_rate"`
	DenialRate           float64               `json:"denial_rate"`
	InfoRequestRate      float64               `json:"info_request_rate"`
	AvgDaysToDecision    float64               `json:"avg_days_to_decision"`
	DocumentationImpacts []DocumentationImpact `json:"documentation_impacts,omitempty"`
	TimingPatterns       []TimingPattern       `json:"timing_patterns,omitempty"`
}

// CompensatingFactorPattern captures how compensating clinical factors lift
// approval rates when a documentation type is missing.
type CompensatingFactorPattern struct {
	MissingDocumentation string   `json:"missing_documentation"`
	CompensatingFactors  []string `json:"compensating_factors"`
	RateWithCompensation float64  `json:"rate_with_compensation"`
	RateWithout          float64  `json:"rate_without_compensation"`
	ApprovalUplift       float64  `json:"approval_uplift"`
	SupportWith          int      `json:"support_with"`
	SupportWithout       int      `json:"support_without"`

	CaseMissingDoc       bool   `json:"case_missing_doc"`
	CaseHasCompensation  bool   `json:"case_has_compensation"`
	Priority             string `json:"priority"`
	Recommendation       string `json:"recommendation"`
}

// StrategicInsights is the synthesized intelligence payload for a cohort key.
type StrategicInsights struct {
	CacheKey               string                      `json:"cache_key"`
	Medication             string                      `json:"medication"`
	ICD10Family            string                      `json:"icd10_family"`
	Payer                  string                      `json:"payer"`
	SeverityClassification string                      `json:"severity_classification"`
	SimilarCases           []SimilarCase               `json:"similar_cases,omitempty"`
	Patterns               PatternAnalysis             `json:"patterns"`
	CompensatingFactors    []CompensatingFactorPattern `json:"compensating_factors,omitempty"`
	DocumentationInsights  []string                    `json:"documentation_insights,omitempty"`
	PayerInsights          []string                    `json:"payer_insights,omitempty"`
	TimingRecommendations  []string                    `json:"timing_recommendations,omitempty"`
	RiskFactors            []string                    `json:"risk_factors,omitempty"`
	RecommendedActions     []string                    `json:"recommended_actions,omitempty"`
	CounterfactualScenarios []string                   `json:"counterfactual_scenarios,omitempty"`
	AgenticInsights        map[string]any              `json:"agentic_insights,omitempty"`
	Confidence             float64                     `json:"confidence"`
	ConfidenceTier         string                      `json:"confidence_tier"`
	GeneratedAt            time.Time                   `json:"generated_at"`
	FromCache              bool                        `json:"from_cache,omitempty"`
}
