package models

// StrategyStep is one ordered action inside a strategy.
type StrategyStep struct {
	StepNumber       int    `json:"step_number"`
	ActionType       string `json:"action_type"`
	TargetPayer      string `json:"target_payer"`
	Description      string `json:"description,omitempty"`
	DependsOn        []int  `json:"depends_on,omitempty"`
	EstimatedDays    int    `json:"estimated_days,omitempty"`
	SuccessCriterion string `json:"success_criterion,omitempty"`
}

// Strategy is a candidate submission plan. Only sequential primary-first
// strategies exist; ParallelSubmission is always false.
type Strategy struct {
	StrategyID         string       `json:"strategy_id"`
	StrategyType       StrategyType `json:"strategy_type"`
	Name               string       `json:"name"`
	Description        string       `json:"description,omitempty"`
	PayerSequence      []string     `json:"payer_sequence"`
	ParallelSubmission bool         `json:"parallel_submission"`

	BaseSpeedScore         float64 `json:"base_speed_score"`
	BaseApprovalScore      float64 `json:"base_approval_score"`
	BaseReworkRiskScore    float64 `json:"base_rework_risk_score"`
	BasePatientBurdenScore float64 `json:"base_patient_burden_score"`

	Rationale   string         `json:"rationale,omitempty"`
	RiskFactors []string       `json:"risk_factors,omitempty"`
	Mitigations []string       `json:"mitigations,omitempty"`
	Steps       []StrategyStep `json:"steps,omitempty"`
}

// ScoringWeights are the component weights used by the deterministic scorer.
// They must sum to 1.0.
type ScoringWeights struct {
	Speed         float64 `json:"speed"`
	Approval      float64 `json:"approval"`
	LowRework     float64 `json:"low_rework"`
	PatientBurden float64 `json:"patient_burden"`
}

// Sum returns the total of all weights; callers validate it equals 1.0.
func (w ScoringWeights) Sum() float64 {
	return w.Speed + w.Approval + w.LowRework + w.PatientBurden
}

// ScoreAdjustment is one machine-readable delta applied during scoring.
type ScoreAdjustment struct {
	Component string  `json:"component"`
	Delta     float64 `json:"delta"`
	Reason    string  `json:"reason"`
}

// StrategyScore is the deterministic weighted score for one strategy.
type StrategyScore struct {
	StrategyID string `json:"strategy_id"`

	SpeedScore    float64 `json:"speed_score"`
	ApprovalScore float64 `json:"approval_score"`
	ReworkScore   float64 `json:"rework_score"`
	PatientScore  float64 `json:"patient_score"`

	Adjustments      []ScoreAdjustment `json:"adjustments,omitempty"`
	AdjustmentReason []string          `json:"adjustment_reasons,omitempty"`

	TotalScore    float64        `json:"total_score"`
	Rank          int            `json:"rank"`
	IsRecommended bool           `json:"is_recommended"`
	WeightsUsed   ScoringWeights `json:"weights_used"`
}
