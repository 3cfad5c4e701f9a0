package models

import "strings"

// CaseStage identifies where a case sits in the orchestration pipeline.
type CaseStage string

const (
	StageIntake                CaseStage = "INTAKE"
	StagePolicyAnalysis        CaseStage = "POLICY_ANALYSIS"
	StageCohortAnalysis        CaseStage = "COHORT_ANALYSIS"
	StageAIRecommendation      CaseStage = "AI_RECOMMENDATION"
	StageAwaitingHumanDecision CaseStage = "AWAITING_HUMAN_DECISION"
	StageStrategyGeneration    CaseStage = "STRATEGY_GENERATION"
	StageStrategySelection     CaseStage = "STRATEGY_SELECTION"
	StageActionCoordination    CaseStage = "ACTION_COORDINATION"
	StageMonitoring            CaseStage = "MONITORING"
	StageRecovery              CaseStage = "RECOVERY"
	StageCompleted             CaseStage = "COMPLETED"
	StageFailed                CaseStage = "FAILED"
)

// IsTerminal reports whether the stage ends the case lifecycle.
func (s CaseStage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// CoverageStatus is the outcome classification of a coverage assessment.
type CoverageStatus string

const (
	StatusCovered             CoverageStatus = "COVERED"
	StatusLikelyCovered       CoverageStatus = "LIKELY_COVERED"
	StatusRequiresPA          CoverageStatus = "REQUIRES_PA"
	StatusConditional         CoverageStatus = "CONDITIONAL"
	StatusPend                CoverageStatus = "PEND"
	StatusNotCovered          CoverageStatus = "NOT_COVERED"
	StatusRequiresHumanReview CoverageStatus = "REQUIRES_HUMAN_REVIEW"
	StatusUnknown             CoverageStatus = "UNKNOWN"
)

// ParseCoverageStatus normalizes a free-form status string from an LLM
// response. Unrecognized values map to StatusUnknown with ok=false so the
// conservative mapping can route them to human review.
func ParseCoverageStatus(raw string) (CoverageStatus, bool) {
	switch CoverageStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusCovered:
		return StatusCovered, true
	case StatusLikelyCovered:
		return StatusLikelyCovered, true
	case StatusRequiresPA:
		return StatusRequiresPA, true
	case StatusConditional:
		return StatusConditional, true
	case StatusPend:
		return StatusPend, true
	case StatusNotCovered:
		return StatusNotCovered, true
	case StatusRequiresHumanReview:
		return StatusRequiresHumanReview, true
	case StatusUnknown:
		return StatusUnknown, true
	default:
		return StatusUnknown, false
	}
}

// TaskCategory is the routing key used by the LLM gateway.
type TaskCategory string

const (
	TaskPolicyReasoning   TaskCategory = "POLICY_REASONING"
	TaskAppealStrategy    TaskCategory = "APPEAL_STRATEGY"
	TaskAppealDrafting    TaskCategory = "APPEAL_DRAFTING"
	TaskSummaryGeneration TaskCategory = "SUMMARY_GENERATION"
	TaskDataExtraction    TaskCategory = "DATA_EXTRACTION"
	TaskNotification      TaskCategory = "NOTIFICATION"
	TaskPolicyQA          TaskCategory = "POLICY_QA"
)

// Provider identifies an LLM backend.
type Provider string

const (
	ProviderClaude      Provider = "CLAUDE"
	ProviderGemini      Provider = "GEMINI"
	ProviderAzureOpenAI Provider = "AZURE_OPENAI"
)

// PayerStatus is the per-payer submission lifecycle state.
type PayerStatus string

const (
	PayerNotSubmitted    PayerStatus = "not_submitted"
	PayerSubmitted       PayerStatus = "submitted"
	PayerPendingInfo     PayerStatus = "pending_info"
	PayerUnderReview     PayerStatus = "under_review"
	PayerApproved        PayerStatus = "approved"
	PayerDenied          PayerStatus = "denied"
	PayerAppealSubmitted PayerStatus = "appeal_submitted"
	PayerAppealApproved  PayerStatus = "appeal_approved"
	PayerAppealDenied    PayerStatus = "appeal_denied"
)

// IsActive reports whether the payer still owes a determination and should
// be polled by the monitoring stage.
func (s PayerStatus) IsActive() bool {
	switch s {
	case PayerSubmitted, PayerPendingInfo, PayerUnderReview, PayerAppealSubmitted:
		return true
	default:
		return false
	}
}

// DecisionAction is the action a human reviewer records at a decision gate.
type DecisionAction string

const (
	ActionApprove              DecisionAction = "approve"
	ActionReject               DecisionAction = "reject"
	ActionOverride             DecisionAction = "override"
	ActionEscalate             DecisionAction = "escalate"
	ActionSubmitToPayer        DecisionAction = "submit_to_payer"
	ActionFollowRecommendation DecisionAction = "follow_recommendation"
	ActionReturnToProvider     DecisionAction = "return_to_provider"
)

// GapPriority classifies how urgently a documentation gap must be closed.
type GapPriority string

const (
	PriorityHigh   GapPriority = "high"
	PriorityMedium GapPriority = "medium"
	PriorityLow    GapPriority = "low"
)

// StrategyType enumerates strategy templates. Sequential primary-first is
// the only supported shape; parallel submission is forbidden.
type StrategyType string

const StrategySequentialPrimaryFirst StrategyType = "sequential_primary_first"

// HistoricalOutcome is the recorded result of a corpus case.
type HistoricalOutcome string

const (
	OutcomeApproved    HistoricalOutcome = "approved"
	OutcomeDenied      HistoricalOutcome = "denied"
	OutcomeInfoRequest HistoricalOutcome = "info_request"
)
