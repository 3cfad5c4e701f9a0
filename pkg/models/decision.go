package models

import "time"

// DecisionEvent is one link in a case's tamper-evident audit chain.
// Signature covers the serialized event fields plus the previous event's
// signature, so altering any stored event breaks chain verification.
type DecisionEvent struct {
	EventID          string            `json:"event_id" db:"event_id"`
	CaseID           string            `json:"case_id" db:"case_id"`
	EventType        string            `json:"event_type" db:"event_type"`
	Timestamp        time.Time         `json:"timestamp" db:"timestamp"`
	DecisionMade     string            `json:"decision_made" db:"decision_made"`
	Reasoning        string            `json:"reasoning" db:"reasoning"`
	Stage            CaseStage         `json:"stage" db:"stage"`
	Actor            string            `json:"actor" db:"actor"`
	InputDataHash    string            `json:"input_data_hash" db:"input_data_hash"`
	InputDataSummary map[string]string `json:"input_data_summary,omitempty"`
	Alternatives     []string          `json:"alternatives,omitempty"`
	Signature        string            `json:"signature" db:"signature"`
	PreviousEventID  string            `json:"previous_event_id,omitempty" db:"previous_event_id"`
}

// LLMUsage is one usage-accounting row recorded per gateway call.
type LLMUsage struct {
	ID            int64        `json:"id" db:"id"`
	CaseID        string       `json:"case_id,omitempty" db:"case_id"`
	CorrelationID string       `json:"correlation_id" db:"correlation_id"`
	Provider      Provider     `json:"provider" db:"provider"`
	Model         string       `json:"model" db:"model"`
	TaskCategory  TaskCategory `json:"task_category" db:"task_category"`
	InputTokens   int          `json:"input_tokens" db:"input_tokens"`
	OutputTokens  int          `json:"output_tokens" db:"output_tokens"`
	CostUSD       float64      `json:"cost_usd" db:"cost_usd"`
	LatencyMS     int64        `json:"latency_ms" db:"latency_ms"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
}

// PredictionOutcome pairs a predicted likelihood/status with the payer's
// actual determination, for accuracy analytics.
type PredictionOutcome struct {
	ID                   int64      `json:"id" db:"id"`
	CaseID               string     `json:"case_id" db:"case_id"`
	PredictedLikelihood  float64    `json:"predicted_likelihood" db:"predicted_likelihood"`
	PredictedStatus      string     `json:"predicted_status" db:"predicted_status"`
	PayerName            string     `json:"payer_name" db:"payer_name"`
	MedicationName       string     `json:"medication_name" db:"medication_name"`
	ActualOutcome        string     `json:"actual_outcome" db:"actual_outcome"`
	ActualDecisionDate   *time.Time `json:"actual_decision_date,omitempty" db:"actual_decision_date"`
	StrategyUsed         string     `json:"strategy_used,omitempty" db:"strategy_used"`
	WasStrategyEffective *bool      `json:"was_strategy_effective,omitempty" db:"was_strategy_effective"`
}
