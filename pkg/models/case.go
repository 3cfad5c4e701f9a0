// Package models defines the domain entities shared across the caseflow
// services: cases, coverage assessments, digitized policies, strategies,
// audit events, and strategic-intelligence records.
package models

import (
	"time"
)

// Patient holds demographics and clinical references captured at intake.
// Immutable after intake validation.
type Patient struct {
	PatientID         string   `json:"patient_id" validate:"required"`
	FirstName         string   `json:"first_name" validate:"required"`
	LastName          string   `json:"last_name" validate:"required"`
	DateOfBirth       string   `json:"date_of_birth" validate:"required"`
	Gender            string   `json:"gender,omitempty"`
	MemberID          string   `json:"member_id,omitempty"`
	PrimaryPayer      string   `json:"primary_payer" validate:"required"`
	SecondaryPayer    string   `json:"secondary_payer,omitempty"`
	DiagnosisCodes    []string `json:"diagnosis_codes,omitempty"`
	Allergies         []string `json:"allergies,omitempty"`
	Contraindications []string `json:"contraindications,omitempty"`
}

// PriorTreatment records one prior therapy attempt relevant to step-therapy
// evaluation.
type PriorTreatment struct {
	MedicationName string `json:"medication_name"`
	DrugClass      string `json:"drug_class,omitempty"`
	StartDate      string `json:"start_date,omitempty"`
	EndDate        string `json:"end_date,omitempty"`
	DurationDays   int    `json:"duration_days,omitempty"`
	Outcome        string `json:"outcome,omitempty"`
	ReasonStopped  string `json:"reason_stopped,omitempty"`
}

// LabResult is a supporting lab reference attached to a medication request.
type LabResult struct {
	TestName  string  `json:"test_name"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit,omitempty"`
	Date      string  `json:"date,omitempty"`
	Reference string  `json:"reference,omitempty"`
}

// MedicationRequest describes the drug under prior authorization.
type MedicationRequest struct {
	MedicationName    string           `json:"medication_name" validate:"required"`
	GenericName       string           `json:"generic_name,omitempty"`
	NDC               string           `json:"ndc,omitempty"`
	Dose              string           `json:"dose,omitempty"`
	Frequency         string           `json:"frequency,omitempty"`
	Route             string           `json:"route,omitempty"`
	DurationDays      int              `json:"duration_days,omitempty"`
	Indication        string           `json:"indication" validate:"required"`
	ICD10Code         string           `json:"icd10_code" validate:"required"`
	PrescriberID      string           `json:"prescriber_id,omitempty"`
	PrescriberName    string           `json:"prescriber_name,omitempty"`
	ClinicalRationale string           `json:"clinical_rationale,omitempty"`
	PriorTreatments   []PriorTreatment `json:"prior_treatments,omitempty"`
	LabResults        []LabResult      `json:"lab_results,omitempty"`
}

// PayerState tracks the per-payer submission lifecycle.
type PayerState struct {
	PayerName         string      `json:"payer_name"`
	Status            PayerStatus `json:"status"`
	ReferenceNumber   string      `json:"reference_number,omitempty"`
	SubmittedAt       *time.Time  `json:"submitted_at,omitempty"`
	RespondedAt       *time.Time  `json:"responded_at,omitempty"`
	ResponseDetails   string      `json:"response_details,omitempty"`
	RequiredDocuments []string    `json:"required_documents,omitempty"`
	DenialReason      string      `json:"denial_reason,omitempty"`
	AppealDeadline    *time.Time  `json:"appeal_deadline,omitempty"`
}

// HumanDecision is a reviewer action recorded at a human-decision gate.
type HumanDecision struct {
	DecisionID             string         `json:"decision_id"`
	Stage                  CaseStage      `json:"stage"`
	Action                 DecisionAction `json:"action"`
	ReviewerID             string         `json:"reviewer_id"`
	ReviewerName           string         `json:"reviewer_name,omitempty"`
	Timestamp              time.Time      `json:"timestamp"`
	OriginalRecommendation string         `json:"original_recommendation,omitempty"`
	OverrideReason         string         `json:"override_reason,omitempty"`
	Notes                  string         `json:"notes,omitempty"`
}

// CaseAction is a coordination step scheduled or completed for a case.
type CaseAction struct {
	ActionID    string     `json:"action_id"`
	ActionType  string     `json:"action_type"`
	TargetPayer string     `json:"target_payer,omitempty"`
	Description string     `json:"description,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      string     `json:"result,omitempty"`
}

// Case is the root aggregate. Version increases by exactly one per mutation
// and every mutation writes a full snapshot.
type Case struct {
	CaseID    string    `json:"case_id"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Stage     CaseStage `json:"stage"`

	Patient    Patient           `json:"patient"`
	Medication MedicationRequest `json:"medication"`

	PayerStates         map[string]*PayerState         `json:"payer_states"`
	CoverageAssessments map[string]*CoverageAssessment `json:"coverage_assessments,omitempty"`
	DocumentationGaps   []DocumentationGap             `json:"documentation_gaps,omitempty"`
	AIRecommendation    string                         `json:"ai_recommendation,omitempty"`

	AvailableStrategies []Strategy `json:"available_strategies,omitempty"`
	SelectedStrategyID  string     `json:"selected_strategy_id,omitempty"`
	StrategyRationale   string     `json:"strategy_rationale,omitempty"`

	PendingActions   []CaseAction `json:"pending_actions,omitempty"`
	CompletedActions []CaseAction `json:"completed_actions,omitempty"`

	HumanDecisions        []HumanDecision `json:"human_decisions,omitempty"`
	RequiresHumanDecision bool            `json:"requires_human_decision"`
	HumanDecisionReason   string          `json:"human_decision_reason,omitempty"`
	HumanOverrideApplied  bool            `json:"human_override_applied,omitempty"`

	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Payers returns the ordered payer list: primary first, then secondary if
// present. Strategy generation and policy analysis both rely on this order.
func (c *Case) Payers() []string {
	payers := []string{}
	if c.Patient.PrimaryPayer != "" {
		payers = append(payers, c.Patient.PrimaryPayer)
	}
	if c.Patient.SecondaryPayer != "" {
		payers = append(payers, c.Patient.SecondaryPayer)
	}
	return payers
}

// LatestHumanDecision returns the most recent recorded decision, or nil.
func (c *Case) LatestHumanDecision() *HumanDecision {
	if len(c.HumanDecisions) == 0 {
		return nil
	}
	return &c.HumanDecisions[len(c.HumanDecisions)-1]
}

// CreateCaseRequest contains the intake payload for a new case.
type CreateCaseRequest struct {
	Patient    Patient           `json:"patient" validate:"required"`
	Medication MedicationRequest `json:"medication" validate:"required"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
}

// CaseSnapshot is a full state snapshot written on every mutation,
// addressable by (case_id, version).
type CaseSnapshot struct {
	ID                int64     `json:"id" db:"id"`
	CaseID            string    `json:"case_id" db:"case_id"`
	Version           int       `json:"version" db:"version"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	StateData         []byte    `json:"state_data" db:"state_data"`
	ChangeDescription string    `json:"change_description" db:"change_description"`
	ChangedBy         string    `json:"changed_by" db:"changed_by"`
}
