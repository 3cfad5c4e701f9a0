package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/priorauth-labs/caseflow/pkg/config"
	"github.com/priorauth-labs/caseflow/pkg/llm"
	"github.com/priorauth-labs/caseflow/pkg/models"
	"github.com/priorauth-labs/caseflow/pkg/prompts"
)

// exclusionConfidenceFloor: exclusion hits below this confidence are logged
// but not recorded as triggered.
const exclusionConfidenceFloor = 0.7

const assessmentSystemPrompt = `You are a prior-authorization coverage analyst. ` +
	`Evaluate the patient's clinical record against the payer's coverage policy. ` +
	`Assess every listed criterion by its exact criterion_id, cite supporting evidence ` +
	`from the record, and name what documentation is missing. Be conservative: when ` +
	`evidence is absent, the criterion is not met.`

// Assessor evaluates coverage for one payer. *Reasoner implements it; the
// refiner and orchestrator depend on the interface so tests can stub it.
type Assessor interface {
	AssessCoverage(ctx context.Context, req AssessmentRequest) (*models.CoverageAssessment, error)
}

// AssessmentRequest carries everything one coverage assessment needs.
// RefinementContext is set only on refinement passes.
type AssessmentRequest struct {
	CaseID            string
	PayerName         string
	Patient           models.Patient
	Medication        models.MedicationRequest
	RefinementContext string
}

// Reasoner runs the coverage assessment pipeline: policy load, LLM call,
// criterion ID reconciliation, backfill, likelihood validation, and the
// conservative status mapping.
type Reasoner struct {
	gateway llm.Generator
	repo    *Repository
	prompts *prompts.Store
	rubrics Rubrics
	cfg     config.AnalysisConfig
}

// NewReasoner creates a policy reasoner.
func NewReasoner(gateway llm.Generator, repo *Repository, promptStore *prompts.Store, rubrics Rubrics, cfg config.AnalysisConfig) *Reasoner {
	return &Reasoner{
		gateway: gateway,
		repo:    repo,
		prompts: promptStore,
		rubrics: rubrics,
		cfg:     cfg,
	}
}

// llmAssessment is the raw shape the model returns before validation.
type llmAssessment struct {
	CoverageStatus       string                       `json:"coverage_status"`
	ApprovalLikelihood   float64                      `json:"approval_likelihood"`
	Reasoning            string                       `json:"reasoning"`
	CriteriaAssessments  []models.CriterionAssessment `json:"criteria_assessments"`
	DocumentationGaps    []models.DocumentationGap    `json:"documentation_gaps"`
	Recommendations      []string                     `json:"recommendations"`
	StepTherapyRequired  bool                         `json:"step_therapy_required"`
	StepTherapySatisfied bool                         `json:"step_therapy_satisfied"`
	ExclusionsTriggered  []models.CriterionAssessment `json:"exclusions_triggered"`
}

// AssessCoverage produces the validated per-payer coverage assessment.
// ErrPolicyNotFound is returned only when neither a structured nor a textual
// policy exists for the payer/medication pair.
func (r *Reasoner) AssessCoverage(ctx context.Context, req AssessmentRequest) (*models.CoverageAssessment, error) {
	policy, err := r.repo.Load(ctx, req.PayerName, req.Medication.MedicationName)
	if err != nil {
		return nil, err
	}
	rawText, err := r.repo.LoadRawText(ctx, req.PayerName, req.Medication.MedicationName)
	if err != nil {
		return nil, err
	}
	if policy == nil && rawText == "" {
		return nil, fmt.Errorf("%w: payer %s, medication %s",
			ErrPolicyNotFound, req.PayerName, req.Medication.MedicationName)
	}

	prompt, provenance, err := r.prompts.Load(ctx, "policy_analysis/coverage_assessment", map[string]any{
		"payer_name":         req.PayerName,
		"patient":            jsonBlock(req.Patient),
		"medication":         jsonBlock(req.Medication),
		"criteria_context":   buildCriteriaContext(policy),
		"policy_text":        truncate(rawText, maxPolicyExcerpt),
		"payer_rubric":       r.rubrics.For(req.PayerName),
		"refinement_context": req.RefinementContext,
	})
	if err != nil {
		return nil, fmt.Errorf("load coverage assessment prompt: %w", err)
	}
	slog.Debug("Coverage assessment prompt ready",
		"case_id", req.CaseID, "payer", req.PayerName, "provenance", provenance)

	resp, err := r.gateway.Generate(ctx, llm.Request{
		Task:           models.TaskPolicyReasoning,
		Prompt:         prompt,
		SystemPrompt:   assessmentSystemPrompt,
		Temperature:    0,
		ResponseFormat: llm.FormatJSON,
		CaseID:         req.CaseID,
	})
	if err != nil {
		return nil, fmt.Errorf("coverage assessment for %s: %w", req.PayerName, err)
	}

	var raw llmAssessment
	if err := roundtrip(resp.Payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAssessment, err)
	}
	if len(raw.CriteriaAssessments) == 0 && raw.CoverageStatus == "" {
		return nil, fmt.Errorf("%w: response has neither criteria_assessments nor coverage_status",
			ErrMalformedAssessment)
	}

	criteria := r.matchCriterionIDs(ctx, policy, raw.CriteriaAssessments, req.CaseID)
	criteria = backfillCriteria(policy, req.Medication, criteria, req.CaseID)

	likelihood, adjustments := validateLikelihood(raw.ApprovalLikelihood, criteria, policy, req.CaseID)
	status, reason := applyConservativeStatus(raw.CoverageStatus, likelihood)
	if reason != "" {
		slog.Info("Conservative status mapping applied",
			"case_id", req.CaseID, "payer", req.PayerName,
			"claimed", raw.CoverageStatus, "mapped", status, "reason", reason)
	}

	assessment := &models.CoverageAssessment{
		PayerName:             req.PayerName,
		CoverageStatus:        status,
		ApprovalLikelihood:    likelihood,
		Reasoning:             raw.Reasoning,
		CriteriaAssessments:   criteria,
		DocumentationGaps:     fillGapIDs(raw.DocumentationGaps),
		Recommendations:       raw.Recommendations,
		StepTherapyRequired:   raw.StepTherapyRequired || (policy != nil && len(policy.StepTherapyRequirements) > 0),
		StepTherapySatisfied:  raw.StepTherapySatisfied,
		TriggeredExclusions:   confirmedExclusions(raw.ExclusionsTriggered, req.CaseID, req.PayerName),
		LikelihoodAdjustments: adjustments,
		PolicyExcerpt:         truncate(rawText, maxPolicyExcerpt),
	}
	assessment.RecountCriteria()

	if rawJSON, merr := json.Marshal(resp.Payload); merr == nil {
		assessment.RawResponse = rawJSON
	}
	return assessment, nil
}

// fillGapIDs assigns UUIDs to gaps the model returned without one.
func fillGapIDs(gaps []models.DocumentationGap) []models.DocumentationGap {
	for i := range gaps {
		if gaps[i].GapID == "" {
			gaps[i].GapID = uuid.NewString()
		}
	}
	return gaps
}

// confirmedExclusions keeps exclusion hits the model asserted with enough
// confidence to matter. Every hit is logged either way.
func confirmedExclusions(hits []models.CriterionAssessment, caseID, payer string) []models.CriterionAssessment {
	var confirmed []models.CriterionAssessment
	for _, h := range hits {
		if !h.IsMet {
			continue
		}
		if h.Confidence >= exclusionConfidenceFloor {
			slog.Warn("Policy exclusion triggered",
				"case_id", caseID, "payer", payer,
				"exclusion_id", h.CriterionID, "confidence", h.Confidence)
			confirmed = append(confirmed, h)
			continue
		}
		slog.Info("Low-confidence exclusion hit ignored",
			"case_id", caseID, "payer", payer,
			"exclusion_id", h.CriterionID, "confidence", h.Confidence)
	}
	return confirmed
}
