package models

import "encoding/json"

// CriterionAssessment is the LLM's verdict on one atomic policy criterion.
type CriterionAssessment struct {
	CriterionID          string   `json:"criterion_id"`
	CriterionName        string   `json:"criterion_name"`
	CriterionDescription string   `json:"criterion_description,omitempty"`
	IsMet                bool     `json:"is_met"`
	Confidence           float64  `json:"confidence"`
	SupportingEvidence   []string `json:"supporting_evidence,omitempty"`
	Gaps                 []string `json:"gaps,omitempty"`
	Reasoning            string   `json:"reasoning,omitempty"`
}

// DocumentationGap is a missing piece of evidence the payer will want.
type DocumentationGap struct {
	GapID           string      `json:"gap_id"`
	GapType         string      `json:"gap_type"`
	Description     string      `json:"description"`
	RequiredFor     []string    `json:"required_for,omitempty"`
	Priority        GapPriority `json:"priority"`
	SuggestedAction string      `json:"suggested_action,omitempty"`
	Complexity      string      `json:"complexity,omitempty"`
}

// LikelihoodAdjustment records one validation clamp applied to the LLM's
// claimed approval likelihood, for auditability.
type LikelihoodAdjustment struct {
	Rule     string  `json:"rule"`
	Original float64 `json:"original"`
	Adjusted float64 `json:"adjusted"`
	MetRatio float64 `json:"met_ratio"`
}

// CoverageAssessment is the per-payer analysis result produced by the
// policy reasoner after validation and conservative mapping.
type CoverageAssessment struct {
	PayerName          string         `json:"payer_name"`
	CoverageStatus     CoverageStatus `json:"coverage_status"`
	ApprovalLikelihood float64        `json:"approval_likelihood"`
	Reasoning          string         `json:"reasoning,omitempty"`

	CriteriaAssessments []CriterionAssessment `json:"criteria_assessments"`
	CriteriaMetCount    int                   `json:"criteria_met_count"`
	CriteriaTotalCount  int                   `json:"criteria_total_count"`

	DocumentationGaps []DocumentationGap `json:"documentation_gaps,omitempty"`
	Recommendations   []string           `json:"recommendations,omitempty"`

	StepTherapyRequired  bool `json:"step_therapy_required"`
	StepTherapySatisfied bool `json:"step_therapy_satisfied"`

	TriggeredExclusions   []CriterionAssessment  `json:"triggered_exclusions,omitempty"`
	LikelihoodAdjustments []LikelihoodAdjustment `json:"likelihood_adjustments,omitempty"`

	PolicyExcerpt string          `json:"policy_excerpt,omitempty"`
	RawResponse   json.RawMessage `json:"raw_response,omitempty"`
}

// RecountCriteria recomputes the met/total counters from the criteria list.
// Must be called after any mutation of CriteriaAssessments so the invariant
// criteria_met_count == |{c : c.is_met}| holds.
func (a *CoverageAssessment) RecountCriteria() {
	met := 0
	for _, c := range a.CriteriaAssessments {
		if c.IsMet {
			met++
		}
	}
	a.CriteriaMetCount = met
	a.CriteriaTotalCount = len(a.CriteriaAssessments)
}
