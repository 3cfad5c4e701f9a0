package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/priorauth-labs/caseflow/pkg/config"
	"github.com/priorauth-labs/caseflow/pkg/models"
)

// Refiner re-runs coverage assessment for criteria the model was unsure
// about. Each pass targets only low-confidence criteria and merges results
// under a strict-improvement rule, so refinement can raise confidence but
// never silently degrade an assessment.
type Refiner struct {
	assessor Assessor
	cfg      config.AnalysisConfig
}

// NewRefiner creates a refiner over an assessor.
func NewRefiner(assessor Assessor, cfg config.AnalysisConfig) *Refiner {
	return &Refiner{assessor: assessor, cfg: cfg}
}

// Refine iterates until no criterion sits below the low-confidence
// threshold or the iteration cap is reached. A failed refinement pass
// returns the best assessment so far; refinement is an enhancement, never a
// blocker.
func (r *Refiner) Refine(ctx context.Context, req AssessmentRequest, assessment *models.CoverageAssessment) *models.CoverageAssessment {
	current := assessment
	for iter := 1; iter <= r.cfg.MaxRefinementIterations; iter++ {
		targets := lowConfidenceCriteria(current, r.cfg.LowConfidenceThreshold)
		if len(targets) == 0 {
			return current
		}

		refineReq := req
		refineReq.RefinementContext = buildRefinementContext(current, targets)
		refined, err := r.assessor.AssessCoverage(ctx, refineReq)
		if err != nil {
			slog.Warn("Refinement pass failed, keeping prior assessment",
				"case_id", req.CaseID, "payer", req.PayerName,
				"iteration", iter, "error", err)
			return current
		}

		merged, improved := mergeRefined(current, refined, targets)
		slog.Info("Refinement pass complete",
			"case_id", req.CaseID, "payer", req.PayerName,
			"iteration", iter, "targets", len(targets), "improved", improved)
		if improved == 0 {
			return current
		}
		current = merged
	}
	return current
}

func lowConfidenceCriteria(a *models.CoverageAssessment, threshold float64) map[string]bool {
	targets := make(map[string]bool)
	for _, c := range a.CriteriaAssessments {
		if c.Confidence < threshold {
			targets[c.CriterionID] = true
		}
	}
	return targets
}

// buildRefinementContext describes the prior pass's uncertain criteria so
// the model can focus on them: prior reasoning, evidence found, and the
// open documentation gaps.
func buildRefinementContext(a *models.CoverageAssessment, targets map[string]bool) string {
	var b strings.Builder
	b.WriteString("## Refinement Focus\n")
	b.WriteString("A prior pass assessed these criteria with low confidence. ")
	b.WriteString("Re-examine each against the full record and raise confidence only when evidence supports it.\n\n")
	for _, c := range a.CriteriaAssessments {
		if !targets[c.CriterionID] {
			continue
		}
		fmt.Fprintf(&b, "- [%s] %s (is_met=%t, confidence=%.2f)\n", c.CriterionID, c.CriterionName, c.IsMet, c.Confidence)
		if c.Reasoning != "" {
			fmt.Fprintf(&b, "  prior reasoning: %s\n", truncate(c.Reasoning, 300))
		}
		if len(c.SupportingEvidence) > 0 {
			fmt.Fprintf(&b, "  evidence so far: %s\n", strings.Join(c.SupportingEvidence, "; "))
		}
		if len(c.Gaps) > 0 {
			fmt.Fprintf(&b, "  open gaps: %s\n", strings.Join(c.Gaps, "; "))
		}
	}
	if len(a.DocumentationGaps) > 0 {
		b.WriteString("\n## Outstanding Documentation Gaps\n")
		for _, g := range a.DocumentationGaps {
			fmt.Fprintf(&b, "- (%s) %s\n", g.Priority, g.Description)
		}
	}
	return b.String()
}

// mergeRefined applies the strict-improvement rule: a targeted criterion is
// replaced only when the refined pass is strictly more confident about it.
// Overall status, likelihood, gaps, and recommendations follow the refined
// assessment only when at least one criterion improved.
func mergeRefined(current, refined *models.CoverageAssessment, targets map[string]bool) (*models.CoverageAssessment, int) {
	refinedByID := make(map[string]models.CriterionAssessment, len(refined.CriteriaAssessments))
	for _, c := range refined.CriteriaAssessments {
		refinedByID[c.CriterionID] = c
	}

	merged := *current
	merged.CriteriaAssessments = append([]models.CriterionAssessment{}, current.CriteriaAssessments...)
	improved := 0
	for i, c := range merged.CriteriaAssessments {
		if !targets[c.CriterionID] {
			continue
		}
		rc, ok := refinedByID[c.CriterionID]
		if !ok || rc.Confidence <= c.Confidence {
			continue
		}
		merged.CriteriaAssessments[i] = rc
		improved++
	}
	if improved == 0 {
		return current, 0
	}

	merged.CoverageStatus = refined.CoverageStatus
	merged.ApprovalLikelihood = refined.ApprovalLikelihood
	merged.Reasoning = refined.Reasoning
	merged.DocumentationGaps = refined.DocumentationGaps
	merged.Recommendations = refined.Recommendations
	merged.StepTherapyRequired = refined.StepTherapyRequired
	merged.StepTherapySatisfied = refined.StepTherapySatisfied
	merged.LikelihoodAdjustments = append(merged.LikelihoodAdjustments, refined.LikelihoodAdjustments...)
	merged.RecountCriteria()
	return &merged, improved
}
