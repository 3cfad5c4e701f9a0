package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

func defaultWeights() models.ScoringWeights {
	return models.ScoringWeights{Speed: 0.30, Approval: 0.40, LowRework: 0.20, PatientBurden: 0.10}
}

func testStrategy(payers ...string) models.Strategy {
	return models.Strategy{
		StrategyID:             "s-1",
		StrategyType:           models.StrategySequentialPrimaryFirst,
		PayerSequence:          payers,
		BaseSpeedScore:         6.0,
		BaseApprovalScore:      7.0,
		BaseReworkRiskScore:    3.0,
		BasePatientBurdenScore: 3.0,
	}
}

func TestScoreLikelihoodShiftsApproval(t *testing.T) {
	assessments := map[string]*models.CoverageAssessment{
		"anthem": {ApprovalLikelihood: 0.8},
	}
	score := Score(testStrategy("anthem"), assessments, defaultWeights())

	// 7.0 + 4*(0.8-0.5) = 8.2, under the 0.8 ceiling of 9.0.
	assert.InDelta(t, 8.2, score.ApprovalScore, 1e-9)
	assert.InDelta(t, 7.0, score.ReworkScore, 1e-9)
	assert.InDelta(t, 7.0, score.PatientScore, 1e-9)
	expected := 0.30*6.0 + 0.40*8.2 + 0.20*7.0 + 0.10*7.0
	assert.InDelta(t, expected, score.TotalScore, 1e-9)
	require.Len(t, score.Adjustments, 1)
	assert.InDelta(t, 1.2, score.Adjustments[0].Delta, 1e-9)
}

func TestScoreLikelihoodCeiling(t *testing.T) {
	assessments := map[string]*models.CoverageAssessment{
		"anthem": {ApprovalLikelihood: 0.55},
	}
	score := Score(testStrategy("anthem"), assessments, defaultWeights())

	// 7.0 + 4*0.05 = 7.2, capped at 10*0.55+1 = 6.5.
	assert.InDelta(t, 6.5, score.ApprovalScore, 1e-9)
	require.Len(t, score.Adjustments, 2)
	assert.Contains(t, score.Adjustments[1].Reason, "ceiling")
}

func TestScoreGapAndStepTherapyPenalties(t *testing.T) {
	assessments := map[string]*models.CoverageAssessment{
		"anthem": {
			ApprovalLikelihood: 0.9,
			DocumentationGaps: []models.DocumentationGap{
				{Priority: models.PriorityHigh},
				{Priority: models.PriorityHigh},
				{Priority: models.PriorityLow},
			},
			StepTherapyRequired:  true,
			StepTherapySatisfied: false,
		},
	}
	score := Score(testStrategy("anthem"), assessments, defaultWeights())

	// 7.0 + 1.6 = 8.6; two high gaps -1.0 → 7.6; step therapy -2.0 → 5.6.
	assert.InDelta(t, 5.6, score.ApprovalScore, 1e-9)

	var reasons []string
	for _, a := range score.Adjustments {
		reasons = append(reasons, a.Reason)
	}
	assert.Contains(t, reasons[1], "documentation gap")
	assert.Contains(t, reasons[2], "step therapy")
}

func TestScoreNoAssessmentLeavesBase(t *testing.T) {
	score := Score(testStrategy("anthem"), nil, defaultWeights())
	assert.InDelta(t, 7.0, score.ApprovalScore, 1e-9)
	assert.Empty(t, score.Adjustments)
}

func TestRankOrdersAndMarksRecommended(t *testing.T) {
	strong := testStrategy("anthem")
	strong.StrategyID = "strong"
	weak := testStrategy("cigna")
	weak.StrategyID = "weak"

	assessments := map[string]*models.CoverageAssessment{
		"anthem": {ApprovalLikelihood: 0.9},
		"cigna":  {ApprovalLikelihood: 0.2},
	}
	scores := Rank([]models.Strategy{weak, strong}, assessments, defaultWeights())

	require.Len(t, scores, 2)
	assert.Equal(t, "strong", scores[0].StrategyID)
	assert.Equal(t, 1, scores[0].Rank)
	assert.True(t, scores[0].IsRecommended)
	assert.Equal(t, 2, scores[1].Rank)
	assert.False(t, scores[1].IsRecommended)
}

func TestRationaleIncludesAdjustments(t *testing.T) {
	s := testStrategy("anthem")
	s.Name = "Sequential submission, primary payer first"
	assessments := map[string]*models.CoverageAssessment{
		"anthem": {ApprovalLikelihood: 0.9},
	}
	score := Score(s, assessments, defaultWeights())
	text := Rationale(s, score)
	assert.Contains(t, text, s.Name)
	assert.Contains(t, text, "approval likelihood")
}
