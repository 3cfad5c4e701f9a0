package intelligence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

func similarCohort(cases ...models.HistoricalCase) []models.SimilarCase {
	out := make([]models.SimilarCase, len(cases))
	for i, h := range cases {
		out[i] = models.SimilarCase{Case: h, Score: 0.9}
	}
	return out
}

func TestAnalyzePatternsEmptyCohort(t *testing.T) {
	analysis := AnalyzePatterns(nil)
	assert.Zero(t, analysis.CohortSize)
	assert.Zero(t, analysis.ApprovalRate)
}

func TestAnalyzePatternsOutcomeRates(t *testing.T) {
	var cohort []models.HistoricalCase
	for i := 0; i < 6; i++ {
		cohort = append(cohort, models.HistoricalCase{Outcome: models.OutcomeApproved, DaysToDecision: 10})
	}
	for i := 0; i < 3; i++ {
		cohort = append(cohort, models.HistoricalCase{Outcome: models.OutcomeDenied, DaysToDecision: 20})
	}
	cohort = append(cohort, models.HistoricalCase{Outcome: models.OutcomeInfoRequest}) // no decision days recorded

	analysis := AnalyzePatterns(similarCohort(cohort...))
	assert.Equal(t, 10, analysis.CohortSize)
	assert.InDelta(t, 0.6, analysis.ApprovalRate, 1e-9)
	assert.InDelta(t, 0.3, analysis.DenialRate, 1e-9)
	assert.InDelta(t, 0.1, analysis.InfoRequestRate, 1e-9)
	// Average over the nine cases with a recorded latency.
	assert.InDelta(t, (6*10.0+3*20.0)/9.0, analysis.AvgDaysToDecision, 1e-9)
}

func TestDocumentationImpactsRequireSupportAndDelta(t *testing.T) {
	var cohort []models.HistoricalCase
	// endoscopy_report: 3 approved with, 3 denied without. Strong signal.
	for i := 0; i < 3; i++ {
		cohort = append(cohort, models.HistoricalCase{
			Outcome:              models.OutcomeApproved,
			DocumentationPresent: []string{"endoscopy_report", "recent_labs"},
		})
	}
	for i := 0; i < 3; i++ {
		cohort = append(cohort, models.HistoricalCase{
			Outcome:              models.OutcomeDenied,
			DocumentationPresent: []string{"recent_labs"},
		})
	}
	// tb_screening appears twice only, below the support floor.
	cohort[0].DocumentationPresent = append(cohort[0].DocumentationPresent, "tb_screening")
	cohort[1].DocumentationPresent = append(cohort[1].DocumentationPresent, "tb_screening")

	analysis := AnalyzePatterns(similarCohort(cohort...))
	require.Len(t, analysis.DocumentationImpacts, 1)

	impact := analysis.DocumentationImpacts[0]
	assert.Equal(t, "endoscopy_report", impact.DocumentationType)
	assert.InDelta(t, 1.0, impact.RateWith, 1e-9)
	assert.InDelta(t, 0.0, impact.RateWithout, 1e-9)
	assert.InDelta(t, 1.0, impact.Delta, 1e-9)
	assert.Equal(t, 3, impact.SupportWith)
	assert.Equal(t, 3, impact.SupportWithout)
	// recent_labs is present everywhere, so no without-side support exists.
}

func TestTimingPatternsBucketFloor(t *testing.T) {
	var cohort []models.HistoricalCase
	// Three Mondays, all approved.
	for _, d := range []string{"2024-01-01", "2024-01-08", "2024-01-15"} {
		cohort = append(cohort, models.HistoricalCase{Outcome: models.OutcomeApproved, SubmissionDate: d})
	}
	// Three Fridays, one approved.
	for i, d := range []string{"2024-01-05", "2024-01-12", "2024-01-19"} {
		outcome := models.OutcomeDenied
		if i == 0 {
			outcome = models.OutcomeApproved
		}
		cohort = append(cohort, models.HistoricalCase{Outcome: outcome, SubmissionDate: d})
	}
	// A lone Wednesday and an unparseable date are both dropped.
	cohort = append(cohort,
		models.HistoricalCase{Outcome: models.OutcomeApproved, SubmissionDate: "2024-01-03"},
		models.HistoricalCase{Outcome: models.OutcomeApproved, SubmissionDate: "not-a-date"},
	)

	analysis := AnalyzePatterns(similarCohort(cohort...))
	require.Len(t, analysis.TimingPatterns, 2)
	assert.Equal(t, "Monday", analysis.TimingPatterns[0].DayOfWeek)
	assert.InDelta(t, 1.0, analysis.TimingPatterns[0].ApprovalRate, 1e-9)
	assert.Equal(t, "Friday", analysis.TimingPatterns[1].DayOfWeek)
	assert.InDelta(t, 1.0/3.0, analysis.TimingPatterns[1].ApprovalRate, 1e-9)
	assert.Equal(t, 3, analysis.TimingPatterns[1].CaseCount)
}
