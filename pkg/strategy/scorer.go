package strategy

import (
	"fmt"
	"math"
	"sort"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

const (
	gapPenalty         = 0.5
	stepTherapyPenalty = 2.0
)

// Score computes the deterministic weighted score for one strategy against
// the coverage assessment of its first payer. Every adjustment is recorded
// with a delta and a reason so the score is fully explainable.
func Score(s models.Strategy, assessments map[string]*models.CoverageAssessment, weights models.ScoringWeights) models.StrategyScore {
	score := models.StrategyScore{
		StrategyID:    s.StrategyID,
		SpeedScore:    s.BaseSpeedScore,
		ApprovalScore: s.BaseApprovalScore,
		WeightsUsed:   weights,
	}
	record := func(component string, delta float64, reason string) {
		score.Adjustments = append(score.Adjustments, models.ScoreAdjustment{
			Component: component, Delta: delta, Reason: reason,
		})
		score.AdjustmentReason = append(score.AdjustmentReason, reason)
	}

	var first *models.CoverageAssessment
	if len(s.PayerSequence) > 0 {
		first = assessments[s.PayerSequence[0]]
	}

	if first != nil {
		likelihood := first.ApprovalLikelihood

		delta := 4 * (likelihood - 0.5)
		adjusted := clamp(score.ApprovalScore+delta, 0, 10)
		if adjusted != score.ApprovalScore {
			record("approval", adjusted-score.ApprovalScore,
				fmt.Sprintf("first-payer approval likelihood %.2f shifts approval score by %+.2f", likelihood, adjusted-score.ApprovalScore))
			score.ApprovalScore = adjusted
		}

		ceiling := 10*likelihood + 1
		if score.ApprovalScore > ceiling {
			record("approval", ceiling-score.ApprovalScore,
				fmt.Sprintf("approval score capped at likelihood ceiling %.2f", ceiling))
			score.ApprovalScore = ceiling
		}

		highGaps := 0
		for _, g := range first.DocumentationGaps {
			if g.Priority == models.PriorityHigh {
				highGaps++
			}
		}
		if highGaps > 0 {
			delta := -gapPenalty * float64(highGaps)
			record("approval", delta,
				fmt.Sprintf("%d critical documentation gap(s) outstanding", highGaps))
			score.ApprovalScore = clamp(score.ApprovalScore+delta, 0, 10)
		}

		if first.StepTherapyRequired && !first.StepTherapySatisfied {
			record("approval", -stepTherapyPenalty, "step therapy required and not satisfied")
			score.ApprovalScore = clamp(score.ApprovalScore-stepTherapyPenalty, 0, 10)
		}
	}

	score.ReworkScore = 10 - s.BaseReworkRiskScore
	score.PatientScore = 10 - s.BasePatientBurdenScore

	score.TotalScore = weights.Speed*score.SpeedScore +
		weights.Approval*score.ApprovalScore +
		weights.LowRework*score.ReworkScore +
		weights.PatientBurden*score.PatientScore
	return score
}

// Rank scores every strategy, orders them by total score descending, and
// marks rank 1 recommended.
func Rank(strategies []models.Strategy, assessments map[string]*models.CoverageAssessment, weights models.ScoringWeights) []models.StrategyScore {
	scores := make([]models.StrategyScore, 0, len(strategies))
	for _, s := range strategies {
		scores = append(scores, Score(s, assessments, weights))
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].TotalScore > scores[j].TotalScore
	})
	for i := range scores {
		scores[i].Rank = i + 1
		scores[i].IsRecommended = i == 0
	}
	return scores
}

// Rationale synthesizes the human-readable recommendation text for the
// winning strategy.
func Rationale(s models.Strategy, score models.StrategyScore) string {
	text := fmt.Sprintf("%s scored %.2f (speed %.1f, approval %.1f, rework %.1f, patient %.1f).",
		s.Name, score.TotalScore, score.SpeedScore, score.ApprovalScore,
		score.ReworkScore, score.PatientScore)
	for _, reason := range score.AdjustmentReason {
		text += " " + capitalize(reason) + "."
	}
	return text
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-32) + s[1:]
	}
	return s
}
