package policy

import (
	"log/slog"
	"math"
	"sort"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

// Conservative decision model thresholds. The system may never issue a
// denial; anything the model calls NOT_COVERED, anything uncertain, and
// anything with a weak likelihood routes to human review instead.
const (
	reviewLikelihoodFloor  = 0.30
	unknownLikelihoodFloor = 0.50
)

// applyConservativeStatus maps the model's claimed status onto the status
// the system is allowed to report. The returned reason is non-empty when a
// remap happened.
func applyConservativeStatus(raw string, likelihood float64) (models.CoverageStatus, string) {
	parsed, ok := models.ParseCoverageStatus(raw)
	switch {
	case !ok:
		return models.StatusRequiresHumanReview, "unrecognized coverage status from model: " + raw
	case parsed == models.StatusNotCovered:
		return models.StatusRequiresHumanReview, "model assessed NOT_COVERED; denials require human review"
	case parsed == models.StatusUnknown && likelihood < unknownLikelihoodFloor:
		return models.StatusRequiresHumanReview, "coverage unknown with weak approval likelihood"
	case likelihood < reviewLikelihoodFloor:
		return models.StatusRequiresHumanReview, "approval likelihood below review floor"
	default:
		return parsed, ""
	}
}

// validateLikelihood cross-checks the model's claimed approval likelihood
// against the fraction of criteria actually met, counting each OR group as
// one unit (met when any member is met). Implausible claims are clamped and
// every clamp is recorded.
func validateLikelihood(likelihood float64, criteria []models.CriterionAssessment, policy *models.DigitizedPolicy, caseID string) (float64, []models.LikelihoodAdjustment) {
	var adjustments []models.LikelihoodAdjustment
	record := func(rule string, original, adjusted, ratio float64) {
		adjustments = append(adjustments, models.LikelihoodAdjustment{
			Rule: rule, Original: original, Adjusted: adjusted, MetRatio: ratio,
		})
		slog.Info("Adjusted approval likelihood",
			"case_id", caseID, "rule", rule,
			"original", original, "adjusted", adjusted, "met_ratio", ratio)
	}

	if likelihood < 0 || likelihood > 1 {
		clamped := math.Min(1, math.Max(0, likelihood))
		record("out_of_range", likelihood, clamped, 0)
		likelihood = clamped
	}

	met, total := orGroupMetRatio(criteria, policy)
	if total == 0 {
		return likelihood, adjustments
	}
	ratio := float64(met) / float64(total)

	if likelihood > 0.85 && ratio < 0.50 {
		adjusted := math.Min(likelihood, ratio+0.1)
		if adjusted != likelihood {
			record("high_likelihood_low_met_ratio", likelihood, adjusted, ratio)
			likelihood = adjusted
		}
	}
	if likelihood < 0.20 && ratio > 0.80 {
		adjusted := math.Max(likelihood, 0.5)
		if adjusted != likelihood {
			record("low_likelihood_high_met_ratio", likelihood, adjusted, ratio)
			likelihood = adjusted
		}
	}
	return likelihood, adjustments
}

// orGroupMetRatio counts satisfaction units: criteria outside any OR group
// count individually; all members of one OR group collapse into a single
// unit that is met when any member is met. A criterion in multiple OR
// groups is attributed to its lexicographically first group so the count is
// deterministic.
func orGroupMetRatio(criteria []models.CriterionAssessment, policy *models.DigitizedPolicy) (met, total int) {
	if policy == nil {
		for _, c := range criteria {
			total++
			if c.IsMet {
				met++
			}
		}
		return met, total
	}

	groupMet := make(map[string]bool)
	for _, c := range criteria {
		groups := policy.ORGroupsFor(c.CriterionID)
		if len(groups) == 0 {
			total++
			if c.IsMet {
				met++
			}
			continue
		}
		sort.Strings(groups)
		g := groups[0]
		if _, seen := groupMet[g]; !seen {
			total++
			groupMet[g] = false
		}
		if c.IsMet {
			groupMet[g] = true
		}
	}
	for _, ok := range groupMet {
		if ok {
			met++
		}
	}
	return met, total
}
