package policy

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

// backfillReasoning is the canonical text for criteria the model skipped.
// Downstream gap analysis and the UI key off it.
const backfillReasoning = "not evaluated by AI - requires manual review"

// backfillCriteria appends a conservative not-met placeholder for every
// policy criterion the model failed to assess, scoped to the indication
// matching the request. Skipped criteria in an OR group get a note that a
// sibling may still satisfy the group.
func backfillCriteria(policy *models.DigitizedPolicy, med models.MedicationRequest, assessments []models.CriterionAssessment, caseID string) []models.CriterionAssessment {
	if policy == nil || len(policy.AtomicCriteria) == 0 {
		return assessments
	}

	expected := scopedCriteria(policy, med, assessments)
	assessed := make(map[string]bool, len(assessments))
	for _, a := range assessments {
		assessed[a.CriterionID] = true
	}

	missing := make([]string, 0)
	for id := range expected {
		if !assessed[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)

	for _, id := range missing {
		c := policy.AtomicCriteria[id]
		reasoning := backfillReasoning
		if groups := policy.ORGroupsFor(id); len(groups) > 0 {
			reasoning += "; member of OR group " + strings.Join(groups, ", ") +
				" so an alternative criterion may satisfy the requirement"
		}
		assessments = append(assessments, models.CriterionAssessment{
			CriterionID:   id,
			CriterionName: c.Name,
			IsMet:         false,
			Confidence:    0,
			Reasoning:     reasoning,
		})
	}

	if len(missing) > 0 {
		slog.Info("Backfilled unevaluated policy criteria",
			"case_id", caseID, "count", len(missing))
	}
	return assessments
}

// scopedCriteria selects the criterion set the assessment should cover.
// The indication is resolved by ICD-10 match against the request; failing
// that, by the indication whose sub-tree overlaps most with what the model
// actually assessed. With no indication resolved, the full criterion set
// applies.
func scopedCriteria(policy *models.DigitizedPolicy, med models.MedicationRequest, assessments []models.CriterionAssessment) map[string]bool {
	if len(policy.Indications) == 0 {
		all := make(map[string]bool, len(policy.AtomicCriteria))
		for id := range policy.AtomicCriteria {
			all[id] = true
		}
		return all
	}

	icd := strings.ToUpper(strings.TrimSpace(med.ICD10Code))
	for _, ind := range policy.Indications {
		for _, code := range ind.ICD10Codes {
			if strings.EqualFold(strings.TrimSpace(code), icd) && icd != "" {
				return policy.IndicationCriteria(ind)
			}
		}
	}

	assessed := make(map[string]bool, len(assessments))
	for _, a := range assessments {
		assessed[a.CriterionID] = true
	}
	var best map[string]bool
	bestOverlap := -1
	for _, ind := range policy.Indications {
		ids := policy.IndicationCriteria(ind)
		overlap := 0
		for id := range ids {
			if assessed[id] {
				overlap++
			}
		}
		if overlap > bestOverlap {
			bestOverlap = overlap
			best = ids
		}
	}
	if best != nil && bestOverlap > 0 {
		return best
	}

	all := make(map[string]bool, len(policy.AtomicCriteria))
	for id := range policy.AtomicCriteria {
		all[id] = true
	}
	return all
}
