package policy

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

// maxPolicyExcerpt bounds the raw policy text carried on assessments and
// embedded in prompts.
const maxPolicyExcerpt = 4000

// buildCriteriaContext renders a digitized policy as structured prompt
// context: every atomic criterion with its canonical ID, the AND/OR group
// tree, exclusions, and step-therapy requirements. The canonical IDs are
// what the response validator matches against.
func buildCriteriaContext(policy *models.DigitizedPolicy) string {
	if policy == nil {
		return ""
	}
	var b strings.Builder

	b.WriteString("## Coverage Criteria\n")
	b.WriteString("Assess each criterion by its exact criterion_id.\n\n")

	ids := make([]string, 0, len(policy.AtomicCriteria))
	for id := range policy.AtomicCriteria {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c := policy.AtomicCriteria[id]
		fmt.Fprintf(&b, "- [%s] %s", c.CriterionID, c.Name)
		if c.Description != "" {
			fmt.Fprintf(&b, ": %s", c.Description)
		}
		if c.Threshold != nil {
			fmt.Fprintf(&b, " (threshold: %s %.4g", c.Threshold.Operator, c.Threshold.Value)
			if c.Threshold.UpperValue != nil {
				fmt.Fprintf(&b, "-%.4g", *c.Threshold.UpperValue)
			}
			if c.Threshold.Unit != "" {
				fmt.Fprintf(&b, " %s", c.Threshold.Unit)
			}
			b.WriteString(")")
		}
		if c.MinDurationDays > 0 {
			fmt.Fprintf(&b, " (minimum duration: %d days)", c.MinDurationDays)
		}
		b.WriteString("\n")
	}

	if len(policy.CriterionGroups) > 0 {
		b.WriteString("\n## Criterion Logic\n")
		gids := make([]string, 0, len(policy.CriterionGroups))
		for id := range policy.CriterionGroups {
			gids = append(gids, id)
		}
		sort.Strings(gids)
		for _, id := range gids {
			g := policy.CriterionGroups[id]
			members := append([]string{}, g.Criteria...)
			members = append(members, g.Subgroups...)
			fmt.Fprintf(&b, "- group %s (%s): %s\n", g.GroupID, g.Operator, strings.Join(members, ", "))
		}
	}

	if len(policy.Exclusions) > 0 {
		b.WriteString("\n## Exclusions\n")
		for _, e := range policy.Exclusions {
			fmt.Fprintf(&b, "- [%s] %s\n", e.ExclusionID, e.Description)
		}
	}

	if len(policy.StepTherapyRequirements) > 0 {
		b.WriteString("\n## Step Therapy Requirements\n")
		for _, st := range policy.StepTherapyRequirements {
			fmt.Fprintf(&b, "- [%s] %d trial(s)", st.RequirementID, st.MinTrials)
			if len(st.RequiredDrugs) > 0 {
				fmt.Fprintf(&b, " of: %s", strings.Join(st.RequiredDrugs, ", "))
			}
			if len(st.RequiredClasses) > 0 {
				fmt.Fprintf(&b, " from classes: %s", strings.Join(st.RequiredClasses, ", "))
			}
			if st.MinDurationDays > 0 {
				fmt.Fprintf(&b, ", minimum %d days each", st.MinDurationDays)
			}
			if st.IntoleranceSatisfies {
				b.WriteString(" (documented intolerance satisfies)")
			}
			b.WriteString("\n")
		}
	}

	if len(policy.Indications) > 0 {
		b.WriteString("\n## Covered Indications\n")
		for _, ind := range policy.Indications {
			fmt.Fprintf(&b, "- [%s] %s", ind.IndicationID, ind.Name)
			if len(ind.ICD10Codes) > 0 {
				fmt.Fprintf(&b, " (ICD-10: %s)", strings.Join(ind.ICD10Codes, ", "))
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

// jsonBlock marshals a value for embedding into a prompt. Marshal failures
// cannot happen for the domain structs involved, so the error is swallowed.
func jsonBlock(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
