package intelligence

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/priorauth-labs/caseflow/pkg/config"
	"github.com/priorauth-labs/caseflow/pkg/models"
)

// Compensating-factor significance floors.
const (
	compensationMinSupport = 2
	compensationMinUplift  = 0.20
	labBundleMinSupport    = 3
	labBundleMinDelta      = 0.15
)

// Lab-severity bundle thresholds.
const (
	labBundleCRP     = 20.0
	labBundleAlbumin = 3.0
	labBundleESR     = 40.0
)

// FactorRelationship declares which clinical factors can compensate for one
// missing documentation type.
type FactorRelationship struct {
	MissingDocumentation string   `json:"missing_documentation"`
	CompensatingFactors  []string `json:"compensating_factors"`
}

// DefaultFactorRelationships are the built-in relationships examined when no
// configured set is supplied.
var DefaultFactorRelationships = []FactorRelationship{
	{MissingDocumentation: "tb_screening", CompensatingFactors: []string{"severe", "high_crp", "fistula"}},
	{MissingDocumentation: "endoscopy_report", CompensatingFactors: []string{"severe", "high_cdai", "prior_biologic_failure"}},
	{MissingDocumentation: "step_therapy_documentation", CompensatingFactors: []string{"severe", "contraindication", "intolerance"}},
	{MissingDocumentation: "recent_labs", CompensatingFactors: []string{"high_crp", "low_albumin", "high_esr"}},
}

// AnalyzeCompensatingFactors searches the corpus for evidence that clinical
// factors offset a missing documentation type, then annotates each emitted
// pattern with the live case's position: does it miss the doc, and does it
// already carry compensation.
func AnalyzeCompensatingFactors(profile CaseProfile, corpus []models.HistoricalCase, aliases map[string][]string, relationships []FactorRelationship) []models.CompensatingFactorPattern {
	if len(relationships) == 0 {
		relationships = DefaultFactorRelationships
	}
	cohort := filterByMedication(corpus, profile.Medication, aliases)

	var patterns []models.CompensatingFactorPattern
	for _, rel := range relationships {
		if p, ok := compensationPattern(profile, cohort, rel); ok {
			patterns = append(patterns, p)
		}
	}
	if p, ok := labBundlePattern(profile, cohort); ok {
		patterns = append(patterns, p)
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		return math.Abs(patterns[i].ApprovalUplift) > math.Abs(patterns[j].ApprovalUplift)
	})
	return patterns
}

func compensationPattern(profile CaseProfile, cohort []models.HistoricalCase, rel FactorRelationship) (models.CompensatingFactorPattern, bool) {
	var withComp, withoutComp []models.HistoricalCase
	for _, h := range cohort {
		if hasDocumentation(h, rel.MissingDocumentation) {
			continue
		}
		if caseHasAnyFactor(h, rel.CompensatingFactors) {
			withComp = append(withComp, h)
		} else {
			withoutComp = append(withoutComp, h)
		}
	}
	if len(withComp) < compensationMinSupport || len(withoutComp) < compensationMinSupport {
		return models.CompensatingFactorPattern{}, false
	}

	rateWith := approvalRate(withComp)
	rateWithout := approvalRate(withoutComp)
	uplift := rateWith - rateWithout
	if uplift < compensationMinUplift {
		return models.CompensatingFactorPattern{}, false
	}

	p := models.CompensatingFactorPattern{
		MissingDocumentation: rel.MissingDocumentation,
		CompensatingFactors:  rel.CompensatingFactors,
		RateWithCompensation: rateWith,
		RateWithout:          rateWithout,
		ApprovalUplift:       uplift,
		SupportWith:          len(withComp),
		SupportWithout:       len(withoutComp),
		CaseMissingDoc:       profileMissingDoc(profile, rel.MissingDocumentation),
		CaseHasCompensation:  profileHasAnyFactor(profile, rel.CompensatingFactors),
	}
	p.Priority, p.Recommendation = annotate(p)
	return p, true
}

// labBundlePattern detects whether the objective lab triad (high CRP, low
// albumin, high ESR) lifts approval rates in the cohort.
func labBundlePattern(profile CaseProfile, cohort []models.HistoricalCase) (models.CompensatingFactorPattern, bool) {
	var withBundle, withoutBundle []models.HistoricalCase
	for _, h := range cohort {
		if hasLabBundle(h.Severity) {
			withBundle = append(withBundle, h)
		} else {
			withoutBundle = append(withoutBundle, h)
		}
	}
	if len(withBundle) < labBundleMinSupport || len(withoutBundle) < labBundleMinSupport {
		return models.CompensatingFactorPattern{}, false
	}

	rateWith := approvalRate(withBundle)
	rateWithout := approvalRate(withoutBundle)
	delta := rateWith - rateWithout
	if delta < labBundleMinDelta {
		return models.CompensatingFactorPattern{}, false
	}

	p := models.CompensatingFactorPattern{
		MissingDocumentation: "objective_severity_labs",
		CompensatingFactors:  []string{"crp_gt_20", "albumin_lt_3", "esr_gt_40"},
		RateWithCompensation: rateWith,
		RateWithout:          rateWithout,
		ApprovalUplift:       delta,
		SupportWith:          len(withBundle),
		SupportWithout:       len(withoutBundle),
		CaseHasCompensation:  hasLabBundle(profile.Severity),
	}
	p.Priority, p.Recommendation = annotate(p)
	return p, true
}

func annotate(p models.CompensatingFactorPattern) (priority, recommendation string) {
	switch {
	case p.CaseMissingDoc && !p.CaseHasCompensation:
		return string(models.PriorityHigh), fmt.Sprintf(
			"Case is missing %s without compensating factors; obtain it or document %s before submission (approval uplift %.0f%% in similar cases).",
			p.MissingDocumentation, strings.Join(p.CompensatingFactors, "/"), p.ApprovalUplift*100)
	case p.CaseMissingDoc && p.CaseHasCompensation:
		return string(models.PriorityMedium), fmt.Sprintf(
			"Case is missing %s but carries compensating factors; emphasize %s in the submission narrative.",
			p.MissingDocumentation, strings.Join(p.CompensatingFactors, "/"))
	default:
		return string(models.PriorityLow), fmt.Sprintf(
			"Documentation for %s is in order; no action needed.", p.MissingDocumentation)
	}
}

func hasLabBundle(s models.Severity) bool {
	return s.CRP != nil && *s.CRP > labBundleCRP &&
		s.Albumin != nil && *s.Albumin < labBundleAlbumin &&
		s.ESR != nil && *s.ESR > labBundleESR
}

// filterByMedication keeps corpus cases whose medication matches the
// profile's medication or any of its brand/generic aliases.
func filterByMedication(corpus []models.HistoricalCase, medication string, aliases map[string][]string) []models.HistoricalCase {
	names := config.AliasesFor(aliases, medication)
	var out []models.HistoricalCase
	for _, h := range corpus {
		for _, name := range names {
			if substringMatch(name, h.Medication) == 1.0 {
				out = append(out, h)
				break
			}
		}
	}
	return out
}

func hasDocumentation(h models.HistoricalCase, docType string) bool {
	needle := strings.ToLower(docType)
	for _, d := range h.DocumentationPresent {
		if strings.Contains(strings.ToLower(d), needle) {
			return true
		}
	}
	return false
}

// caseHasAnyFactor checks a corpus record for a compensating factor in its
// documentation list, severity classification, or recognized lab flags.
func caseHasAnyFactor(h models.HistoricalCase, factors []string) bool {
	for _, f := range factors {
		if hasFactor(h.DocumentationPresent, h.Severity, f) {
			return true
		}
	}
	return false
}

func profileHasAnyFactor(p CaseProfile, factors []string) bool {
	for _, f := range factors {
		if hasFactor(p.DocumentationPresent, p.Severity, f) {
			return true
		}
	}
	return false
}

func profileMissingDoc(p CaseProfile, docType string) bool {
	needle := strings.ToLower(docType)
	for _, d := range p.DocumentationMissing {
		if strings.Contains(strings.ToLower(d), needle) {
			return true
		}
	}
	for _, d := range p.DocumentationPresent {
		if strings.Contains(strings.ToLower(d), needle) {
			return false
		}
	}
	return true
}

func hasFactor(docs []string, severity models.Severity, factor string) bool {
	f := strings.ToLower(strings.TrimSpace(factor))
	for _, d := range docs {
		if strings.Contains(strings.ToLower(d), f) {
			return true
		}
	}
	if strings.Contains(strings.ToLower(severity.Classification), f) {
		return true
	}
	switch f {
	case "high_crp":
		return severity.CRP != nil && *severity.CRP > labBundleCRP
	case "low_albumin":
		return severity.Albumin != nil && *severity.Albumin < labBundleAlbumin
	case "high_esr":
		return severity.ESR != nil && *severity.ESR > labBundleESR
	case "high_cdai":
		return severity.CDAIScore != nil && *severity.CDAIScore > 300
	}
	return false
}
