// Package intelligence mines a historical-case corpus for signals relevant
// to the case at hand: weighted similarity search, outcome pattern
// analytics, compensating-factor detection, and LLM synthesis of the final
// insights payload, cached by cohort key.
package intelligence

import (
	"math"
	"sort"
	"strings"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

// Similarity component weights. They sum to 1.0.
const (
	weightMedication = 0.30
	weightDiagnosis  = 0.25
	weightPayer      = 0.20
	weightSeverity   = 0.15
	weightPriorTx    = 0.10
)

// CaseProfile is the slice of a live case that similarity and
// compensating-factor analysis operate on.
type CaseProfile struct {
	Medication           string
	ICD10Code            string
	Payer                string
	Severity             models.Severity
	PriorTreatments      []string
	DocumentationPresent []string
	DocumentationMissing []string
}

// FindSimilar scores the corpus against the profile and returns cases above
// the threshold, sorted by score descending, capped at maxResults.
func FindSimilar(profile CaseProfile, corpus []models.HistoricalCase, threshold float64, maxResults int) []models.SimilarCase {
	var results []models.SimilarCase
	for _, h := range corpus {
		score, components := SimilarityScore(profile, h)
		if score >= threshold {
			results = append(results, models.SimilarCase{Case: h, Score: score, Components: components})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

// SimilarityScore computes the weighted similarity between a live case and
// one corpus record, returning the total and the per-component breakdown.
func SimilarityScore(profile CaseProfile, h models.HistoricalCase) (float64, map[string]float64) {
	components := map[string]float64{
		"medication":       substringMatch(profile.Medication, h.Medication),
		"diagnosis_family": diagnosisSimilarity(profile.ICD10Code, h.DiagnosisCode),
		"payer":            substringMatch(profile.Payer, h.Payer),
		"disease_severity": severitySimilarity(profile.Severity, h.Severity),
		"prior_treatments": jaccard(profile.PriorTreatments, h.PriorTreatments),
	}
	total := weightMedication*components["medication"] +
		weightDiagnosis*components["diagnosis_family"] +
		weightPayer*components["payer"] +
		weightSeverity*components["disease_severity"] +
		weightPriorTx*components["prior_treatments"]
	return total, components
}

// substringMatch is 1.0 when either name contains the other,
// case-insensitive, else 0.
func substringMatch(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 1.0
	}
	return 0
}

// diagnosisSimilarity compares ICD-10 codes by family: exact first-3-char
// match scores 1.0, same 2-char chapter scores 0.7.
func diagnosisSimilarity(a, b string) float64 {
	a = strings.ToUpper(strings.TrimSpace(a))
	b = strings.ToUpper(strings.TrimSpace(b))
	if len(a) >= 3 && len(b) >= 3 && a[:3] == b[:3] {
		return 1.0
	}
	if len(a) >= 2 && len(b) >= 2 && a[:2] == b[:2] {
		return 0.7
	}
	return 0
}

// severityBuckets orders classifications for adjacency scoring.
var severityBuckets = map[string]int{
	"mild":               0,
	"moderate":           1,
	"moderate_to_severe": 2,
	"severe":             3,
}

// severitySimilarity averages the available signals: classification bucket
// distance plus numeric CDAI/HBI closeness. With no comparable signal it
// returns a neutral 0.5.
func severitySimilarity(a, b models.Severity) float64 {
	var parts []float64

	if a.Classification != "" && b.Classification != "" {
		parts = append(parts, classificationSimilarity(a.Classification, b.Classification))
	}
	if a.CDAIScore != nil && b.CDAIScore != nil {
		parts = append(parts, numericSimilarity(*a.CDAIScore, *b.CDAIScore))
	}
	if a.HBIScore != nil && b.HBIScore != nil {
		parts = append(parts, numericSimilarity(*a.HBIScore, *b.HBIScore))
	}
	if len(parts) == 0 {
		return 0.5
	}
	sum := 0.0
	for _, p := range parts {
		sum += p
	}
	return sum / float64(len(parts))
}

func classificationSimilarity(a, b string) float64 {
	ai, aok := severityBuckets[normalizeSeverity(a)]
	bi, bok := severityBuckets[normalizeSeverity(b)]
	if !aok || !bok {
		if normalizeSeverity(a) == normalizeSeverity(b) {
			return 1.0
		}
		return 0
	}
	switch abs(ai - bi) {
	case 0:
		return 1.0
	case 1:
		return 0.7
	case 2:
		return 0.4
	default:
		return 0
	}
}

// numericSimilarity compares scores by percent difference relative to the
// larger value. Close scores degrade gently, distant ones steeply.
func numericSimilarity(a, b float64) float64 {
	larger := math.Max(math.Abs(a), math.Abs(b))
	if larger == 0 {
		return 1.0
	}
	diffPct := math.Abs(a-b) / larger
	if diffPct <= 0.20 {
		return 1 - diffPct
	}
	return math.Max(0, 1-2*diffPct)
}

// jaccard on lowercased name sets. Two empty sets are identical.
func jaccard(a, b []string) float64 {
	setA := lowerSet(a)
	setB := lowerSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	intersection := 0
	for v := range setA {
		if setB[v] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func lowerSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = true
		}
	}
	return set
}

func normalizeSeverity(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
