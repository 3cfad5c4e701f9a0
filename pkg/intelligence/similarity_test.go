package intelligence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

func fptr(v float64) *float64 { return &v }

func crohnsProfile() CaseProfile {
	return CaseProfile{
		Medication:      "Infliximab",
		ICD10Code:       "K50.00",
		Payer:           "Anthem",
		Severity:        models.Severity{Classification: "moderate_to_severe"},
		PriorTreatments: []string{"azathioprine", "prednisone"},
	}
}

func TestSimilarityScoreIdenticalCase(t *testing.T) {
	h := models.HistoricalCase{
		Medication:      "infliximab",
		DiagnosisCode:   "K50.00",
		Payer:           "anthem",
		Severity:        models.Severity{Classification: "moderate_to_severe"},
		PriorTreatments: []string{"Azathioprine", "Prednisone"},
	}
	total, components := SimilarityScore(crohnsProfile(), h)
	assert.InDelta(t, 1.0, total, 1e-9)
	for name, v := range components {
		assert.InDelta(t, 1.0, v, 1e-9, name)
	}
}

func TestSimilarityMedicationSubstring(t *testing.T) {
	h := models.HistoricalCase{Medication: "infliximab (Remicade)"}
	_, components := SimilarityScore(crohnsProfile(), h)
	assert.Equal(t, 1.0, components["medication"])
}

func TestSimilarityDiagnosisFamilies(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"K50.00", "K50.10", 1.0}, // same family
		{"K50.00", "K51.90", 0.7}, // same chapter
		{"K50.00", "M05.79", 0},   // unrelated
		{"K5", "K50.00", 0},       // too short to compare
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, diagnosisSimilarity(tc.a, tc.b), "%s vs %s", tc.a, tc.b)
	}
}

func TestSeveritySimilarityNeutralWithoutSignals(t *testing.T) {
	got := severitySimilarity(models.Severity{}, models.Severity{Classification: "severe"})
	assert.Equal(t, 0.5, got)
}

func TestSeveritySimilarityBucketDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"severe", "severe", 1.0},
		{"moderate_to_severe", "severe", 0.7},
		{"moderate", "severe", 0.4},
		{"mild", "severe", 0},
		{"Moderate to Severe", "moderate_to_severe", 1.0}, // spacing normalized
	}
	for _, tc := range cases {
		a := models.Severity{Classification: tc.a}
		b := models.Severity{Classification: tc.b}
		assert.Equal(t, tc.want, severitySimilarity(a, b), "%s vs %s", tc.a, tc.b)
	}
}

func TestSeveritySimilarityAveragesNumericScores(t *testing.T) {
	a := models.Severity{CDAIScore: fptr(300)}
	b := models.Severity{CDAIScore: fptr(330)}
	// 10% difference within the gentle band.
	assert.InDelta(t, 0.9090909, severitySimilarity(a, b), 1e-6)

	far := models.Severity{CDAIScore: fptr(100)}
	assert.InDelta(t, 0, severitySimilarity(a, far), 1e-9)
}

func TestJaccardPriorTreatments(t *testing.T) {
	assert.Equal(t, 1.0, jaccard(nil, nil))
	assert.Equal(t, 0.0, jaccard([]string{"a"}, nil))
	assert.InDelta(t, 1.0/3.0, jaccard([]string{"a", "b"}, []string{"b", "c"}), 1e-9)
	assert.Equal(t, 1.0, jaccard([]string{"Azathioprine"}, []string{"azathioprine"}))
}

func TestFindSimilarThresholdAndCap(t *testing.T) {
	profile := crohnsProfile()
	exact := models.HistoricalCase{
		CaseRef: "exact", Medication: "infliximab", DiagnosisCode: "K50.00",
		Payer: "anthem", Severity: models.Severity{Classification: "moderate_to_severe"},
		PriorTreatments: []string{"azathioprine", "prednisone"},
	}
	near := exact
	near.CaseRef = "near"
	near.Payer = "cigna"
	unrelated := models.HistoricalCase{
		CaseRef: "unrelated", Medication: "adalimumab", DiagnosisCode: "M05.79", Payer: "cigna",
	}

	results := FindSimilar(profile, []models.HistoricalCase{unrelated, near, exact}, 0.5, 20)
	require.Len(t, results, 2)
	assert.Equal(t, "exact", results[0].Case.CaseRef)
	assert.Equal(t, "near", results[1].Case.CaseRef)

	capped := FindSimilar(profile, []models.HistoricalCase{unrelated, near, exact}, 0.5, 1)
	require.Len(t, capped, 1)
	assert.Equal(t, "exact", capped[0].Case.CaseRef)
}
