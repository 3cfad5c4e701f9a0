package intelligence

import (
	"math"
	"sort"
	"time"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

// Support and significance floors for cohort analytics.
const (
	docImpactMinSupport = 3
	docImpactMinDelta   = 0.1
	timingMinBucket     = 3
)

// AnalyzePatterns computes outcome analytics over a similar-case cohort:
// outcome rates, decision latency, documentation-impact deltas, and
// day-of-week timing patterns.
func AnalyzePatterns(similar []models.SimilarCase) models.PatternAnalysis {
	analysis := models.PatternAnalysis{CohortSize: len(similar)}
	if len(similar) == 0 {
		return analysis
	}

	cohort := make([]models.HistoricalCase, len(similar))
	for i, s := range similar {
		cohort[i] = s.Case
	}

	approved, denied, info := 0, 0, 0
	daysSum, daysCount := 0, 0
	for _, h := range cohort {
		switch h.Outcome {
		case models.OutcomeApproved:
			approved++
		case models.OutcomeDenied:
			denied++
		case models.OutcomeInfoRequest:
			info++
		}
		if h.DaysToDecision > 0 {
			daysSum += h.DaysToDecision
			daysCount++
		}
	}
	n := float64(len(cohort))
	analysis.ApprovalRate = float64(approved) / n
	analysis.DenialRate = float64(denied) / n
	analysis.InfoRequestRate = float64(info) / n
	if daysCount > 0 {
		analysis.AvgDaysToDecision = float64(daysSum) / float64(daysCount)
	}

	analysis.DocumentationImpacts = documentationImpacts(cohort)
	analysis.TimingPatterns = timingPatterns(cohort)
	return analysis
}

// documentationImpacts measures, per documentation type seen in the cohort,
// the approval-rate delta between cases that had it and cases that did not.
// Only patterns with enough support on both sides and a meaningful delta
// survive.
func documentationImpacts(cohort []models.HistoricalCase) []models.DocumentationImpact {
	types := make(map[string]bool)
	for _, h := range cohort {
		for _, d := range h.DocumentationPresent {
			types[d] = true
		}
	}

	var impacts []models.DocumentationImpact
	for docType := range types {
		var with, without []models.HistoricalCase
		for _, h := range cohort {
			if containsDoc(h.DocumentationPresent, docType) {
				with = append(with, h)
			} else {
				without = append(without, h)
			}
		}
		if len(with) < docImpactMinSupport || len(without) < docImpactMinSupport {
			continue
		}
		rateWith := approvalRate(with)
		rateWithout := approvalRate(without)
		delta := rateWith - rateWithout
		if math.Abs(delta) <= docImpactMinDelta {
			continue
		}
		impacts = append(impacts, models.DocumentationImpact{
			DocumentationType: docType,
			RateWith:          rateWith,
			RateWithout:       rateWithout,
			Delta:             delta,
			SupportWith:       len(with),
			SupportWithout:    len(without),
		})
	}
	sort.SliceStable(impacts, func(i, j int) bool {
		return math.Abs(impacts[i].Delta) > math.Abs(impacts[j].Delta)
	})
	return impacts
}

// timingPatterns buckets approval rates by submission day-of-week.
func timingPatterns(cohort []models.HistoricalCase) []models.TimingPattern {
	buckets := make(map[string][]models.HistoricalCase)
	for _, h := range cohort {
		if h.SubmissionDate == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", h.SubmissionDate)
		if err != nil {
			continue
		}
		day := t.Weekday().String()
		buckets[day] = append(buckets[day], h)
	}

	var patterns []models.TimingPattern
	for day, cases := range buckets {
		if len(cases) < timingMinBucket {
			continue
		}
		patterns = append(patterns, models.TimingPattern{
			DayOfWeek:    day,
			ApprovalRate: approvalRate(cases),
			CaseCount:    len(cases),
		})
	}
	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].ApprovalRate > patterns[j].ApprovalRate
	})
	return patterns
}

func approvalRate(cases []models.HistoricalCase) float64 {
	if len(cases) == 0 {
		return 0
	}
	approved := 0
	for _, h := range cases {
		if h.Outcome == models.OutcomeApproved {
			approved++
		}
	}
	return float64(approved) / float64(len(cases))
}

func containsDoc(docs []string, docType string) bool {
	for _, d := range docs {
		if d == docType {
			return true
		}
	}
	return false
}
