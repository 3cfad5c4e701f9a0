// Package strategy generates candidate submission strategies and scores
// them deterministically. No LLM is involved; scoring is a pure function of
// the strategy template, the coverage assessments, and the configured
// weights.
package strategy

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

// ErrEmptyPayerList is returned when strategy generation receives a case
// with no payers.
var ErrEmptyPayerList = errors.New("no payers to generate strategies for")

// Template base scores for the sequential primary-first shape. Rework risk
// and patient burden are stored as risk/burden (higher is worse) and
// inverted at scoring time.
const (
	baseSpeedScore         = 6.0
	baseApprovalScore      = 7.0
	baseReworkRiskScore    = 3.0
	basePatientBurdenScore = 3.0
)

// Step duration estimates in days.
const (
	submitDays      = 1
	checkStatusDays = 14
	coordinateDays  = 7
)

// Generate builds the candidate strategies for a payer ordering. Only the
// sequential primary-first template exists; parallel submission is never
// produced.
func Generate(payers []string) ([]models.Strategy, error) {
	if len(payers) == 0 {
		return nil, ErrEmptyPayerList
	}

	s := models.Strategy{
		StrategyID:         uuid.NewString(),
		StrategyType:       models.StrategySequentialPrimaryFirst,
		Name:               "Sequential submission, primary payer first",
		Description:        fmt.Sprintf("Submit to %s first and hold downstream payers until its determination lands.", payers[0]),
		PayerSequence:      append([]string{}, payers...),
		ParallelSubmission: false,

		BaseSpeedScore:         baseSpeedScore,
		BaseApprovalScore:      baseApprovalScore,
		BaseReworkRiskScore:    baseReworkRiskScore,
		BasePatientBurdenScore: basePatientBurdenScore,

		Rationale: "Primary determination gates all downstream work, so nothing is submitted on assumptions that a denial would invalidate.",
		RiskFactors: []string{
			"total turnaround is the sum of per-payer turnarounds",
		},
		Mitigations: []string{
			"status checks are scheduled immediately after each submission",
		},
		Steps: buildSteps(payers),
	}
	return []models.Strategy{s}, nil
}

// buildSteps expands the template's placeholder slots with real payer
// names. Dependencies are step-number based: each payer's chain depends on
// the prior payer's final step.
func buildSteps(payers []string) []models.StrategyStep {
	var steps []models.StrategyStep
	next := 1
	prevFinal := 0

	for i, payer := range payers {
		submit := models.StrategyStep{
			StepNumber:       next,
			ActionType:       "submit_pa",
			TargetPayer:      payer,
			Description:      fmt.Sprintf("Submit prior authorization request to %s", payer),
			EstimatedDays:    submitDays,
			SuccessCriterion: "submission acknowledged with reference number",
		}
		if prevFinal > 0 {
			submit.DependsOn = []int{prevFinal}
		}
		next++

		check := models.StrategyStep{
			StepNumber:       next,
			ActionType:       "check_status",
			TargetPayer:      payer,
			Description:      fmt.Sprintf("Poll %s for a determination", payer),
			DependsOn:        []int{submit.StepNumber},
			EstimatedDays:    checkStatusDays,
			SuccessCriterion: "payer determination received",
		}
		next++

		steps = append(steps, submit, check)
		prevFinal = check.StepNumber

		if i > 0 {
			coordinate := models.StrategyStep{
				StepNumber:       next,
				ActionType:       "coordinate_benefits",
				TargetPayer:      payer,
				Description:      fmt.Sprintf("Coordinate benefits between %s and %s", payers[0], payer),
				DependsOn:        []int{check.StepNumber},
				EstimatedDays:    coordinateDays,
				SuccessCriterion: "coordination of benefits confirmed",
			}
			next++
			steps = append(steps, coordinate)
			prevFinal = coordinate.StepNumber
		}
	}
	return steps
}
