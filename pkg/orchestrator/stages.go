package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/priorauth-labs/caseflow/pkg/audit"
	"github.com/priorauth-labs/caseflow/pkg/events"
	"github.com/priorauth-labs/caseflow/pkg/intelligence"
	"github.com/priorauth-labs/caseflow/pkg/models"
	"github.com/priorauth-labs/caseflow/pkg/policy"
	"github.com/priorauth-labs/caseflow/pkg/strategy"
)

// handleIntake finalizes intake and moves the case into policy analysis.
func (o *Orchestrator) handleIntake(ctx context.Context, c *models.Case) (*models.Case, error) {
	if len(c.Payers()) == 0 {
		return o.failStage(ctx, c, models.StageIntake, strategy.ErrEmptyPayerList)
	}
	updated, err := o.store.Update(ctx, c.CaseID, 0, func(cc *models.Case) error {
		cc.Stage = models.StagePolicyAnalysis
		return nil
	}, "intake complete", "system")
	if err != nil {
		return nil, err
	}
	o.logAudit(ctx, audit.Entry{
		CaseID:       c.CaseID,
		EventType:    "intake_completed",
		DecisionMade: "case advanced to policy analysis",
		Stage:        models.StageIntake,
	})
	return updated, nil
}

// handlePolicyAnalysis assesses coverage per payer, primary first. A primary
// failure is critical and fails the stage; secondary failures are logged and
// skipped.
func (o *Orchestrator) handlePolicyAnalysis(ctx context.Context, c *models.Case, emit func(any)) (*models.Case, error) {
	emitAll := func(e any) {
		o.publishCase(c.CaseID, e)
		if emit != nil {
			emit(e)
		}
	}

	payers := c.Payers()
	emitAll(events.NewProgress("loading coverage policies", 5))

	assessments := make(map[string]*models.CoverageAssessment, len(payers))
	var gaps []models.DocumentationGap
	for i, payer := range payers {
		percent := 10 + 80*i/len(payers)
		emitAll(events.NewPayerStart(payer, percent))

		req := policy.AssessmentRequest{
			CaseID:     c.CaseID,
			PayerName:  payer,
			Patient:    c.Patient,
			Medication: c.Medication,
		}
		assessment, err := o.assessor.AssessCoverage(ctx, req)
		if err != nil {
			if i == 0 {
				return o.failStage(ctx, c, models.StagePolicyAnalysis,
					fmt.Errorf("primary payer %s assessment failed: %w", payer, err))
			}
			slog.Warn("Secondary payer assessment failed, continuing",
				"case_id", c.CaseID, "payer", payer, "error", err)
			continue
		}
		if o.refiner != nil {
			assessment = o.refiner.Refine(ctx, req, assessment)
		}
		assessments[payer] = assessment
		gaps = append(gaps, assessment.DocumentationGaps...)
		emitAll(events.NewPayerComplete(assessment, 10+80*(i+1)/len(payers)))
	}

	primary := assessments[payers[0]]
	recommendation := recommendationText(primary)

	updated, err := o.store.Update(ctx, c.CaseID, 0, func(cc *models.Case) error {
		cc.CoverageAssessments = assessments
		cc.DocumentationGaps = gaps
		cc.AIRecommendation = recommendation
		cc.Stage = models.StageCohortAnalysis
		return nil
	}, "policy analysis complete", "system")
	if err != nil {
		return nil, err
	}

	o.logAudit(ctx, audit.Entry{
		CaseID:       c.CaseID,
		EventType:    "policy_analysis_completed",
		DecisionMade: string(primary.CoverageStatus),
		Reasoning:    primary.Reasoning,
		Stage:        models.StagePolicyAnalysis,
		InputData: map[string]any{
			"payers_assessed":     len(assessments),
			"approval_likelihood": primary.ApprovalLikelihood,
			"criteria_met":        primary.CriteriaMetCount,
			"criteria_total":      primary.CriteriaTotalCount,
		},
	})

	if o.waypoints != nil {
		if _, werr := o.waypoints.WriteAssessment(updated); werr != nil {
			slog.Warn("Failed to write assessment waypoint", "case_id", c.CaseID, "error", werr)
		}
	}

	emitAll(events.StageComplete{
		Event:             events.TypeStageComplete,
		Stage:             models.StagePolicyAnalysis,
		Reasoning:         primary.Reasoning,
		Confidence:        primary.ApprovalLikelihood,
		Recommendations:   primary.Recommendations,
		Assessments:       assessments,
		DocumentationGaps: gaps,
		Percent:           100,
	})
	return updated, nil
}

// handleCohortAnalysis runs strategic intelligence over the historical
// corpus. Intelligence failures are non-critical; the case proceeds without
// insights.
func (o *Orchestrator) handleCohortAnalysis(ctx context.Context, c *models.Case) (*models.Case, error) {
	var insights *models.StrategicInsights
	if o.insights != nil {
		var err error
		insights, err = o.insights.Insights(ctx, c.CaseID, profileFromCase(c))
		if err != nil {
			slog.Warn("Strategic intelligence unavailable, continuing without insights",
				"case_id", c.CaseID, "error", err)
			insights = nil
		}
	}

	updated, err := o.store.Update(ctx, c.CaseID, 0, func(cc *models.Case) error {
		if insights != nil {
			if cc.Metadata == nil {
				cc.Metadata = make(map[string]any)
			}
			cc.Metadata["strategic_insights"] = insights
		}
		cc.Stage = models.StageAIRecommendation
		return nil
	}, "cohort analysis complete", "system")
	if err != nil {
		return nil, err
	}

	decision := "no cohort insights available"
	if insights != nil {
		decision = fmt.Sprintf("cohort of %d similar cases analyzed (confidence %s)",
			insights.Patterns.CohortSize, insights.ConfidenceTier)
	}
	o.logAudit(ctx, audit.Entry{
		CaseID:       c.CaseID,
		EventType:    "cohort_analysis_completed",
		DecisionMade: decision,
		Stage:        models.StageCohortAnalysis,
	})
	return updated, nil
}

// handleRecommendation evaluates the human-decision gate. Any payer with an
// unresolved status or a weak likelihood parks the case for human review.
func (o *Orchestrator) handleRecommendation(ctx context.Context, c *models.Case) (*models.Case, error) {
	required, reason := requiresHumanDecision(c.CoverageAssessments)
	next := models.StageStrategyGeneration
	if required {
		next = models.StageAwaitingHumanDecision
	}

	updated, err := o.store.Update(ctx, c.CaseID, 0, func(cc *models.Case) error {
		cc.RequiresHumanDecision = required
		cc.HumanDecisionReason = reason
		cc.Stage = next
		return nil
	}, "recommendation gate evaluated", "system")
	if err != nil {
		return nil, err
	}

	decision := "proceed to strategy generation"
	if required {
		decision = "human review required"
	}
	o.logAudit(ctx, audit.Entry{
		CaseID:       c.CaseID,
		EventType:    "recommendation_gate_evaluated",
		DecisionMade: decision,
		Reasoning:    reason,
		Stage:        models.StageAIRecommendation,
	})
	if required {
		o.publishSystem(map[string]any{
			"event":   "human_decision_required",
			"case_id": c.CaseID,
			"reason":  reason,
		})
	}
	return updated, nil
}

// requiresHumanDecision applies the gate predicate across all assessments.
func requiresHumanDecision(assessments map[string]*models.CoverageAssessment) (bool, string) {
	var reasons []string
	for _, a := range assessments {
		switch a.CoverageStatus {
		case models.StatusNotCovered, models.StatusRequiresHumanReview, models.StatusUnknown:
			reasons = append(reasons, fmt.Sprintf("%s: coverage status %s", a.PayerName, a.CoverageStatus))
			continue
		}
		if a.ApprovalLikelihood < 0.5 {
			reasons = append(reasons, fmt.Sprintf("%s: approval likelihood %.2f below 0.5", a.PayerName, a.ApprovalLikelihood))
		}
	}
	if len(reasons) == 0 {
		return false, ""
	}
	return true, strings.Join(reasons, "; ")
}

// handleStrategyGeneration produces the candidate strategies and their
// deterministic scores.
func (o *Orchestrator) handleStrategyGeneration(ctx context.Context, c *models.Case) (*models.Case, error) {
	strategies, err := strategy.Generate(c.Payers())
	if err != nil {
		return o.failStage(ctx, c, models.StageStrategyGeneration, err)
	}
	scores := strategy.Rank(strategies, c.CoverageAssessments, o.weights)

	updated, err := o.store.Update(ctx, c.CaseID, 0, func(cc *models.Case) error {
		cc.AvailableStrategies = strategies
		if cc.Metadata == nil {
			cc.Metadata = make(map[string]any)
		}
		cc.Metadata["strategy_scores"] = scores
		cc.Stage = models.StageStrategySelection
		return nil
	}, "strategies generated", "system")
	if err != nil {
		return nil, err
	}

	o.logAudit(ctx, audit.Entry{
		CaseID:       c.CaseID,
		EventType:    "strategies_generated",
		DecisionMade: fmt.Sprintf("%d candidate strategies scored", len(strategies)),
		Stage:        models.StageStrategyGeneration,
		InputData:    map[string]any{"top_score": scores[0].TotalScore},
	})
	return updated, nil
}

// handleStrategySelection selects the top-ranked strategy and records the
// synthesized rationale.
func (o *Orchestrator) handleStrategySelection(ctx context.Context, c *models.Case) (*models.Case, error) {
	scores := strategy.Rank(c.AvailableStrategies, c.CoverageAssessments, o.weights)
	if len(scores) == 0 {
		return o.failStage(ctx, c, models.StageStrategySelection, strategy.ErrEmptyPayerList)
	}
	var selected models.Strategy
	for _, s := range c.AvailableStrategies {
		if s.StrategyID == scores[0].StrategyID {
			selected = s
			break
		}
	}
	rationale := strategy.Rationale(selected, scores[0])

	updated, err := o.store.Update(ctx, c.CaseID, 0, func(cc *models.Case) error {
		cc.SelectedStrategyID = selected.StrategyID
		cc.StrategyRationale = rationale
		cc.Stage = models.StageActionCoordination
		return nil
	}, "strategy selected", "system")
	if err != nil {
		return nil, err
	}

	o.logAudit(ctx, audit.Entry{
		CaseID:       c.CaseID,
		EventType:    "strategy_selected",
		DecisionMade: selected.Name,
		Reasoning:    rationale,
		Stage:        models.StageStrategySelection,
		Alternatives: strategyNames(c.AvailableStrategies),
	})
	return updated, nil
}

// handleActionCoordination schedules the selected strategy's steps and
// submits to the first payer in the sequence.
func (o *Orchestrator) handleActionCoordination(ctx context.Context, c *models.Case) (*models.Case, error) {
	selected := selectedStrategy(c)
	if selected == nil {
		return o.failStage(ctx, c, models.StageActionCoordination,
			fmt.Errorf("%w: no strategy selected", ErrInvalidStage))
	}
	firstPayer := selected.PayerSequence[0]

	reference, err := o.payers.Submit(ctx, c, firstPayer)
	if err != nil {
		return o.failStage(ctx, c, models.StageActionCoordination,
			fmt.Errorf("submit to %s: %w", firstPayer, err))
	}
	now := time.Now().UTC()

	updated, err := o.store.Update(ctx, c.CaseID, 0, func(cc *models.Case) error {
		cc.PendingActions = pendingActions(selected, firstPayer)
		cc.CompletedActions = append(cc.CompletedActions, models.CaseAction{
			ActionID:    uuid.NewString(),
			ActionType:  "submit_pa",
			TargetPayer: firstPayer,
			Description: fmt.Sprintf("Prior authorization submitted to %s", firstPayer),
			CompletedAt: &now,
			Result:      "reference " + reference,
		})
		if state := cc.PayerStates[firstPayer]; state != nil {
			state.Status = models.PayerSubmitted
			state.ReferenceNumber = reference
			state.SubmittedAt = &now
		}
		if cc.Metadata == nil {
			cc.Metadata = make(map[string]any)
		}
		cc.Metadata["monitoring_iterations"] = 0
		cc.Metadata["stale_iterations"] = 0
		cc.Stage = models.StageMonitoring
		return nil
	}, "actions coordinated, submission sent", "system")
	if err != nil {
		return nil, err
	}

	o.logAudit(ctx, audit.Entry{
		CaseID:       c.CaseID,
		EventType:    "submission_sent",
		DecisionMade: fmt.Sprintf("submitted to %s (reference %s)", firstPayer, reference),
		Stage:        models.StageActionCoordination,
	})
	return updated, nil
}

// handleMonitoring runs one polling pass. Staleness across passes and a
// hard iteration cap both force completion so monitoring is always bounded.
func (o *Orchestrator) handleMonitoring(ctx context.Context, c *models.Case) (*models.Case, error) {
	before := statusSnapshot(c)

	type pollResult struct {
		status  models.PayerStatus
		details string
	}
	polled := make(map[string]pollResult)
	for payer, state := range c.PayerStates {
		if !state.Status.IsActive() {
			continue
		}
		status, details, err := o.payers.CheckStatus(ctx, c, payer)
		if err != nil {
			slog.Warn("Payer status check failed", "case_id", c.CaseID, "payer", payer, "error", err)
			continue
		}
		polled[payer] = pollResult{status: status, details: details}
	}

	iterations := metaInt(c, "monitoring_iterations") + 1
	stale := metaInt(c, "stale_iterations")

	updated, err := o.store.Update(ctx, c.CaseID, 0, func(cc *models.Case) error {
		now := time.Now().UTC()
		for payer, res := range polled {
			state := cc.PayerStates[payer]
			if state == nil {
				continue
			}
			state.Status = res.status
			state.ResponseDetails = res.details
			switch res.status {
			case models.PayerApproved, models.PayerDenied,
				models.PayerAppealApproved, models.PayerAppealDenied:
				state.RespondedAt = &now
				if res.status == models.PayerDenied {
					state.DenialReason = res.details
					deadline := now.Add(30 * 24 * time.Hour)
					state.AppealDeadline = &deadline
				}
			}
		}

		if statusSnapshot(cc) == before {
			stale++
		} else {
			stale = 0
		}
		if cc.Metadata == nil {
			cc.Metadata = make(map[string]any)
		}
		cc.Metadata["monitoring_iterations"] = iterations
		cc.Metadata["stale_iterations"] = stale

		next, outcome := monitoringOutcome(cc, stale, iterations, o.monitoring.StaleThreshold, o.monitoring.MaxIterations)
		cc.Stage = next
		cc.Metadata["monitoring_outcome"] = outcome
		return nil
	}, fmt.Sprintf("monitoring pass %d", iterations), "system")
	if err != nil {
		return nil, err
	}

	outcome, _ := updated.Metadata["monitoring_outcome"].(string)
	o.logAudit(ctx, audit.Entry{
		CaseID:       c.CaseID,
		EventType:    "monitoring_pass",
		DecisionMade: outcome,
		Stage:        models.StageMonitoring,
		InputData: map[string]any{
			"iteration":        iterations,
			"stale_iterations": stale,
		},
	})

	if updated.Stage.IsTerminal() {
		o.recordOutcomes(ctx, updated)
		if o.waypoints != nil && outcome != "" {
			if _, werr := o.waypoints.WriteDecision(updated, outcome, nil); werr != nil {
				slog.Warn("Failed to write decision waypoint", "case_id", c.CaseID, "error", werr)
			}
		}
		o.publishCase(c.CaseID, events.NewDone())
	}
	return updated, nil
}

// monitoringOutcome decides where a monitoring pass leaves the case.
func monitoringOutcome(c *models.Case, stale, iterations, staleThreshold, maxIterations int) (models.CaseStage, string) {
	allApproved := true
	anyAppealable := false
	primaryFinalDenial := false
	primary := c.Patient.PrimaryPayer

	for payer, state := range c.PayerStates {
		switch state.Status {
		case models.PayerApproved, models.PayerAppealApproved:
			continue
		case models.PayerDenied:
			allApproved = false
			anyAppealable = true
		case models.PayerAppealDenied:
			allApproved = false
			if payer == primary {
				primaryFinalDenial = true
			}
		default:
			allApproved = false
		}
	}

	switch {
	case allApproved:
		return models.StageCompleted, waypointOutcomeApproved
	case anyAppealable:
		return models.StageRecovery, "denied, appeal available"
	case primaryFinalDenial:
		return models.StageFailed, waypointOutcomeDenied
	case stale >= staleThreshold:
		return models.StageCompleted, "awaiting payer determinations"
	case iterations >= maxIterations:
		return models.StageCompleted, "monitoring window exhausted"
	default:
		return models.StageMonitoring, "pending"
	}
}

// handleRecovery files appeals for denied payers and returns to monitoring.
func (o *Orchestrator) handleRecovery(ctx context.Context, c *models.Case) (*models.Case, error) {
	type appeal struct {
		payer     string
		reference string
	}
	var appeals []appeal
	for payer, state := range c.PayerStates {
		if state.Status != models.PayerDenied {
			continue
		}
		reference, err := o.payers.SubmitAppeal(ctx, c, payer)
		if err != nil {
			slog.Warn("Appeal submission failed", "case_id", c.CaseID, "payer", payer, "error", err)
			continue
		}
		appeals = append(appeals, appeal{payer: payer, reference: reference})
	}

	updated, err := o.store.Update(ctx, c.CaseID, 0, func(cc *models.Case) error {
		now := time.Now().UTC()
		for _, a := range appeals {
			if state := cc.PayerStates[a.payer]; state != nil {
				state.Status = models.PayerAppealSubmitted
			}
			cc.CompletedActions = append(cc.CompletedActions, models.CaseAction{
				ActionID:    uuid.NewString(),
				ActionType:  "submit_appeal",
				TargetPayer: a.payer,
				Description: fmt.Sprintf("Appeal submitted to %s", a.payer),
				CompletedAt: &now,
				Result:      "reference " + a.reference,
			})
		}
		cc.Stage = models.StageMonitoring
		return nil
	}, "appeals submitted", "system")
	if err != nil {
		return nil, err
	}

	o.logAudit(ctx, audit.Entry{
		CaseID:       c.CaseID,
		EventType:    "recovery_executed",
		DecisionMade: fmt.Sprintf("%d appeal(s) submitted", len(appeals)),
		Stage:        models.StageRecovery,
	})
	return updated, nil
}

// recordOutcomes persists prediction-vs-actual rows for payers with a final
// determination. Best-effort.
func (o *Orchestrator) recordOutcomes(ctx context.Context, c *models.Case) {
	if o.outcomes == nil {
		return
	}
	for payer, state := range c.PayerStates {
		var actual string
		switch state.Status {
		case models.PayerApproved, models.PayerAppealApproved:
			actual = string(models.OutcomeApproved)
		case models.PayerDenied, models.PayerAppealDenied:
			actual = string(models.OutcomeDenied)
		default:
			continue
		}
		assessment := c.CoverageAssessments[payer]
		if assessment == nil {
			continue
		}
		effective := actual == string(models.OutcomeApproved)
		outcome := models.PredictionOutcome{
			CaseID:               c.CaseID,
			PredictedLikelihood:  assessment.ApprovalLikelihood,
			PredictedStatus:      string(assessment.CoverageStatus),
			PayerName:            payer,
			MedicationName:       c.Medication.MedicationName,
			ActualOutcome:        actual,
			ActualDecisionDate:   state.RespondedAt,
			StrategyUsed:         c.SelectedStrategyID,
			WasStrategyEffective: &effective,
		}
		if err := o.outcomes.Record(ctx, outcome); err != nil {
			slog.Warn("Failed to record prediction outcome",
				"case_id", c.CaseID, "payer", payer, "error", err)
		}
	}
}

// Waypoint outcome strings shared with the decision path.
const (
	waypointOutcomeApproved = "approved"
	waypointOutcomeDenied   = "denied"
	waypointOutcomePended   = "pended"
)

func recommendationText(primary *models.CoverageAssessment) string {
	if primary == nil {
		return ""
	}
	text := fmt.Sprintf("Primary payer %s assessed %s with approval likelihood %.2f (%d/%d criteria met).",
		primary.PayerName, primary.CoverageStatus, primary.ApprovalLikelihood,
		primary.CriteriaMetCount, primary.CriteriaTotalCount)
	if len(primary.DocumentationGaps) > 0 {
		text += fmt.Sprintf(" %d documentation gap(s) identified.", len(primary.DocumentationGaps))
	}
	if primary.StepTherapyRequired && !primary.StepTherapySatisfied {
		text += " Step therapy requirement is not satisfied."
	}
	return text
}

func selectedStrategy(c *models.Case) *models.Strategy {
	for i := range c.AvailableStrategies {
		if c.AvailableStrategies[i].StrategyID == c.SelectedStrategyID {
			return &c.AvailableStrategies[i]
		}
	}
	return nil
}

func strategyNames(strategies []models.Strategy) []string {
	names := make([]string, 0, len(strategies))
	for _, s := range strategies {
		names = append(names, s.Name)
	}
	return names
}

func pendingActions(s *models.Strategy, submittedPayer string) []models.CaseAction {
	var actions []models.CaseAction
	for _, step := range s.Steps {
		if step.ActionType == "submit_pa" && step.TargetPayer == submittedPayer {
			continue
		}
		actions = append(actions, models.CaseAction{
			ActionID:    uuid.NewString(),
			ActionType:  step.ActionType,
			TargetPayer: step.TargetPayer,
			Description: step.Description,
		})
	}
	return actions
}

func statusSnapshot(c *models.Case) string {
	var b strings.Builder
	for _, payer := range c.Payers() {
		if state := c.PayerStates[payer]; state != nil {
			fmt.Fprintf(&b, "%s=%s;", payer, state.Status)
		}
	}
	return b.String()
}

// metaInt reads an int metadata counter, tolerating the float64 that JSON
// round-trips produce.
func metaInt(c *models.Case, key string) int {
	if c.Metadata == nil {
		return 0
	}
	switch v := c.Metadata[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// profileFromCase extracts the intelligence profile: severity from labs and
// metadata, documentation presence from the request contents, gaps from the
// assessment output.
func profileFromCase(c *models.Case) intelligence.CaseProfile {
	profile := intelligence.CaseProfile{
		Medication: c.Medication.MedicationName,
		ICD10Code:  c.Medication.ICD10Code,
		Payer:      c.Patient.PrimaryPayer,
	}

	if cls, ok := c.Metadata["severity_classification"].(string); ok {
		profile.Severity.Classification = cls
	}
	for _, lab := range c.Medication.LabResults {
		v := lab.Value
		name := strings.ToLower(lab.TestName)
		switch {
		case strings.Contains(name, "crp"):
			profile.Severity.CRP = &v
		case strings.Contains(name, "albumin"):
			profile.Severity.Albumin = &v
		case strings.Contains(name, "esr"):
			profile.Severity.ESR = &v
		case strings.Contains(name, "cdai"):
			profile.Severity.CDAIScore = &v
		case strings.Contains(name, "hbi"):
			profile.Severity.HBIScore = &v
		}
	}

	for _, t := range c.Medication.PriorTreatments {
		profile.PriorTreatments = append(profile.PriorTreatments, t.MedicationName)
	}

	if len(c.Medication.LabResults) > 0 {
		profile.DocumentationPresent = append(profile.DocumentationPresent, "recent_labs")
	}
	if len(c.Medication.PriorTreatments) > 0 {
		profile.DocumentationPresent = append(profile.DocumentationPresent, "step_therapy_documentation")
	}
	if c.Medication.ClinicalRationale != "" {
		profile.DocumentationPresent = append(profile.DocumentationPresent, "clinical_rationale")
	}
	for _, gap := range c.DocumentationGaps {
		if gap.GapType != "" {
			profile.DocumentationMissing = append(profile.DocumentationMissing, gap.GapType)
		} else {
			profile.DocumentationMissing = append(profile.DocumentationMissing, gap.Description)
		}
	}
	return profile
}
