// Package orchestrator drives cases through the stage machine: policy
// analysis, cohort intelligence, the human-decision gate, strategy work,
// action coordination, and the bounded monitoring loop. Stage handlers
// compute results first and persist them through the case store in one
// versioned mutation, so cancellation mid-stage leaves the case at its
// prior version.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/priorauth-labs/caseflow/pkg/audit"
	"github.com/priorauth-labs/caseflow/pkg/casestore"
	"github.com/priorauth-labs/caseflow/pkg/config"
	"github.com/priorauth-labs/caseflow/pkg/events"
	"github.com/priorauth-labs/caseflow/pkg/intelligence"
	"github.com/priorauth-labs/caseflow/pkg/models"
	"github.com/priorauth-labs/caseflow/pkg/policy"
	"github.com/priorauth-labs/caseflow/pkg/waypoint"
)

// Insighter is the strategic-intelligence dependency; tests stub it.
type Insighter interface {
	Insights(ctx context.Context, caseID string, profile intelligence.CaseProfile) (*models.StrategicInsights, error)
}

// Orchestrator coordinates the case lifecycle across the domain services.
type Orchestrator struct {
	store     casestore.Store
	audit     audit.Chain
	assessor  policy.Assessor
	refiner   *policy.Refiner
	insights  Insighter
	hub       *events.Hub
	waypoints *waypoint.Writer
	payers    PayerGateway
	outcomes  *OutcomeRecorder

	weights    models.ScoringWeights
	monitoring config.MonitoringConfig
	validate   *validator.Validate
}

// Options carries the orchestrator's dependencies. Insights, waypoints, and
// outcomes are optional; the orchestrator degrades gracefully without them.
type Options struct {
	Store     casestore.Store
	Audit     audit.Chain
	Assessor  policy.Assessor
	Refiner   *policy.Refiner
	Insights  Insighter
	Hub       *events.Hub
	Waypoints *waypoint.Writer
	Payers    PayerGateway
	Outcomes  *OutcomeRecorder

	Weights    models.ScoringWeights
	Monitoring config.MonitoringConfig
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		store:      opts.Store,
		audit:      opts.Audit,
		assessor:   opts.Assessor,
		refiner:    opts.Refiner,
		insights:   opts.Insights,
		hub:        opts.Hub,
		waypoints:  opts.Waypoints,
		payers:     opts.Payers,
		outcomes:   opts.Outcomes,
		weights:    opts.Weights,
		monitoring: opts.Monitoring,
		validate:   validator.New(),
	}
}

// CreateCase validates the intake payload and persists a new case at
// INTAKE. Validation failures create nothing.
func (o *Orchestrator) CreateCase(ctx context.Context, req models.CreateCaseRequest) (*models.Case, error) {
	if err := o.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	c := &models.Case{
		CaseID:     uuid.NewString(),
		Stage:      models.StageIntake,
		Patient:    req.Patient,
		Medication: req.Medication,
		Metadata:   req.Metadata,
	}
	payers := make(map[string]*models.PayerState, 2)
	for _, payer := range c.Payers() {
		payers[payer] = &models.PayerState{PayerName: payer, Status: models.PayerNotSubmitted}
	}
	c.PayerStates = payers

	if err := o.store.Create(ctx, c); err != nil {
		return nil, err
	}

	o.logAudit(ctx, audit.Entry{
		CaseID:       c.CaseID,
		EventType:    "case_created",
		DecisionMade: "case accepted at intake",
		Stage:        models.StageIntake,
		InputData: map[string]any{
			"patient_id": c.Patient.PatientID,
			"medication": c.Medication.MedicationName,
			"icd10_code": c.Medication.ICD10Code,
			"payers":     c.Payers(),
		},
	})
	o.publishSystem(map[string]any{
		"event":   "case_created",
		"case_id": c.CaseID,
		"stage":   c.Stage,
	})
	return c, nil
}

// GetCase loads the current case state.
func (o *Orchestrator) GetCase(ctx context.Context, caseID string) (*models.Case, error) {
	return o.store.Get(ctx, caseID)
}

// ProcessCase advances a case through consecutive stages until it reaches a
// terminal stage, parks at the human-decision gate, or the context is
// cancelled.
func (o *Orchestrator) ProcessCase(ctx context.Context, caseID string) (*models.Case, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := o.store.Get(ctx, caseID)
		if err != nil {
			return nil, err
		}
		if c.Stage.IsTerminal() || c.Stage == models.StageAwaitingHumanDecision {
			return c, nil
		}
		if _, err := o.runHandler(ctx, c, nil); err != nil {
			return nil, err
		}
	}
}

// StageOutcome is the result of a single-stage run.
type StageOutcome struct {
	Case   *models.Case     `json:"case"`
	Stage  models.CaseStage `json:"stage"`
	Cached bool             `json:"cached"`
}

// RunStage runs exactly one stage handler. With refresh false, a stage
// whose results already exist on the case returns them marked cached
// instead of re-doing the work.
func (o *Orchestrator) RunStage(ctx context.Context, caseID string, stage models.CaseStage, refresh bool) (*StageOutcome, error) {
	c, err := o.store.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !refresh && o.hasCachedResults(c, stage) {
		return &StageOutcome{Case: c, Stage: stage, Cached: true}, nil
	}
	if c.Stage != stage {
		return nil, fmt.Errorf("%w: case %s is at %s, requested %s", ErrInvalidStage, caseID, c.Stage, stage)
	}
	updated, err := o.runHandler(ctx, c, nil)
	if err != nil {
		return nil, err
	}
	return &StageOutcome{Case: updated, Stage: stage}, nil
}

func (o *Orchestrator) hasCachedResults(c *models.Case, stage models.CaseStage) bool {
	switch stage {
	case models.StagePolicyAnalysis:
		return len(c.CoverageAssessments) > 0
	case models.StageStrategyGeneration:
		return len(c.AvailableStrategies) > 0
	case models.StageStrategySelection:
		return c.SelectedStrategyID != ""
	default:
		return false
	}
}

// runHandler dispatches the handler for the case's current stage. emit, when
// non-nil, receives progress events in addition to the hub.
func (o *Orchestrator) runHandler(ctx context.Context, c *models.Case, emit func(any)) (*models.Case, error) {
	o.publishCase(c.CaseID, events.NewStageStart(c.CaseID, c.Stage))

	var (
		updated *models.Case
		err     error
	)
	switch c.Stage {
	case models.StageIntake:
		updated, err = o.handleIntake(ctx, c)
	case models.StagePolicyAnalysis:
		updated, err = o.handlePolicyAnalysis(ctx, c, emit)
	case models.StageCohortAnalysis:
		updated, err = o.handleCohortAnalysis(ctx, c)
	case models.StageAIRecommendation:
		updated, err = o.handleRecommendation(ctx, c)
	case models.StageStrategyGeneration:
		updated, err = o.handleStrategyGeneration(ctx, c)
	case models.StageStrategySelection:
		updated, err = o.handleStrategySelection(ctx, c)
	case models.StageActionCoordination:
		updated, err = o.handleActionCoordination(ctx, c)
	case models.StageMonitoring:
		updated, err = o.handleMonitoring(ctx, c)
	case models.StageRecovery:
		updated, err = o.handleRecovery(ctx, c)
	default:
		return nil, fmt.Errorf("%w: no handler for stage %s", ErrInvalidStage, c.Stage)
	}
	if err != nil {
		o.publishCase(c.CaseID, events.NewError(err.Error()))
		return nil, err
	}
	return updated, nil
}

// failStage parks the case in FAILED with the surfaced error message.
func (o *Orchestrator) failStage(ctx context.Context, c *models.Case, stage models.CaseStage, cause error) (*models.Case, error) {
	failed, uerr := o.store.Update(ctx, c.CaseID, 0, func(cc *models.Case) error {
		cc.Stage = models.StageFailed
		cc.ErrorMessage = cause.Error()
		return nil
	}, fmt.Sprintf("stage %s failed", stage), "system")
	if uerr != nil {
		slog.Error("Failed to persist stage failure",
			"case_id", c.CaseID, "stage", stage, "error", uerr)
	}
	o.logAudit(ctx, audit.Entry{
		CaseID:       c.CaseID,
		EventType:    "stage_failed",
		DecisionMade: "case moved to FAILED",
		Reasoning:    cause.Error(),
		Stage:        stage,
	})
	if failed == nil {
		failed = c
	}
	return failed, cause
}

// logAudit appends an audit event, logging and swallowing failures: audit
// recording never fails the parent operation.
func (o *Orchestrator) logAudit(ctx context.Context, entry audit.Entry) {
	if o.audit == nil {
		return
	}
	if _, err := o.audit.LogEvent(ctx, entry); err != nil {
		slog.Error("Failed to record audit event",
			"case_id", entry.CaseID, "event_type", entry.EventType, "error", err)
	}
}

func (o *Orchestrator) publishCase(caseID string, event any) {
	if o.hub != nil {
		o.hub.PublishCase(caseID, event)
	}
}

func (o *Orchestrator) publishSystem(event any) {
	if o.hub != nil {
		o.hub.PublishSystem(event)
	}
}
