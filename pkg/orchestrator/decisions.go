package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/priorauth-labs/caseflow/pkg/audit"
	"github.com/priorauth-labs/caseflow/pkg/models"
)

// DecisionRequest is the external payload recorded at a human-decision gate.
type DecisionRequest struct {
	Action         models.DecisionAction `json:"action" validate:"required"`
	ReviewerID     string                `json:"reviewer_id" validate:"required"`
	ReviewerName   string                `json:"reviewer_name,omitempty"`
	OverrideReason string                `json:"override_reason,omitempty"`
	Notes          string                `json:"notes,omitempty"`
}

// SubmitDecision ingests a human decision for a case parked at the gate and
// transitions it per the action. Every ingestion appends an audit event
// attributed to the reviewer.
func (o *Orchestrator) SubmitDecision(ctx context.Context, caseID string, req DecisionRequest) (*models.Case, error) {
	if err := o.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	c, err := o.store.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Stage != models.StageAwaitingHumanDecision {
		return nil, fmt.Errorf("%w: case %s is at %s, decisions require %s",
			ErrInvalidStage, caseID, c.Stage, models.StageAwaitingHumanDecision)
	}

	next, err := nextStageForAction(req.Action)
	if err != nil {
		return nil, err
	}

	decision := models.HumanDecision{
		DecisionID:             uuid.NewString(),
		Stage:                  c.Stage,
		Action:                 req.Action,
		ReviewerID:             req.ReviewerID,
		ReviewerName:           req.ReviewerName,
		Timestamp:              time.Now().UTC(),
		OriginalRecommendation: c.AIRecommendation,
		OverrideReason:         req.OverrideReason,
		Notes:                  req.Notes,
	}

	updated, err := o.store.Update(ctx, caseID, 0, func(cc *models.Case) error {
		cc.HumanDecisions = append(cc.HumanDecisions, decision)
		cc.Stage = next
		switch req.Action {
		case models.ActionOverride:
			cc.HumanOverrideApplied = true
			cc.RequiresHumanDecision = false
		case models.ActionReject:
			cc.ErrorMessage = "rejected by reviewer " + req.ReviewerID
			cc.RequiresHumanDecision = false
		case models.ActionReturnToProvider:
			cc.RequiresHumanDecision = false
			if cc.Metadata == nil {
				cc.Metadata = make(map[string]any)
			}
			cc.Metadata["returned_to_provider"] = true
		case models.ActionEscalate:
			// Stays at the gate; the escalation note is the decision itself.
		default:
			cc.RequiresHumanDecision = false
		}
		return nil
	}, fmt.Sprintf("human decision: %s", req.Action), req.ReviewerID)
	if err != nil {
		return nil, err
	}

	o.logAudit(ctx, audit.Entry{
		CaseID:       caseID,
		EventType:    "human_decision_recorded",
		DecisionMade: string(req.Action),
		Reasoning:    decisionReasoning(req),
		Stage:        models.StageAwaitingHumanDecision,
		Actor:        req.ReviewerID,
		InputData: map[string]any{
			"action":                  string(req.Action),
			"original_recommendation": c.AIRecommendation,
		},
	})

	o.writeDecisionWaypoint(updated, req.Action)
	o.publishCase(caseID, map[string]any{
		"event":   "human_decision_recorded",
		"case_id": caseID,
		"action":  req.Action,
		"stage":   updated.Stage,
	})
	return updated, nil
}

func nextStageForAction(action models.DecisionAction) (models.CaseStage, error) {
	switch action {
	case models.ActionApprove, models.ActionFollowRecommendation, models.ActionSubmitToPayer:
		return models.StageStrategyGeneration, nil
	case models.ActionOverride:
		return models.StageStrategyGeneration, nil
	case models.ActionReject:
		return models.StageFailed, nil
	case models.ActionReturnToProvider:
		return models.StageCompleted, nil
	case models.ActionEscalate:
		return models.StageAwaitingHumanDecision, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
}

func decisionReasoning(req DecisionRequest) string {
	if req.OverrideReason != "" {
		return req.OverrideReason
	}
	return req.Notes
}

// writeDecisionWaypoint renders the decision artifact and, for terminal
// actions, the notification letter. Best-effort.
func (o *Orchestrator) writeDecisionWaypoint(c *models.Case, action models.DecisionAction) {
	if o.waypoints == nil {
		return
	}
	var outcome string
	var docRequests []string
	switch action {
	case models.ActionReject:
		outcome = waypointOutcomeDenied
	case models.ActionReturnToProvider:
		outcome = waypointOutcomePended
		for _, gap := range c.DocumentationGaps {
			docRequests = append(docRequests, gap.Description)
		}
	default:
		outcome = string(action)
	}
	if _, err := o.waypoints.WriteDecision(c, outcome, docRequests); err != nil {
		slog.Warn("Failed to write decision waypoint", "case_id", c.CaseID, "error", err)
	}
}
