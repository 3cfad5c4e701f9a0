package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/priorauth-labs/caseflow/pkg/events"
	"github.com/priorauth-labs/caseflow/pkg/models"
)

// streamBuffer bounds how far the producer can run ahead of a slow SSE
// consumer before blocking.
const streamBuffer = 32

// StreamPolicyAnalysis runs policy analysis for a case and yields progress
// events on the returned channel. The channel closes after the done marker.
// With refresh false and existing assessments, the cached results are
// replayed without re-running the stage.
func (o *Orchestrator) StreamPolicyAnalysis(ctx context.Context, caseID string, refresh bool) (<-chan json.RawMessage, error) {
	c, err := o.store.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}

	ch := make(chan json.RawMessage, streamBuffer)
	emit := func(e any) {
		data, merr := json.Marshal(e)
		if merr != nil {
			slog.Warn("Failed to marshal stream event", "case_id", caseID, "error", merr)
			return
		}
		select {
		case ch <- data:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(ch)
		emit(events.NewStageStart(caseID, models.StagePolicyAnalysis))

		if !refresh && len(c.CoverageAssessments) > 0 {
			o.replayCached(c, emit)
			emit(events.NewDone())
			return
		}

		if c.Stage != models.StagePolicyAnalysis {
			emit(events.NewError("case is not at policy analysis"))
			emit(events.NewDone())
			return
		}
		if _, err := o.handlePolicyAnalysis(ctx, c, emit); err != nil {
			emit(events.NewError(err.Error()))
		}
		emit(events.NewDone())
	}()
	return ch, nil
}

// replayCached emits the stored assessments as a completed stream, marked
// cached so clients can tell replay from fresh work.
func (o *Orchestrator) replayCached(c *models.Case, emit func(any)) {
	emit(events.NewProgress("returning cached policy analysis", 50))
	for _, payer := range c.Payers() {
		if a := c.CoverageAssessments[payer]; a != nil {
			emit(events.NewPayerComplete(a, 90))
		}
	}
	var confidence float64
	var reasoning string
	if primary := c.CoverageAssessments[c.Patient.PrimaryPayer]; primary != nil {
		confidence = primary.ApprovalLikelihood
		reasoning = primary.Reasoning
	}
	emit(events.StageComplete{
		Event:             events.TypeStageComplete,
		Stage:             models.StagePolicyAnalysis,
		Reasoning:         reasoning,
		Confidence:        confidence,
		Warnings:          []string{"results served from cache"},
		Assessments:       c.CoverageAssessments,
		DocumentationGaps: c.DocumentationGaps,
		Percent:           100,
	})
}
