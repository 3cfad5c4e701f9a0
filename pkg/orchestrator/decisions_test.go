package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

func gatedCase() *models.Case {
	return &models.Case{
		CaseID: "case-1",
		Stage:  models.StageAwaitingHumanDecision,
		Patient: models.Patient{
			PatientID: "p-100", PrimaryPayer: "anthem",
		},
		Medication: models.MedicationRequest{MedicationName: "infliximab"},
		PayerStates: map[string]*models.PayerState{
			"anthem": {PayerName: "anthem", Status: models.PayerNotSubmitted},
		},
		RequiresHumanDecision: true,
		HumanDecisionReason:   "anthem: coverage status REQUIRES_HUMAN_REVIEW",
		AIRecommendation:      "requires human review",
	}
}

func TestSubmitDecisionApproveResumesPipeline(t *testing.T) {
	f := newFixture(confidentAssessor(0.8))
	f.store.put(gatedCase())

	updated, err := f.orch.SubmitDecision(context.Background(), "case-1", DecisionRequest{
		Action:     models.ActionApprove,
		ReviewerID: "rev-42",
		Notes:      "documentation sufficient",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StageStrategyGeneration, updated.Stage)
	assert.False(t, updated.RequiresHumanDecision)
	require.Len(t, updated.HumanDecisions, 1)
	d := updated.HumanDecisions[0]
	assert.Equal(t, models.ActionApprove, d.Action)
	assert.Equal(t, "rev-42", d.ReviewerID)
	assert.Equal(t, "requires human review", d.OriginalRecommendation)
	assert.Contains(t, f.chain.eventTypes(), "human_decision_recorded")
}

func TestSubmitDecisionOverrideMarksCase(t *testing.T) {
	f := newFixture(confidentAssessor(0.8))
	f.store.put(gatedCase())

	updated, err := f.orch.SubmitDecision(context.Background(), "case-1", DecisionRequest{
		Action:         models.ActionOverride,
		ReviewerID:     "rev-42",
		OverrideReason: "compensating clinical factors documented",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StageStrategyGeneration, updated.Stage)
	assert.True(t, updated.HumanOverrideApplied)
	assert.False(t, updated.RequiresHumanDecision)
}

func TestSubmitDecisionRejectFailsCase(t *testing.T) {
	f := newFixture(confidentAssessor(0.8))
	f.store.put(gatedCase())

	updated, err := f.orch.SubmitDecision(context.Background(), "case-1", DecisionRequest{
		Action:     models.ActionReject,
		ReviewerID: "rev-42",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StageFailed, updated.Stage)
	assert.Contains(t, updated.ErrorMessage, "rev-42")
}

func TestSubmitDecisionReturnToProviderCompletes(t *testing.T) {
	f := newFixture(confidentAssessor(0.8))
	f.store.put(gatedCase())

	updated, err := f.orch.SubmitDecision(context.Background(), "case-1", DecisionRequest{
		Action:     models.ActionReturnToProvider,
		ReviewerID: "rev-42",
		Notes:      "need current TB screening",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StageCompleted, updated.Stage)
	assert.Equal(t, true, updated.Metadata["returned_to_provider"])
}

func TestSubmitDecisionEscalateStaysAtGate(t *testing.T) {
	f := newFixture(confidentAssessor(0.8))
	f.store.put(gatedCase())

	updated, err := f.orch.SubmitDecision(context.Background(), "case-1", DecisionRequest{
		Action:     models.ActionEscalate,
		ReviewerID: "rev-42",
		Notes:      "escalating to medical director",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StageAwaitingHumanDecision, updated.Stage)
	assert.True(t, updated.RequiresHumanDecision)
	require.Len(t, updated.HumanDecisions, 1)
}

func TestSubmitDecisionSecondReviewAfterEscalation(t *testing.T) {
	f := newFixture(confidentAssessor(0.8))
	f.store.put(gatedCase())

	_, err := f.orch.SubmitDecision(context.Background(), "case-1", DecisionRequest{
		Action: models.ActionEscalate, ReviewerID: "rev-42",
	})
	require.NoError(t, err)
	updated, err := f.orch.SubmitDecision(context.Background(), "case-1", DecisionRequest{
		Action: models.ActionApprove, ReviewerID: "rev-99",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StageStrategyGeneration, updated.Stage)
	require.Len(t, updated.HumanDecisions, 2)
	assert.Equal(t, "rev-99", updated.LatestHumanDecision().ReviewerID)
}

func TestSubmitDecisionRequiresGateStage(t *testing.T) {
	f := newFixture(confidentAssessor(0.8))
	c := gatedCase()
	c.Stage = models.StageMonitoring
	f.store.put(c)

	_, err := f.orch.SubmitDecision(context.Background(), "case-1", DecisionRequest{
		Action: models.ActionApprove, ReviewerID: "rev-42",
	})
	assert.ErrorIs(t, err, ErrInvalidStage)
}

func TestSubmitDecisionUnknownAction(t *testing.T) {
	f := newFixture(confidentAssessor(0.8))
	f.store.put(gatedCase())

	_, err := f.orch.SubmitDecision(context.Background(), "case-1", DecisionRequest{
		Action: models.DecisionAction("shred"), ReviewerID: "rev-42",
	})
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestSubmitDecisionValidation(t *testing.T) {
	f := newFixture(confidentAssessor(0.8))
	f.store.put(gatedCase())

	_, err := f.orch.SubmitDecision(context.Background(), "case-1", DecisionRequest{
		Action: models.ActionApprove,
	})
	assert.ErrorIs(t, err, ErrValidation)
}
