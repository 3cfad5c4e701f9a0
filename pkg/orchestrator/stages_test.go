package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

// scriptedPayers returns a fixed sequence of poll statuses, sticking on the
// last one once the script runs out.
type scriptedPayers struct {
	statuses  []models.PayerStatus
	details   string
	idx       int
	appealErr error
	appeals   int
}

func (p *scriptedPayers) Submit(context.Context, *models.Case, string) (string, error) {
	return "REF-1", nil
}

func (p *scriptedPayers) CheckStatus(context.Context, *models.Case, string) (models.PayerStatus, string, error) {
	status := p.statuses[p.idx]
	if p.idx < len(p.statuses)-1 {
		p.idx++
	}
	return status, p.details, nil
}

func (p *scriptedPayers) SubmitAppeal(context.Context, *models.Case, string) (string, error) {
	p.appeals++
	if p.appealErr != nil {
		return "", p.appealErr
	}
	return "AP-1", nil
}

func monitoringCase(status models.PayerStatus) *models.Case {
	return &models.Case{
		CaseID:     "case-m",
		Stage:      models.StageMonitoring,
		Patient:    models.Patient{PatientID: "p-100", PrimaryPayer: "anthem"},
		Medication: models.MedicationRequest{MedicationName: "infliximab"},
		PayerStates: map[string]*models.PayerState{
			"anthem": {PayerName: "anthem", Status: status},
		},
		CoverageAssessments: map[string]*models.CoverageAssessment{
			"anthem": {PayerName: "anthem", ApprovalLikelihood: 0.8},
		},
		Metadata: map[string]any{"monitoring_iterations": 0, "stale_iterations": 0},
	}
}

func TestMonitoringStalenessForcesCompletion(t *testing.T) {
	payers := &scriptedPayers{statuses: []models.PayerStatus{models.PayerUnderReview}, details: "still reviewing"}
	f := newFixture(confidentAssessor(0.8), func(o *Options) {
		o.Payers = payers
		o.Monitoring.StaleThreshold = 2
	})
	f.store.put(monitoringCase(models.PayerSubmitted))

	// Pass 1 sees a status change; passes 2 and 3 do not.
	for i := 0; i < 3; i++ {
		_, err := f.orch.RunStage(context.Background(), "case-m", models.StageMonitoring, false)
		require.NoError(t, err)
	}

	final, err := f.orch.GetCase(context.Background(), "case-m")
	require.NoError(t, err)
	assert.Equal(t, models.StageCompleted, final.Stage)
	assert.Equal(t, "awaiting payer determinations", final.Metadata["monitoring_outcome"])
	assert.Equal(t, float64(3), final.Metadata["monitoring_iterations"])
}

func TestMonitoringIterationCap(t *testing.T) {
	// Statuses keep flipping, so staleness never triggers; the hard cap does.
	payers := &scriptedPayers{statuses: []models.PayerStatus{
		models.PayerUnderReview, models.PayerPendingInfo, models.PayerUnderReview,
	}}
	f := newFixture(confidentAssessor(0.8), func(o *Options) {
		o.Payers = payers
		o.Monitoring.StaleThreshold = 10
		o.Monitoring.MaxIterations = 3
	})
	f.store.put(monitoringCase(models.PayerSubmitted))

	final, err := f.orch.ProcessCase(context.Background(), "case-m")
	require.NoError(t, err)
	assert.Equal(t, models.StageCompleted, final.Stage)
	assert.Equal(t, "monitoring window exhausted", final.Metadata["monitoring_outcome"])
}

func TestMonitoringDenialRoutesThroughRecovery(t *testing.T) {
	payers := &scriptedPayers{
		statuses: []models.PayerStatus{models.PayerDenied, models.PayerAppealApproved},
		details:  "criteria not met",
	}
	f := newFixture(confidentAssessor(0.8), func(o *Options) { o.Payers = payers })
	f.store.put(monitoringCase(models.PayerSubmitted))

	final, err := f.orch.ProcessCase(context.Background(), "case-m")
	require.NoError(t, err)

	assert.Equal(t, models.StageCompleted, final.Stage)
	assert.Equal(t, "approved", final.Metadata["monitoring_outcome"])
	assert.Equal(t, 1, payers.appeals)
	assert.Equal(t, models.PayerAppealApproved, final.PayerStates["anthem"].Status)

	var appealed bool
	for _, a := range final.CompletedActions {
		if a.ActionType == "submit_appeal" {
			appealed = true
			assert.Contains(t, a.Result, "AP-1")
		}
	}
	assert.True(t, appealed)
}

func TestMonitoringDenialRecordsAppealWindow(t *testing.T) {
	payers := &scriptedPayers{statuses: []models.PayerStatus{models.PayerDenied}, details: "criteria not met"}
	f := newFixture(confidentAssessor(0.8), func(o *Options) { o.Payers = payers })
	f.store.put(monitoringCase(models.PayerSubmitted))

	outcome, err := f.orch.RunStage(context.Background(), "case-m", models.StageMonitoring, false)
	require.NoError(t, err)

	assert.Equal(t, models.StageRecovery, outcome.Case.Stage)
	state := outcome.Case.PayerStates["anthem"]
	assert.Equal(t, "criteria not met", state.DenialReason)
	require.NotNil(t, state.AppealDeadline)
	require.NotNil(t, state.RespondedAt)
	assert.True(t, state.AppealDeadline.After(*state.RespondedAt))
}

func TestMonitoringPrimaryFinalDenialFailsCase(t *testing.T) {
	payers := &scriptedPayers{statuses: []models.PayerStatus{models.PayerAppealDenied}, details: "determination final"}
	f := newFixture(confidentAssessor(0.8), func(o *Options) { o.Payers = payers })
	f.store.put(monitoringCase(models.PayerAppealSubmitted))

	final, err := f.orch.ProcessCase(context.Background(), "case-m")
	require.NoError(t, err)
	assert.Equal(t, models.StageFailed, final.Stage)
	assert.Equal(t, "denied", final.Metadata["monitoring_outcome"])
}

func TestRecoveryToleratesAppealFailure(t *testing.T) {
	payers := &scriptedPayers{
		statuses:  []models.PayerStatus{models.PayerDenied},
		appealErr: errors.New("portal unavailable"),
	}
	f := newFixture(confidentAssessor(0.8), func(o *Options) { o.Payers = payers })
	c := monitoringCase(models.PayerDenied)
	c.Stage = models.StageRecovery
	f.store.put(c)

	outcome, err := f.orch.RunStage(context.Background(), "case-m", models.StageRecovery, false)
	require.NoError(t, err)
	assert.Equal(t, models.StageMonitoring, outcome.Case.Stage)
	assert.Equal(t, models.PayerDenied, outcome.Case.PayerStates["anthem"].Status)
	assert.Empty(t, outcome.Case.CompletedActions)
}

func TestMockPayerGatewayDeterministicPath(t *testing.T) {
	gw := NewMockPayerGateway()
	c := monitoringCase(models.PayerSubmitted)

	ref1, err := gw.Submit(context.Background(), c, "anthem")
	require.NoError(t, err)
	ref2, err := gw.Submit(context.Background(), c, "anthem")
	require.NoError(t, err)
	assert.Equal(t, ref1, ref2, "references are a function of case and payer")

	status, _, err := gw.CheckStatus(context.Background(), c, "anthem")
	require.NoError(t, err)
	assert.Equal(t, models.PayerUnderReview, status)

	status, _, err = gw.CheckStatus(context.Background(), c, "anthem")
	require.NoError(t, err)
	assert.Equal(t, models.PayerApproved, status, "likelihood 0.8 approves")
}

func TestMockPayerGatewayDeniesWeakCases(t *testing.T) {
	gw := NewMockPayerGateway()
	c := monitoringCase(models.PayerSubmitted)
	c.CoverageAssessments["anthem"].ApprovalLikelihood = 0.3

	_, _, err := gw.CheckStatus(context.Background(), c, "anthem")
	require.NoError(t, err)
	status, _, err := gw.CheckStatus(context.Background(), c, "anthem")
	require.NoError(t, err)
	assert.Equal(t, models.PayerDenied, status)
}

func TestMockPayerGatewayAppealOutcomes(t *testing.T) {
	gw := NewMockPayerGateway()

	borderline := monitoringCase(models.PayerAppealSubmitted)
	borderline.CoverageAssessments["anthem"].ApprovalLikelihood = 0.4
	borderline.PayerStates["anthem"].Status = models.PayerAppealSubmitted
	_, _, err := gw.CheckStatus(context.Background(), borderline, "anthem")
	require.NoError(t, err)
	status, _, err := gw.CheckStatus(context.Background(), borderline, "anthem")
	require.NoError(t, err)
	assert.Equal(t, models.PayerAppealApproved, status)

	weak := monitoringCase(models.PayerAppealSubmitted)
	weak.CaseID = "case-w"
	weak.CoverageAssessments["anthem"].ApprovalLikelihood = 0.2
	weak.PayerStates["anthem"].Status = models.PayerAppealSubmitted
	_, _, err = gw.CheckStatus(context.Background(), weak, "anthem")
	require.NoError(t, err)
	status, _, err = gw.CheckStatus(context.Background(), weak, "anthem")
	require.NoError(t, err)
	assert.Equal(t, models.PayerAppealDenied, status)
}
