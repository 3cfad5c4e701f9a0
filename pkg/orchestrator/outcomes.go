package orchestrator

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

// OutcomeRecorder persists prediction-vs-actual rows for accuracy
// analytics. Recording is best-effort; callers log failures and move on.
type OutcomeRecorder struct {
	db *sqlx.DB
}

// NewOutcomeRecorder creates a recorder over the shared database client.
func NewOutcomeRecorder(db *sqlx.DB) *OutcomeRecorder {
	return &OutcomeRecorder{db: db}
}

// Record inserts one prediction outcome row.
func (r *OutcomeRecorder) Record(ctx context.Context, o models.PredictionOutcome) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO prediction_outcomes
		   (case_id, predicted_likelihood, predicted_status, payer_name,
		    medication_name, actual_outcome, actual_decision_date,
		    strategy_used, was_strategy_effective)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		o.CaseID, o.PredictedLikelihood, o.PredictedStatus, o.PayerName,
		o.MedicationName, o.ActualOutcome, o.ActualDecisionDate,
		o.StrategyUsed, o.WasStrategyEffective,
	)
	if err != nil {
		return fmt.Errorf("insert prediction outcome: %w", err)
	}
	return nil
}
