// Package casestore provides versioned persistence of case state. Every
// mutation increments the version by exactly one and writes a full snapshot
// in the same transaction, so any prior state is addressable by
// (case_id, version) and concurrent writers are serialized by optimistic
// locking.
package casestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

// Store is the consumer-facing interface. *SQLStore implements it; tests
// use an in-memory implementation.
type Store interface {
	Create(ctx context.Context, c *models.Case) error
	Get(ctx context.Context, caseID string) (*models.Case, error)
	Update(ctx context.Context, caseID string, expectedVersion int, mutate func(*models.Case) error, changeDescription, changedBy string) (*models.Case, error)
	Reset(ctx context.Context, caseID string) (*models.Case, error)
	GetSnapshot(ctx context.Context, caseID string, version int) (*models.Case, error)
	ListByStage(ctx context.Context, stage models.CaseStage) ([]*models.Case, error)
}

// SQLStore persists cases to the cases and case_state_snapshots tables.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore creates a case store over the shared database client.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Create inserts a new case at version 1 and writes the initial snapshot.
func (s *SQLStore) Create(ctx context.Context, c *models.Case) error {
	now := time.Now().UTC()
	c.Version = 1
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Stage == "" {
		c.Stage = models.StageIntake
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cols, err := marshalCase(c)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO cases
		   (id, version, created_at, updated_at, stage, patient_data, medication_data,
		    payer_states, coverage_assessments, documentation_gaps, ai_recommendation,
		    available_strategies, selected_strategy_id, strategy_rationale,
		    pending_actions, completed_actions, human_decisions,
		    requires_human_decision, human_decision_reason, human_override_applied,
		    error_message, metadata)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
		c.CaseID, c.Version, c.CreatedAt, c.UpdatedAt, c.Stage,
		cols.patient, cols.medication, cols.payerStates, cols.assessments,
		cols.gaps, c.AIRecommendation, cols.strategies, c.SelectedStrategyID,
		c.StrategyRationale, cols.pendingActions, cols.completedActions,
		cols.humanDecisions, c.RequiresHumanDecision, c.HumanDecisionReason,
		c.HumanOverrideApplied, c.ErrorMessage, cols.metadata,
	)
	if err != nil {
		return fmt.Errorf("insert case: %w", err)
	}

	if err := writeSnapshot(ctx, tx, c, "case created", "system"); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create: %w", err)
	}
	return nil
}

// Get loads the current state of a case.
func (s *SQLStore) Get(ctx context.Context, caseID string) (*models.Case, error) {
	row := s.db.QueryRowxContext(ctx,
		`SELECT id, version, created_at, updated_at, stage, patient_data,
		        medication_data, payer_states, coverage_assessments,
		        documentation_gaps, ai_recommendation, available_strategies,
		        selected_strategy_id, strategy_rationale, pending_actions,
		        completed_actions, human_decisions, requires_human_decision,
		        human_decision_reason, human_override_applied, error_message, metadata
		 FROM cases WHERE id = $1`,
		caseID,
	)
	c, err := scanCase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrCaseNotFound, caseID)
		}
		return nil, err
	}
	return c, nil
}

// Update applies a mutation under optimistic locking. When expectedVersion
// is non-zero and differs from the stored version the update fails with
// ErrOptimisticLock before any work happens; even with a matching read the
// final UPDATE is guarded by the version predicate, so two concurrent
// writers racing from the same version produce exactly one success.
func (s *SQLStore) Update(ctx context.Context, caseID string, expectedVersion int, mutate func(*models.Case) error, changeDescription, changedBy string) (*models.Case, error) {
	c, err := s.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if expectedVersion != 0 && expectedVersion != c.Version {
		return nil, fmt.Errorf("%w: expected %d, have %d", ErrOptimisticLock, expectedVersion, c.Version)
	}

	priorVersion := c.Version
	if err := mutate(c); err != nil {
		return nil, err
	}
	c.Version = priorVersion + 1
	c.UpdatedAt = time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cols, err := marshalCase(c)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE cases SET
		   version = $2, updated_at = $3, stage = $4, patient_data = $5,
		   medication_data = $6, payer_states = $7, coverage_assessments = $8,
		   documentation_gaps = $9, ai_recommendation = $10,
		   available_strategies = $11, selected_strategy_id = $12,
		   strategy_rationale = $13, pending_actions = $14,
		   completed_actions = $15, human_decisions = $16,
		   requires_human_decision = $17, human_decision_reason = $18,
		   human_override_applied = $19, error_message = $20, metadata = $21
		 WHERE id = $1 AND version = $22`,
		c.CaseID, c.Version, c.UpdatedAt, c.Stage, cols.patient,
		cols.medication, cols.payerStates, cols.assessments, cols.gaps,
		c.AIRecommendation, cols.strategies, c.SelectedStrategyID,
		c.StrategyRationale, cols.pendingActions, cols.completedActions,
		cols.humanDecisions, c.RequiresHumanDecision, c.HumanDecisionReason,
		c.HumanOverrideApplied, c.ErrorMessage, cols.metadata,
		priorVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("update case: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update case rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: case %s version %d", ErrOptimisticLock, caseID, priorVersion)
	}

	if err := writeSnapshot(ctx, tx, c, changeDescription, changedBy); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return c, nil
}

// Reset reverts a case to an initial-intake-equivalent state: patient,
// medication, and metadata survive; analyses, strategies, decisions, and
// payer progress are cleared. The version keeps increasing so snapshot
// monotonicity holds across resets.
func (s *SQLStore) Reset(ctx context.Context, caseID string) (*models.Case, error) {
	return s.Update(ctx, caseID, 0, func(c *models.Case) error {
		payers := make(map[string]*models.PayerState, 2)
		for _, payer := range c.Payers() {
			payers[payer] = &models.PayerState{PayerName: payer, Status: models.PayerNotSubmitted}
		}
		c.Stage = models.StageIntake
		c.PayerStates = payers
		c.CoverageAssessments = nil
		c.DocumentationGaps = nil
		c.AIRecommendation = ""
		c.AvailableStrategies = nil
		c.SelectedStrategyID = ""
		c.StrategyRationale = ""
		c.PendingActions = nil
		c.CompletedActions = nil
		c.HumanDecisions = nil
		c.RequiresHumanDecision = false
		c.HumanDecisionReason = ""
		c.HumanOverrideApplied = false
		c.ErrorMessage = ""
		return nil
	}, "case reset to intake", "system")
}

// GetSnapshot retrieves the full case state recorded at a prior version.
func (s *SQLStore) GetSnapshot(ctx context.Context, caseID string, version int) (*models.Case, error) {
	var stateData []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state_data FROM case_state_snapshots WHERE case_id = $1 AND version = $2`,
		caseID, version,
	).Scan(&stateData)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s v%d", ErrSnapshotNotFound, caseID, version)
		}
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	var c models.Case
	if err := json.Unmarshal(stateData, &c); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &c, nil
}

// ListByStage returns cases currently at a stage, newest first.
func (s *SQLStore) ListByStage(ctx context.Context, stage models.CaseStage) ([]*models.Case, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT id, version, created_at, updated_at, stage, patient_data,
		        medication_data, payer_states, coverage_assessments,
		        documentation_gaps, ai_recommendation, available_strategies,
		        selected_strategy_id, strategy_rationale, pending_actions,
		        completed_actions, human_decisions, requires_human_decision,
		        human_decision_reason, human_override_applied, error_message, metadata
		 FROM cases WHERE stage = $1 ORDER BY updated_at DESC`,
		stage,
	)
	if err != nil {
		return nil, fmt.Errorf("query cases by stage: %w", err)
	}
	defer rows.Close()

	var cases []*models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

func writeSnapshot(ctx context.Context, tx *sqlx.Tx, c *models.Case, changeDescription, changedBy string) error {
	stateData, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal snapshot state: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO case_state_snapshots
		   (case_id, version, created_at, state_data, change_description, changed_by)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.CaseID, c.Version, c.UpdatedAt, stateData, changeDescription, changedBy,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}
