package casestore

import (
	"encoding/json"
	"fmt"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

// caseColumns holds the JSONB column payloads for one case row.
type caseColumns struct {
	patient          []byte
	medication       []byte
	payerStates      []byte
	assessments      []byte
	gaps             []byte
	strategies       []byte
	pendingActions   []byte
	completedActions []byte
	humanDecisions   []byte
	metadata         []byte
}

func marshalCase(c *models.Case) (*caseColumns, error) {
	cols := &caseColumns{}
	fields := []struct {
		name  string
		value any
		out   *[]byte
	}{
		{"patient", c.Patient, &cols.patient},
		{"medication", c.Medication, &cols.medication},
		{"payer_states", c.PayerStates, &cols.payerStates},
		{"coverage_assessments", c.CoverageAssessments, &cols.assessments},
		{"documentation_gaps", c.DocumentationGaps, &cols.gaps},
		{"available_strategies", c.AvailableStrategies, &cols.strategies},
		{"pending_actions", c.PendingActions, &cols.pendingActions},
		{"completed_actions", c.CompletedActions, &cols.completedActions},
		{"human_decisions", c.HumanDecisions, &cols.humanDecisions},
		{"metadata", c.Metadata, &cols.metadata},
	}
	for _, f := range fields {
		data, err := json.Marshal(f.value)
		if err != nil {
			return nil, fmt.Errorf("marshal case %s: %w", f.name, err)
		}
		*f.out = data
	}
	return cols, nil
}

// rowScanner covers both *sqlx.Row and *sqlx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (*models.Case, error) {
	var c models.Case
	var patient, medication, payerStates, assessments, gaps []byte
	var strategies, pendingActions, completedActions, humanDecisions, metadata []byte

	err := row.Scan(
		&c.CaseID, &c.Version, &c.CreatedAt, &c.UpdatedAt, &c.Stage,
		&patient, &medication, &payerStates, &assessments, &gaps,
		&c.AIRecommendation, &strategies, &c.SelectedStrategyID,
		&c.StrategyRationale, &pendingActions, &completedActions,
		&humanDecisions, &c.RequiresHumanDecision, &c.HumanDecisionReason,
		&c.HumanOverrideApplied, &c.ErrorMessage, &metadata,
	)
	if err != nil {
		return nil, err
	}

	fields := []struct {
		name string
		data []byte
		out  any
	}{
		{"patient", patient, &c.Patient},
		{"medication", medication, &c.Medication},
		{"payer_states", payerStates, &c.PayerStates},
		{"coverage_assessments", assessments, &c.CoverageAssessments},
		{"documentation_gaps", gaps, &c.DocumentationGaps},
		{"available_strategies", strategies, &c.AvailableStrategies},
		{"pending_actions", pendingActions, &c.PendingActions},
		{"completed_actions", completedActions, &c.CompletedActions},
		{"human_decisions", humanDecisions, &c.HumanDecisions},
		{"metadata", metadata, &c.Metadata},
	}
	for _, f := range fields {
		if len(f.data) == 0 || string(f.data) == "null" {
			continue
		}
		if err := json.Unmarshal(f.data, f.out); err != nil {
			return nil, fmt.Errorf("unmarshal case %s: %w", f.name, err)
		}
	}
	return &c, nil
}
