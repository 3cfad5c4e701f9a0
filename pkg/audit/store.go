package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

// Chain is the consumer-facing interface. *Store implements it; tests use
// an in-memory implementation.
type Chain interface {
	LogEvent(ctx context.Context, entry Entry) (*models.DecisionEvent, error)
	GetAuditTrail(ctx context.Context, caseID string) ([]models.DecisionEvent, error)
	VerifyChain(ctx context.Context, caseID string) (bool, error)
}

// Entry is the caller-supplied portion of a decision event.
type Entry struct {
	CaseID       string
	EventType    string
	DecisionMade string
	Reasoning    string
	Stage        models.CaseStage
	Actor        string
	InputData    map[string]any
	Alternatives []string
}

// Store persists decision events to the decision_events table.
type Store struct {
	db *sqlx.DB
}

// NewStore creates an audit store over the shared database client.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// LogEvent appends one event to the case's chain: it atomically fetches the
// latest event, links previous_event_id and the previous signature into the
// new event's signature, and persists. The insert and the latest-event read
// share one transaction so concurrent appends for a case serialize.
func (s *Store) LogEvent(ctx context.Context, entry Entry) (*models.DecisionEvent, error) {
	if entry.Actor == "" {
		entry.Actor = "system"
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin audit transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prevEventID, prevSignature string
	err = tx.QueryRowContext(ctx,
		`SELECT event_id, signature FROM decision_events
		 WHERE case_id = $1 ORDER BY id DESC LIMIT 1 FOR UPDATE`,
		entry.CaseID,
	).Scan(&prevEventID, &prevSignature)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fetch latest audit event: %w", err)
	}

	event := models.DecisionEvent{
		EventID:          uuid.New().String(),
		CaseID:           entry.CaseID,
		EventType:        entry.EventType,
		Timestamp:        time.Now().UTC(),
		DecisionMade:     entry.DecisionMade,
		Reasoning:        entry.Reasoning,
		Stage:            entry.Stage,
		Actor:            entry.Actor,
		InputDataHash:    HashInput(entry.InputData),
		InputDataSummary: Summarize(entry.InputData),
		Alternatives:     entry.Alternatives,
		PreviousEventID:  prevEventID,
	}
	event.Signature = ComputeSignature(event, prevSignature)

	summaryJSON, err := json.Marshal(event.InputDataSummary)
	if err != nil {
		return nil, fmt.Errorf("marshal input summary: %w", err)
	}
	alternativesJSON, err := json.Marshal(event.Alternatives)
	if err != nil {
		return nil, fmt.Errorf("marshal alternatives: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO decision_events
		   (event_id, case_id, event_type, timestamp, decision_made, reasoning,
		    stage, actor, input_data_hash, input_data_summary, alternatives,
		    signature, previous_event_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		event.EventID, event.CaseID, event.EventType, event.Timestamp,
		event.DecisionMade, event.Reasoning, event.Stage, event.Actor,
		event.InputDataHash, summaryJSON, alternativesJSON,
		event.Signature, event.PreviousEventID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert audit event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit audit event: %w", err)
	}
	return &event, nil
}

// GetAuditTrail returns the case's events in chain order.
func (s *Store) GetAuditTrail(ctx context.Context, caseID string) ([]models.DecisionEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, case_id, event_type, timestamp, decision_made, reasoning,
		        stage, actor, input_data_hash, input_data_summary, alternatives,
		        signature, previous_event_id
		 FROM decision_events WHERE case_id = $1 ORDER BY id ASC`,
		caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit trail: %w", err)
	}
	defer rows.Close()

	var events []models.DecisionEvent
	for rows.Next() {
		var event models.DecisionEvent
		var summaryJSON, alternativesJSON []byte
		if err := rows.Scan(
			&event.EventID, &event.CaseID, &event.EventType, &event.Timestamp,
			&event.DecisionMade, &event.Reasoning, &event.Stage, &event.Actor,
			&event.InputDataHash, &summaryJSON, &alternativesJSON,
			&event.Signature, &event.PreviousEventID,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if len(summaryJSON) > 0 {
			_ = json.Unmarshal(summaryJSON, &event.InputDataSummary)
		}
		if len(alternativesJSON) > 0 {
			_ = json.Unmarshal(alternativesJSON, &event.Alternatives)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// VerifyChain recomputes every signature for a case in order.
func (s *Store) VerifyChain(ctx context.Context, caseID string) (bool, error) {
	events, err := s.GetAuditTrail(ctx, caseID)
	if err != nil {
		return false, err
	}
	return VerifyEvents(events), nil
}
