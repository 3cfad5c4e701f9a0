// Package events implements best-effort, at-most-once fan-out of case
// progress to SSE and WebSocket subscribers. Subscriptions are case-scoped
// or system-wide; system subscribers receive a short replay of recent
// messages on connect.
package events

import (
	"time"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

// Event discriminator values carried in the "event" field.
const (
	TypeStageStart    = "stage_start"
	TypeProgress      = "progress"
	TypePayerStart    = "payer_start"
	TypePayerComplete = "payer_complete"
	TypeStageComplete = "stage_complete"
	TypeError         = "error"
	TypeDone          = "done"
	TypeHeartbeat     = "heartbeat"
	TypeConnected     = "connected"
)

// StageStart announces a stage handler beginning work.
type StageStart struct {
	Event     string           `json:"event"`
	Stage     models.CaseStage `json:"stage"`
	CaseID    string           `json:"case_id"`
	Timestamp time.Time        `json:"timestamp"`
}

// Progress is a coarse percent update with a human-readable message.
type Progress struct {
	Event   string `json:"event"`
	Message string `json:"message"`
	Percent int    `json:"percent"`
}

// PayerStart marks the beginning of one payer's coverage assessment.
type PayerStart struct {
	Event     string `json:"event"`
	PayerName string `json:"payer_name"`
	Percent   int    `json:"percent"`
}

// PayerComplete carries the headline numbers of one finished assessment.
type PayerComplete struct {
	Event              string                `json:"event"`
	PayerName          string                `json:"payer_name"`
	CoverageStatus     models.CoverageStatus `json:"coverage_status"`
	ApprovalLikelihood float64               `json:"approval_likelihood"`
	CriteriaMet        int                   `json:"criteria_met"`
	CriteriaTotal      int                   `json:"criteria_total"`
	Percent            int                   `json:"percent"`
}

// StageComplete carries the full stage result payload.
type StageComplete struct {
	Event             string                                 `json:"event"`
	Stage             models.CaseStage                       `json:"stage"`
	Reasoning         string                                 `json:"reasoning,omitempty"`
	Confidence        float64                                `json:"confidence"`
	Findings          []string                               `json:"findings,omitempty"`
	Recommendations   []string                               `json:"recommendations,omitempty"`
	Warnings          []string                               `json:"warnings,omitempty"`
	Assessments       map[string]*models.CoverageAssessment  `json:"assessments,omitempty"`
	DocumentationGaps []models.DocumentationGap              `json:"documentation_gaps,omitempty"`
	Percent           int                                    `json:"percent"`
}

// ErrorEvent reports a stage failure to stream consumers.
type ErrorEvent struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

// Done is the end-of-stream marker.
type Done struct {
	Event string `json:"event"`
}

// Heartbeat keeps idle subscriber connections alive.
type Heartbeat struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// Connected is the first message a case-scoped WebSocket client receives.
type Connected struct {
	Event     string    `json:"event"`
	CaseID    string    `json:"case_id"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

func NewStageStart(caseID string, stage models.CaseStage) StageStart {
	return StageStart{Event: TypeStageStart, Stage: stage, CaseID: caseID, Timestamp: time.Now().UTC()}
}

func NewProgress(message string, percent int) Progress {
	return Progress{Event: TypeProgress, Message: message, Percent: percent}
}

func NewPayerStart(payer string, percent int) PayerStart {
	return PayerStart{Event: TypePayerStart, PayerName: payer, Percent: percent}
}

func NewPayerComplete(a *models.CoverageAssessment, percent int) PayerComplete {
	return PayerComplete{
		Event:              TypePayerComplete,
		PayerName:          a.PayerName,
		CoverageStatus:     a.CoverageStatus,
		ApprovalLikelihood: a.ApprovalLikelihood,
		CriteriaMet:        a.CriteriaMetCount,
		CriteriaTotal:      a.CriteriaTotalCount,
		Percent:            percent,
	}
}

func NewError(message string) ErrorEvent {
	return ErrorEvent{Event: TypeError, Message: message}
}

func NewDone() Done {
	return Done{Event: TypeDone}
}

func NewHeartbeat() Heartbeat {
	return Heartbeat{Event: TypeHeartbeat, Timestamp: time.Now().UTC()}
}

func NewConnected(caseID string) Connected {
	return Connected{
		Event:     TypeConnected,
		CaseID:    caseID,
		Timestamp: time.Now().UTC(),
		Message:   "subscribed to case updates",
	}
}
