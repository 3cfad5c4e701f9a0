package audit

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

func chainedEvents(t *testing.T, caseID string, n int) []models.DecisionEvent {
	t.Helper()
	events := make([]models.DecisionEvent, 0, n)
	previous := ""
	for i := 0; i < n; i++ {
		event := models.DecisionEvent{
			EventID:       uuid.NewString(),
			CaseID:        caseID,
			EventType:     "stage_completed",
			Timestamp:     time.Now().UTC().Add(time.Duration(i) * time.Second),
			DecisionMade:  "advance",
			Reasoning:     "criteria satisfied",
			InputDataHash: HashInput(map[string]any{"step": i}),
		}
		if i > 0 {
			event.PreviousEventID = events[i-1].EventID
		}
		event.Signature = ComputeSignature(event, previous)
		previous = event.Signature
		events = append(events, event)
	}
	return events
}

func TestVerifyEventsIntactChain(t *testing.T) {
	assert.True(t, VerifyEvents(nil))
	assert.True(t, VerifyEvents(chainedEvents(t, "case-1", 5)))
}

func TestVerifyEventsDetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(events []models.DecisionEvent)
	}{
		{"reasoning edited", func(e []models.DecisionEvent) { e[1].Reasoning = "revised" }},
		{"decision edited", func(e []models.DecisionEvent) { e[2].DecisionMade = "deny" }},
		{"timestamp shifted", func(e []models.DecisionEvent) { e[0].Timestamp = e[0].Timestamp.Add(time.Minute) }},
		{"input hash swapped", func(e []models.DecisionEvent) { e[3].InputDataHash = HashInput(nil) }},
		{"event dropped", func(e []models.DecisionEvent) { copy(e[1:], e[2:]) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := chainedEvents(t, "case-1", 5)
			tt.mutate(events)
			assert.False(t, VerifyEvents(events))
		})
	}
}

func TestComputeSignatureCoversPreviousSignature(t *testing.T) {
	event := chainedEvents(t, "case-1", 1)[0]
	assert.NotEqual(t,
		ComputeSignature(event, ""),
		ComputeSignature(event, "other"),
	)
}

func TestHashInputCanonical(t *testing.T) {
	a := HashInput(map[string]any{"x": 1, "y": "two"})
	b := HashInput(map[string]any{"y": "two", "x": 1})
	assert.Equal(t, a, b, "key order must not affect the hash")
	assert.NotEqual(t, a, HashInput(map[string]any{"x": 2, "y": "two"}))
}

func TestSummarizeTruncatesLongValues(t *testing.T) {
	long := strings.Repeat("a", 500)
	summary := Summarize(map[string]any{"note": long, "short": "ok"})
	assert.Len(t, summary["note"], summaryValueLimit+3)
	assert.True(t, strings.HasSuffix(summary["note"], "..."))
	assert.Equal(t, "ok", summary["short"])
	assert.Nil(t, Summarize(nil))
}
