// Package audit maintains the tamper-evident, hash-chained decision event
// log per case. Every event's signature covers its own canonicalized fields
// plus the previous event's signature, so mutating any persisted event
// breaks verification from that point on.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

// timestampLayout pins the serialized timestamp format inside signatures.
const timestampLayout = time.RFC3339Nano

// ComputeSignature produces the chain signature for an event given the
// previous event's signature ("" for the first event). Fields are placed in
// a map and marshaled with encoding/json, which sorts keys, giving a
// canonical serialization.
func ComputeSignature(event models.DecisionEvent, previousSignature string) string {
	canonical := map[string]string{
		"event_id":           event.EventID,
		"case_id":            event.CaseID,
		"event_type":         event.EventType,
		"timestamp":          event.Timestamp.UTC().Format(timestampLayout),
		"decision_made":      event.DecisionMade,
		"reasoning":          event.Reasoning,
		"input_data_hash":    event.InputDataHash,
		"previous_signature": previousSignature,
	}
	data, _ := json.Marshal(canonical)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashInput canonicalizes arbitrary input data and returns its SHA-256 hex
// digest. Stored as input_data_hash so the full payload need not live in
// the event row to stay verifiable.
func HashInput(input map[string]any) string {
	data, err := json.Marshal(input)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", input))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// summaryValueLimit caps each summarized value for quick inspection.
const summaryValueLimit = 120

// Summarize builds the truncated key/value map stored alongside the hash.
func Summarize(input map[string]any) map[string]string {
	if len(input) == 0 {
		return nil
	}
	summary := make(map[string]string, len(input))
	for k, v := range input {
		s := fmt.Sprintf("%v", v)
		if len(s) > summaryValueLimit {
			s = s[:summaryValueLimit] + "..."
		}
		summary[k] = s
	}
	return summary
}

// VerifyEvents recomputes signatures over an ordered event list and reports
// whether the chain is intact.
func VerifyEvents(events []models.DecisionEvent) bool {
	previous := ""
	for _, event := range events {
		if ComputeSignature(event, previous) != event.Signature {
			return false
		}
		previous = event.Signature
	}
	return true
}
