package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/priorauth-labs/caseflow/pkg/llm"
	"github.com/priorauth-labs/caseflow/pkg/models"
)

// remapConfidenceFloor: unmapped assessments below this confidence are
// discarded rather than carried forward under an unknown ID.
const remapConfidenceFloor = 0.7

// matchCriterionIDs reconciles the IDs the LLM returned against the policy's
// canonical criterion set. Matching is three-phase: exact ID, exact
// case-insensitive name, then one LLM remapping call for the leftovers. A
// remap suggestion is accepted only when it targets a known criterion that no
// earlier assessment already claimed.
func (r *Reasoner) matchCriterionIDs(ctx context.Context, policy *models.DigitizedPolicy, assessments []models.CriterionAssessment, caseID string) []models.CriterionAssessment {
	if policy == nil || len(policy.AtomicCriteria) == 0 {
		return assessments
	}

	nameIndex := make(map[string]string, len(policy.AtomicCriteria))
	for id, c := range policy.AtomicCriteria {
		nameIndex[strings.ToLower(strings.TrimSpace(c.Name))] = id
	}

	claimed := make(map[string]bool, len(assessments))
	matched := make([]models.CriterionAssessment, 0, len(assessments))
	var unmatched []models.CriterionAssessment

	for _, a := range assessments {
		if _, ok := policy.AtomicCriteria[a.CriterionID]; ok && !claimed[a.CriterionID] {
			claimed[a.CriterionID] = true
			matched = append(matched, a)
			continue
		}
		if id, ok := nameIndex[strings.ToLower(strings.TrimSpace(a.CriterionName))]; ok && !claimed[id] {
			a.CriterionID = id
			claimed[id] = true
			matched = append(matched, a)
			continue
		}
		unmatched = append(unmatched, a)
	}

	if len(unmatched) == 0 {
		return matched
	}

	remapped := r.remapUnmatched(ctx, policy, unmatched, claimed, caseID)
	for _, a := range remapped {
		if _, ok := policy.AtomicCriteria[a.CriterionID]; ok && !claimed[a.CriterionID] {
			claimed[a.CriterionID] = true
			matched = append(matched, a)
			continue
		}
		// Still unmapped. Keep only assessments the model was confident
		// about; low-confidence strays add noise without signal.
		if a.Confidence >= remapConfidenceFloor {
			matched = append(matched, a)
			continue
		}
		slog.Warn("Discarding unmapped low-confidence criterion assessment",
			"case_id", caseID,
			"criterion_id", a.CriterionID,
			"criterion_name", a.CriterionName,
			"confidence", a.Confidence)
	}
	return matched
}

// remapUnmatched asks the general extraction route to map each unrecognized
// criterion reference onto a canonical ID. Any failure degrades to returning
// the input unchanged; matching never blocks an assessment.
func (r *Reasoner) remapUnmatched(ctx context.Context, policy *models.DigitizedPolicy, unmatched []models.CriterionAssessment, claimed map[string]bool, caseID string) []models.CriterionAssessment {
	type candidate struct {
		CriterionID string `json:"criterion_id"`
		Name        string `json:"name"`
	}
	var candidates []candidate
	for id, c := range policy.AtomicCriteria {
		if !claimed[id] {
			candidates = append(candidates, candidate{CriterionID: id, Name: c.Name})
		}
	}
	if len(candidates) == 0 {
		return unmatched
	}

	type entry struct {
		OriginalID string `json:"original_id"`
		Name       string `json:"name"`
		Reasoning  string `json:"reasoning,omitempty"`
	}
	entries := make([]entry, 0, len(unmatched))
	for _, a := range unmatched {
		entries = append(entries, entry{
			OriginalID: a.CriterionID,
			Name:       a.CriterionName,
			Reasoning:  truncate(a.Reasoning, 200),
		})
	}

	prompt, _, err := r.prompts.Load(ctx, "policy_analysis/criterion_remap", map[string]any{
		"unmatched_entries":  entries,
		"candidate_criteria": candidates,
	})
	if err != nil {
		slog.Warn("Criterion remap prompt unavailable, keeping raw IDs", "error", err)
		return unmatched
	}

	resp, err := r.gateway.Generate(ctx, llm.Request{
		Task:           models.TaskDataExtraction,
		Prompt:         prompt,
		Temperature:    0,
		ResponseFormat: llm.FormatJSON,
		CaseID:         caseID,
	})
	if err != nil {
		slog.Warn("Criterion remap call failed, keeping raw IDs", "case_id", caseID, "error", err)
		return unmatched
	}

	var parsed struct {
		Mappings []struct {
			OriginalID  string `json:"original_id"`
			CriterionID string `json:"criterion_id"`
		} `json:"mappings"`
	}
	if err := roundtrip(resp.Payload, &parsed); err != nil {
		slog.Warn("Criterion remap response unparseable, keeping raw IDs", "case_id", caseID, "error", err)
		return unmatched
	}

	byOriginal := make(map[string]string, len(parsed.Mappings))
	for _, m := range parsed.Mappings {
		byOriginal[m.OriginalID] = m.CriterionID
	}

	out := make([]models.CriterionAssessment, len(unmatched))
	for i, a := range unmatched {
		out[i] = a
		target, ok := byOriginal[a.CriterionID]
		if !ok {
			continue
		}
		if _, known := policy.AtomicCriteria[target]; !known || claimed[target] {
			continue
		}
		slog.Info("Remapped criterion assessment",
			"case_id", caseID, "from", a.CriterionID, "to", target)
		out[i].CriterionID = target
	}
	return out
}

// roundtrip converts an untyped JSON payload into a typed struct.
func roundtrip(payload map[string]any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("re-marshal payload: %w", err)
	}
	return json.Unmarshal(data, out)
}
