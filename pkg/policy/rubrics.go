package policy

import (
	"encoding/json"
	"fmt"
	"os"
)

// Rubrics holds per-payer decision guidance injected into the assessment
// prompt: documentation preferences, known strictness, turnaround quirks.
// Keys are normalized payer names; the "default" key applies everywhere.
type Rubrics map[string]string

// LoadRubrics reads the decision-rubrics JSON file. A missing file is not an
// error; rubrics are an enrichment, not a requirement.
func LoadRubrics(path string) (Rubrics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Rubrics{}, nil
		}
		return nil, fmt.Errorf("read decision rubrics %s: %w", path, err)
	}
	raw := make(map[string]string)
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal decision rubrics %s: %w", path, err)
	}
	rubrics := make(Rubrics, len(raw))
	for payer, text := range raw {
		rubrics[normalizeName(payer)] = text
	}
	return rubrics, nil
}

// For returns the rubric for a payer, falling back to the default rubric.
func (r Rubrics) For(payer string) string {
	if text, ok := r[normalizeName(payer)]; ok {
		return text
	}
	return r["default"]
}
