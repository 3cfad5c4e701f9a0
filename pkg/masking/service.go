// Package masking scrubs direct patient identifiers from text before it
// leaves the process, in particular prompts sent to LLM providers.
package masking

import (
	"log/slog"
	"regexp"
	"sort"
)

// Service applies the compiled identifier patterns. Safe for concurrent use;
// patterns are compiled once at construction and never mutated.
type Service struct {
	patterns []*CompiledPattern
}

// NewService compiles the built-in patterns plus any extras. Extras use the
// same spec shape; an invalid regex is logged and skipped rather than
// failing startup.
func NewService(extra map[string]PatternSpec) *Service {
	s := &Service{}
	s.compile(builtinPatterns)
	s.compile(extra)
	// Deterministic application order.
	sort.Slice(s.patterns, func(i, j int) bool { return s.patterns[i].Name < s.patterns[j].Name })
	return s
}

func (s *Service) compile(specs map[string]PatternSpec) {
	for name, spec := range specs {
		compiled, err := regexp.Compile(spec.Pattern)
		if err != nil {
			slog.Error("Failed to compile masking pattern, skipping",
				"pattern", name, "error", err)
			continue
		}
		s.patterns = append(s.patterns, &CompiledPattern{
			Name:        name,
			Regex:       compiled,
			Replacement: spec.Replacement,
			Description: spec.Description,
		})
	}
}

// Scrub replaces every identifier match in data. The original string is
// returned unchanged when nothing matches.
func (s *Service) Scrub(data string) string {
	for _, p := range s.patterns {
		data = p.Regex.ReplaceAllString(data, p.Replacement)
	}
	return data
}
