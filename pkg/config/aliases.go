package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// LoadMedicationAliases reads the brand/generic alias map from a JSON file:
// {"adalimumab": ["humira"], "infliximab": ["remicade", "inflectra"]}.
// A missing file is not an error; lookups simply find no aliases.
func LoadMedicationAliases(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]string{}, nil
		}
		return nil, fmt.Errorf("read medication aliases %s: %w", path, err)
	}
	var aliases map[string][]string
	if err := json.Unmarshal(data, &aliases); err != nil {
		return nil, fmt.Errorf("%w: parse medication aliases %s: %v", ErrInvalidConfig, path, err)
	}
	normalized := make(map[string][]string, len(aliases))
	for k, vs := range aliases {
		key := strings.ToLower(strings.TrimSpace(k))
		for _, v := range vs {
			normalized[key] = append(normalized[key], strings.ToLower(strings.TrimSpace(v)))
		}
	}
	return normalized, nil
}

// AliasesFor returns every known name for a medication, the queried name
// included, in both brand→generic and generic→brand directions.
func AliasesFor(aliases map[string][]string, medication string) []string {
	med := strings.ToLower(strings.TrimSpace(medication))
	names := []string{med}
	seen := map[string]bool{med: true}
	for _, alias := range aliases[med] {
		if !seen[alias] {
			names = append(names, alias)
			seen[alias] = true
		}
	}
	// Reverse direction: med may itself be listed as someone's alias.
	for canonical, list := range aliases {
		for _, alias := range list {
			if alias == med && !seen[canonical] {
				names = append(names, canonical)
				seen[canonical] = true
			}
		}
	}
	return names
}
