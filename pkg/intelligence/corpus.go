package intelligence

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

// LoadCorpus reads the historical-case corpus from a JSON array file. A
// missing file yields an empty corpus; intelligence then degrades to
// empty-cohort analytics rather than failing case processing.
func LoadCorpus(path string) ([]models.HistoricalCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read historical corpus %s: %w", path, err)
	}
	var corpus []models.HistoricalCase
	if err := json.Unmarshal(data, &corpus); err != nil {
		return nil, fmt.Errorf("unmarshal historical corpus %s: %w", path, err)
	}
	return corpus, nil
}
