package orchestrator

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/priorauth-labs/caseflow/pkg/models"
)

// PayerGateway abstracts payer interactions for action coordination and
// monitoring. The production system would integrate real payer portals; the
// mock implementation simulates deterministic responses.
type PayerGateway interface {
	Submit(ctx context.Context, c *models.Case, payer string) (reference string, err error)
	CheckStatus(ctx context.Context, c *models.Case, payer string) (models.PayerStatus, string, error)
	SubmitAppeal(ctx context.Context, c *models.Case, payer string) (reference string, err error)
}

// MockPayerGateway simulates payer behavior deterministically: the same
// case and payer always walk the same status path, and the final
// determination follows the coverage assessment's approval likelihood.
type MockPayerGateway struct {
	mu     sync.Mutex
	checks map[string]int
}

// NewMockPayerGateway creates the simulated payer gateway.
func NewMockPayerGateway() *MockPayerGateway {
	return &MockPayerGateway{checks: make(map[string]int)}
}

func (g *MockPayerGateway) Submit(_ context.Context, c *models.Case, payer string) (string, error) {
	return fmt.Sprintf("PA-%08X", fingerprint(c.CaseID, payer)), nil
}

// CheckStatus walks submitted → under_review → determination. The
// determination is approved when the payer's assessed approval likelihood
// is at least 0.5, denied otherwise.
func (g *MockPayerGateway) CheckStatus(_ context.Context, c *models.Case, payer string) (models.PayerStatus, string, error) {
	g.mu.Lock()
	key := c.CaseID + "/" + payer
	g.checks[key]++
	n := g.checks[key]
	g.mu.Unlock()

	if n == 1 {
		return models.PayerUnderReview, "request under clinical review", nil
	}

	likelihood := 0.0
	if a, ok := c.CoverageAssessments[payer]; ok && a != nil {
		likelihood = a.ApprovalLikelihood
	}
	state := c.PayerStates[payer]
	if state != nil && state.Status == models.PayerAppealSubmitted {
		// Appeals succeed when the original assessment was borderline.
		if likelihood >= 0.35 {
			return models.PayerAppealApproved, "appeal approved after peer review", nil
		}
		return models.PayerAppealDenied, "appeal denied; determination final", nil
	}
	if likelihood >= 0.5 {
		return models.PayerApproved, "approved per coverage policy", nil
	}
	return models.PayerDenied, "clinical criteria not met per submitted documentation", nil
}

func (g *MockPayerGateway) SubmitAppeal(_ context.Context, c *models.Case, payer string) (string, error) {
	return fmt.Sprintf("AP-%08X", fingerprint(c.CaseID, payer, "appeal")), nil
}

func fingerprint(parts ...string) uint32 {
	h := fnv.New32a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
	}
	return h.Sum32()
}
