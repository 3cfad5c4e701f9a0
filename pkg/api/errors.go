package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/priorauth-labs/caseflow/pkg/casestore"
	"github.com/priorauth-labs/caseflow/pkg/llm"
	"github.com/priorauth-labs/caseflow/pkg/orchestrator"
	"github.com/priorauth-labs/caseflow/pkg/policy"
	"github.com/priorauth-labs/caseflow/pkg/prompts"
)

// respondError maps domain errors onto HTTP responses with a stable code.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation_failed"})
	case errors.Is(err, casestore.ErrCaseNotFound),
		errors.Is(err, casestore.ErrSnapshotNotFound),
		errors.Is(err, policy.ErrPolicyNotFound),
		errors.Is(err, prompts.ErrPromptNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": "not_found"})
	case errors.Is(err, casestore.ErrOptimisticLock):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "optimistic_lock_failed"})
	case errors.Is(err, orchestrator.ErrInvalidStage),
		errors.Is(err, orchestrator.ErrUnknownAction):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "invalid_stage"})
	case errors.Is(err, policy.ErrMalformedAssessment):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "code": "malformed_assessment"})
	case errors.Is(err, llm.ErrGatewayExhausted):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "code": "gateway_exhausted"})
	default:
		slog.Error("Unexpected API error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": "internal"})
	}
}
