package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/priorauth-labs/caseflow/pkg/models"
	"github.com/priorauth-labs/caseflow/pkg/orchestrator"
)

// createCase handles POST /api/cases.
func (s *Server) createCase(c *gin.Context) {
	var req models.CreateCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "bad_request"})
		return
	}
	created, err := s.orch.CreateCase(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// getCase handles GET /api/cases/:id.
func (s *Server) getCase(c *gin.Context) {
	result, err := s.orch.GetCase(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// processCase handles POST /api/cases/:id/process. Processing runs in the
// background; clients follow progress over SSE or WebSocket.
func (s *Server) processCase(c *gin.Context) {
	caseID := c.Param("id")
	if _, err := s.orch.GetCase(c.Request.Context(), caseID); err != nil {
		respondError(c, err)
		return
	}
	go func() {
		if _, err := s.orch.ProcessCase(context.Background(), caseID); err != nil {
			slog.Error("Case processing failed", "case_id", caseID, "error", err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"case_id": caseID, "status": "processing"})
}

// runStage handles POST /api/cases/:id/stages/:stage/run?refresh=true.
func (s *Server) runStage(c *gin.Context) {
	refresh, _ := strconv.ParseBool(c.DefaultQuery("refresh", "false"))
	outcome, err := s.orch.RunStage(c.Request.Context(), c.Param("id"),
		models.CaseStage(c.Param("stage")), refresh)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// submitDecision handles POST /api/cases/:id/decision.
func (s *Server) submitDecision(c *gin.Context) {
	var req orchestrator.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "bad_request"})
		return
	}
	updated, err := s.orch.SubmitDecision(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// getAuditTrail handles GET /api/cases/:id/audit.
func (s *Server) getAuditTrail(c *gin.Context) {
	trail, err := s.audit.GetAuditTrail(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"case_id": c.Param("id"), "events": trail})
}

// verifyAuditChain handles GET /api/cases/:id/audit/verify.
func (s *Server) verifyAuditChain(c *gin.Context) {
	valid, err := s.audit.VerifyChain(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"case_id": c.Param("id"), "chain_valid": valid})
}

// getSnapshot handles GET /api/cases/:id/snapshots/:version.
func (s *Server) getSnapshot(c *gin.Context) {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "version must be an integer", "code": "bad_request"})
		return
	}
	snapshot, err := s.store.GetSnapshot(c.Request.Context(), c.Param("id"), version)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
