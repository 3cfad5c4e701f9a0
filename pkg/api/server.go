// Package api exposes the caseflow HTTP surface: case intake and retrieval,
// human decisions, stage runs, audit inspection, SSE progress streaming,
// and WebSocket fan-out.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/priorauth-labs/caseflow/pkg/audit"
	"github.com/priorauth-labs/caseflow/pkg/casestore"
	"github.com/priorauth-labs/caseflow/pkg/database"
	"github.com/priorauth-labs/caseflow/pkg/events"
	"github.com/priorauth-labs/caseflow/pkg/llm"
	"github.com/priorauth-labs/caseflow/pkg/orchestrator"
)

const healthTimeout = 5 * time.Second

// Server wires the HTTP handlers to the domain services.
type Server struct {
	orch        *orchestrator.Orchestrator
	store       casestore.Store
	audit       audit.Chain
	hub         *events.Hub
	db          *database.Client
	gateway     *llm.Gateway
	wsAuthToken string
}

// NewServer creates the API server.
func NewServer(orch *orchestrator.Orchestrator, store casestore.Store, auditChain audit.Chain, hub *events.Hub, db *database.Client, gateway *llm.Gateway, wsAuthToken string) *Server {
	return &Server{
		orch:        orch,
		store:       store,
		audit:       auditChain,
		hub:         hub,
		db:          db,
		gateway:     gateway,
		wsAuthToken: wsAuthToken,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	cases := r.Group("/api/cases")
	{
		cases.POST("", s.createCase)
		cases.GET("/:id", s.getCase)
		cases.POST("/:id/process", s.processCase)
		cases.POST("/:id/stages/:stage/run", s.runStage)
		cases.POST("/:id/decision", s.submitDecision)
		cases.GET("/:id/audit", s.getAuditTrail)
		cases.GET("/:id/audit/verify", s.verifyAuditChain)
		cases.GET("/:id/snapshots/:version", s.getSnapshot)
		cases.GET("/:id/stream", s.streamPolicyAnalysis)
	}

	r.GET("/ws/cases/:id", s.caseWebSocket)
	r.GET("/ws/notifications", s.systemWebSocket)
	return r
}

// health reports database and provider health.
func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	body := gin.H{"status": "healthy"}

	if s.db != nil {
		if err := s.db.Health(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["database"] = err.Error()
		} else {
			body["database"] = "ok"
		}
	}
	if s.gateway != nil {
		body["providers"] = s.gateway.HealthCheck(ctx)
	}
	c.JSON(status, body)
}
