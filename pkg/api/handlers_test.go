package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priorauth-labs/caseflow/pkg/audit"
	"github.com/priorauth-labs/caseflow/pkg/casestore"
	"github.com/priorauth-labs/caseflow/pkg/config"
	"github.com/priorauth-labs/caseflow/pkg/events"
	"github.com/priorauth-labs/caseflow/pkg/models"
	"github.com/priorauth-labs/caseflow/pkg/orchestrator"
	"github.com/priorauth-labs/caseflow/pkg/policy"
)

// memStore is a minimal in-memory casestore.Store for handler tests.
type memStore struct {
	mu    sync.Mutex
	cases map[string]*models.Case
}

func newMemStore() *memStore {
	return &memStore{cases: make(map[string]*models.Case)}
}

func (s *memStore) Create(_ context.Context, c *models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Version = 1
	s.cases[c.CaseID] = c
	return nil
}

func (s *memStore) Get(_ context.Context, caseID string) (*models.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[caseID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", casestore.ErrCaseNotFound, caseID)
	}
	return c, nil
}

func (s *memStore) Update(_ context.Context, caseID string, _ int, mutate func(*models.Case) error, _, _ string) (*models.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[caseID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", casestore.ErrCaseNotFound, caseID)
	}
	if err := mutate(c); err != nil {
		return nil, err
	}
	c.Version++
	return c, nil
}

func (s *memStore) Reset(_ context.Context, caseID string) (*models.Case, error) {
	return s.Get(context.Background(), caseID)
}

func (s *memStore) GetSnapshot(_ context.Context, caseID string, version int) (*models.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[caseID]
	if !ok || c.Version != version {
		return nil, fmt.Errorf("%w: %s v%d", casestore.ErrSnapshotNotFound, caseID, version)
	}
	return c, nil
}

func (s *memStore) ListByStage(context.Context, models.CaseStage) ([]*models.Case, error) {
	return nil, nil
}

// memChain is an in-memory audit.Chain for handler tests.
type memChain struct {
	mu     sync.Mutex
	events map[string][]models.DecisionEvent
}

func newMemChain() *memChain {
	return &memChain{events: make(map[string][]models.DecisionEvent)}
}

func (m *memChain) LogEvent(_ context.Context, entry audit.Entry) (*models.DecisionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	event := models.DecisionEvent{
		CaseID:       entry.CaseID,
		EventType:    entry.EventType,
		DecisionMade: entry.DecisionMade,
	}
	m.events[entry.CaseID] = append(m.events[entry.CaseID], event)
	return &event, nil
}

func (m *memChain) GetAuditTrail(_ context.Context, caseID string) ([]models.DecisionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[caseID], nil
}

func (m *memChain) VerifyChain(context.Context, string) (bool, error) {
	return true, nil
}

type fixedAssessor struct{}

func (fixedAssessor) AssessCoverage(_ context.Context, req policy.AssessmentRequest) (*models.CoverageAssessment, error) {
	return &models.CoverageAssessment{
		PayerName:          req.PayerName,
		CoverageStatus:     models.StatusLikelyCovered,
		ApprovalLikelihood: 0.8,
	}, nil
}

func testRouter(t *testing.T) (*gin.Engine, *memStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newMemStore()
	chain := newMemChain()
	orch := orchestrator.New(orchestrator.Options{
		Store:    store,
		Audit:    chain,
		Assessor: fixedAssessor{},
		Payers:   orchestrator.NewMockPayerGateway(),
		Weights: models.ScoringWeights{
			Speed: 0.30, Approval: 0.40, LowRework: 0.20, PatientBurden: 0.10,
		},
		Monitoring: config.MonitoringConfig{StaleThreshold: 2, MaxIterations: 10},
	})
	hub := events.NewHub(10, 30*time.Second)

	server := NewServer(orch, store, chain, hub, nil, nil, "")
	return server.Router(), store
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func intakeBody() models.CreateCaseRequest {
	return models.CreateCaseRequest{
		Patient: models.Patient{
			PatientID:    "p-100",
			FirstName:    "Jordan",
			LastName:     "Rivera",
			DateOfBirth:  "1988-04-12",
			PrimaryPayer: "anthem",
		},
		Medication: models.MedicationRequest{
			MedicationName: "infliximab",
			Indication:     "Crohn's disease",
			ICD10Code:      "K50.00",
		},
	}
}

func TestCreateCaseEndpoint(t *testing.T) {
	router, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/cases", intakeBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.Case
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.CaseID)
	assert.Equal(t, models.StageIntake, created.Stage)

	rec = doJSON(t, router, http.MethodGet, "/api/cases/"+created.CaseID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateCaseValidationFailure(t *testing.T) {
	router, _ := testRouter(t)

	body := intakeBody()
	body.Patient.PatientID = ""
	rec := doJSON(t, router, http.MethodPost, "/api/cases", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation_failed")
}

func TestGetCaseNotFound(t *testing.T) {
	router, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/cases/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
}

func TestSubmitDecisionEndpoint(t *testing.T) {
	router, store := testRouter(t)
	require.NoError(t, store.Create(context.Background(), &models.Case{
		CaseID:  "case-1",
		Stage:   models.StageAwaitingHumanDecision,
		Patient: models.Patient{PatientID: "p-100", PrimaryPayer: "anthem"},
		PayerStates: map[string]*models.PayerState{
			"anthem": {PayerName: "anthem", Status: models.PayerNotSubmitted},
		},
		RequiresHumanDecision: true,
	}))

	rec := doJSON(t, router, http.MethodPost, "/api/cases/case-1/decision", orchestrator.DecisionRequest{
		Action:     models.ActionApprove,
		ReviewerID: "rev-42",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated models.Case
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, models.StageStrategyGeneration, updated.Stage)
}

func TestSubmitDecisionWrongStageConflicts(t *testing.T) {
	router, store := testRouter(t)
	require.NoError(t, store.Create(context.Background(), &models.Case{
		CaseID:  "case-1",
		Stage:   models.StageMonitoring,
		Patient: models.Patient{PatientID: "p-100", PrimaryPayer: "anthem"},
	}))

	rec := doJSON(t, router, http.MethodPost, "/api/cases/case-1/decision", orchestrator.DecisionRequest{
		Action:     models.ActionApprove,
		ReviewerID: "rev-42",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_stage")
}

func TestAuditEndpoints(t *testing.T) {
	router, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/cases", intakeBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Case
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, router, http.MethodGet, "/api/cases/"+created.CaseID+"/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "case_created")

	rec = doJSON(t, router, http.MethodGet, "/api/cases/"+created.CaseID+"/audit/verify", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"chain_valid":true`)
}

func TestGetSnapshotBadVersion(t *testing.T) {
	router, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/cases/case-1/snapshots/two", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}
