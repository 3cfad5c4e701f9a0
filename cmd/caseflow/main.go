// caseflow server: exposes the prior-authorization HTTP API, streams case
// progress over SSE and WebSocket, and orchestrates case processing.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/priorauth-labs/caseflow/pkg/api"
	"github.com/priorauth-labs/caseflow/pkg/audit"
	"github.com/priorauth-labs/caseflow/pkg/casestore"
	"github.com/priorauth-labs/caseflow/pkg/config"
	"github.com/priorauth-labs/caseflow/pkg/database"
	"github.com/priorauth-labs/caseflow/pkg/events"
	"github.com/priorauth-labs/caseflow/pkg/intelligence"
	"github.com/priorauth-labs/caseflow/pkg/llm"
	"github.com/priorauth-labs/caseflow/pkg/llm/providers"
	"github.com/priorauth-labs/caseflow/pkg/masking"
	"github.com/priorauth-labs/caseflow/pkg/orchestrator"
	"github.com/priorauth-labs/caseflow/pkg/policy"
	"github.com/priorauth-labs/caseflow/pkg/prompts"
	"github.com/priorauth-labs/caseflow/pkg/version"
	"github.com/priorauth-labs/caseflow/pkg/waypoint"
)

const (
	hubReplayLimit       = 10
	hubHeartbeatInterval = 30 * time.Second
	cacheSweepInterval   = 1 * time.Hour
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	envPath := flag.String("env-file",
		getEnv("ENV_FILE", ".env"),
		"Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envPath, "error", err)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	slog.Info("Starting caseflow", "version", version.Full(), "http_port", httpPort)

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	aliases, err := config.LoadMedicationAliases(cfg.AliasesPath)
	if err != nil {
		slog.Error("Failed to load medication aliases", "path", cfg.AliasesPath, "error", err)
		os.Exit(1)
	}
	cfg.MedicationAliases = aliases

	// 2. Database
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. LLM providers and gateway
	var clients []llm.ProviderClient
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		clients = append(clients, providers.NewClaude(key, cfg.Gateway.ClaudeModel, cfg.Gateway.ClaudeMaxTokens))
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		gemini, gerr := providers.NewGemini(ctx, key, cfg.Gateway.GeminiModel, cfg.Gateway.EmbeddingModel, cfg.Gateway.GeminiMaxTokens)
		if gerr != nil {
			slog.Error("Failed to initialize Gemini provider", "error", gerr)
			os.Exit(1)
		}
		clients = append(clients, gemini)
	}
	if key := os.Getenv("AZURE_OPENAI_API_KEY"); key != "" && cfg.Gateway.AzureEndpoint != "" {
		azure, aerr := providers.NewAzureOpenAI(cfg.Gateway.AzureEndpoint, key,
			cfg.Gateway.AzureDeployment, cfg.Gateway.AzureAPIVersion, cfg.Gateway.AzureMaxTokens)
		if aerr != nil {
			slog.Error("Failed to initialize Azure OpenAI provider", "error", aerr)
			os.Exit(1)
		}
		clients = append(clients, azure)
	}
	if len(clients) == 0 {
		slog.Error("No LLM providers configured; set at least one of ANTHROPIC_API_KEY, GEMINI_API_KEY, AZURE_OPENAI_API_KEY")
		os.Exit(1)
	}
	gateway := llm.NewGateway(cfg.Gateway, clients, llm.NewDBUsageRecorder(dbClient.DB))
	gateway.SetScrubber(masking.NewService(nil))
	slog.Info("LLM gateway initialized", "providers", len(clients))

	// 4. Prompts, rubrics, corpus
	promptStore := prompts.NewStore(cfg.PromptsDir, nil)
	rubrics, err := policy.LoadRubrics(cfg.DecisionRubricsPath)
	if err != nil {
		slog.Error("Failed to load decision rubrics", "path", cfg.DecisionRubricsPath, "error", err)
		os.Exit(1)
	}
	corpus, err := intelligence.LoadCorpus(cfg.Intelligence.HistoricalDataPath)
	if err != nil {
		slog.Error("Failed to load historical case corpus", "path", cfg.Intelligence.HistoricalDataPath, "error", err)
		os.Exit(1)
	}
	slog.Info("Reference data loaded", "historical_cases", len(corpus))

	// 5. Domain services
	policyRepo := policy.NewRepository(dbClient.DB, cfg.PoliciesDir, cfg.MedicationAliases, cfg.PolicyCacheDefaultVersion)
	reasoner := policy.NewReasoner(gateway, policyRepo, promptStore, rubrics, cfg.Analysis)
	refiner := policy.NewRefiner(reasoner, cfg.Analysis)

	intelCache := intelligence.NewCache(dbClient.DB, cfg.Intelligence.CacheTTL)
	intelService := intelligence.NewService(gateway, promptStore, intelCache, corpus, cfg.MedicationAliases, cfg.Intelligence)

	// 6. Streaming hub and background loops
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	hub := events.NewHub(hubReplayLimit, hubHeartbeatInterval)
	go hub.Run(runCtx)

	go func() {
		ticker := time.NewTicker(cacheSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if n, serr := intelCache.Sweep(runCtx); serr != nil {
					slog.Warn("Intelligence cache sweep failed", "error", serr)
				} else if n > 0 {
					slog.Info("Intelligence cache swept", "expired_rows", n)
				}
			}
		}
	}()

	// 7. Orchestrator
	store := casestore.NewSQLStore(dbClient.DB)
	auditChain := audit.NewStore(dbClient.DB)
	orch := orchestrator.New(orchestrator.Options{
		Store:      store,
		Audit:      auditChain,
		Assessor:   reasoner,
		Refiner:    refiner,
		Insights:   intelService,
		Hub:        hub,
		Waypoints:  waypoint.NewWriter(cfg.WaypointsDir),
		Payers:     orchestrator.NewMockPayerGateway(),
		Outcomes:   orchestrator.NewOutcomeRecorder(dbClient.DB),
		Weights:    cfg.ScoringWeights,
		Monitoring: cfg.Monitoring,
	})

	// 8. HTTP server
	server := api.NewServer(orch, store, auditChain, hub, dbClient, gateway, cfg.WSAuthToken)
	httpServer := &http.Server{
		Addr:    ":" + httpPort,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("caseflow started successfully")

	// 9. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 10. Graceful shutdown
	cancelRun()
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
