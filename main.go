// Command llmrelay starts the relay's HTTP server: chat-completions ingress,
// the trace-browser admin surface, a health check, and a Prometheus
// /metrics endpoint. Grounded on the teacher's main() — flag-based config
// path, zap.NewProduction logger, rs/cors wrapping the router, and a
// signal-driven graceful shutdown with a bounded Shutdown timeout.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"

	"github.com/relaycore/llmrelay/admin"
	"github.com/relaycore/llmrelay/backend"
	"github.com/relaycore/llmrelay/cache"
	"github.com/relaycore/llmrelay/config"
	"github.com/relaycore/llmrelay/embedding"
	"github.com/relaycore/llmrelay/metrics"
	"github.com/relaycore/llmrelay/scheduler"
	"github.com/relaycore/llmrelay/server"
	"github.com/relaycore/llmrelay/trace"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	policyPath := flag.String("policy", "", "path to the policy YAML file (overrides POLICY_PATH)")
	flag.Parse()

	settings := config.LoadSettings()
	if *policyPath != "" {
		settings.PolicyPath = *policyPath
	}

	policy, err := config.LoadPolicy(settings.PolicyPath)
	if err != nil {
		sugar.Fatalw("failed to load policy", "path", settings.PolicyPath, "error", err)
	}
	sugar.Infow("loaded policy", "path", settings.PolicyPath, "policy_version", policy.PolicyVersion)

	clk := clock.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsRegistry := metrics.New()

	backendAdapter, embedder, traceStore, cacheLayer, closers := wireBackingServices(ctx, settings, sugar, metricsRegistry)
	defer func() {
		for _, closer := range closers {
			closer()
		}
	}()

	sched := scheduler.New(policy.Scheduler, clk, sugar).WithMetrics(metricsRegistry)
	sched.Start()
	defer sched.Stop()

	cacheLayer.Embedder = embedder

	relayServer := &server.Server{
		Policy:     policy,
		Scheduler:  sched,
		Cache:      cacheLayer,
		Backend:    backendAdapter,
		TraceStore: traceStore,
		Settings:   settings,
		Logger:     sugar,
		Clock:      clk,
	}

	router := relayServer.Router()
	admin.NewServer(traceStore).RegisterRoutes(router)
	router.Handle("/metrics", metricsRegistry.Handler()).Methods(http.MethodGet)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"*"},
	})

	address := fmt.Sprintf("%s:%d", settings.RelayHost, settings.RelayPort)
	httpServer := &http.Server{
		Addr:    address,
		Handler: corsMiddleware.Handler(router),
	}

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-shutdownSignal
		sugar.Infow("shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			sugar.Errorw("server forced to shutdown", "error", err)
		}
	}()

	sugar.Infow("starting server", "address", address, "backend_mode", settings.BackendMode)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		sugar.Fatalw("server failed", "error", err)
	}

	sugar.Infow("server exited gracefully")
}

// wireBackingServices builds the backend adapter, embedder, trace store,
// and cache layer for the configured BackendMode. "mock" needs no live
// infrastructure (CI and local development); anything else wires Ollama,
// Valkey, and Postgres. Returned closers must be called, in order, on
// shutdown.
func wireBackingServices(
	ctx context.Context,
	settings config.Settings,
	logger *zap.SugaredLogger,
	metricsRegistry *metrics.Registry,
) (backend.Adapter, embedding.Embedder, trace.Store, *cache.Layer, []func()) {
	var closers []func()

	if settings.BackendMode == "mock" {
		logger.Infow("backend_mode=mock: using in-memory trace store and mock backend/embedder")
		return backend.NewMockAdapter(),
			embedding.NewMockEmbedder(),
			trace.NewMemoryStore(),
			&cache.Layer{Logger: logger, Metrics: metricsRegistry},
			closers
	}

	backendAdapter := backend.NewOllamaAdapter(settings.OllamaBaseUrl)

	embedder, err := embedding.NewGenAIEmbedder(ctx, os.Getenv("GOOGLE_API_KEY"), "text-embedding-004")
	if err != nil {
		logger.Fatalw("failed to create genai embedder", "error", err)
	}

	traceStore, err := trace.NewPostgresStore(ctx, settings.DatabaseUrl)
	if err != nil {
		logger.Fatalw("failed to open postgres trace store", "error", err)
	}
	closers = append(closers, traceStore.Close)

	semanticPool, err := pgxpool.New(ctx, settings.DatabaseUrl)
	if err != nil {
		logger.Fatalw("failed to open postgres pool for semantic cache", "error", err)
	}
	closers = append(closers, semanticPool.Close)

	valkeyClient, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{settings.ValkeyEndpoint},
	})
	if err != nil {
		logger.Fatalw("failed to create valkey client", "error", err)
	}
	closers = append(closers, valkeyClient.Close)

	cacheLayer := &cache.Layer{
		Exact:    cache.NewExactCache(valkeyClient, logger),
		Semantic: cache.NewSemanticCache(semanticPool, logger),
		Logger:   logger,
		Metrics:  metricsRegistry,
	}

	return backendAdapter, embedder, traceStore, cacheLayer, closers
}
