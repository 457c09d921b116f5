// Command server is the composition root for the Agent Orchestration
// Service: it wires storage, the execution engine, the automation task
// fabric, and the HTTP API together and runs them until signalled to stop,
// the same top-level shape as the teacher-adjacent pack's cmd/looms
// entrypoints.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/toolforge/agentgraph/internal/api"
	"github.com/toolforge/agentgraph/internal/api/middleware"
	"github.com/toolforge/agentgraph/internal/automation"
	"github.com/toolforge/agentgraph/internal/automation/source"
	"github.com/toolforge/agentgraph/internal/config"
	"github.com/toolforge/agentgraph/internal/db"
	"github.com/toolforge/agentgraph/internal/engine"
	"github.com/toolforge/agentgraph/internal/engine/emit"
	"github.com/toolforge/agentgraph/internal/engine/model"
	"github.com/toolforge/agentgraph/internal/execution"
	"github.com/toolforge/agentgraph/internal/logging"
	"github.com/toolforge/agentgraph/internal/session"
	"github.com/toolforge/agentgraph/internal/skill"
	"github.com/toolforge/agentgraph/internal/workflow"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = database.Close() }()

	workflows := workflow.NewStore(database)
	skills := skill.NewRegistry(database)
	invoker := skill.NewInvoker(skill.NewEnvSecretStore())
	sessions := session.NewStore(database)
	executions := execution.NewStore(database)
	checkpoints := engine.NewCheckpointStore(database)

	chat, err := model.New(cfg.LLMProvider, cfg.LLMAPIKey, "")
	if err != nil {
		return fmt.Errorf("build chat model: %w", err)
	}

	tracerProvider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tracerProvider)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracerProvider.Shutdown(shutdownCtx)
	}()

	hub := emit.NewHub(256)
	baseEmitter := emit.NewMulti(emit.NewZapEmitter(log), emit.NewOtelEmitter(otel.Tracer("agentgraph")))

	eng := engine.NewEngine(
		&engine.Evaluators{Chat: chat, Invoker: invoker, Skills: skills, Emitter: baseEmitter},
		checkpoints,
		baseEmitter,
		cfg.MaxConcurrentNodes,
		cfg.NodeReentryCap,
		cfg.CheckpointEvery,
	)
	eng.Metrics = engine.NewMetrics(prometheus.DefaultRegisterer)

	runner := execution.NewRunner(executions, eng, hub, log)

	validator, err := middleware.NewValidator(ctx, cfg.JWKSURL)
	if err != nil {
		return fmt.Errorf("build jwt validator: %w", err)
	}

	router := api.NewRouter(&api.Deps{
		Workflows:          workflows,
		Skills:             skills,
		Sessions:           sessions,
		Executions:         executions,
		Runner:             runner,
		Hub:                hub,
		Engine:             eng,
		Auth:               validator,
		Log:                log,
		QuotaDefaultPerDay: cfg.QuotaDefaultPerDay,
	})
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", router)
	httpServer := api.NewServer(cfg.HTTPAddr, mux, log)

	broker := automation.NewBroker(automation.BrokerConfig{
		Addr:     cfg.BrokerAddr,
		Password: cfg.BrokerPassword,
		DB:       cfg.BrokerDB,
	})
	defer func() { _ = broker.Close() }()

	candidates := automation.NewCandidateRepo(database)
	sources := defaultSources(cfg)
	sourceIndex := make(map[string]source.Source, len(sources))
	for _, src := range sources {
		sourceIndex[src.Name()] = src
	}

	pipeline := &automation.Pipeline{
		Broker:     broker,
		Candidates: candidates,
		Sources:    sourceIndex,
		Chat:       chat,
		IndexURL:   cfg.SearchIndexURL,
		IndexKey:   cfg.SearchIndexKey,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	taskRegistry := automation.NewRegistry()
	if err := pipeline.Register(taskRegistry); err != nil {
		return fmt.Errorf("register automation handlers: %w", err)
	}

	scheduler := automation.NewScheduler(broker, sources, func(src, errMsg string) {
		log.Warn("source discovery failed", zap.String("source", src), zap.String("error", errMsg))
	})
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	pools := []*automation.WorkerPool{
		{Broker: broker, Registry: taskRegistry, Queue: automation.QueueCrawlers, Concurrency: 2, LeaseTTL: 2 * time.Minute, PollTimeout: 5 * time.Second, OnTaskError: logTaskError(log)},
		{Broker: broker, Registry: taskRegistry, Queue: automation.QueueEnrichment, Concurrency: 4, LeaseTTL: 2 * time.Minute, PollTimeout: 5 * time.Second, OnTaskError: logTaskError(log)},
		{Broker: broker, Registry: taskRegistry, Queue: automation.QueueIndexing, Concurrency: 2, LeaseTTL: 2 * time.Minute, PollTimeout: 5 * time.Second, OnTaskError: logTaskError(log)},
	}
	for _, pool := range pools {
		pool := pool
		go func() {
			if err := pool.Run(ctx); err != nil {
				log.Error("worker pool stopped", zap.String("queue", string(pool.Queue)), zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error("http server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func logTaskError(log *zap.Logger) func(t automation.Task, err error) {
	return func(t automation.Task, err error) {
		log.Warn("automation task failed", zap.String("kind", t.Kind), zap.String("task_id", t.ID), zap.Error(err))
	}
}

// defaultSources builds the catalogue discovery sources spec.md §4.5 names,
// each on its own schedule and quality gate.
func defaultSources(cfg *config.Config) []source.Source {
	return []source.Source{
		source.NewArxivSource("cs.AI"),
		source.NewGitHubTrendingSource(cfg.GitHubToken, []string{"agent", "llm", "workflow"}, 50),
		source.NewProductHuntSource(cfg.ProductHuntToken, 100),
	}
}
