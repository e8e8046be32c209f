// Command fraudadjudicator runs the fraud-adjudication HTTP API and its
// Dispatcher worker pool in one process.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/aboerstra/fraud-adjudicator/pkg/adjudicator"
	"github.com/aboerstra/fraud-adjudicator/pkg/api"
	"github.com/aboerstra/fraud-adjudicator/pkg/breaker"
	"github.com/aboerstra/fraud-adjudicator/pkg/config"
	"github.com/aboerstra/fraud-adjudicator/pkg/features"
	"github.com/aboerstra/fraud-adjudicator/pkg/ingress"
	"github.com/aboerstra/fraud-adjudicator/pkg/masking"
	"github.com/aboerstra/fraud-adjudicator/pkg/mlclient"
	"github.com/aboerstra/fraud-adjudicator/pkg/queue"
	"github.com/aboerstra/fraud-adjudicator/pkg/rules"
	"github.com/aboerstra/fraud-adjudicator/pkg/store"
	"github.com/aboerstra/fraud-adjudicator/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	envPath := flag.String("env-file", getEnv("ENV_FILE", ".env"), "path to a .env file to load before reading configuration")
	policyPath := flag.String("policy-pack", getEnv("POLICY_PACK_PATH", ""), "path to a YAML policy pack overriding built-in thresholds")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil {
		slog.Warn("could not load env file, continuing with existing environment", "path", *envPath, "error", err)
	} else {
		slog.Info("loaded environment file", "path", *envPath)
	}

	logger := slog.Default()
	logger.Info("starting fraud-adjudicator", "version", version.Full())

	cfg, err := config.Load(*policyPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := store.NewClient(ctx, cfg.DB)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database and applied migrations")

	masker := masking.NewService()
	breakerRegistry := breaker.NewRegistry()

	llmClient := adjudicator.NewClient(cfg.LLM, breakerRegistry)
	llmStage := adjudicator.NewStage(llmClient, cfg.LLM, masker, logger)

	mlClient := mlclient.NewClient(cfg.MLClient)
	extractor := features.NewExtractor(db)
	rulePack := rules.BuiltinRulePack()

	pipeline := queue.NewPipeline(db, rulePack, extractor, mlClient, llmStage, cfg.Policy, masker, logger)

	podID := getEnv("POD_ID", "fraudadjudicator")
	pool := queue.NewWorkerPool(podID, db, db, pipeline, cfg.Queue, masker, logger)
	pool.Start(ctx)
	defer pool.Stop()
	logger.Info("dispatcher pool started", "worker_count", cfg.Queue.WorkerCount)

	if err := adjudicator.Canary(cfg.Policy); err != nil {
		logger.Warn("adjudicator canary failed at startup; decide() thresholds may have drifted", "error", err)
	}

	ingressSvc := ingress.NewService(db, cfg.Ingress)
	server := api.NewServer(ingressSvc, pool, db, mlClient)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Addr)
		if err := server.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		logger.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}
}
