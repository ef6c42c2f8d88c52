// cmd/engine/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"objection-engine/internal/common/aws"
	"objection-engine/internal/common/config"
	"objection-engine/internal/common/database"
	"objection-engine/internal/common/logger"
	"objection-engine/internal/common/observability"
	"objection-engine/internal/health"
	"objection-engine/internal/httpapi"
	"objection-engine/internal/integrations/ai"
	"objection-engine/internal/integrations/crm"
	"objection-engine/internal/integrations/docrender"
	"objection-engine/internal/integrations/email"
	"objection-engine/internal/models"
	"objection-engine/internal/retry"
	"objection-engine/internal/store"
	"objection-engine/internal/tracker"
	"objection-engine/internal/webhook"
	"objection-engine/internal/workers/assemble"
	"objection-engine/internal/workers/finalize"
	"objection-engine/internal/workers/generate"
	"objection-engine/internal/workflow"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting objection engine...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init AWS Clients ---
	sesClient, err := aws.NewSESClient(ctx, cfg.Integrations.AWS.Region)
	if err != nil {
		zapLog.Fatal("ses client failed", zap.Error(err))
	}
	snsClient, err := aws.NewSNSClient(ctx, cfg.Integrations.AWS.Region)
	if err != nil {
		zapLog.Fatal("sns client failed", zap.Error(err))
	}

	// --- Init External Service Clients ---
	openaiProvider := ai.NewOpenAIProvider(cfg.Integrations.OpenAI.APIKey, cfg.Integrations.OpenAI.Model, log)
	mockProvider := ai.NewMockProvider()

	renderClient := docrender.NewClient(
		cfg.Integrations.DocRender.BaseURL,
		cfg.Integrations.DocRender.APIKey,
		cfg.Integrations.DocRender.Timeout,
	)
	crmClient := crm.NewClient(
		cfg.Integrations.CRM.BaseURL,
		cfg.Integrations.CRM.AuthToken,
		cfg.Integrations.CRM.Timeout,
	)
	sender := email.NewSESSender(sesClient)

	zapLog.Info("All external service clients initialized")

	// --- Stores and Status Tracker ---
	submissions := store.NewSubmissionStore(pg)
	documents := store.NewDocumentStore(pg)
	surveys := store.NewSurveyStore(pg)
	drafts := store.NewDraftStore(pg)
	projects := store.NewProjectStore(pg)
	deliveries := store.NewDeliveryStore(pg)
	events := store.NewEventStore(pg)
	retryOps := store.NewRetryOpStore(pg)

	track := tracker.New(submissions, documents, log)

	// --- Workflow Services ---
	generator := generate.NewService(
		generate.ServiceDependencies{
			Primary:  openaiProvider,
			Fallback: mockProvider,
			Logger:   log,
		},
		&generate.Config{
			Enabled:     cfg.Integrations.OpenAI.Enabled,
			Timeout:     cfg.Integrations.OpenAI.Timeout,
			Temperature: cfg.Integrations.OpenAI.Temperature,
			MaxTokens:   cfg.Integrations.OpenAI.MaxTokens,
			Environment: cfg.App.Environment,
		},
	)

	assembler := assemble.NewService(log)

	finalizer := finalize.NewService(
		finalize.ServiceDependencies{
			Documents:  documents,
			Deliveries: deliveries,
			Renderer:   renderClient,
			Sender:     sender,
			Logger:     log,
		},
		&finalize.Config{
			FromAddress: cfg.Integrations.AWS.SES.FromEmail,
			ReplyTo:     cfg.Delivery.ReplyToEmail,
			InfoPackURL: cfg.Delivery.InfoPackURL,
			Environment: cfg.App.Environment,
		},
	)

	// --- Health Monitor ---
	monitor := health.NewMonitor(cfg.Health, rdb, log)
	if cfg.Integrations.OpenAI.Enabled {
		monitor.Register(models.OpAIGenerate.Component(), openaiProvider)
	} else {
		monitor.Register(models.OpAIGenerate.Component(), mockProvider)
	}
	monitor.Register(models.OpDocRender.Component(), renderClient)
	monitor.Register(models.OpEmailSend.Component(), sender)
	monitor.Register(models.OpCRMSync.Component(), crmClient)

	if err := monitor.Start(ctx); err != nil {
		zapLog.Fatal("health monitor failed to start", zap.Error(err))
	}
	defer monitor.Stop()
	zapLog.Info("Health monitor started", zap.Duration("probeInterval", cfg.Health.ProbeInterval))

	// --- Retry Engine ---
	notifier := retry.NewSNSNotifier(snsClient, cfg.Integrations.AWS.SNS.AlertTopicARN, rdb, log)
	engine := retry.NewEngine(retryOps, track, monitor, notifier, cfg.Retry, log)

	// --- Workflow Orchestrator ---
	orch := workflow.New(workflow.Dependencies{
		Submissions: submissions,
		Documents:   documents,
		Surveys:     surveys,
		Drafts:      drafts,
		Projects:    projects,
		Tracker:     track,
		Generator:   generator,
		Assembler:   assembler,
		Finalizer:   finalizer,
		Renderer:    renderClient,
		CRM:         crmClient,
		Scheduler:   engine,
		Logger:      log,
	})

	engine.Register(models.OpAIGenerate, orch.HandleRetry)
	engine.Register(models.OpDocRender, orch.HandleRetry)
	engine.Register(models.OpEmailSend, orch.HandleRetry)
	engine.Register(models.OpCRMSync, orch.HandleRetry)

	pollCtx, stopPoller := context.WithCancel(ctx)
	defer stopPoller()
	poller := retry.NewPoller(engine, cfg.Retry.PollInterval, log)
	go poller.Start(pollCtx)
	zapLog.Info("Retry poller started", zap.Duration("pollInterval", cfg.Retry.PollInterval))

	// --- Webhook Processor ---
	verifier := webhook.NewVerifier(cfg.Integrations.CRM.WebhookSecret)
	processor := webhook.NewProcessor(verifier, events, submissions, log)

	// --- HTTP API ---
	api := httpapi.NewServer(httpapi.Dependencies{
		Workflow:    orch,
		Submissions: submissions,
		Documents:   documents,
		Deliveries:  deliveries,
		Tracker:     track,
		Retries:     engine,
		Webhooks:    processor,
		Health:      monitor,
		Logger:      log,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      api.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping engine...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	stopPoller()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}

	zapLog.Info("Objection engine stopped gracefully")
}
