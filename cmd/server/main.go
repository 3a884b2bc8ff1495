// Package main provides the chatbot runtime server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hermod-chat/hermod/internal/bot"
	"github.com/hermod-chat/hermod/internal/buildinfo"
	"github.com/hermod-chat/hermod/internal/config"
	"github.com/hermod-chat/hermod/internal/deadletter"
	"github.com/hermod-chat/hermod/internal/intake"
	"github.com/hermod-chat/hermod/internal/logger"
	"github.com/hermod-chat/hermod/internal/messenger"
	"github.com/hermod-chat/hermod/internal/metrics"
	"github.com/hermod-chat/hermod/internal/nlu"
	"github.com/hermod-chat/hermod/internal/objstore"
	"github.com/hermod-chat/hermod/internal/queue"
	"github.com/hermod-chat/hermod/internal/sentry"
	"github.com/hermod-chat/hermod/internal/storage"
	"github.com/hermod-chat/hermod/internal/users"
	"github.com/hermod-chat/hermod/internal/webhook"
	"github.com/hermod-chat/hermod/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithOptions(logger.Options{
		Level:               cfg.LogLevel,
		BetterstackToken:    cfg.BetterstackToken,
		BetterstackEndpoint: cfg.BetterstackEndpoint,
	})
	log.WithFields(map[string]any{
		"version": buildinfo.Version,
		"commit":  buildinfo.Commit,
	}).Infof("starting hermod server")

	if err := sentry.Initialize(sentry.Config{
		Token:       cfg.SentryToken,
		Host:        cfg.SentryHost,
		Environment: cfg.SentryEnvironment,
		Release:     buildinfo.Version,
	}); err != nil {
		log.WithError(err).Errorf("sentry initialization failed")
	}

	db, err := storage.New(cfg.SQLitePath())
	if err != nil {
		log.WithError(err).Errorf("failed to open database")
		os.Exit(1)
	}
	defer db.Close()
	log.WithField("path", cfg.SQLitePath()).Infof("database connected")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	q := queue.New(db)
	userStore := users.New(db)

	client := messenger.New(cfg.PageAccessToken, "", cfg.Worker.DeliveryRateRPS, log, m)
	client.SetTimeout(cfg.Worker.DeliveryTimeout)

	gateway := buildGateway(cfg, log, m)
	if gateway == nil {
		log.Errorf("no NLU provider configured")
		os.Exit(1)
	}

	archive, err := deadletter.New(cfg.DeadLetterDir(), log, m)
	if err != nil {
		log.WithError(err).Errorf("failed to create dead letter archive")
		os.Exit(1)
	}

	botRouter := bot.NewRouter(client, log, m)
	bots := bot.NewRegistry()
	if err := bots.Register(&bot.Bot{
		ID:          "hermod",
		Namespace:   "hermod",
		AccessToken: cfg.PageAccessToken,
		Router:      botRouter,
		Users:       userStore,
		Sink:        client,
	}); err != nil {
		log.WithError(err).Errorf("bot registration failed")
		os.Exit(1)
	}

	w := worker.New(q, gateway, archive, log, m)
	w.SetNLUTimeout(cfg.Worker.NLUTimeout)
	scheduler := worker.NewScheduler(w, bots, cfg.Worker.Concurrency, cfg.Worker.MaxRetries, log)

	in := intake.New(q, scheduler, bots, client, log, m)
	webhookHandler := webhook.New(cfg.VerifyToken, cfg.AppSecret, in, log, m)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	if cfg.DeadLetter.UploadEnabled {
		store, err := objstore.New(bgCtx, objstore.Config{
			Endpoint:    cfg.DeadLetter.Endpoint,
			AccessKeyID: cfg.DeadLetter.AccessKeyID,
			SecretKey:   cfg.DeadLetter.SecretKey,
			Bucket:      cfg.DeadLetter.Bucket,
		})
		if err != nil {
			log.WithError(err).Errorf("object storage unavailable, dead letter upload disabled")
		} else {
			uploader := objstore.NewUploader(store, archive, cfg.DeadLetter.UploadInterval, log)
			go uploader.Run(bgCtx)
			log.Infof("dead letter uploader started")
		}
	}

	if err := client.Subscribe(bgCtx); err != nil {
		log.WithError(err).Warnf("webhook subscription failed")
	}

	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(securityHeadersMiddleware())
	router.Use(loggingMiddleware(log))
	if sentry.IsEnabled() {
		router.Use(sentryMiddleware())
	}

	setupRoutes(router, webhookHandler, db, registry, cfg)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  config.WebhookHTTPRead,
		WriteTimeout: config.WebhookHTTPWrite,
		IdleTimeout:  config.WebhookHTTPIdle,
	}

	go func() {
		log.WithField("port", cfg.Port).Infof("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Errorf("server failed")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Errorf("server forced to shut down")
	}

	// Let in-flight worker runs drain before the process exits; entries
	// they popped would otherwise be lost.
	if err := scheduler.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warnf("workers did not drain before deadline")
	}
	bgCancel()

	sentry.Flush(cfg.ShutdownTimeout)
	log.Infof("server stopped")
}

// buildGateway assembles the NLU provider chain: Dialogflow primary, then
// any configured LLM classifiers as fallbacks.
func buildGateway(cfg *config.Config, log *logger.Logger, m *metrics.Metrics) nlu.Gateway {
	retry := nlu.DefaultRetryConfig()
	if cfg.Worker.NLUMaxAttempts > 0 {
		retry.MaxAttempts = cfg.Worker.NLUMaxAttempts
	}

	var providers []nlu.Gateway

	if cfg.DialogflowToken != "" {
		df := nlu.NewDialogflowClient(cfg.DialogflowToken, cfg.DialogflowBaseURL, retry)
		df.RetryHook = func(attempt int, err error) { m.RecordNLURetry("dialogflow") }
		providers = append(providers, df)
	}
	if c := nlu.NewOpenAIClassifier(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, retry); c != nil {
		providers = append(providers, c)
	}
	if c, err := nlu.NewGeminiClassifier(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel, retry); err != nil {
		log.WithError(err).Warnf("gemini classifier unavailable")
	} else if c != nil {
		providers = append(providers, c)
	}

	if len(providers) == 0 {
		return nil
	}
	return nlu.NewFallbackGateway(log, m, providers...)
}
