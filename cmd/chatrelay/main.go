package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/mkovalenko/chatrelay/internal/archive"
	"github.com/mkovalenko/chatrelay/internal/bot"
	"github.com/mkovalenko/chatrelay/internal/chat"
	"github.com/mkovalenko/chatrelay/internal/config"
	"github.com/mkovalenko/chatrelay/internal/httpapi"
	"github.com/mkovalenko/chatrelay/internal/llm"
	"github.com/mkovalenko/chatrelay/internal/observability"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store := chat.NewStore(ctx, chat.Options{
		RedisURL:         cfg.RedisURL,
		HistoryLimit:     cfg.HistoryLimit,
		HistoryTTL:       cfg.HistoryTTL,
		OpTimeout:        cfg.StorageOpTimeout,
		FailureThreshold: cfg.StorageFailureThreshold,
	}, metrics)
	defer store.Close()

	arch, err := archive.New(ctx, cfg.DatabaseURL)
	if err != nil {
		// The archive is analytics, not memory; run without it.
		logrus.WithError(err).Warn("postgres archive unavailable, continuing without it")
		arch = nil
	}
	if arch != nil {
		defer arch.Close()
		logrus.Info("postgres archive enabled")
	}

	var engine httpapi.MessageHandler
	model, err := llm.NewAzureClient(llm.AzureConfig{
		APIKey:      cfg.AzureOpenAIKey,
		Endpoint:    cfg.AzureOpenAIEndpoint,
		Deployment:  cfg.AzureOpenAIDeployment,
		MaxTokens:   cfg.ModelMaxTokens,
		Temperature: cfg.ModelTemperature,
	})
	if err != nil {
		logrus.WithError(err).Warn("model backend not configured, serving analytics API only")
	} else {
		var archiver bot.Archiver
		if arch != nil {
			archiver = arch
		}
		engine = bot.NewEngine(store, archiver, model, nil, nil, metrics)
	}

	api := httpapi.New(store, arch, engine)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		logrus.Infof("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logrus.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("graceful shutdown failed")
		_ = httpServer.Close()
	}

	logrus.Info("shutdown complete")
}
