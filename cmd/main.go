package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"warm-transfer-service/internal/agents"
	"warm-transfer-service/internal/api/httpapi"
	"warm-transfer-service/internal/api/ws"
	"warm-transfer-service/internal/app"
	"warm-transfer-service/internal/chat"
	"warm-transfer-service/internal/config"
	"warm-transfer-service/internal/directory"
	"warm-transfer-service/internal/events"
	"warm-transfer-service/internal/matcher"
	"warm-transfer-service/internal/media"
	"warm-transfer-service/internal/notify"
	"warm-transfer-service/internal/observability"
	"warm-transfer-service/internal/queue"
	"warm-transfer-service/internal/stt"
	"warm-transfer-service/internal/stt/google"
	"warm-transfer-service/internal/stt/mock"
	"warm-transfer-service/internal/summary"
	"warm-transfer-service/internal/telephony"
	"warm-transfer-service/internal/transcription"
	"warm-transfer-service/internal/transfer"
)

func main() {
	// Local development keeps credentials in a .env file.
	_ = godotenv.Load()

	cfg := config.Load()
	application := app.New(cfg)
	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("Startup failed")
	}
	logger := application.Logger

	publisher := events.New(&events.Config{
		Enabled:         cfg.Kafka.Enabled,
		Brokers:         cfg.Kafka.Brokers,
		TopicAssignment: cfg.Kafka.TopicAssignment,
		TopicTransfer:   cfg.Kafka.TopicTransfer,
		TopicTranscript: cfg.Kafka.TopicTranscript,
		Principal:       cfg.Kafka.Principal,
	})
	defer publisher.Close()

	var platform media.Platform
	if cfg.LiveKit.APIKey != "" && cfg.LiveKit.APISecret != "" {
		platform = media.NewLiveKit(cfg.LiveKit.URL, cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.TokenTTL, logger)
		logger.Info().Str("url", cfg.LiveKit.URL).Msg("Using LiveKit media platform")
	} else {
		platform = media.NewMemory()
		logger.Warn().Msg("LiveKit credentials missing, using in-memory media platform")
	}

	q := queue.New()
	registry := agents.New()
	hub := notify.NewHub(logger)

	m := matcher.New(q, registry, platform, hub, publisher, logger)
	registry.SetAvailableHook(func(agentID string) { m.TryMatch(agentID) })

	var factory stt.Factory
	switch cfg.Audio.Provider {
	case "google":
		sttCfg := google.Config{
			LanguageCode:   cfg.Audio.LanguageCode,
			SampleRateHz:   cfg.Audio.SampleRateHz,
			InterimResults: cfg.Audio.InterimResults,
		}
		factory = func(ctx context.Context) (stt.Adapter, error) { return google.New(ctx, sttCfg) }
	default:
		factory = func(ctx context.Context) (stt.Adapter, error) { return mock.New(), nil }
	}
	logger.Info().Str("provider", cfg.Audio.Provider).Msg("Speech engine configured")

	transcripts := transcription.NewManager(factory, cfg.Audio.ChunkBytes, publisher, logger)

	dir, err := directory.Load(cfg.Directory.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Directory.Path).Msg("Failed to load agent directory")
	}

	var summarizer summary.Summarizer = summary.Static{}
	if cfg.Summary.APIKey != "" {
		s, err := summary.NewOpenAI(summary.Config{
			APIKey:  cfg.Summary.APIKey,
			BaseURL: cfg.Summary.BaseURL,
			Model:   cfg.Summary.Model,
			Timeout: cfg.Summary.Timeout,
		}, logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to build summarizer")
		}
		summarizer = s
	} else {
		logger.Warn().Msg("Summarizer API key missing, using templated summaries")
	}

	var responder chat.Responder = chat.Static{}
	if cfg.Summary.APIKey != "" {
		c, err := chat.NewOpenAI(chat.Config{
			APIKey:  cfg.Summary.APIKey,
			BaseURL: cfg.Summary.BaseURL,
			Model:   cfg.Summary.Model,
			Timeout: cfg.Summary.Timeout,
		}, logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to build chat responder")
		}
		responder = c
	}

	var (
		gateway telephony.Gateway
		dialer  transfer.Dialer
	)
	if tw, err := telephony.NewTwilio(telephony.Config{
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		FromNumber: cfg.Twilio.FromNumber,
	}, logger); err == nil {
		gateway = tw
		dialer = tw
	} else {
		logger.Warn().Msg("Twilio credentials missing, phone legs disabled")
	}

	orchestrator := transfer.New(platform, summarizer, dir, transcripts, dialer, hub, publisher, cfg.Twilio.WebhookBaseURL, logger)

	wsServer := ws.NewServer(hub, transcripts, logger)
	handlers := httpapi.New(q, registry, m, transcripts, orchestrator, dir, responder, platform, gateway, logger)
	router := httpapi.NewRouter(handlers, wsServer.Handle)

	obs := observability.NewServer(cfg.Service.ObsAddr, logger)
	obs.Start()
	obs.SetReady(true)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Service.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	obs.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown error")
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Observability shutdown error")
	}
	application.Shutdown()
}
