package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agentbridge/pkg/agent"
	"agentbridge/pkg/agent/metrics"
	"agentbridge/pkg/agent/resilience/ratelimit"
	"agentbridge/pkg/agent/resilience/retry"
	"agentbridge/pkg/bot"
	"agentbridge/pkg/config"
	"agentbridge/pkg/logx"
	"agentbridge/pkg/persistence"
)

func main() {
	var configPath string
	var envPath string
	flag.StringVar(&configPath, "config", "", "Path to YAML config file (default: agentbridge.yaml if present)")
	flag.StringVar(&envPath, "env", "", "Path to .env file (default: .env if present)")
	flag.Parse()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	cfg, err := config.Load(configPath, envPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logx.NewLogger("main")

	store, err := persistence.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}

	recorder := metrics.NewPrometheusRecorder()

	client := agent.New(agent.Options{
		APIKey:         cfg.APIKey,
		AgentID:        cfg.AgentID,
		BaseURL:        cfg.BaseURL,
		AgentEndpoint:  cfg.AgentEndpoint,
		AgentAccessKey: cfg.AgentAccessKey,
		Timeout:        cfg.RequestTimeout,
		Policy: retry.Policy{
			MaxRetries:  cfg.MaxRetries,
			BaseBackoff: cfg.BaseBackoff,
			MaxBackoff:  cfg.MaxBackoff,
		},
		RateLimit: ratelimit.Config{
			RatePerSecond:   cfg.RateQPS,
			Burst:           cfg.RateBurst,
			DefaultCooldown: cfg.RateCooldown,
		},
		Recorder: recorder,
	})
	logger.Info("agent client ready in %s mode", client.Mode())

	tgBot, err := bot.New(cfg.TelegramToken, client, store, cfg.RequestTimeout)
	if err != nil {
		log.Fatalf("Failed to start bot: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opsServer *http.Server
	if cfg.OpsAddr != "" {
		opsServer = startOpsServer(cfg.OpsAddr, logger)
	}

	if err := tgBot.Run(ctx); err != nil {
		logger.Error("bot stopped with error: %v", err)
	}

	if opsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("ops server shutdown: %v", err)
		}
		cancel()
	}

	if err := store.Close(); err != nil {
		logger.Warn("session store close: %v", err)
	}
	logger.Info("shutdown complete")
}

// startOpsServer exposes liveness and Prometheus metrics on its own listener.
func startOpsServer(addr string, logger *logx.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("ops server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server failed: %v", err)
		}
	}()
	return srv
}
