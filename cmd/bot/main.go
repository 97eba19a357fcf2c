package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alvariitoSW/produccion/config"
	"github.com/alvariitoSW/produccion/internal/adapters/notify"
	"github.com/alvariitoSW/produccion/internal/adapters/polymarket"
	"github.com/alvariitoSW/produccion/internal/adapters/storage"
	"github.com/alvariitoSW/produccion/internal/orchestrator"
	"github.com/alvariitoSW/produccion/internal/ports"
	"github.com/alvariitoSW/produccion/internal/scanner"
	"github.com/alvariitoSW/produccion/internal/strategy"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("bot starting",
		"config", *configPath,
		"poll", cfg.PollInterval(),
		"scan", cfg.ScanInterval(),
		"max_events", cfg.Timing.MaxEvents,
	)

	var envCreds *polymarket.APICredentials
	if cfg.Credentials.CLOBAPIKey != "" {
		envCreds = &polymarket.APICredentials{
			APIKey:     cfg.Credentials.CLOBAPIKey,
			Secret:     cfg.Credentials.CLOBSecret,
			Passphrase: cfg.Credentials.CLOBPassphrase,
		}
	}

	auth, err := polymarket.NewAuthClient(
		cfg.API.CLOBBase,
		cfg.API.GammaBase,
		cfg.Credentials.PrivateKey,
		cfg.Credentials.FunderAddress,
		envCreds,
	)
	if err != nil {
		slog.Error("failed to create auth client", "err", err)
		os.Exit(1)
	}

	exchange, err := polymarket.NewTradingClient(auth, cfg.API.RPCURL)
	if err != nil {
		slog.Error("failed to create trading client", "err", err)
		os.Exit(1)
	}

	var notifier ports.Notifier = notify.NewConsole()
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		notifier = notify.NewMulti(notifier,
			notify.NewTelegram("", cfg.Telegram.BotToken, cfg.Telegram.ChatID))
		slog.Info("telegram notifier enabled")
	}

	var journal ports.TradeJournal
	if cfg.Journal.DSN != "" {
		j, err := storage.NewJournal(cfg.Journal.DSN)
		if err != nil {
			slog.Error("failed to open trade journal", "err", err, "dsn", cfg.Journal.DSN)
			os.Exit(1)
		}
		defer j.Close()
		journal = j
	}

	engine := strategy.New(exchange, notifier, journal, strategy.ConfigFrom(cfg))

	events := scanner.New(scanner.Config{
		Asset:     "bitcoin",
		LookAhead: time.Duration(cfg.Timing.LookAheadHours) * time.Hour,
		MaxEvents: cfg.Timing.MaxEvents,
	}, auth.Client)

	orch := orchestrator.New(orchestrator.Config{
		PollInterval:      cfg.PollInterval(),
		ScanInterval:      cfg.ScanInterval(),
		HeartbeatInterval: cfg.HeartbeatInterval(),
	}, exchange, events, engine, notifier)

	health := orchestrator.NewHealthServer(cfg.HealthPort)
	health.Start()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := orch.Run(ctx); err != nil {
		slog.Error("orchestrator exited with error", "err", err)
		os.Exit(1)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := health.Stop(stopCtx); err != nil {
		slog.Warn("health server shutdown failed", "err", err)
	}

	slog.Info("bot stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
