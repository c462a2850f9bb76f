package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lucapanzeri/telegram-auction-bot/internal/auction"
	"github.com/lucapanzeri/telegram-auction-bot/internal/bot"
	"github.com/lucapanzeri/telegram-auction-bot/internal/clock"
	"github.com/lucapanzeri/telegram-auction-bot/internal/config"
	"github.com/lucapanzeri/telegram-auction-bot/internal/gift"
	"github.com/lucapanzeri/telegram-auction-bot/internal/health"
	"github.com/lucapanzeri/telegram-auction-bot/internal/leader"
	"github.com/lucapanzeri/telegram-auction-bot/internal/store"
	"github.com/lucapanzeri/telegram-auction-bot/internal/telemetry"
	"github.com/lucapanzeri/telegram-auction-bot/internal/wallet"

	// Register store drivers so they are available via store.Open.
	_ "github.com/lucapanzeri/telegram-auction-bot/internal/store/memstore"
	_ "github.com/lucapanzeri/telegram-auction-bot/internal/store/postgres"
	_ "github.com/lucapanzeri/telegram-auction-bot/internal/store/sqlite"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration.
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup telemetry.
	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	// Open store using the configured driver.
	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to database", slog.String("driver", cfg.Database.Driver))

	// Initialize managers.
	walletMgr := wallet.NewManager(repos.Wallets, repos.Events, logger, tp.TracerProvider)
	auctionMgr := auction.NewManager(repos.Auctions, walletMgr, repos.Events, logger, tp.TracerProvider, clk,
		cfg.Auction.BidTimeout, cfg.Auction.MaxLotSize)
	giftMgr := gift.NewManager(repos.Gifts, walletMgr, repos.Events, logger, tp.TracerProvider)
	sweeper := auction.NewSweeper(auctionMgr, logger, cfg.Auction.SweepInterval)

	// Setup health checks.
	healthHandler := health.NewHandler(clk,
		health.Checker{
			Name:  "database",
			Check: repos.Ping,
		},
	)

	// Start HTTP server for health checks (runs on all replicas).
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler.LivenessHandler())
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler())

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting health server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "health server error", slog.Any("error", listenErr))
		}
	}()

	// runBot is the core work that only the leader should run: the update
	// loop and the expiry sweeper. It blocks until ctx is done.
	runBot := func(ctx context.Context) {
		tgBot, botErr := bot.New(cfg.Telegram, walletMgr, auctionMgr, giftMgr, logger, tp.TracerProvider, clk)
		if botErr != nil {
			logger.ErrorContext(ctx, "creating bot failed", slog.Any("error", botErr))
			return
		}

		go sweeper.Run(ctx)

		healthHandler.SetReady(true)
		logger.InfoContext(ctx, "auctionbot is running", slog.String("version", version))

		if runErr := tgBot.Run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
			logger.ErrorContext(ctx, "bot stopped", slog.Any("error", runErr))
		}
		healthHandler.SetReady(false)
	}

	if cfg.LeaderElection.Enabled {
		logger.InfoContext(ctx, "leader election enabled, waiting for leadership...")

		if leaderErr := leader.Run(ctx, cfg.LeaderElection, logger, runBot, func() {
			logger.Info("lost leadership, shutting down...")
			cancel()
		}); leaderErr != nil {
			return fmt.Errorf("leader election: %w", leaderErr)
		}
	} else {
		runBot(ctx)
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}
