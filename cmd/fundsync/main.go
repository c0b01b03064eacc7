package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"

	"github.com/southbay-capital/fundsync/internal/api"
	"github.com/southbay-capital/fundsync/internal/calendar"
	"github.com/southbay-capital/fundsync/internal/config"
	"github.com/southbay-capital/fundsync/internal/driver"
	"github.com/southbay-capital/fundsync/internal/entity"
	"github.com/southbay-capital/fundsync/internal/merge"
	"github.com/southbay-capital/fundsync/internal/store"
	"github.com/southbay-capital/fundsync/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/fundsync.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting fundsync",
		"version", version.String(),
		"config", *configPath,
	)

	// Credentials live in .env during local development; absence is
	// fine when the environment is set some other way.
	if err := godotenv.Load(); err == nil {
		logger.Info("loaded environment from .env")
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"api_url", cfg.API.BaseURL,
		"schema", cfg.Ingest.Schema,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")

	st := store.New(pool, cfg.Ingest.Schema, logger)

	clientOpts := []api.ClientOption{
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithPageLimit(cfg.API.PageLimit),
		api.WithRetries(uint64(cfg.API.MaxRetries)),
	}
	if cfg.API.RateLimit > 0 {
		clientOpts = append(clientOpts, api.WithRateLimit(cfg.API.RateLimit))
	}
	client := api.NewClient(
		cfg.API.BaseURL,
		cfg.API.Username,
		cfg.API.Password,
		cfg.API.ClientID,
		cfg.API.ClientSecret,
		clientOpts...,
	)

	drv := driver.New(
		client,
		merge.New(st, logger),
		calendar.NewB3(),
		cfg.API.PageSize,
		cfg.Ingest.Delay,
		logger,
	)

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(newIngestCmd("trades", "ingest executed trade operations", entity.Operations, drv, logger), "entities")
	subcommands.Register(newIngestCmd("movements", "ingest liability transaction orders and dimensions", entity.Movements, drv, logger), "entities")
	subcommands.Register(newIngestCmd("pls", "ingest daily fund P&L prices", entity.FundPLs, drv, logger), "entities")
	subcommands.Register(newIngestCmd("positions", "ingest month-end investor positions", entity.Positions, drv, logger), "entities")
	subcommands.Register(newIngestCmd("portfolios", "ingest month-end fund holdings", entity.FundPortfolio, drv, logger), "entities")
	subcommands.Register(&allCmd{drv: drv, logger: logger}, "entities")

	os.Exit(int(subcommands.Execute(ctx)))
}
