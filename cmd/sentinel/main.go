package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/0xmhha/csm-sentinel/api"
	"github.com/0xmhha/csm-sentinel/client"
	"github.com/0xmhha/csm-sentinel/contracts"
	"github.com/0xmhha/csm-sentinel/delivery"
	"github.com/0xmhha/csm-sentinel/dispatch"
	"github.com/0xmhha/csm-sentinel/events"
	"github.com/0xmhha/csm-sentinel/internal/config"
	"github.com/0xmhha/csm-sentinel/internal/logger"
	"github.com/0xmhha/csm-sentinel/ipfs"
	"github.com/0xmhha/csm-sentinel/storage"
	"github.com/0xmhha/csm-sentinel/subscription"
	"github.com/0xmhha/csm-sentinel/telegram"
)

var (
	// Version information (injected at build time)
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	// Define command-line flags
	var (
		configFile    = flag.String("config", "", "Path to configuration file (YAML)")
		showVersion   = flag.Bool("version", false, "Show version information and exit")
		wsEndpoint    = flag.String("ws", "", "Ethereum WebSocket endpoint URL")
		moduleAddress = flag.String("module", "", "Staking module contract address")
		dbPath        = flag.String("db", "", "Database path")
		adminChats    = flag.String("admin-chats", "", "Comma-separated admin chat ids for operational alerts")
		logLevel      = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		logFormat     = flag.String("log-format", "", "Log format (json, console)")
		enableOps     = flag.Bool("ops", false, "Enable the ops HTTP server")
	)

	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		fmt.Printf("csm-sentinel version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", buildTime)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Override config with command-line flags
	applyFlags(cfg, *wsEndpoint, *moduleAddress, *dbPath, *adminChats, *logLevel, *logFormat, *enableOps)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := initLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Log startup information
	log.Info("Starting sentinel",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_time", buildTime),
		zap.String("ws_endpoint", cfg.Ethereum.WSEndpoint),
		zap.String("module", cfg.Ethereum.ModuleAddress),
		zap.String("db_path", cfg.Database.Path),
		zap.Bool("dry_run", cfg.Telegram.Token == ""),
	)

	if err := run(cfg, log); err != nil {
		log.Fatal("Sentinel failed", zap.Error(err))
	}

	log.Info("Sentinel stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize storage
	store, err := storage.NewPebbleStore(storage.DefaultConfig(cfg.Database.Path), log)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Failed to close storage", zap.Error(err))
		}
	}()

	state, err := storage.LoadBotState(store, log)
	if err != nil {
		return fmt.Errorf("failed to load bot state: %w", err)
	}
	log.Info("Bot state loaded",
		zap.Uint64("checkpoint", state.Checkpoint()),
	)

	// Connect to the execution layer
	liveClient, err := client.NewClient(&client.Config{
		Endpoint: cfg.Ethereum.WSEndpoint,
		Timeout:  cfg.Ethereum.CallTimeout,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", cfg.Ethereum.WSEndpoint, err)
	}
	defer liveClient.Close()

	backfillClient := liveClient
	if cfg.BackfillEndpoint() != cfg.Ethereum.WSEndpoint {
		backfillClient, err = client.NewClient(&client.Config{
			Endpoint: cfg.BackfillEndpoint(),
			Timeout:  cfg.Ethereum.CallTimeout,
			Logger:   log,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", cfg.BackfillEndpoint(), err)
		}
		defer backfillClient.Close()
	}

	chainID, err := liveClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain id: %w", err)
	}
	log.Info("Connected to chain",
		zap.String("chain_id", chainID.String()),
	)

	// Discover the contract deployment around the module
	discoverCtx, discoverCancel := context.WithTimeout(ctx, cfg.Ethereum.CallTimeout)
	addrs, err := contracts.Discover(discoverCtx, liveClient, cfg.Module(), log)
	discoverCancel()
	if err != nil {
		return fmt.Errorf("contract discovery failed: %w", err)
	}

	reader, err := contracts.NewReader(liveClient, addrs, log)
	if err != nil {
		return fmt.Errorf("failed to create contract reader: %w", err)
	}

	// Build the notification pipeline
	adapter, err := dispatch.NewModuleAdapter(addrs.ModuleType, cfg.Links.CSMUIURL)
	if err != nil {
		return fmt.Errorf("failed to create module adapter: %w", err)
	}

	docs, err := ipfs.NewFetcher(ipfs.Config{
		Gateway:   cfg.IPFS.Gateway,
		Timeout:   cfg.IPFS.Timeout,
		CacheSize: cfg.IPFS.CacheSize,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create IPFS fetcher: %w", err)
	}

	messages, err := dispatch.NewMessages(reader, docs, dispatch.Links{
		EtherscanTx:    cfg.Links.EtherscanURL + "/tx/%s",
		EtherscanBlock: cfg.Links.EtherscanURL + "/block/%s",
		Beaconchain:    cfg.Links.BeaconchainURL + "/validator/%s",
		ModuleUI:       cfg.Links.CSMUIURL,
	}, addrs.Module, log)
	if err != nil {
		return fmt.Errorf("failed to create message composer: %w", err)
	}

	dispatcher, err := dispatch.NewDispatcher(adapter, messages, log)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	// Telegram bot, or a log-only notifier when no token is configured
	var (
		sender delivery.Sender
		bot    *telegram.Bot
	)
	if cfg.Telegram.Token != "" {
		bot, err = telegram.NewBot(telegram.Config{
			Token:        cfg.Telegram.Token,
			AdminChatIDs: cfg.Telegram.AdminChatIDs,
			PollTimeout:  cfg.Telegram.PollTimeout,
		}, state, adapter, log)
		if err != nil {
			return fmt.Errorf("failed to create bot: %w", err)
		}
		sender, err = telegram.NewNotifier(bot.Telebot(), log)
		if err != nil {
			return fmt.Errorf("failed to create notifier: %w", err)
		}
	} else {
		log.Warn("No bot token configured, notifications will only be logged")
		sender = telegram.NewLogNotifier(log)
	}

	fanout, err := delivery.NewFanout(state, sender, log)
	if err != nil {
		return fmt.Errorf("failed to create fanout: %w", err)
	}
	pipeline, err := delivery.NewPipeline(dispatcher, fanout, log)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	// Block consumption: live engine plus a historical backfill pass
	decoder := events.NewDecoder(events.NewTopicSet(adapter.AllowedEvents(),
		contracts.ModuleABI, contracts.FeeDistributorABI, contracts.ExitBusABI))
	watches := subscription.DefaultWatches(addrs)

	engine := subscription.NewEngine(liveClient, decoder, watches, pipeline, state, log)
	backfill, err := subscription.NewBackfill(backfillClient, decoder, watches, pipeline, state, &subscription.BackfillConfig{
		BatchSize:         cfg.Backfill.BatchSize,
		RequestsPerSecond: cfg.Backfill.RequestsPerSecond,
		Burst:             cfg.Backfill.Burst,
		StartBlock:        cfg.Backfill.StartBlock,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create backfill: %w", err)
	}

	monitor := subscription.NewMonitor(engine, sender, cfg.Telegram.AdminChatIDs, cfg.Monitor.StallInterval, log)

	// Ops server
	var opsServer *api.Server
	if cfg.Ops.Enabled {
		opsConfig := api.DefaultConfig()
		opsConfig.Host = cfg.Ops.Host
		opsConfig.Port = cfg.Ops.Port
		opsServer, err = api.NewServer(opsConfig, log, func() api.Status {
			return api.Status{
				Checkpoint: state.Checkpoint(),
				Head:       engine.Head(),
			}
		})
		if err != nil {
			return fmt.Errorf("failed to create ops server: %w", err)
		}
		go func() {
			if err := opsServer.Start(); err != nil {
				log.Error("Ops server failed", zap.Error(err))
			}
		}()
	}

	// The live engine owns every block above the current head; the backfill
	// pass replays checkpoint+1 through the head exactly once.
	threshold, err := liveClient.GetLatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get latest block: %w", err)
	}
	engine.SetCatchUpThreshold(threshold)
	log.Info("Catch-up threshold set",
		zap.Uint64("threshold", threshold),
		zap.Uint64("checkpoint", state.Checkpoint()),
	)

	errChan := make(chan error, 2)
	go func() {
		errChan <- engine.Run(ctx)
	}()
	go func() {
		if err := backfill.Run(ctx, threshold); err != nil {
			errChan <- err
			return
		}
		engine.ClearCatchUpThreshold()
		log.Info("Backfill complete, processing live events only")
	}()
	go func() {
		if err := monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Staleness monitor stopped", zap.Error(err))
		}
	}()

	if bot != nil {
		go bot.Start()
		defer bot.Stop()
	}
	if opsServer != nil {
		opsServer.SetReady(true)
	}

	// Wait for shutdown signal or a fatal pipeline error
	var runErr error
	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Block processing stopped with error", zap.Error(err))
			runErr = err
		}
	}

	log.Info("Shutting down gracefully...")
	cancel()

	if opsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := opsServer.Stop(shutdownCtx); err != nil {
			log.Error("Failed to stop ops server gracefully", zap.Error(err))
		}
	}

	log.Info("Final statistics",
		zap.Uint64("checkpoint", state.Checkpoint()),
	)
	return runErr
}

// loadConfig loads configuration from file and environment variables.
// Validation happens after command-line flags are applied.
func loadConfig(configFile string) (*config.Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &config.Config{}
	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	cfg.SetDefaults()

	return cfg, nil
}

// loadDotEnv loads environment variables from a .env file if it exists.
func loadDotEnv() error {
	info, err := os.Stat(".env")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat .env: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf(".env exists but is a directory")
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// applyFlags applies command-line flags to configuration
func applyFlags(cfg *config.Config, wsEndpoint, moduleAddress, dbPath, adminChats string, logLevel, logFormat string, enableOps bool) {
	if wsEndpoint != "" {
		cfg.Ethereum.WSEndpoint = wsEndpoint
	}
	if moduleAddress != "" {
		cfg.Ethereum.ModuleAddress = moduleAddress
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if adminChats != "" {
		cfg.Telegram.AdminChatIDs = config.ParseAdminChatIDs(adminChats)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if enableOps {
		cfg.Ops.Enabled = true
	}
}

// initLogger initializes the logger based on configuration
func initLogger(level, format string) (*zap.Logger, error) {
	if format == "console" {
		return logger.NewDevelopment()
	}

	return logger.New(&logger.Config{
		Level:    level,
		Encoding: format,
	})
}
