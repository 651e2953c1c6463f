package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdklog "cosmossdk.io/log"

	"github.com/paw-chain/poolcore/config"
	"github.com/paw-chain/poolcore/internal/api"
	"github.com/paw-chain/poolcore/internal/cache"
	"github.com/paw-chain/poolcore/internal/custody"
	"github.com/paw-chain/poolcore/internal/database"
	"github.com/paw-chain/poolcore/internal/engine"
	"github.com/paw-chain/poolcore/internal/events"
	"github.com/paw-chain/poolcore/internal/metrics"
	"github.com/paw-chain/poolcore/pkg/logger"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "1.0.0"
)

func main() {
	flag.Parse()

	log := logger.New("poolcored", "info")
	log.Info("starting poolcore daemon", "version", version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log = logger.New("poolcored", cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics server
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port)
		go func() {
			if err := metricsServer.Start(); err != nil {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	// Database journal
	log.Info("connecting to database", "host", cfg.Database.Host, "port", cfg.Database.Port)
	db, err := database.New(database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxOpenConns,
		MaxIdle:        cfg.Database.MaxIdleConns,
		ConnMaxLife:    cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.InitSchema(); err != nil {
		log.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	// Pool snapshot cache
	var snapshotCache api.Cache
	if cfg.Redis.Enabled {
		log.Info("connecting to redis", "addr", cfg.Redis.Addr())
		redisCache, err := cache.NewRedisCache(cache.Config{
			Address:  cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisCache.Close()
		snapshotCache = redisCache
	}

	// Custody boundary: programs pinned from config, holdings read from the
	// journal.
	verifier, err := custody.NewVerifier(db, cfg.Pairs)
	if err != nil {
		log.Error("failed to build custody verifier", "error", err)
		os.Exit(1)
	}

	// Engine with restored state
	eng := engine.New(sdklog.NewLogger(os.Stdout), cfg.Pairs, verifier, engine.NewMetrics())
	if err := restoreState(ctx, eng, db); err != nil {
		log.Error("failed to restore state", "error", err)
		os.Exit(1)
	}

	// Event hub
	hub := events.NewHub(log)
	go hub.Run()

	// Auth
	var auth *api.AuthManager
	if cfg.Auth.Enabled {
		auth = api.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	}

	// API server
	apiServer := api.NewServer(cfg.Server, eng, db, snapshotCache, hub, auth, cfg.Redis.SnapshotTTL, log)
	go func() {
		if err := apiServer.Start(); err != nil {
			log.Error("api server failed", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("received interrupt signal, shutting down gracefully")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("failed to stop api server gracefully", "error", err)
	}

	hub.Stop()

	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			log.Error("failed to stop metrics server gracefully", "error", err)
		}
	}

	log.Info("poolcore daemon stopped")
}

// restoreState reloads pools, pending balances and consumed settlement ids
// from the journal so a restart changes nothing an account could observe.
func restoreState(ctx context.Context, eng *engine.Engine, db *database.DB) error {
	pools, err := db.LoadPools(ctx)
	if err != nil {
		return err
	}
	for _, pool := range pools {
		if err := eng.RestorePool(pool); err != nil {
			return err
		}
	}

	pending, err := db.LoadPendingBalances(ctx)
	if err != nil {
		return err
	}
	if err := eng.RestorePending(pending); err != nil {
		return err
	}

	keys, err := db.LoadSettlementKeys(ctx)
	if err != nil {
		return err
	}
	eng.RestoreSettlements(keys)

	return nil
}
