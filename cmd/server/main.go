package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/richardliu001/wallet-ledger/internal/config"
	"github.com/richardliu001/wallet-ledger/internal/logger"
	"github.com/richardliu001/wallet-ledger/internal/migrations"
	"github.com/richardliu001/wallet-ledger/internal/repo"
	"github.com/richardliu001/wallet-ledger/internal/service"
	httptransport "github.com/richardliu001/wallet-ledger/internal/transport/http"
	"github.com/richardliu001/wallet-ledger/internal/userclient"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	cfgPath := flag.String("config", "internal/config/config.yaml", "path to the yaml config")
	flag.Parse()

	// 1. load config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. ledger store
	store, closeStore := openStore(cfg, log)
	defer closeStore()

	// 4. redis (optional)
	var cache repo.WalletCache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("redis ping: %v", err)
		}
		cache = repo.NewRedisCache(rdb, cfg.Redis.TTL)
	}

	// 5. user service (optional)
	var users userclient.Provider
	if cfg.UserService.URL != "" {
		users = userclient.New(userclient.Options{
			BaseURL:         cfg.UserService.URL,
			Timeout:         cfg.UserService.Timeout,
			Retries:         cfg.UserService.Retries,
			MaxIdleConns:    cfg.UserService.MaxIdleConns,
			IdleConnTimeout: cfg.UserService.IdleConnTimeout,
			AuthHeader:      cfg.UserService.AuthHeader,
		}, log)
	}

	// 6. service
	svc := service.NewWalletService(store, log, service.Options{
		StoreTimeout:  cfg.Ledger.StoreTimeout,
		LookupRetries: cfg.Ledger.LookupRetries,
		HistoryLimit:  cfg.Ledger.HistoryLimit,
		Cache:         cache,
		Users:         users,
	})

	// 7. gin router
	router := httptransport.NewRouter(svc, cfg.RateLimit, log)

	// 8. serve
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		log.Infof("wallet-server listening on %s (ledger driver %s)", server.Addr, cfg.Ledger.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
}

// openStore builds the configured ledger backend and its cleanup.
func openStore(cfg *config.Config, log *zap.SugaredLogger) (repo.Store, func()) {
	if cfg.Ledger.Driver == config.DriverMemory {
		log.Warn("using the in-memory ledger; balances are lost on exit")
		return repo.NewMemoryStore(cfg.Ledger.AccountPrefix), func() {}
	}

	gdb, err := repo.OpenPostgres(cfg.Postgres)
	if err != nil {
		log.Fatalf("%v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		log.Fatalf("postgres pool: %v", err)
	}
	if cfg.Ledger.AutoMigrate {
		if err := migrations.Up(sqlDB); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}
	return repo.NewRepository(gdb, nil, log, cfg.Ledger.AccountPrefix), func() { _ = sqlDB.Close() }
}
