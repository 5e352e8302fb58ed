package main

import (
	"flag"
	"fmt"

	"github.com/richardliu001/wallet-ledger/internal/config"
	"github.com/richardliu001/wallet-ledger/internal/logger"
	"github.com/richardliu001/wallet-ledger/internal/migrations"
	"github.com/richardliu001/wallet-ledger/internal/repo"
)

func main() {
	cfgPath := flag.String("config", "internal/config/config.yaml", "path to the yaml config")
	down := flag.Int("down", 0, "roll back N migrations instead of applying; -1 rolls back everything")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}
	log, err := logger.NewLogger(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := repo.OpenPostgres(cfg.Postgres)
	if err != nil {
		log.Fatalf("%v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		log.Fatalf("postgres pool: %v", err)
	}
	defer sqlDB.Close()

	switch {
	case *down != 0:
		steps := *down
		if steps < 0 {
			steps = 0
		}
		err = migrations.Down(sqlDB, steps)
	default:
		err = migrations.Up(sqlDB)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}

	version, dirty, err := migrations.Version(sqlDB)
	if err != nil {
		log.Fatalf("read schema version: %v", err)
	}
	log.Infow("schema ready", "version", version, "dirty", dirty)
}
