package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/richardliu001/wallet-ledger/internal/config"
	"github.com/richardliu001/wallet-ledger/internal/logger"
	"github.com/richardliu001/wallet-ledger/internal/repo"

	"github.com/segmentio/kafka-go"
)

func main() {
	cfgPath := flag.String("config", "internal/config/config.yaml", "path to the yaml config")
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

	if cfg.Ledger.Driver != config.DriverPostgres {
		log.Fatalf("the outbox poller needs the postgres ledger driver, got %q", cfg.Ledger.Driver)
	}
	gdb, err := repo.OpenPostgres(cfg.Postgres)
	if err != nil {
		log.Fatalf("%v", err)
	}

	kw := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	defer kw.Close()

	repository := repo.NewRepository(gdb, kw, log, cfg.Ledger.AccountPrefix)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(cfg.Kafka.PollInterval)
	defer ticker.Stop()

	log.Infow("wallet-poller started", "topic", cfg.Kafka.Topic, "interval", cfg.Kafka.PollInterval)
	for {
		select {
		case <-ctx.Done():
			log.Info("wallet-poller stopped")
			return
		case <-ticker.C:
			sent, err := repository.RelayOutbox(ctx, cfg.Kafka.BatchSize)
			if err != nil {
				log.Errorf("poll outbox: %v", err)
				continue
			}
			if sent > 0 {
				log.Infof("%d events sent", sent)
			}
		}
	}
}
