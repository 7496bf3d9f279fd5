package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/suPer8Hu/gopherchat/internal/bootstrap"
	"github.com/suPer8Hu/gopherchat/internal/config"
	"github.com/suPer8Hu/gopherchat/internal/db"
	"github.com/suPer8Hu/gopherchat/internal/logger"
	"github.com/suPer8Hu/gopherchat/internal/store/rabbitmq"
)

func workerConcurrency(n int) int {
	if n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	log = log.With().Str("component", "worker").Logger()

	if cfg.RabbitURL == "" {
		log.Fatal().Msg("RABBIT_URL is required for the worker")
	}

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close(gdb)

	// the worker never enqueues, so no publisher
	svc, err := bootstrap.ChatService(cfg, gdb, log, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("chat service")
	}

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, workerConcurrency(cfg.WorkerConcurrency), log)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit consumer")
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := consumer.Run(ctx, svc.RunJob); err != nil {
		log.Error().Err(err).Msg("worker stopped")
	}
}
