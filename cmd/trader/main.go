package main

import (
	"os"
	"os/signal"
	"syscall"

	"quanttrader/config"
	"quanttrader/internal/app"
	"quanttrader/logger"

	"go.uber.org/zap"
)

func main() {
	// viper config
	cfg := config.Load()

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	// run the trading core
	core, err := app.Start(cfg, log)
	if err != nil {
		log.Fatal("trader failed to start", zap.Error(err))
	}

	// shut down cleanly on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	core.Stop()
}
