package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"markarb/internal/application/usecase/monitor"
	"markarb/internal/infrastructure/config"
	"markarb/internal/infrastructure/logger"
	"markarb/internal/infrastructure/svc"
	"markarb/internal/interfaces/console"
)

func main() {
	logger.Setup("info")

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("service initialization failed")
	}
	defer func() {
		if err := sc.Close(); err != nil {
			log.Error().Err(err).Msg("resource cleanup failed")
		}
	}()

	bot := sc.Bot
	if err := bot.VerifyCredentials(ctx); err != nil {
		log.Warn().Err(err).Msg("continuing without trading permissions")
	}

	log.Info().
		Str("config", *configPath).
		Str("coin", cfg.App.Coin).
		Float64("threshold_pct", cfg.Arbitrage.PriceDiffThreshold).
		Float64("size", cfg.Position.Size).
		Bool("auto_open", cfg.Arbitrage.AutoOpen).
		Msg("markarb started")

	if err := bot.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("bot start failed")
	}

	// 看板与命令行随主 ctx 退出
	go func() {
		if err := monitor.NewService(sc.BuildMonitorServiceDeps()).Run(ctx); err != nil {
			log.Error().Err(err).Msg("monitor service exited")
		}
	}()

	consoleDone := make(chan struct{})
	go func() {
		err := console.NewCommands(os.Stdin, os.Stdout, bot).Run(ctx)
		switch {
		case errors.Is(err, console.ErrExit):
			close(consoleDone)
		case err != nil && !errors.Is(err, context.Canceled):
			log.Error().Err(err).Msg("console stopped")
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case <-consoleDone:
		log.Info().Msg("exit requested from console")
	case <-bot.Done():
		log.Warn().Msg("bot exited unexpectedly")
	}
	stop()

	if err := bot.Stop(); err != nil {
		log.Error().Err(err).Msg("bot stopped with error")
	}
	log.Info().Msg("markarb stopped")
}
