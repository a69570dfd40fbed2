package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"insiderflow/broker"
	appconfig "insiderflow/config"
	"insiderflow/engine"
	"insiderflow/feed"
	"insiderflow/journal"
	"insiderflow/logger"
	"insiderflow/risk"
	"insiderflow/state"
	"insiderflow/strategy"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := appconfig.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":  cfg.App.Name,
		"version":  cfg.App.Version,
		"strategy": cfg.Strategy.Variant,
	}).Info("starting insiderflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Enabled {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace, cfg.Metrics.Dashboard)
		logger.StartReport(ctx, log, cfg.Metrics.ReportInterval.Std())
	}

	if err := os.MkdirAll(cfg.State.Dir, 0o755); err != nil {
		log.WithError(err).Error("Failed to create state directory")
		os.Exit(1)
	}

	seen, err := state.OpenSeen(filepath.Join(cfg.State.Dir, "seen.json"))
	if err != nil {
		log.WithError(err).Error("Failed to open seen-filings store")
		os.Exit(1)
	}
	positions, err := state.OpenPositions(filepath.Join(cfg.State.Dir, "positions.json"))
	if err != nil {
		log.WithError(err).Error("Failed to open positions store")
		os.Exit(1)
	}
	stats, err := state.OpenStats(filepath.Join(cfg.State.Dir, "stats.json"))
	if err != nil {
		log.WithError(err).Error("Failed to open stats store")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"seen_filings":   seen.Len(),
		"open_positions": len(positions.ListOpen()),
	}).Info("state restored")

	alpaca := broker.NewAlpaca(cfg.Broker)
	if equity, err := alpaca.AccountEquity(ctx); err != nil {
		log.WithError(err).Warn("Could not fetch account equity")
	} else {
		log.WithFields(logger.Fields{"equity": equity}).Info("broker account ready")
	}

	strat, err := strategy.New(
		cfg.Strategy.Variant,
		strategy.InsiderConfig{
			SignificantRoles:      cfg.Strategy.Insider.SignificantRoles,
			TargetDollars:         cfg.Risk.TargetDollars,
			MinSuccessRate:        cfg.Strategy.Insider.MinSuccessRate,
			MinAvgDailyVolume:     cfg.Strategy.Insider.MinAvgDailyVolume,
			MaxBidAskSpread:       cfg.Strategy.Insider.MaxBidAskSpread,
			MaxPctSinceWeekLow:    cfg.Strategy.Insider.MaxPctSinceWeekLow,
			MaxIntradayVolatility: cfg.Strategy.Insider.MaxIntradayVolatility,
			MaxSlippage:           cfg.Strategy.Insider.MaxSlippage,
		},
		strategy.MomentumConfig{
			TargetDollars:     cfg.Risk.TargetDollars,
			MinAvgDailyVolume: cfg.Strategy.Momentum.MinAvgDailyVolume,
			ShortWindow:       cfg.Strategy.Momentum.ShortWindow,
			LongWindow:        cfg.Strategy.Momentum.LongWindow,
			RSIPeriod:         cfg.Strategy.Momentum.RSIPeriod,
			RSIMin:            cfg.Strategy.Momentum.RSIMin,
			RSIMax:            cfg.Strategy.Momentum.RSIMax,
			MACDFast:          cfg.Strategy.Momentum.MACDFast,
			MACDSlow:          cfg.Strategy.Momentum.MACDSlow,
			MACDSignal:        cfg.Strategy.Momentum.MACDSignal,
			MultiTFRequired:   cfg.Strategy.Momentum.MultiTFRequired,
		},
		stats,
	)
	if err != nil {
		log.WithError(err).Error("Failed to build strategy")
		os.Exit(1)
	}

	csvJournal, err := journal.NewCSV(cfg.Audit.Dir)
	if err != nil {
		log.WithError(err).Error("Failed to open audit journal")
		os.Exit(1)
	}

	var uploader *journal.S3Uploader
	if cfg.Audit.S3.Enabled {
		uploader, err = journal.NewS3Uploader(cfg.Audit.S3, csvJournal)
		if err != nil {
			log.WithError(err).Error("Failed to create S3 uploader")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("S3 audit upload disabled")
	}

	var stream *broker.TradeUpdateStream
	if cfg.Broker.Stream.Enabled {
		stream = broker.NewTradeUpdateStream(cfg.Broker)
	}

	eng := engine.New(cfg.Engine, engine.Deps{
		Feed:     feed.NewEDGAR(cfg.Feed),
		Broker:   alpaca,
		Market:   broker.NewCollector(alpaca, cfg.Broker.Snapshot),
		Strategy: strat,
		ExitPolicy: risk.ExitPolicy{
			StopPct:   cfg.Risk.StopPct,
			ProfitPct: cfg.Risk.ProfitPct,
			MaxHold:   cfg.Risk.MaxHold.Std(),
		},
		Seen:      seen,
		Positions: positions,
		Stats:     stats,
		Journal:   csvJournal,
	})

	if uploader != nil {
		if err := uploader.Start(ctx); err != nil {
			log.WithError(err).Error("Failed to start S3 uploader")
			os.Exit(1)
		}
	}
	if stream != nil {
		if err := stream.Start(ctx); err != nil {
			log.WithError(err).Error("Failed to start trade update stream")
			os.Exit(1)
		}
	}
	if err := eng.Start(ctx); err != nil {
		log.WithError(err).Error("Failed to start engine")
		os.Exit(1)
	}

	time.Sleep(time.Second)
	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	log.Info("stopping engine")
	eng.Stop()

	if stream != nil {
		log.Info("stopping trade update stream")
		stream.Stop()
	}
	if uploader != nil {
		log.Info("stopping S3 uploader")
		uploader.Stop()
	}

	log.Info("shutdown complete")
}
