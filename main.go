package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"energylink/audit"
	"energylink/catalog"
	"energylink/compliance"
	"energylink/config"
	"energylink/events"
	"energylink/internal/dashboard"
	"energylink/logger"
	"energylink/marketdata"
	"energylink/registry"
	"energylink/routing"
	"energylink/writer"
)

func main() {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolveConfigPath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": config.AppEnvironment(),
	}).Info("starting energylink")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace, cfg.Metrics.DashboardName)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, cfg.Metrics.ReportInterval)
	}

	bus := events.NewBus()

	store, err := audit.Open(cfg.Compliance.Audit, log)
	if err != nil {
		log.WithError(err).Error("failed to open audit store")
		os.Exit(1)
	}
	defer store.Close()

	reg := registry.New()
	if err := catalog.Register(reg, cfg.Connectors, log); err != nil {
		log.WithError(err).Error("failed to register connectors")
		os.Exit(1)
	}
	for _, desc := range reg.GetRegisteredConnectors() {
		conn, err := reg.Open(desc.ExchangeID)
		if err != nil {
			continue
		}
		if err := conn.Initialize(ctx); err != nil {
			log.WithError(err).WithFields(logger.Fields{"exchange": desc.ExchangeID}).Warn("connector initialisation failed")
		}
	}

	complianceOpts := []compliance.Option{compliance.WithBus(bus), compliance.WithLogger(log)}
	if cfg.Storage.S3.Enabled {
		archive, err := writer.NewS3Archive(ctx, cfg.Storage.S3, cfg.App)
		if err != nil {
			log.WithError(err).Error("failed to create S3 archive")
			os.Exit(1)
		}
		complianceOpts = append(complianceOpts, compliance.WithArchiver(archive))
	} else {
		log.WithComponent("main").Info("S3 storage disabled; reports and cleared audit entries are not archived")
	}
	complianceSvc := compliance.NewService(cfg.Compliance, store, complianceOpts...)
	desk := routing.NewDesk(reg, complianceSvc, routing.IdentityFromConfig(cfg.Compliance), bus)
	if h := desk.GetHealthStatus(ctx); len(h.MissingIdentity) > 0 {
		log.WithComponent("routing").WithFields(logger.Fields{"missing": h.MissingIdentity}).Warn("reporting identity incomplete; orders on these venues will fail report validation")
	}

	cache, err := marketdata.OpenCache(cfg.Cache, cfg.MarketData.CacheTTL, cfg.MarketData.HistoryLimit)
	if err != nil {
		log.WithError(err).Error("failed to open price cache")
		os.Exit(1)
	}
	defer cache.Close()
	pricing := marketdata.NewService(cfg.MarketData, marketdata.NewHTTPSource(cfg.MarketData), cache, marketdata.WithLogger(log))

	var publisher *writer.EventPublisher
	if cfg.Events.Kafka.Enabled {
		publisher, err = writer.NewEventPublisher(cfg.Events.Kafka)
		if err != nil {
			log.WithError(err).Error("failed to create kafka publisher")
			os.Exit(1)
		}
		bus.Subscribe(publisher.Handler())
		pricing.Subscribe(publisher.Handler())
		if err := publisher.Start(ctx); err != nil {
			log.WithError(err).Warn("kafka publisher failed to start")
		}
	}

	pricing.Subscribe(func(e events.Event) {
		if e.Type == events.FetchError {
			log.WithComponent("marketdata").WithFields(logger.Fields{"payload": e.Payload}).Warn("live price fetch failed")
		}
	})

	if cfg.MarketData.SourceURL != "" {
		if err := pricing.StartLivePricing(ctx); err != nil {
			log.WithError(err).Error("failed to start live pricing")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("market_data.source_url not set; live pricing disabled")
	}

	statusServer, err := dashboard.NewServer(cfg.Dashboard, log)
	if err != nil {
		log.WithError(err).Error("failed to create status server")
		os.Exit(1)
	}
	var wg sync.WaitGroup
	if statusServer != nil {
		statusServer.RegisterHealthCheck("compliance", func(ctx context.Context) (string, any) {
			h := complianceSvc.GetHealthStatus(ctx)
			return h.Status, h
		})
		statusServer.RegisterHealthCheck("marketdata", func(ctx context.Context) (string, any) {
			h := pricing.GetHealthStatus(ctx)
			return h.Status, h
		})
		statusServer.RegisterHealthCheck("routing", func(ctx context.Context) (string, any) {
			h := desk.GetHealthStatus(ctx)
			return h.Status, h
		})
		statusServer.RegisterView("orders", func(context.Context) (any, error) {
			return desk.Recent(), nil
		})
		statusServer.RegisterView("connectors", func(context.Context) (any, error) {
			return reg.GetRegisteredConnectors(), nil
		})
		statusServer.RegisterView("prices", func(ctx context.Context) (any, error) {
			return pricing.History(ctx)
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := statusServer.Run(ctx, cfg.App.Name); err != nil {
				log.WithError(err).Error("status server stopped")
			}
		}()
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	pricing.StopLivePricing()
	cancel()

	if publisher != nil {
		log.Info("stopping kafka publisher")
		publisher.Stop()
	}

	for _, conn := range reg.Instances() {
		if err := conn.Disconnect(shutdownCtx); err != nil {
			log.WithError(err).WithFields(logger.Fields{"exchange": conn.Descriptor().ExchangeID}).Warn("disconnect failed")
		}
	}

	if err := pricing.Destroy(shutdownCtx); err != nil {
		log.WithError(err).Warn("market data cleanup failed")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("energylink stopped")
}
