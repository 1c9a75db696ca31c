package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/coastal-risk-service/internal/adapter/httpadapter"
	"github.com/couchcryptid/coastal-risk-service/internal/alert"
	"github.com/couchcryptid/coastal-risk-service/internal/config"
	"github.com/couchcryptid/coastal-risk-service/internal/domain"
	"github.com/couchcryptid/coastal-risk-service/internal/i18n"
	"github.com/couchcryptid/coastal-risk-service/internal/observability"
	"github.com/couchcryptid/coastal-risk-service/internal/pipeline"
	"github.com/couchcryptid/coastal-risk-service/internal/risk"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	if err := run(cfg, logger); err != nil {
		logger.Error("service exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	catalog, err := i18n.NewCatalog()
	if err != nil {
		return err
	}

	c := &components{logger: logger}
	defer c.closeAll(cfg)

	if err := c.openStore(ctx, cfg, clock); err != nil {
		return err
	}
	if err := c.openVision(ctx, cfg, metrics); err != nil {
		return err
	}
	mailer, err := c.openMailer(ctx, cfg, catalog)
	if err != nil {
		return err
	}
	c.openKafka(cfg)
	c.openRedis(cfg)

	engine := risk.NewEngine(domain.DefaultRiskModel(), catalog, c.enhancer, cfg.LLMTimeout, logger, metrics)
	orchestrator := pipeline.NewOrchestrator(pipeline.Deps{
		Store:     c.store,
		Engine:    engine,
		Images:    c.images,
		Vision:    c.vision,
		Greenness: c.greenness,
		Clock:     clock,
		Logger:    logger,
		Metrics:   metrics,
	}, pipeline.Settings{
		Vegetation:           vegetationModel(cfg),
		Vulnerability:        domain.DefaultVulnerabilityWeights(),
		DefaultTimeWindowHrs: cfg.DefaultTimeWindowHrs,
		VisionTimeout:        cfg.VisionTimeout,
	})

	dispatcher := alert.NewDispatcher(alert.Deps{
		Store:     c.store,
		Catalog:   catalog,
		Mailer:    mailer,
		Publisher: c.publisher,
		Clock:     clock,
		Logger:    logger,
		Metrics:   metrics,
	}, alertPolicy(cfg))
	sweeper := alert.NewSweeper(dispatcher, c.sweepLock(), clock, cfg.AlertSweepInterval, logger)
	inbox := alert.NewInbox(c.store, clock, cfg.AlertLocation)

	api := httpadapter.NewAPI(orchestrator, dispatcher, inbox, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, c.readiness(), api, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})
	if cfg.AlertSweepInterval > 0 {
		g.Go(func() error {
			return sweeper.Run(gctx)
		})
	} else {
		logger.Info("alert sweeper disabled")
	}
	if c.reader != nil {
		runner := pipeline.NewRunner(c.reader, orchestrator, c.riskWriter, logger, metrics, cfg.BatchSize)
		g.Go(func() error {
			return runner.Run(gctx)
		})
	} else {
		logger.Info("kafka run-request consumer disabled")
	}

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}
