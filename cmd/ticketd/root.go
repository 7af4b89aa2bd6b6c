package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/ticket-inventory/internal/config"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/database"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/logger"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/metrics"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/repository"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/repository/memory"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/repository/postgres"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/service"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:          "ticketd",
	Short:        "Ticket inventory and event capacity service",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file to load (default: .env if present)")
}

func loadConfig() (*config.Config, error) {
	if envFile != "" {
		return config.LoadWithPath(envFile)
	}
	return config.Load()
}

// app is everything a command needs, built from configuration.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	pool   *pgxpool.Pool
	store  repository.Store
	engine *service.Engine

	stopMetrics func(context.Context) error
}

func newApp(ctx context.Context, withTelemetry bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		ServiceName: cfg.Telemetry.ServiceName,
		Development: cfg.Log.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &app{cfg: cfg, log: log}
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		log.Warn("using in-memory storage, data is lost on exit")
		a.store = memory.New()
	default:
		a.pool, err = database.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		log.Info("connected to postgres", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.DBName))
		a.store = postgres.New(a.pool)
	}

	if withTelemetry && cfg.Telemetry.Enabled {
		a.stopMetrics, err = metrics.StartExporter(ctx, metrics.ExportConfig{
			ServiceName:   cfg.Telemetry.ServiceName,
			CollectorAddr: cfg.Telemetry.CollectorAddr,
			Interval:      cfg.Telemetry.Interval,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		log.Info("exporting metrics", zap.String("collector", cfg.Telemetry.CollectorAddr))
	}
	recorder, err := metrics.NewGlobal()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.engine = service.New(a.store, service.Options{
		Logger:          log,
		Metrics:         recorder,
		MaxRetries:      cfg.Engine.MaxRetries,
		BulkConcurrency: cfg.Engine.BulkConcurrency,
		MaxBulkSize:     cfg.Engine.MaxBulkSize,
	})
	return a, nil
}

// migrate applies the schema when running against postgres.
func (a *app) migrate(ctx context.Context) error {
	if a.pool == nil {
		return nil
	}
	if err := database.Migrate(ctx, a.pool); err != nil {
		return err
	}
	a.log.Info("schema up to date")
	return nil
}

func (a *app) Close() {
	if a.stopMetrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		if err := a.stopMetrics(ctx); err != nil {
			a.log.Warn("flush metrics", zap.Error(err))
		}
		cancel()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.log.Sync()
}
