// Package scheduler runs the nightly low-stock sweep and the dashboard
// cache refresh on cron schedules.
package scheduler

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-billing/internal/analytics"
	"github.com/noah-isme/backend-billing/internal/notify"
	"github.com/noah-isme/backend-billing/internal/stock"
)

// Scheduler wires cron entries to queue-backed jobs.
type Scheduler struct {
	cron          *cron.Cron
	stockRepo     *stock.Repo
	analytics     *analytics.Service
	tasks         *asynq.Client
	log           zerolog.Logger
	lowStockSpec  string
	reportSpec    string
	lowStockGauge prometheus.Gauge
}

// Config carries the cron specs (standard 5-field expressions) and the
// job dependencies.
type Config struct {
	StockRepo     *stock.Repo
	Analytics     *analytics.Service
	Tasks         *asynq.Client
	LowStockSpec  string
	ReportSpec    string
	LowStockGauge prometheus.Gauge
	Log           zerolog.Logger
}

// New builds a scheduler from cfg. A nil Analytics disables the report
// refresh entry.
func New(cfg Config) *Scheduler {
	return &Scheduler{
		cron:          cron.New(),
		stockRepo:     cfg.StockRepo,
		analytics:     cfg.Analytics,
		tasks:         cfg.Tasks,
		log:           cfg.Log,
		lowStockSpec:  cfg.LowStockSpec,
		reportSpec:    cfg.ReportSpec,
		lowStockGauge: cfg.LowStockGauge,
	}
}

// Start registers the cron entries and begins running them.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.lowStockSpec, s.sweepLowStock); err != nil {
		return err
	}
	if s.analytics != nil && s.reportSpec != "" {
		if _, err := s.cron.AddFunc(s.reportSpec, s.refreshReports); err != nil {
			return err
		}
	}
	s.cron.Start()
	s.log.Info().Str("low_stock_spec", s.lowStockSpec).Str("report_spec", s.reportSpec).Msg("scheduler started")
	return nil
}

// Stop halts the cron runner, waiting for in-flight jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}

// sweepLowStock queues one alert per low or out-of-stock record.
func (s *Scheduler) sweepLowStock() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	alerts, err := s.stockRepo.ListLowAlerts(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("low stock sweep failed")
		return
	}
	if s.lowStockGauge != nil {
		s.lowStockGauge.Set(float64(len(alerts)))
	}

	queued := 0
	for _, alert := range alerts {
		task, err := notify.NewStockLowTask(notify.StockLowPayload{
			TenantID:    alert.TenantID,
			ProductName: alert.ProductName,
			Warehouse:   alert.WarehouseName,
			Remaining:   alert.Remaining,
			AlertPhone:  alert.AlertPhone,
		})
		if err != nil {
			s.log.Error().Err(err).Msg("build stock alert task")
			continue
		}
		if _, err := s.tasks.EnqueueContext(ctx, task, asynq.MaxRetry(3)); err != nil {
			s.log.Error().Err(err).Str("product", alert.ProductName).Msg("enqueue stock alert")
			continue
		}
		queued++
	}
	s.log.Info().Int("low_stock_records", len(alerts)).Int("alerts_queued", queued).Msg("low stock sweep complete")
}

// refreshReports rebuilds the default dashboard aggregates per tenant.
func (s *Scheduler) refreshReports() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	warmed, err := s.analytics.WarmSalesCaches(ctx)
	if err != nil {
		s.log.Error().Err(err).Int("tenants_warmed", warmed).Msg("report refresh failed")
		return
	}
	s.log.Info().Int("tenants_warmed", warmed).Msg("report refresh complete")
}
