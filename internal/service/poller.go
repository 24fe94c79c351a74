package service

import (
	"context"
	"time"

	"ibisync/internal/repository"
	"ibisync/pkg/logger"

	"go.uber.org/zap"
)

// CeisaPoller sweeps non-terminal submission records through CheckStatus so
// customs decisions land without anyone asking. Batches with a delay between
// them keep the gateway from seeing a burst every round.
type CeisaPoller struct {
	ceisaRepo  repository.CeisaInterface
	ceisa      *CeisaService
	interval   time.Duration
	batchSize  int
	batchDelay time.Duration
}

type CeisaPollerConfig struct {
	Interval   time.Duration
	BatchSize  int
	BatchDelay time.Duration
}

func NewCeisaPoller(ceisaRepo repository.CeisaInterface, ceisa *CeisaService, cfg CeisaPollerConfig) *CeisaPoller {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	return &CeisaPoller{
		ceisaRepo:  ceisaRepo,
		ceisa:      ceisa,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
		batchDelay: cfg.BatchDelay,
	}
}

func (p *CeisaPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	logger.Info("ceisa poller started", zap.Duration("interval", p.interval))

	for {
		select {
		case <-ctx.Done():
			logger.Info("ceisa poller stopped")
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *CeisaPoller) sweep(ctx context.Context) {
	records, err := p.ceisaRepo.FetchNonTerminal(ctx, p.batchSize)
	if err != nil {
		logger.Error("failed to fetch pending ceisa records", zap.Error(err))
		return
	}
	if len(records) == 0 {
		return
	}

	advanced := 0
	for i, record := range records {
		if i > 0 && p.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.batchDelay):
			}
		}

		updated, err := p.ceisa.CheckStatus(ctx, record.CeisaReference)
		if err != nil {
			logger.Warn("ceisa poll sweep check failed",
				zap.String("reference", record.CeisaReference), zap.Error(err))
			continue
		}
		if updated != nil && updated.Status != record.Status {
			advanced++
		}
	}
	logger.Info("ceisa poll sweep finished",
		zap.Int("checked", len(records)), zap.Int("advanced", advanced))
}
