// Package sweeper fails settlements that stopped making progress, so a
// crashed or abandoned request never leaves a deposit in flight forever.
package sweeper

import (
	"context"
	"strconv"
	"time"

	"github.com/dwarvesf/settlement-backend/internal/apperror"
	"github.com/dwarvesf/settlement-backend/internal/model"
	"github.com/dwarvesf/settlement-backend/internal/monitoring"
	"github.com/dwarvesf/settlement-backend/internal/settlementledger"
	"github.com/dwarvesf/settlement-backend/internal/utils/logger"
	"github.com/dwarvesf/settlement-backend/internal/utils/webhook"
)

type Config struct {
	StaleAfter time.Duration
	BatchSize  int
	UptimeURL  string
}

type Sweeper struct {
	ledger     settlementledger.ILedger
	notifier   webhook.INotifier
	jobMetrics *monitoring.BackgroundJobMetrics
	metrics    *monitoring.BusinessMetricsRecorder
	logger     *logger.Logger
	cfg        Config
	now        func() time.Time
}

func New(
	ledger settlementledger.ILedger,
	notifier webhook.INotifier,
	jobMetrics *monitoring.BackgroundJobMetrics,
	metrics *monitoring.BusinessMetricsRecorder,
	logger *logger.Logger,
	cfg Config,
) *Sweeper {
	return &Sweeper{
		ledger:     ledger,
		notifier:   notifier,
		jobMetrics: jobMetrics,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Sweep moves every in-flight record untouched for StaleAfter to FAILED with
// kind STALE and returns how many it moved. A record that advanced in the
// meantime is left alone.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.StaleAfter)
	records, err := s.ledger.ListStale(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("[Sweeper][Sweep][ListStale]", map[string]string{
			"error": err.Error(),
		})
		s.metrics.RecordSweep("error", 0)
		return 0, err
	}

	swept := 0
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			s.metrics.RecordSweep("success", swept)
			return swept, err
		}

		msg := "settlement stalled in " + string(rec.Status) + " since " + rec.UpdatedAt.UTC().Format(time.RFC3339)
		ok, err := s.ledger.Advance(ctx, rec.DepositReference, rec.Status, model.SettlementStatusFailed, settlementledger.Fields{
			ErrorKind:    apperror.KindStale,
			ErrorMessage: msg,
		})
		if err != nil {
			s.logger.Error("[Sweeper][Sweep][Advance]", map[string]string{
				"reference": rec.DepositReference,
				"error":     err.Error(),
			})
			continue
		}
		if !ok {
			continue
		}
		swept++

		s.logger.Warn("[Sweeper][Sweep] failed stale settlement", map[string]string{
			"reference": rec.DepositReference,
			"status":    string(rec.Status),
		})
		// a QUOTED record may have a payout in flight that nobody recorded
		s.notifier.NotifyOperator(ctx, webhook.Alert{
			Event:            webhook.EventSettlementStale,
			DepositReference: rec.DepositReference,
			RequestingWallet: rec.RequestingWallet,
			PayoutCurrency:   rec.PayoutCurrency,
			PayoutAmount:     rec.PayoutAmount,
			ErrorKind:        apperror.KindStale.String(),
			Message:          msg,
		})
	}

	s.metrics.RecordSweep("success", swept)
	s.publishInFlight(ctx)
	s.notifier.CallUptimeWebhook(ctx, s.cfg.UptimeURL)

	if swept > 0 {
		s.logger.Info("[Sweeper][Sweep] sweep finished", map[string]string{
			"swept": strconv.Itoa(swept),
		})
	}

	return swept, nil
}

// Run is the job function handed to monitoring.NewInstrumentedJob.
func (s *Sweeper) Run(ctx context.Context) error {
	_, err := s.Sweep(ctx)
	return err
}

func (s *Sweeper) publishInFlight(ctx context.Context) {
	if s.jobMetrics == nil {
		return
	}
	for _, status := range model.InFlightSettlementStatuses() {
		_, total, err := s.ledger.List(ctx, model.SettlementListFilter{Status: status, Limit: 1})
		if err != nil {
			s.logger.Error("[Sweeper][publishInFlight][List]", map[string]string{
				"status": string(status),
				"error":  err.Error(),
			})
			continue
		}
		s.jobMetrics.SetInFlightSettlements(string(status), int(total))
	}
}
