package payment

import (
	"context"
	"errors"
	"time"

	"templeseva/internal/config"
	"templeseva/internal/domain"
	"templeseva/internal/gateway"
)

// SweepStats summarizes one reconciliation pass.
type SweepStats struct {
	Scanned   int
	Resolved  int
	Abandoned int
	Skipped   int
	Errors    int
}

// Sweeper is the fallback path for missed or dropped webhooks: it polls the
// gateway for records stuck in pending and drives them through the same
// transition path a webhook would. It never runs in-band with a request.
type Sweeper struct {
	records recordRepo
	gateway gatewayClient
	applier *Service
	cfg     *config.PaymentRuntimeConfig
	loggerf func(format string, args ...interface{})
}

func NewSweeper(records recordRepo, gw gatewayClient, applier *Service, cfg *config.PaymentRuntimeConfig, loggerf func(format string, args ...interface{})) *Sweeper {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Sweeper{records: records, gateway: gw, applier: applier, cfg: cfg, loggerf: loggerf}
}

// Start runs periodic sweeps in a background goroutine until the context is
// cancelled or the returned channel is closed.
func (s *Sweeper) Start(ctx context.Context) chan struct{} {
	stopCh := make(chan struct{})

	go func() {
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats, err := s.SweepOnce(ctx)
				if err != nil {
					s.loggerf("level=error msg=reconciliation sweep failed err=%v", err)
					continue
				}
				if stats.Scanned > 0 {
					s.loggerf("level=info msg=reconciliation sweep done scanned=%d resolved=%d abandoned=%d skipped=%d errors=%d",
						stats.Scanned, stats.Resolved, stats.Abandoned, stats.Skipped, stats.Errors)
				}
			case <-stopCh:
				s.loggerf("level=info msg=reconciliation sweeper stopped")
				return
			case <-ctx.Done():
				s.loggerf("level=info msg=reconciliation sweeper stopped reason=context")
				return
			}
		}
	}()

	s.loggerf("level=info msg=reconciliation sweeper started interval=%s pending_timeout=%s max_sweeps=%d",
		s.cfg.SweepInterval, s.cfg.PendingTimeout, s.cfg.MaxSweeps)
	return stopCh
}

// SweepOnce scans records stuck in pending beyond the timeout and reconciles
// each against the gateway's view.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	cutoff := time.Now().Add(-s.cfg.PendingTimeout)

	stale, err := s.records.ListStalePending(ctx, cutoff, s.cfg.SweepBatchSize)
	if err != nil {
		return stats, err
	}
	stats.Scanned = len(stale)

	for i := range stale {
		s.sweepRecord(ctx, &stale[i], &stats)
	}
	return stats, nil
}

func (s *Sweeper) sweepRecord(ctx context.Context, rec *domain.PaymentRecord, stats *SweepStats) {
	if rec.ExternalPaymentID != nil {
		p, err := s.gateway.FetchPayment(ctx, *rec.ExternalPaymentID)
		switch {
		case err == nil && p.Status == gateway.PaymentStatusCaptured:
			ev := domain.TransitionEvidence{
				AmountMinorUnits:  p.AmountMinorUnits,
				Currency:          p.Currency,
				ExternalPaymentID: p.ID,
			}
			if _, terr := s.applier.ApplyTransition(ctx, rec.ID, domain.PaymentStatusCaptured, ev, domain.EventSourceSweeper); terr != nil {
				stats.Errors++
				return
			}
			stats.Resolved++
			return
		case err == nil && p.Status == gateway.PaymentStatusFailed:
			ev := domain.TransitionEvidence{
				AmountMinorUnits:  p.AmountMinorUnits,
				Currency:          p.Currency,
				ExternalPaymentID: p.ID,
				Reason:            "gateway reported failure",
			}
			if _, terr := s.applier.ApplyTransition(ctx, rec.ID, domain.PaymentStatusFailed, ev, domain.EventSourceSweeper); terr != nil {
				stats.Errors++
				return
			}
			stats.Resolved++
			return
		case errors.Is(err, gateway.ErrUnavailable):
			// Transient; leave the record for the next pass without
			// consuming an attempt.
			s.loggerf("level=warn msg=sweep gateway unavailable record_id=%s", rec.ID)
			stats.Skipped++
			return
		case err != nil && !errors.Is(err, gateway.ErrNotFound):
			s.loggerf("level=error msg=sweep status fetch failed record_id=%s err=%v", rec.ID, err)
			stats.Errors++
			return
		}
		// NotFound or a non-terminal gateway status falls through and
		// counts toward abandonment.
	}

	attempts, err := s.records.IncrementSweepAttempts(ctx, rec.ID)
	if err != nil {
		s.loggerf("level=error msg=sweep attempt increment failed record_id=%s err=%v", rec.ID, err)
		stats.Errors++
		return
	}
	if attempts < s.cfg.MaxSweeps {
		stats.Skipped++
		return
	}

	ev := domain.TransitionEvidence{Reason: domain.FailureReasonAbandoned}
	if _, terr := s.applier.ApplyTransition(ctx, rec.ID, domain.PaymentStatusFailed, ev, domain.EventSourceSweeper); terr != nil {
		stats.Errors++
		return
	}
	s.loggerf("level=warn msg=pending payment abandoned record_id=%s attempts=%d", rec.ID, attempts)
	stats.Abandoned++
}
