package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avelichko/scorebot/internal/allocation"
	"github.com/avelichko/scorebot/internal/decision"
	"github.com/avelichko/scorebot/internal/domain"
	"github.com/avelichko/scorebot/internal/reconcile"
	"github.com/avelichko/scorebot/internal/risk"
	"github.com/avelichko/scorebot/internal/trader"
)

// TradeMode runs the full pipeline: score ingestion, decision cycles,
// periodic risk sweeps and reconciliation.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	g, ctx := errgroup.WithContext(ctx)

	maker := a.buildMaker(deps)

	scoreCh := make(chan domain.ScoreInput, 64)
	g.Go(func() error {
		defer close(scoreCh)
		return a.ingestScores(ctx, deps, scoreCh)
	})

	engine := trader.New(trader.Config{
		Workers:       a.cfg.Execution.Workers,
		SweepInterval: a.cfg.Execution.SweepInterval.Duration,
	}, maker, scoreCh, a.logger)
	g.Go(func() error {
		return engine.Run(ctx)
	})

	g.Go(func() error {
		return a.newReconciler(deps, maker).Run(ctx)
	})

	return g.Wait()
}

// MonitorMode runs without a database or live trading: it reconciles local
// state against the exchange, sweeps open positions against cached prices,
// and tails the event stream into the log.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	maker := a.buildMaker(deps)

	g.Go(func() error {
		return a.newReconciler(deps, maker).Run(ctx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.Execution.SweepInterval.Duration)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := maker.SweepRisk(ctx); err != nil {
					a.logger.ErrorContext(ctx, "risk sweep failed", slog.String("error", err.Error()))
				}
			}
		}
	})

	g.Go(func() error {
		return a.tailEvents(ctx, deps)
	})

	return g.Wait()
}

func (a *App) buildMaker(deps *Dependencies) *decision.Maker {
	sizer := allocation.New(allocation.Config{
		MinScore:        a.cfg.Strategy.MinScoreForExecution,
		BuyThreshold:    a.cfg.Strategy.BuyThreshold,
		SellThreshold:   a.cfg.Strategy.SellThreshold,
		MaxPercent:      a.cfg.Strategy.AllocationMaxPercent,
		MaxTotalPercent: a.cfg.Strategy.MaxTotalExposurePercent,
		MinNotional:     a.cfg.Strategy.MinOrderNotional,
	})

	riskEngine := risk.New(risk.Config{
		TrailingStopPercent:     a.cfg.Risk.TrailingStopPercent,
		MinProfitToTrailPercent: a.cfg.Risk.MinProfitToTrailPercent,
	}, a.logger)

	profitTakes := make([]decision.ProfitTake, 0, len(a.cfg.Risk.ProfitTakeLevels))
	for _, lvl := range a.cfg.Risk.ProfitTakeLevels {
		profitTakes = append(profitTakes, decision.ProfitTake{
			GainPercent: lvl.GainPercent,
			Fraction:    lvl.Fraction,
		})
	}

	return decision.New(decision.Config{
		BuyThreshold:         a.cfg.Strategy.BuyThreshold,
		SellThreshold:        a.cfg.Strategy.SellThreshold,
		HoldTolerancePercent: a.cfg.Strategy.HoldTolerancePercent,
		StopLossPercent:      a.cfg.Risk.StopLossPercent,
		ProfitTakes:          profitTakes,
		MaxRetryAttempts:     a.cfg.Execution.MaxRetryAttempts,
		RetryBackoffBase:     a.cfg.Execution.RetryBackoffBase.Duration,
		ConfirmTimeout:       a.cfg.Execution.ConfirmTimeout.Duration,
		ConfirmPollInterval:  a.cfg.Execution.ConfirmPollInterval.Duration,
		LockTTL:              a.cfg.Execution.LockTTL.Duration,
	},
		deps.PositionStore, sizer, riskEngine,
		deps.Gateway, deps.Account, deps.PriceCache, deps.LockManager,
		deps.Events, a.logger,
	)
}

func (a *App) newReconciler(deps *Dependencies, maker *decision.Maker) *reconcile.Sync {
	return reconcile.New(reconcile.Config{
		Interval:         a.cfg.Reconcile.Interval.Duration,
		TolerancePercent: a.cfg.Reconcile.TolerancePercent,
		LockTTL:          a.cfg.Execution.LockTTL.Duration,
	}, deps.PositionStore, deps.Exchange, deps.LockManager, deps.Events, maker.Protect, a.logger)
}

// ingestScores subscribes to the score pub/sub channel and forwards decoded
// inputs for configured instruments. Malformed or unknown payloads are
// dropped with a warning.
func (a *App) ingestScores(ctx context.Context, deps *Dependencies, out chan<- domain.ScoreInput) error {
	known := make(map[string]bool, len(a.cfg.Instruments))
	for _, in := range a.cfg.Instruments {
		known[in] = true
	}

	ch, err := deps.SignalBus.Subscribe(ctx, domain.ScoreChannel)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			var in domain.ScoreInput
			if err := json.Unmarshal(payload, &in); err != nil {
				a.logger.WarnContext(ctx, "dropping malformed score payload",
					slog.String("error", err.Error()))
				continue
			}
			if !known[in.Instrument] {
				a.logger.WarnContext(ctx, "dropping score for unknown instrument",
					slog.String("instrument", in.Instrument))
				continue
			}
			if in.Timestamp.IsZero() {
				in.Timestamp = time.Now().UTC()
			}
			select {
			case out <- in:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// tailEvents follows the pipeline event stream and mirrors it into the log.
func (a *App) tailEvents(ctx context.Context, deps *Dependencies) error {
	lastID := "$"
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msgs, err := deps.SignalBus.StreamRead(ctx, domain.EventStream, lastID, 100)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.WarnContext(ctx, "event stream read failed", slog.String("error", err.Error()))
			time.Sleep(time.Second)
			continue
		}
		for _, msg := range msgs {
			lastID = msg.ID
			var evt domain.Event
			if err := json.Unmarshal(msg.Payload, &evt); err != nil {
				continue
			}
			a.logger.InfoContext(ctx, "pipeline event",
				slog.String("kind", evt.Kind),
				slog.String("instrument", evt.Instrument),
				slog.Any("detail", evt.Detail),
			)
		}
	}
}
