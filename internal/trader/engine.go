// Package trader runs the per-cycle trading loop: a fixed pool of workers
// consumes score inputs and runs the decision cycle for each, while a
// background sweep keeps protective stops live between scores.
package trader

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avelichko/scorebot/internal/decision"
	"github.com/avelichko/scorebot/internal/domain"
)

// Config holds the worker pool size and risk sweep cadence.
type Config struct {
	Workers       int
	SweepInterval time.Duration
}

// Engine fans score inputs out to decision cycles. The per-instrument
// distributed lock inside the Maker serializes cycles for the same
// instrument, so workers never need instrument affinity.
type Engine struct {
	cfg    Config
	maker  *decision.Maker
	in     <-chan domain.ScoreInput
	logger *slog.Logger
}

// New creates an Engine consuming score inputs from in.
func New(cfg Config, maker *decision.Maker, in <-chan domain.ScoreInput, logger *slog.Logger) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	return &Engine{
		cfg:    cfg,
		maker:  maker,
		in:     in,
		logger: logger.With(slog.String("component", "trader")),
	}
}

// Run starts the workers and the risk sweep and blocks until the input
// channel is closed and drained, or ctx is cancelled. In-flight cycles
// finish before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	var workers sync.WaitGroup
	for i := 0; i < e.cfg.Workers; i++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			return e.worker(gctx)
		})
	}

	// The sweeper has no natural end; stop it once the input is drained.
	g.Go(func() error {
		workers.Wait()
		cancel()
		return nil
	})
	g.Go(func() error {
		return e.sweeper(gctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (e *Engine) worker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in, ok := <-e.in:
			if !ok {
				return nil
			}
			e.process(ctx, in)
		}
	}
}

func (e *Engine) process(ctx context.Context, in domain.ScoreInput) {
	start := time.Now()
	d, err := e.maker.Process(ctx, in)
	switch {
	case errors.Is(err, domain.ErrLockHeld):
		// Another cycle or a reconciliation pass owns the instrument.
	case err != nil:
		e.logger.ErrorContext(ctx, "decision cycle failed",
			slog.String("instrument", in.Instrument),
			slog.Float64("score", in.Score),
			slog.String("error", err.Error()),
		)
	default:
		e.logger.InfoContext(ctx, "decision cycle done",
			slog.String("instrument", in.Instrument),
			slog.Float64("score", in.Score),
			slog.String("action", string(d.Action)),
			slog.String("reason", d.Reason),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}

func (e *Engine) sweeper(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.maker.SweepRisk(ctx); err != nil {
				e.logger.ErrorContext(ctx, "risk sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}
