package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ladder_bot/internal/exchange"
	"ladder_bot/internal/metrics"
	"ladder_bot/internal/models"
	"ladder_bot/pkg/retry"

	"go.uber.org/zap"
)

// watch опрашивает только крайние ордера: самую дешёвую продажу и самую дорогую покупку.
// Они исполняются первыми, остальные проверяются, когда станут крайними.
func (r *Runner) watch(ctx context.Context) {
	backoff := retry.Linear(time.Second, r.cfg.BackoffMax)
	fails := 0
	for {
		changed, err := r.pollExtremes(ctx)
		if ctx.Err() != nil {
			return
		}

		wait := r.cfg.PollInterval
		switch {
		case err != nil:
			wait = backoff(fails)
			fails++
			r.log.Warn("order poll failed", zap.Error(err), zap.Duration("retry_in", wait))
		case changed:
			fails = 0
			wait = 0
		default:
			fails = 0
		}
		if err == nil && r.health != nil {
			r.health.TouchTick(r.now())
		}
		if !retry.Sleep(ctx, wait) {
			return
		}
	}
}

func (r *Runner) pollExtremes(ctx context.Context) (bool, error) {
	var targets []models.Order
	if o, ok := r.mon.LowestOpenSell(); ok {
		targets = append(targets, o)
	}
	if o, ok := r.mon.HighestOpenBuy(); ok {
		targets = append(targets, o)
	}

	changed := false
	for _, t := range targets {
		cur, err := r.gw.FetchOrder(ctx, t.ID)
		if errors.Is(err, exchange.ErrOrderNotFound) {
			r.log.Warn("tracked order vanished, treating as canceled", zap.String("id", t.ID), zap.Stringer("price", t.Price))
			cur, err = t, nil
			cur.Status = models.StatusCanceled
		}
		if err != nil {
			return changed, fmt.Errorf("poll order %s: %w", t.ID, err)
		}
		if t.Status == models.StatusOpen && cur.Status == t.Status && cur.Filled.Equal(t.Filled) {
			continue
		}
		changed = true
		r.handleUpdate(ctx, cur)
	}
	return changed, nil
}

// consume применяет события пользовательского потока биржи.
func (r *Runner) consume(ctx context.Context) {
	for o := range r.stream.Updates(ctx) {
		r.handleUpdate(ctx, o)
	}
}

// handleUpdate: общий вход для опроса, потока и отложенной отмены.
func (r *Runner) handleUpdate(ctx context.Context, o models.Order) {
	r.tradeMu.Lock()
	defer r.tradeMu.Unlock()
	r.advance(ctx, o)
}

func (r *Runner) violation(o models.Order, err error) {
	metrics.IncInvariantViolation("runner")
	r.log.Error("order update rejected",
		zap.String("id", o.ID), zap.String("side", string(o.Side)), zap.Stringer("status", o.Status), zap.Error(err))
	r.n.Sendf("⚠️ %s: ордер %s: %v", r.limits.Symbol, o.ID, err)
}
