package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ladder_bot/internal/exchange"
	"ladder_bot/internal/ladder"
	"ladder_bot/internal/models"
	"ladder_bot/internal/monitor"
	"ladder_bot/internal/notify"

	"go.uber.org/zap"
)

// UpdateSource: push-источник снимков ордеров (пользовательский поток биржи).
type UpdateSource interface {
	Updates(ctx context.Context) <-chan models.Order
}

// Health: то, что раннер сообщает health-модулю.
type Health interface {
	SetReady(v bool)
	TouchTick(t time.Time)
}

// Runner: цикл маркет-мейкинга по одной паре.
type Runner struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cfg       Config
	ladderCfg ladder.Config
	gw        exchange.Gateway
	mon       *monitor.Monitor
	n         notify.Notifier
	log       *zap.Logger
	stream    UpdateSource
	health    Health
	now       func() time.Time

	limits   models.ExchangeLimits
	planner  *ladder.Planner
	replacer *ladder.Replacer

	// одно торговое действие за раз: цикл покупки, встречные ордера, склейка
	tradeMu sync.Mutex
}

func New(cfg Config, ladderCfg ladder.Config, gw exchange.Gateway, mon *monitor.Monitor, n notify.Notifier, log *zap.Logger) *Runner {
	return &Runner{
		cfg:       cfg,
		ladderCfg: ladderCfg,
		gw:        gw,
		mon:       mon,
		n:         n,
		log:       log,
		now:       time.Now,
	}
}

func (r *Runner) WithStream(s UpdateSource) *Runner {
	r.stream = s
	return r
}

func (r *Runner) WithHealth(h Health) *Runner {
	r.health = h
	return r
}

// Start готовит состояние и запускает рабочие горутины.
func (r *Runner) Start(parent context.Context) error {
	r.ctx, r.cancel = context.WithCancel(parent)

	if err := r.init(r.ctx); err != nil {
		r.cancel()
		return err
	}

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		r.loop(r.ctx)
	}()
	go func() {
		defer r.wg.Done()
		r.watch(r.ctx)
	}()
	if r.stream != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.consume(r.ctx)
		}()
	}

	if r.health != nil {
		r.health.SetReady(true)
	}
	r.n.Sendf("▶️ %s: бот запущен", r.limits.Symbol)
	return nil
}

func (r *Runner) init(ctx context.Context) error {
	limits, err := r.gw.Limits(ctx)
	if err != nil {
		return fmt.Errorf("runner: limits: %w", err)
	}
	if err := limits.Validate(); err != nil {
		return fmt.Errorf("runner: %w", err)
	}
	r.limits = limits
	r.planner = ladder.NewPlanner(limits, r.ladderCfg)
	r.replacer = ladder.NewReplacer(r.planner, r.gw, r.log.Named("ladder"))

	// висящие с прошлого запуска покупки не относятся к текущей сессии
	n, err := r.cancelOpenBuys(ctx)
	if err != nil {
		return fmt.Errorf("runner: cancel stale buys: %w", err)
	}
	if n > 0 {
		r.log.Info("stale buy orders canceled", zap.Int("count", n))
	}

	if err := r.mon.Init(ctx, r.gw); err != nil {
		return fmt.Errorf("runner: %w", err)
	}

	if r.cfg.SellRemaining {
		if err := r.sellRemaining(ctx); err != nil {
			r.log.Warn("sell remaining base failed", zap.Error(err))
		}
	}
	return nil
}

// Stop останавливает цикл, дожидается горутин и снимает все открытые покупки.
// Продажи не трогаются никогда.
func (r *Runner) Stop(ctx context.Context) error {
	if r.cancel == nil {
		return nil
	}
	if r.health != nil {
		r.health.SetReady(false)
	}
	r.cancel()

	var errs []error
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("runner: workers did not stop: %w", ctx.Err()))
	}

	sctx, cancel := context.WithTimeout(context.Background(), r.cfg.ShutdownTimeout)
	defer cancel()
	n, err := r.cancelOpenBuys(sctx)
	if err != nil {
		errs = append(errs, err)
	}

	r.log.Info("runner stopped", zap.Int("buys_canceled", n), zap.Stringer("session_profit", r.mon.SessionProfit()))
	r.n.Sendf("⏹ %s: бот остановлен, снято покупок: %d, прибыль сессии: %s",
		r.limits.Symbol, n, r.mon.SessionProfit())
	return errors.Join(errs...)
}

// cancelOpenBuys снимает все открытые покупки по данным биржи.
func (r *Runner) cancelOpenBuys(ctx context.Context) (int, error) {
	orders, err := r.gw.FetchOpenOrders(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch open orders: %w", err)
	}

	var errs []error
	n := 0
	for _, o := range orders {
		if o.Side != models.SideBuy {
			continue
		}
		if err := r.gw.CancelOrder(ctx, o.ID); err != nil && !errors.Is(err, exchange.ErrOrderNotFound) {
			r.log.Error("cancel buy failed", zap.String("id", o.ID), zap.Stringer("price", o.Price), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		n++
		o.Status = models.StatusCanceled
		if _, err := r.mon.Observe(ctx, o); err != nil {
			r.log.Warn("observe canceled buy", zap.String("id", o.ID), zap.Error(err))
		}
	}
	return n, errors.Join(errs...)
}
