package exchange

import (
	"context"
	"errors"
	"time"

	"ladder_bot/internal/metrics"
	"ladder_bot/internal/models"
	"ladder_bot/pkg/retry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ResilientConfig struct {
	RatePerSec float64
	Burst      int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Attempts   int // 0: повторять, пока жив контекст
}

// Resilient ограничивает частоту запросов и повторяет временные ошибки.
// Остальные классы ошибок возвращаются сразу.
type Resilient struct {
	next    Gateway
	limiter *rate.Limiter
	backoff retry.Backoff
	cfg     ResilientConfig
	log     *zap.Logger
}

func NewResilient(next Gateway, cfg ResilientConfig, log *zap.Logger) *Resilient {
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = time.Minute
	}
	return &Resilient{
		next:    next,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		backoff: retry.Exponential(cfg.BaseDelay, cfg.MaxDelay),
		cfg:     cfg,
		log:     log,
	}
}

func isTransient(err error) bool { return errors.Is(err, ErrTransient) }

func (r *Resilient) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	err := retry.Do(ctx, r.cfg.Attempts, r.backoff, isTransient, func(ctx context.Context) error {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		err := fn(ctx)
		if err != nil && isTransient(err) {
			r.log.Warn("exchange call failed, retrying",
				zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
		}
		attempt++
		return err
	})
	if err != nil {
		metrics.IncGatewayError(op, Classify(err))
	}
	return err
}

func (r *Resilient) Limits(ctx context.Context) (l models.ExchangeLimits, err error) {
	err = r.do(ctx, "limits", func(ctx context.Context) (e error) {
		l, e = r.next.Limits(ctx)
		return e
	})
	return l, err
}

func (r *Resilient) FetchOpenOrders(ctx context.Context) (out []models.Order, err error) {
	err = r.do(ctx, "open_orders", func(ctx context.Context) (e error) {
		out, e = r.next.FetchOpenOrders(ctx)
		return e
	})
	return out, err
}

func (r *Resilient) FetchOrder(ctx context.Context, id string) (o models.Order, err error) {
	err = r.do(ctx, "fetch_order", func(ctx context.Context) (e error) {
		o, e = r.next.FetchOrder(ctx, id)
		return e
	})
	return o, err
}

// CreateOrder фиксирует ClientID до первой попытки, чтобы повтор не задвоил заявку.
func (r *Resilient) CreateOrder(ctx context.Context, req models.OrderRequest) (o models.Order, err error) {
	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}
	err = r.do(ctx, "create_order", func(ctx context.Context) (e error) {
		o, e = r.next.CreateOrder(ctx, req)
		return e
	})
	return o, err
}

func (r *Resilient) CancelOrder(ctx context.Context, id string) error {
	return r.do(ctx, "cancel_order", func(ctx context.Context) error {
		return r.next.CancelOrder(ctx, id)
	})
}

func (r *Resilient) FetchBalance(ctx context.Context) (b models.Balances, err error) {
	err = r.do(ctx, "balance", func(ctx context.Context) (e error) {
		b, e = r.next.FetchBalance(ctx)
		return e
	})
	return b, err
}

func (r *Resilient) FetchTicker(ctx context.Context) (p decimal.Decimal, err error) {
	err = r.do(ctx, "ticker", func(ctx context.Context) (e error) {
		p, e = r.next.FetchTicker(ctx)
		return e
	})
	return p, err
}

func (r *Resilient) FetchMyTrades(ctx context.Context, limit int) (t []models.Trade, err error) {
	err = r.do(ctx, "my_trades", func(ctx context.Context) (e error) {
		t, e = r.next.FetchMyTrades(ctx, limit)
		return e
	})
	return t, err
}
