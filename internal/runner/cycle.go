package runner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"ladder_bot/internal/exchange"
	"ladder_bot/internal/helper"
	"ladder_bot/internal/ladder"
	"ladder_bot/internal/metrics"
	"ladder_bot/internal/models"
	"ladder_bot/pkg/retry"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// loop: основной цикл: пауза по доле свободного капитала, затем маркет-покупка.
func (r *Runner) loop(ctx context.Context) {
	backoff := retry.Linear(time.Second, r.cfg.BackoffMax)
	fails := 0
	for {
		wait, err := r.cycle(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			wait = backoff(fails)
			fails++
			r.log.Warn("cycle failed", zap.Error(err), zap.Duration("retry_in", wait))
		} else {
			fails = 0
		}
		if !retry.Sleep(ctx, wait) {
			return
		}
	}
}

// cycle возвращает, сколько ждать до следующего прохода.
func (r *Runner) cycle(ctx context.Context) (time.Duration, error) {
	snap, err := r.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	pause, err := helper.ScaleDuration(snap.FreeQuote, snap.TotalQuote, r.cfg.SleepMax, r.cfg.SleepMin)
	if err != nil {
		return 0, fmt.Errorf("sleep interval: %w", err)
	}

	since, err := r.sinceLastTrade(ctx)
	if err != nil {
		return 0, err
	}
	if since < pause {
		left := pause - since + time.Second
		r.log.Debug("waiting before next buy",
			zap.Duration("pause", pause), zap.Duration("since_last_trade", since), zap.Duration("left", left))
		return left, nil
	}

	if err := r.buyCycle(ctx); err != nil {
		return 0, err
	}
	r.report(ctx)
	return time.Second, nil
}

func (r *Runner) snapshot(ctx context.Context) (models.BalanceSnapshot, error) {
	bal, err := r.gw.FetchBalance(ctx)
	if err != nil {
		return models.BalanceSnapshot{}, fmt.Errorf("fetch balance: %w", err)
	}
	snap := models.NewBalanceSnapshot(bal.Get(r.limits.Quote), r.mon.OpenOrders(models.SideSell))
	metrics.SetFreeRatio(snap.FreeRatio())
	return snap, nil
}

func (r *Runner) sinceLastTrade(ctx context.Context) (time.Duration, error) {
	trades, err := r.gw.FetchMyTrades(ctx, 1)
	if err != nil {
		return 0, fmt.Errorf("fetch trades: %w", err)
	}
	if len(trades) == 0 {
		return time.Duration(math.MaxInt64), nil
	}
	return r.now().Sub(trades[len(trades)-1].Timestamp), nil
}

// margin: текущая наценка. При недоступном балансе берём максимальную.
func (r *Runner) margin(ctx context.Context) decimal.Decimal {
	snap, err := r.snapshot(ctx)
	if err == nil {
		var m decimal.Decimal
		m, err = helper.Scale(snap.FreeQuote, snap.TotalQuote, r.cfg.MarginMin, r.cfg.MarginMax)
		if err == nil {
			metrics.SetMargin(m)
			return m
		}
	}
	r.log.Warn("margin fallback to max", zap.Stringer("margin", r.cfg.MarginMax), zap.Error(err))
	return r.cfg.MarginMax
}

// buyCycle: маркет-покупка минимального объёма и цепочка встречных ордеров.
// Нехватка средств и неверные параметры не считаются сбоем цикла.
func (r *Runner) buyCycle(ctx context.Context) error {
	r.tradeMu.Lock()
	defer r.tradeMu.Unlock()

	price, err := r.gw.FetchTicker(ctx)
	if err != nil {
		return fmt.Errorf("fetch ticker: %w", err)
	}
	buy, err := r.place(ctx, models.OrderRequest{
		Side:   models.SideBuy,
		Kind:   models.KindMarket,
		Amount: r.limits.MinOrderAmount(price),
	}, nil)
	if err != nil {
		if errors.Is(err, exchange.ErrInsufficientFunds) || errors.Is(err, exchange.ErrInvalidOrder) {
			return nil
		}
		return err
	}
	r.advance(ctx, buy)
	return nil
}

// advance применяет снимок ордера и, пока встречные ордера исполняются сразу,
// выставляет следующий. Нарушение учёта пар обрывает цепочку.
// Вызывается под tradeMu.
func (r *Runner) advance(ctx context.Context, o models.Order) {
	for i := 0; ; i++ {
		tr, err := r.mon.Observe(ctx, o)
		if err != nil {
			r.violation(o, err)
			return
		}
		if !tr.Filled {
			return
		}
		if tr.Order.Side == models.SideSell && tr.Profit.IsPositive() {
			r.n.Sendf("💰 %s: продажа %s по %s, прибыль %s (сессия %s)",
				r.limits.Symbol, tr.Order.EffectiveAmount(), tr.Order.Price, tr.Profit, r.mon.SessionProfit())
		}
		if i == r.cfg.MaxChain {
			r.log.Warn("counter order chain limit reached",
				zap.Int("limit", r.cfg.MaxChain), zap.String("id", tr.Order.ID), zap.String("side", string(tr.Order.Side)))
			return
		}

		next, err := r.counter(ctx, tr.Order)
		if err != nil || next.Status == models.StatusOpen {
			return
		}
		o = next
	}
}

// settle применяет ордер, завершённый уже при создании, без встречного.
func (r *Runner) settle(ctx context.Context, o models.Order) {
	if o.Status == models.StatusOpen {
		return
	}
	if _, err := r.mon.Observe(ctx, o); err != nil {
		r.violation(o, err)
	}
}

// counter выставляет встречный лимитный ордер на исполненный.
func (r *Runner) counter(ctx context.Context, filled models.Order) (models.Order, error) {
	m := r.margin(ctx)

	if filled.Side == models.SideBuy {
		amount := filled.Filled
		if !amount.IsPositive() {
			amount = filled.Amount
		}
		origin := filled
		return r.place(ctx, models.OrderRequest{
			Side:   models.SideSell,
			Kind:   models.KindLimit,
			Amount: amount,
			Price:  r.limits.RoundPriceUp(filled.Price.Mul(m)),
		}, &origin)
	}

	price := r.limits.RoundPriceDown(filled.Price.DivRound(m, 16))
	buy, err := r.place(ctx, models.OrderRequest{
		Side:   models.SideBuy,
		Kind:   models.KindLimit,
		Amount: r.limits.MinOrderAmount(price),
		Price:  price,
	}, nil)
	if err != nil {
		return buy, err
	}
	if buy.IsOpen() {
		r.scheduleCancel(ctx, buy)
	}
	return buy, nil
}

// place создаёт ордер и ставит его на учёт. При переполнении лимита ордеров
// склеивает продажи и повторяет, не больше MaxPlaceAttempts раз.
func (r *Runner) place(ctx context.Context, req models.OrderRequest, origin *models.Order) (models.Order, error) {
	var err error
	for attempt := 1; attempt <= r.cfg.MaxPlaceAttempts; attempt++ {
		var o models.Order
		o, err = r.gw.CreateOrder(ctx, req)
		if err == nil {
			r.mon.Track(ctx, o, origin)
			r.log.Info("order placed",
				zap.String("id", o.ID), zap.String("side", string(o.Side)), zap.String("kind", string(o.Kind)),
				zap.Stringer("price", o.Price), zap.Stringer("amount", o.Amount), zap.Stringer("status", o.Status))
			return o, nil
		}

		fields := []zap.Field{
			zap.String("op", "create"), zap.String("side", string(req.Side)), zap.String("kind", string(req.Kind)),
			zap.Stringer("price", req.Price), zap.Stringer("amount", req.Amount), zap.Int("attempt", attempt), zap.Error(err),
		}
		switch {
		case errors.Is(err, exchange.ErrOrderCountExceeded):
			r.log.Warn("open order limit reached, merging sells", fields...)
			if attempt == r.cfg.MaxPlaceAttempts {
				break
			}
			if freed, merr := r.merge(ctx); freed <= 0 {
				return models.Order{}, errors.Join(err, merr)
			}
			continue
		case errors.Is(err, exchange.ErrInsufficientFunds):
			r.log.Warn("insufficient funds", fields...)
		case errors.Is(err, exchange.ErrInvalidOrder):
			r.log.Error("invalid order", fields...)
		default:
			r.log.Error("create order failed", fields...)
		}
		return models.Order{}, err
	}
	return models.Order{}, err
}

// merge склеивает открытые продажи. Возвращает число освободившихся слотов.
func (r *Runner) merge(ctx context.Context) (int, error) {
	sells := r.mon.OpenOrders(models.SideSell)
	res, err := r.replacer.Merge(ctx, sells)
	if res == nil {
		if errors.Is(err, ladder.ErrNotEnoughOrders) {
			r.log.Warn("nothing to merge", zap.Error(err))
		}
		return 0, err
	}

	byID := make(map[string]models.Order, len(sells))
	for _, o := range sells {
		byID[o.ID] = o
	}
	for _, id := range res.Canceled {
		o := byID[id]
		o.Status = models.StatusCanceled
		if _, oerr := r.mon.Observe(ctx, o); oerr != nil {
			r.log.Warn("observe merged sell", zap.String("id", id), zap.Error(oerr))
		}
	}
	for _, o := range res.Created {
		r.mon.Track(ctx, o, nil)
		r.settle(ctx, o)
	}

	freed := len(res.Canceled) - len(res.Created)
	r.n.Sendf("🔗 %s: склеено продаж %d → %d", r.limits.Symbol, len(res.Canceled), len(res.Created))
	if err != nil {
		r.log.Error("merge incomplete", zap.Int("freed", freed), zap.Int("failed", len(res.Failed)), zap.Error(err))
	}
	return freed, err
}

// scheduleCancel снимает лимитную покупку, если она не исполнилась за BuyCancelTimeout.
func (r *Runner) scheduleCancel(ctx context.Context, buy models.Order) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if !retry.Sleep(ctx, r.cfg.BuyCancelTimeout) {
			return
		}
		if !r.mon.IsOpen(buy.ID) {
			return
		}

		err := r.gw.CancelOrder(ctx, buy.ID)
		if err != nil && !errors.Is(err, exchange.ErrOrderNotFound) {
			r.log.Error("delayed cancel failed", zap.String("id", buy.ID), zap.Stringer("price", buy.Price), zap.Error(err))
			return
		}
		cur, err := r.gw.FetchOrder(ctx, buy.ID)
		if err != nil {
			r.log.Warn("fetch after cancel failed", zap.String("id", buy.ID), zap.Error(err))
			return
		}
		r.log.Info("limit buy expired", zap.String("id", buy.ID), zap.Stringer("price", buy.Price), zap.Stringer("status", cur.Status))
		r.handleUpdate(ctx, cur)
	}()
}

// sellRemaining выставляет свободный base одной продажей чуть ниже самой дорогой открытой.
func (r *Runner) sellRemaining(ctx context.Context) error {
	bal, err := r.gw.FetchBalance(ctx)
	if err != nil {
		return fmt.Errorf("fetch balance: %w", err)
	}

	var price decimal.Decimal
	sells := r.mon.OpenOrders(models.SideSell)
	if len(sells) > 0 {
		price = sells[len(sells)-1].Price.Sub(r.limits.PriceIncrement)
	} else {
		ticker, err := r.gw.FetchTicker(ctx)
		if err != nil {
			return fmt.Errorf("fetch ticker: %w", err)
		}
		price = r.limits.RoundPriceUp(ticker.Mul(r.cfg.MarginMax))
	}

	amount := r.limits.RoundAmount(bal.Get(r.limits.Base).Free)
	if amount.LessThan(r.limits.MinOrderAmount(price)) {
		r.log.Info("no remaining base to sell", zap.Stringer("free", amount))
		return nil
	}
	o, err := r.place(ctx, models.OrderRequest{
		Side:   models.SideSell,
		Kind:   models.KindLimit,
		Amount: amount,
		Price:  price,
	}, nil)
	if err != nil {
		return err
	}
	r.settle(ctx, o)
	return nil
}
