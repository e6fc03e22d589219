package runner

import (
	"context"
	"fmt"
	"strings"

	"ladder_bot/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

type Status struct {
	Symbol       string
	Price        string
	Base         models.Balance
	Balance      models.BalanceSnapshot
	SellCurrent  string
	OpenBuys     int
	OpenSells    int
	SellMin      string
	SellMax      string
	SessionPnL   string
	ClosedOrders int
}

// Status собирает текущее состояние счёта и ордеров.
func (r *Runner) Status(ctx context.Context) (Status, error) {
	bal, err := r.gw.FetchBalance(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("fetch balance: %w", err)
	}
	price, err := r.gw.FetchTicker(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("fetch ticker: %w", err)
	}

	snap := models.NewBalanceSnapshot(bal.Get(r.limits.Quote), r.mon.OpenOrders(models.SideSell))
	ms := r.mon.Snapshot()
	return Status{
		Symbol:       r.limits.Symbol,
		Price:        price.String(),
		Base:         bal.Get(r.limits.Base),
		Balance:      snap,
		SellCurrent:  r.limits.RoundQuote(snap.SellAmount.Mul(price)).String(),
		OpenBuys:     ms.OpenBuys,
		OpenSells:    ms.OpenSells,
		SellMin:      ms.SellMin.String(),
		SellMax:      ms.SellMax.String(),
		SessionPnL:   ms.Profit.String(),
		ClosedOrders: ms.Closed,
	}, nil
}

func (s Status) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s @ %s\n", s.Symbol, s.Price)
	fmt.Fprintf(&b, "Свободно: %s из %s (%s%%)\n",
		s.Balance.FreeQuote, s.Balance.TotalQuote, s.Balance.FreeRatio().Mul(hundred).StringFixed(2))
	fmt.Fprintf(&b, "Base: %s (свободно %s)\n", s.Base.Total, s.Base.Free)
	fmt.Fprintf(&b, "Продажи: %d на %s, по рынку %s\n", s.OpenSells, s.Balance.SellValue, s.SellCurrent)
	if s.OpenSells > 0 {
		fmt.Fprintf(&b, "Цены продаж: %s … %s\n", s.SellMin, s.SellMax)
	}
	fmt.Fprintf(&b, "Покупки: %d\n", s.OpenBuys)
	fmt.Fprintf(&b, "Прибыль сессии: %s (закрыто %d)", s.SessionPnL, s.ClosedOrders)
	return b.String()
}

// StatusText: ответ на /status.
func (r *Runner) StatusText(ctx context.Context) string {
	s, err := r.Status(ctx)
	if err != nil {
		return "⚠️ статус недоступен: " + err.Error()
	}
	return s.String()
}

func (r *Runner) report(ctx context.Context) {
	s, err := r.Status(ctx)
	if err != nil {
		r.log.Warn("status report failed", zap.Error(err))
		return
	}
	r.log.Info("status",
		zap.String("price", s.Price),
		zap.Stringer("free_quote", s.Balance.FreeQuote),
		zap.Stringer("total_quote", s.Balance.TotalQuote),
		zap.Stringer("free_ratio", s.Balance.FreeRatio()),
		zap.Stringer("sell_amount", s.Balance.SellAmount),
		zap.Stringer("sell_value", s.Balance.SellValue),
		zap.String("sell_current", s.SellCurrent),
		zap.Int("open_buys", s.OpenBuys),
		zap.Int("open_sells", s.OpenSells),
		zap.String("sell_min", s.SellMin),
		zap.String("sell_max", s.SellMax),
		zap.String("session_profit", s.SessionPnL))
}
