package exchange

import (
	"context"

	"ladder_bot/internal/models"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/shopspring/decimal"
)

// Traced оборачивает каждый вызов шлюза в span.
type Traced struct {
	next   Gateway
	symbol string
}

func NewTraced(next Gateway, symbol string) *Traced {
	return &Traced{next: next, symbol: symbol}
}

func (t *Traced) span(ctx context.Context, op string) (opentracing.Span, context.Context) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "exchange."+op)
	span.SetTag("symbol", t.symbol)
	return span, ctx
}

func finish(span opentracing.Span, err error) {
	if err != nil {
		ext.Error.Set(span, true)
		span.SetTag("error.class", Classify(err))
		span.LogKV("event", "error", "message", err.Error())
	}
	span.Finish()
}

func (t *Traced) Limits(ctx context.Context) (models.ExchangeLimits, error) {
	span, ctx := t.span(ctx, "limits")
	l, err := t.next.Limits(ctx)
	finish(span, err)
	return l, err
}

func (t *Traced) FetchOpenOrders(ctx context.Context) ([]models.Order, error) {
	span, ctx := t.span(ctx, "open_orders")
	out, err := t.next.FetchOpenOrders(ctx)
	span.SetTag("count", len(out))
	finish(span, err)
	return out, err
}

func (t *Traced) FetchOrder(ctx context.Context, id string) (models.Order, error) {
	span, ctx := t.span(ctx, "fetch_order")
	span.SetTag("order.id", id)
	o, err := t.next.FetchOrder(ctx, id)
	finish(span, err)
	return o, err
}

func (t *Traced) CreateOrder(ctx context.Context, req models.OrderRequest) (models.Order, error) {
	span, ctx := t.span(ctx, "create_order")
	span.SetTag("order.side", string(req.Side))
	span.SetTag("order.kind", string(req.Kind))
	span.SetTag("order.amount", req.Amount.String())
	span.SetTag("order.price", req.Price.String())
	o, err := t.next.CreateOrder(ctx, req)
	if err == nil {
		span.SetTag("order.id", o.ID)
	}
	finish(span, err)
	return o, err
}

func (t *Traced) CancelOrder(ctx context.Context, id string) error {
	span, ctx := t.span(ctx, "cancel_order")
	span.SetTag("order.id", id)
	err := t.next.CancelOrder(ctx, id)
	finish(span, err)
	return err
}

func (t *Traced) FetchBalance(ctx context.Context) (models.Balances, error) {
	span, ctx := t.span(ctx, "balance")
	b, err := t.next.FetchBalance(ctx)
	finish(span, err)
	return b, err
}

func (t *Traced) FetchTicker(ctx context.Context) (decimal.Decimal, error) {
	span, ctx := t.span(ctx, "ticker")
	p, err := t.next.FetchTicker(ctx)
	finish(span, err)
	return p, err
}

func (t *Traced) FetchMyTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	span, ctx := t.span(ctx, "my_trades")
	out, err := t.next.FetchMyTrades(ctx, limit)
	finish(span, err)
	return out, err
}

var (
	_ Gateway = (*Binance)(nil)
	_ Gateway = (*Paper)(nil)
	_ Gateway = (*Resilient)(nil)
	_ Gateway = (*Traced)(nil)
)
