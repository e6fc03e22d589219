package journal

import (
	"context"
	"errors"
	"time"

	"ladder_bot/internal/models"

	"github.com/shopspring/decimal"
)

// Entry: одна запись журнала сделок на каждое событие статуса ордера.
type Entry struct {
	Time    time.Time
	Symbol  string
	OrderID string
	Side    models.Side
	Kind    models.Kind
	Status  models.Status
	Price   decimal.Decimal
	Amount  decimal.Decimal
	Filled  decimal.Decimal
	Cost    decimal.Decimal
	Profit  decimal.Decimal
}

func FromOrder(o models.Order, profit decimal.Decimal) Entry {
	ts := o.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return Entry{
		Time:    ts.UTC(),
		Symbol:  o.Symbol,
		OrderID: o.ID,
		Side:    o.Side,
		Kind:    o.Kind,
		Status:  o.Status,
		Price:   o.Price,
		Amount:  o.Amount,
		Filled:  o.Filled,
		Cost:    o.Cost,
		Profit:  profit,
	}
}

// Journal только дописывает. Ошибка записи не должна останавливать торговлю,
// вызывающий её только логирует.
type Journal interface {
	Record(ctx context.Context, e Entry) error
}

type Multi []Journal

func (m Multi) Record(ctx context.Context, e Entry) error {
	var errs []error
	for _, j := range m {
		if err := j.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }
