package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side как у биржи: "BUY"/"SELL".
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type Kind string

const (
	KindMarket Kind = "MARKET"
	KindLimit  Kind = "LIMIT"
)

// Status: закрытый набор состояний ордера. Сырые статусы биржи
// разбираются один раз на границе шлюза.
type Status int

const (
	StatusUnknown Status = iota
	StatusOpen
	StatusClosed
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Order: неизменяемый снимок ордера, полученный от биржи.
// Для исполненного маркет-ордера Price: средняя цена исполнения.
type Order struct {
	ID        string
	Symbol    string
	Side      Side
	Kind      Kind
	Price     decimal.Decimal
	Amount    decimal.Decimal
	Filled    decimal.Decimal
	Cost      decimal.Decimal
	Status    Status
	Timestamp time.Time
}

func (o Order) Value() decimal.Decimal { return o.Price.Mul(o.Amount) }

// EffectiveAmount: заявленный объём, либо исполненный, если заявка без объёма.
func (o Order) EffectiveAmount() decimal.Decimal {
	if o.Amount.IsZero() {
		return o.Filled
	}
	return o.Amount
}

func (o Order) IsOpen() bool { return o.Status == StatusOpen }

func (o Order) String() string {
	return fmt.Sprintf("%s %s %s %s@%s [%s]", o.ID, o.Kind, o.Side, o.Amount, o.Price, o.Status)
}

type OrderRequest struct {
	Side     Side
	Kind     Kind
	Amount   decimal.Decimal
	Price    decimal.Decimal // только для лимитных
	ClientID string          // стабилен между повторами одной заявки
}

func (r OrderRequest) String() string {
	if r.Kind == KindMarket {
		return fmt.Sprintf("%s %s %s", r.Kind, r.Side, r.Amount)
	}
	return fmt.Sprintf("%s %s %s@%s", r.Kind, r.Side, r.Amount, r.Price)
}

type Trade struct {
	ID        string
	OrderID   string
	Side      Side
	Price     decimal.Decimal
	Amount    decimal.Decimal
	Timestamp time.Time
}

// SumAmount и SumValue считают агрегаты набора ордеров.
func SumAmount(orders []Order) decimal.Decimal {
	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(o.Amount)
	}
	return total
}

func SumValue(orders []Order) decimal.Decimal {
	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(o.Value())
	}
	return total
}
