package models

import (
	"fmt"

	"ladder_bot/internal/helper"

	"github.com/shopspring/decimal"
)

// ExchangeLimits: ограничения пары, читаются один раз при старте.
type ExchangeLimits struct {
	Symbol         string
	Base           string
	Quote          string
	MinAmount      decimal.Decimal // шаг и минимум объёма
	PriceIncrement decimal.Decimal // тик цены
	MinCost        decimal.Decimal // минимальная стоимость ордера в quote
	MaxOpenOrders  int

	AmountPrecision int32
	PricePrecision  int32
	QuotePrecision  int32
}

func (l ExchangeLimits) Validate() error {
	if !l.MinAmount.IsPositive() {
		return fmt.Errorf("limits %s: min amount must be positive", l.Symbol)
	}
	if !l.PriceIncrement.IsPositive() {
		return fmt.Errorf("limits %s: price increment must be positive", l.Symbol)
	}
	if l.MinCost.IsNegative() {
		return fmt.Errorf("limits %s: min cost must not be negative", l.Symbol)
	}
	if l.MaxOpenOrders <= 0 {
		return fmt.Errorf("limits %s: max open orders must be positive", l.Symbol)
	}
	return nil
}

// MinOrderAmount: наименьший объём, проходящий фильтр стоимости с запасом в один тик.
// ceil((min_cost + tick) / price / min_amount) * min_amount
func (l ExchangeLimits) MinOrderAmount(price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return l.MinAmount
	}
	steps := l.MinCost.Add(l.PriceIncrement).
		DivRound(price, 16).
		DivRound(l.MinAmount, 16).
		Ceil()
	if steps.LessThan(decimal.NewFromInt(1)) {
		steps = decimal.NewFromInt(1)
	}
	return steps.Mul(l.MinAmount)
}

// RoundAmount округляет объём вниз до кратного MinAmount.
func (l ExchangeLimits) RoundAmount(amount decimal.Decimal) decimal.Decimal {
	return helper.RoundDownToTick(amount, l.MinAmount)
}

func (l ExchangeLimits) RoundPriceDown(price decimal.Decimal) decimal.Decimal {
	return helper.RoundDownToTick(price, l.PriceIncrement)
}

func (l ExchangeLimits) RoundPriceUp(price decimal.Decimal) decimal.Decimal {
	return helper.RoundUpToTick(price, l.PriceIncrement)
}

// RoundPrice: к ближайшему тику.
func (l ExchangeLimits) RoundPrice(price decimal.Decimal) decimal.Decimal {
	return helper.RoundToTick(price, l.PriceIncrement)
}

func (l ExchangeLimits) RoundQuote(v decimal.Decimal) decimal.Decimal {
	return v.Round(l.QuotePrecision)
}

// AmountsEqual сравнивает объёмы с точностью биржи.
func (l ExchangeLimits) AmountsEqual(a, b decimal.Decimal) bool {
	p := l.AmountPrecision
	if step := helper.PrecisionOf(l.MinAmount); step > p {
		p = step
	}
	return a.Round(p).Equal(b.Round(p))
}
