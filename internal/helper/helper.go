package helper

import (
	"github.com/shopspring/decimal"
)

// RoundDownToTick округляет вниз до кратного tick. При tick <= 0 возвращает px как есть.
func RoundDownToTick(px, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return px
	}
	return px.Div(tick).Floor().Mul(tick)
}

func RoundUpToTick(px, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return px
	}
	return px.Div(tick).Ceil().Mul(tick)
}

// RoundToTick: к ближайшему кратному tick.
func RoundToTick(px, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return px
	}
	return px.DivRound(tick, 0).Mul(tick)
}

// PrecisionOf возвращает число знаков после запятой у шага ("0.0100" -> 2).
func PrecisionOf(step decimal.Decimal) int32 {
	if !step.IsPositive() {
		return 0
	}
	exp := -step.Exponent()
	for exp > 0 && step.Shift(exp-1).IsInteger() {
		exp--
	}
	if exp < 0 {
		return 0
	}
	return exp
}
