package models

import "github.com/shopspring/decimal"

type Balance struct {
	Free  decimal.Decimal
	Total decimal.Decimal
}

// Balances по тикеру актива.
type Balances map[string]Balance

func (b Balances) Get(asset string) Balance {
	if v, ok := b[asset]; ok {
		return v
	}
	return Balance{Free: decimal.Zero, Total: decimal.Zero}
}

// BalanceSnapshot пересчитывается в каждой точке принятия решения.
// TotalQuote = весь quote на счету + стоимость открытых продаж.
type BalanceSnapshot struct {
	FreeQuote  decimal.Decimal
	TotalQuote decimal.Decimal
	SellValue  decimal.Decimal
	SellAmount decimal.Decimal
}

func NewBalanceSnapshot(quote Balance, openSells []Order) BalanceSnapshot {
	s := BalanceSnapshot{
		FreeQuote:  quote.Free,
		SellValue:  SumValue(openSells),
		SellAmount: SumAmount(openSells),
	}
	s.TotalQuote = quote.Total.Add(s.SellValue)
	return s
}

// FreeRatio: доля свободного капитала, 0 при пустом счёте.
func (s BalanceSnapshot) FreeRatio() decimal.Decimal {
	if !s.TotalQuote.IsPositive() {
		return decimal.Zero
	}
	return s.FreeQuote.Div(s.TotalQuote)
}
