package models

import "github.com/shopspring/decimal"

// Rung: одна ступень лестницы лимитных продаж.
type Rung struct {
	Price  decimal.Decimal `yaml:"price"`
	Amount decimal.Decimal `yaml:"amount"`
}

func (r Rung) Value() decimal.Decimal { return r.Price.Mul(r.Amount) }

// Ladder упорядочена по возрастанию цены.
type Ladder []Rung

func (l Ladder) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, r := range l {
		total = total.Add(r.Amount)
	}
	return total
}

func (l Ladder) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, r := range l {
		total = total.Add(r.Value())
	}
	return total
}

func (l Ladder) MinPrice() decimal.Decimal {
	if len(l) == 0 {
		return decimal.Zero
	}
	return l[0].Price
}

func (l Ladder) MaxPrice() decimal.Decimal {
	if len(l) == 0 {
		return decimal.Zero
	}
	return l[len(l)-1].Price
}

// Scale умножает все цены на m с округлением вверх до шага цены.
func (l Ladder) Scale(m decimal.Decimal, limits ExchangeLimits) Ladder {
	out := make(Ladder, len(l))
	for i, r := range l {
		out[i] = Rung{Price: limits.RoundPriceUp(r.Price.Mul(m)), Amount: r.Amount}
	}
	return out
}
