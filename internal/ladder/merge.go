package ladder

import (
	"fmt"
	"sort"

	"ladder_bot/internal/models"

	"github.com/shopspring/decimal"
)

// Merge: пара соседних продаж, заменяемая одним ордером.
type Merge struct {
	Old [2]models.Order
	New models.Rung
}

// MergePlan освобождает слоты под новые ордера: сортирует продажи по убыванию цены,
// пропускает самую дорогую, отбрасывает непарный хвост и склеивает соседей попарно.
// Цена склейки: средневзвешенная по объёму плюс два тика.
func (p *Planner) MergePlan(orders []models.Order) ([]Merge, error) {
	sells := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if o.Side == models.SideSell {
			sells = append(sells, o)
		}
	}
	if len(sells) < p.cfg.MergeMinOrders {
		return nil, fmt.Errorf("%w: %d sell orders, need %d to merge", ErrNotEnoughOrders, len(sells), p.cfg.MergeMinOrders)
	}

	sort.SliceStable(sells, func(i, j int) bool {
		return sells[i].Price.GreaterThan(sells[j].Price)
	})

	rest := sells[1:]
	if len(rest)%2 == 1 {
		rest = rest[:len(rest)-1]
	}

	bump := p.limits.PriceIncrement.Mul(decimal.NewFromInt(2))
	merges := make([]Merge, 0, len(rest)/2)
	for i := 0; i+1 < len(rest); i += 2 {
		a, b := rest[i], rest[i+1]
		amount := a.Amount.Add(b.Amount)
		if !amount.IsPositive() {
			continue
		}
		avg := a.Value().Add(b.Value()).DivRound(amount, 16)
		merges = append(merges, Merge{
			Old: [2]models.Order{a, b},
			New: models.Rung{
				Price:  p.limits.RoundPriceUp(avg.Add(bump)),
				Amount: amount,
			},
		})
	}
	return merges, nil
}
