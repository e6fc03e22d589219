package ladder

import (
	"errors"
	"fmt"

	"ladder_bot/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrInfeasibleLadder   = errors.New("infeasible ladder")
	ErrInvariantViolation = errors.New("ladder invariant violation")
	ErrNotEnoughOrders    = errors.New("not enough orders")
)

// RemainderPolicy: куда уходит остаток объёма после раздачи минимальных объёмов.
type RemainderPolicy string

const (
	RemainderHighest RemainderPolicy = "highest"
	RemainderLowest  RemainderPolicy = "lowest"
	RemainderSpread  RemainderPolicy = "spread"
)

// AmountMode: exact: сумма объёмов равна исходной, capped: не больше исходной.
type AmountMode string

const (
	AmountExact  AmountMode = "exact"
	AmountCapped AmountMode = "capped"
)

type Config struct {
	Remainder      RemainderPolicy
	AmountMode     AmountMode
	MaxOrdersRatio decimal.Decimal // доля от лимита ордеров биржи, если лестница не влезает
	MergeMinOrders int
}

func DefaultConfig() Config {
	return Config{
		Remainder:      RemainderHighest,
		AmountMode:     AmountExact,
		MaxOrdersRatio: decimal.RequireFromString("0.8"),
		MergeMinOrders: 10,
	}
}

func (c Config) Validate() error {
	switch c.Remainder {
	case RemainderHighest, RemainderLowest, RemainderSpread:
	default:
		return fmt.Errorf("ladder: unknown remainder policy %q", c.Remainder)
	}
	switch c.AmountMode {
	case AmountExact, AmountCapped:
	default:
		return fmt.Errorf("ladder: unknown amount mode %q", c.AmountMode)
	}
	if !c.MaxOrdersRatio.IsPositive() || c.MaxOrdersRatio.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("ladder: max orders ratio must be in (0, 1], got %s", c.MaxOrdersRatio)
	}
	if c.MergeMinOrders < 3 {
		return fmt.Errorf("ladder: merge min orders must be at least 3, got %d", c.MergeMinOrders)
	}
	return nil
}

// Planner: чистые вычисления над лестницей ордеров, без обращений к бирже.
type Planner struct {
	limits models.ExchangeLimits
	cfg    Config
}

func NewPlanner(limits models.ExchangeLimits, cfg Config) *Planner {
	return &Planner{limits: limits, cfg: cfg}
}

func (p *Planner) Limits() models.ExchangeLimits { return p.limits }
func (p *Planner) Config() Config                { return p.cfg }

// MaxOrdersFitting: сколько ордеров минимального размера, равномерно разложенных
// по [minPrice, maxPrice], помещается в total. Линейный поиск, выполнимость монотонна.
func (p *Planner) MaxOrdersFitting(total, minPrice, maxPrice decimal.Decimal) int {
	if !minPrice.IsPositive() || maxPrice.LessThan(minPrice) {
		return 0
	}
	if p.limits.MinOrderAmount(minPrice).GreaterThan(total) {
		return 0
	}
	n := 2
	for p.fits(n, total, minPrice, maxPrice) {
		n++
	}
	return n - 1
}

func (p *Planner) fits(n int, total, minPrice, maxPrice decimal.Decimal) bool {
	spread := maxPrice.Sub(minPrice)
	step := spread.DivRound(decimal.NewFromInt(int64(n-1)), 16)
	sum := decimal.Zero
	for i := 0; i < n; i++ {
		price := minPrice.Add(step.Mul(decimal.NewFromInt(int64(i))))
		sum = sum.Add(p.limits.MinOrderAmount(price))
		if sum.GreaterThan(total) {
			return false
		}
	}
	return true
}

// Build раскладывает total на n ордеров от maxPrice вниз с равным шагом, кратным тику.
// Если fixed задан, каждый ордер получает этот объём, иначе минимальный для своей цены.
// Остаток распределяется по RemainderPolicy. Результат отсортирован по возрастанию цены.
// Шаг округляется вниз до тика, поэтому нижний ордер может стоять выше minPrice
// не больше чем на (n-1) тиков: диапазон покрывается не полностью.
func (p *Planner) Build(n int, total, minPrice, maxPrice decimal.Decimal, fixed *decimal.Decimal) (models.Ladder, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d orders", ErrInfeasibleLadder, n)
	}
	if !minPrice.IsPositive() || maxPrice.LessThan(minPrice) {
		return nil, fmt.Errorf("%w: bad price range [%s, %s]", ErrInfeasibleLadder, minPrice, maxPrice)
	}
	if !total.IsPositive() {
		return nil, fmt.Errorf("%w: total amount %s", ErrInfeasibleLadder, total)
	}

	top := p.limits.RoundPriceDown(maxPrice)
	step := decimal.Zero
	if n > 1 {
		step = p.limits.RoundPriceDown(maxPrice.Sub(minPrice).DivRound(decimal.NewFromInt(int64(n-1)), 16))
		if !step.IsPositive() {
			return nil, fmt.Errorf("%w: %d orders do not fit into [%s, %s] with tick %s",
				ErrInfeasibleLadder, n, minPrice, maxPrice, p.limits.PriceIncrement)
		}
	}

	// desc[0]: самая дорогая ступень
	desc := make(models.Ladder, n)
	for k := 0; k < n; k++ {
		price := top.Sub(step.Mul(decimal.NewFromInt(int64(k))))
		amount := p.limits.MinOrderAmount(price)
		if fixed != nil {
			amount = p.limits.RoundAmount(*fixed)
		}
		desc[k] = models.Rung{Price: price, Amount: amount}
	}

	if err := p.distribute(desc, total.Sub(desc.TotalAmount())); err != nil {
		return nil, err
	}

	out := make(models.Ladder, n)
	for k := range desc {
		out[n-1-k] = desc[k]
	}
	for _, r := range out {
		if !r.Amount.IsPositive() {
			return nil, fmt.Errorf("%w: non-positive amount %s at %s", ErrInfeasibleLadder, r.Amount, r.Price)
		}
		if r.Value().LessThan(p.limits.MinCost) {
			return nil, fmt.Errorf("%w: order %s@%s below min cost %s", ErrInfeasibleLadder, r.Amount, r.Price, p.limits.MinCost)
		}
	}
	return out, nil
}

func (p *Planner) distribute(desc models.Ladder, slack decimal.Decimal) error {
	if slack.IsZero() {
		return nil
	}
	if slack.IsNegative() && p.cfg.AmountMode == AmountCapped {
		return fmt.Errorf("%w: minimum amounts exceed total by %s", ErrInfeasibleLadder, slack.Neg())
	}
	if slack.IsPositive() && p.cfg.AmountMode == AmountCapped {
		return nil
	}

	target := 0
	if p.cfg.Remainder == RemainderLowest {
		target = len(desc) - 1
	}
	if p.cfg.Remainder == RemainderSpread && slack.IsPositive() {
		units := slack.Div(p.limits.MinAmount).Floor().IntPart()
		per := units / int64(len(desc))
		extra := units % int64(len(desc))
		for k := range desc {
			add := per
			if int64(k) < extra {
				add++
			}
			desc[k].Amount = desc[k].Amount.Add(p.limits.MinAmount.Mul(decimal.NewFromInt(add)))
		}
		slack = slack.Sub(p.limits.MinAmount.Mul(decimal.NewFromInt(units)))
	}

	desc[target].Amount = desc[target].Amount.Add(slack)
	if !desc[target].Amount.IsPositive() {
		return fmt.Errorf("%w: remainder %s exhausts order at %s", ErrInfeasibleLadder, slack, desc[target].Price)
	}
	return nil
}

// Plan: предложение по перестройке набора продаж.
type Plan struct {
	Old         []models.Order  `yaml:"-"`
	New         models.Ladder   `yaml:"new"`
	Orders      int             `yaml:"orders"`
	TotalAmount decimal.Decimal `yaml:"total_amount"`
	OldValue    decimal.Decimal `yaml:"old_value"`
	NewValue    decimal.Decimal `yaml:"new_value"`
	MinPrice    decimal.Decimal `yaml:"min_price"`
	MaxPrice    decimal.Decimal `yaml:"max_price"`
	Fixed       bool            `yaml:"fixed_amount"`
}

// Plan считает новую лестницу для набора продаж old. Если ордеров получается больше,
// чем разрешает биржа, берётся MaxOrdersRatio от лимита с одинаковым объёмом на ордер.
func (p *Planner) Plan(old []models.Order, maxOpenOrders int) (*Plan, error) {
	if len(old) == 0 {
		return nil, fmt.Errorf("%w: nothing to rebalance", ErrNotEnoughOrders)
	}
	minPrice, maxPrice := old[0].Price, old[0].Price
	for _, o := range old[1:] {
		minPrice = decimal.Min(minPrice, o.Price)
		maxPrice = decimal.Max(maxPrice, o.Price)
	}
	total := models.SumAmount(old)

	n := p.MaxOrdersFitting(total, minPrice, maxPrice)
	var fixed *decimal.Decimal
	if maxOpenOrders > 0 && n > maxOpenOrders {
		n = int(decimal.NewFromInt(int64(maxOpenOrders)).Mul(p.cfg.MaxOrdersRatio).Floor().IntPart())
		if n < 1 {
			return nil, fmt.Errorf("%w: order limit %d too small", ErrInfeasibleLadder, maxOpenOrders)
		}
		f := p.limits.RoundAmount(total.DivRound(decimal.NewFromInt(int64(n)), 16))
		fixed = &f
	}

	l, err := p.Build(n, total, minPrice, maxPrice, fixed)
	if err != nil {
		return nil, err
	}
	return &Plan{
		Old:         old,
		New:         l,
		Orders:      len(l),
		TotalAmount: total,
		OldValue:    models.SumValue(old),
		NewValue:    l.TotalValue(),
		MinPrice:    minPrice,
		MaxPrice:    maxPrice,
		Fixed:       fixed != nil,
	}, nil
}
