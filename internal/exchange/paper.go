package exchange

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ladder_bot/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Paper: биржа в памяти: исполняет маркет-заявки по текущей цене,
// лимитные: когда цена до них доходит. Для бумажной торговли и тестов.
type Paper struct {
	mu       sync.Mutex
	limits   models.ExchangeLimits
	price    decimal.Decimal
	balances map[string]models.Balance
	orders   map[string]*models.Order
	trades   []models.Trade
	fail     map[string][]error
	now      func() time.Time
}

func NewPaper(limits models.ExchangeLimits, price decimal.Decimal, balances models.Balances) *Paper {
	p := &Paper{
		limits:   limits,
		price:    price,
		balances: make(map[string]models.Balance, len(balances)),
		orders:   make(map[string]*models.Order),
		fail:     make(map[string][]error),
		now:      time.Now,
	}
	for k, v := range balances {
		p.balances[k] = v
	}
	return p
}

// FailNext заставляет следующий вызов op ("create", "cancel", "fetch", "open",
// "balance", "ticker", "trades") вернуть err.
func (p *Paper) FailNext(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail[op] = append(p.fail[op], err)
}

func (p *Paper) injected(op string) error {
	q := p.fail[op]
	if len(q) == 0 {
		return nil
	}
	p.fail[op] = q[1:]
	return q[0]
}

func (p *Paper) Limits(context.Context) (models.ExchangeLimits, error) {
	return p.limits, nil
}

func (p *Paper) FetchOpenOrders(context.Context) ([]models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.injected("open"); err != nil {
		return nil, err
	}
	out := make([]models.Order, 0, len(p.orders))
	for _, o := range p.orders {
		if o.Status == models.StatusOpen {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	return out, nil
}

func (p *Paper) FetchOrder(_ context.Context, id string) (models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.injected("fetch"); err != nil {
		return models.Order{}, err
	}
	o, ok := p.orders[id]
	if !ok {
		return models.Order{}, fmt.Errorf("fetch %s: %w", id, ErrOrderNotFound)
	}
	return *o, nil
}

func (p *Paper) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openCountLocked()
}

func (p *Paper) openCountLocked() int {
	n := 0
	for _, o := range p.orders {
		if o.Status == models.StatusOpen {
			n++
		}
	}
	return n
}

func (p *Paper) CreateOrder(_ context.Context, req models.OrderRequest) (models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.injected("create"); err != nil {
		return models.Order{}, err
	}

	if !req.Amount.IsPositive() || !p.limits.RoundAmount(req.Amount).Equal(req.Amount) {
		return models.Order{}, fmt.Errorf("create %s: amount step %s: %w", req, p.limits.MinAmount, ErrInvalidOrder)
	}
	price := req.Price
	if req.Kind == models.KindMarket {
		price = p.price
	} else if !price.IsPositive() || !p.limits.RoundPriceDown(price).Equal(price) {
		return models.Order{}, fmt.Errorf("create %s: price tick %s: %w", req, p.limits.PriceIncrement, ErrInvalidOrder)
	}
	cost := price.Mul(req.Amount)
	if cost.LessThan(p.limits.MinCost) {
		return models.Order{}, fmt.Errorf("create %s: cost %s below %s: %w", req, cost, p.limits.MinCost, ErrInvalidOrder)
	}
	if req.Kind == models.KindLimit && p.openCountLocked() >= p.limits.MaxOpenOrders {
		return models.Order{}, fmt.Errorf("create %s: %w", req, ErrOrderCountExceeded)
	}

	// резервируем средства
	asset, need := p.limits.Quote, cost
	if req.Side == models.SideSell {
		asset, need = p.limits.Base, req.Amount
	}
	bal := p.balances[asset]
	if bal.Free.LessThan(need) {
		return models.Order{}, fmt.Errorf("create %s: %s free %s < %s: %w", req, asset, bal.Free, need, ErrInsufficientFunds)
	}
	bal.Free = bal.Free.Sub(need)
	p.balances[asset] = bal

	o := &models.Order{
		ID:        uuid.NewString(),
		Symbol:    p.limits.Symbol,
		Side:      req.Side,
		Kind:      req.Kind,
		Price:     price,
		Amount:    req.Amount,
		Filled:    decimal.Zero,
		Cost:      decimal.Zero,
		Status:    models.StatusOpen,
		Timestamp: p.now(),
	}
	p.orders[o.ID] = o

	if req.Kind == models.KindMarket || p.crossesLocked(o) {
		p.fillLocked(o)
	}
	return *o, nil
}

func (p *Paper) crossesLocked(o *models.Order) bool {
	if o.Side == models.SideBuy {
		return o.Price.GreaterThanOrEqual(p.price)
	}
	return o.Price.LessThanOrEqual(p.price)
}

func (p *Paper) fillLocked(o *models.Order) {
	cost := o.Price.Mul(o.Amount)
	base, quote := p.balances[p.limits.Base], p.balances[p.limits.Quote]
	if o.Side == models.SideBuy {
		quote.Total = quote.Total.Sub(cost)
		base.Free = base.Free.Add(o.Amount)
		base.Total = base.Total.Add(o.Amount)
	} else {
		base.Total = base.Total.Sub(o.Amount)
		quote.Free = quote.Free.Add(cost)
		quote.Total = quote.Total.Add(cost)
	}
	p.balances[p.limits.Base], p.balances[p.limits.Quote] = base, quote

	o.Filled = o.Amount
	o.Cost = cost
	o.Status = models.StatusClosed
	p.trades = append(p.trades, models.Trade{
		ID:        uuid.NewString(),
		OrderID:   o.ID,
		Side:      o.Side,
		Price:     o.Price,
		Amount:    o.Amount,
		Timestamp: p.now(),
	})
}

func (p *Paper) CancelOrder(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.injected("cancel"); err != nil {
		return err
	}
	o, ok := p.orders[id]
	if !ok || o.Status != models.StatusOpen {
		return fmt.Errorf("cancel %s: %w", id, ErrOrderNotFound)
	}

	asset, held := p.limits.Quote, o.Price.Mul(o.Amount)
	if o.Side == models.SideSell {
		asset, held = p.limits.Base, o.Amount
	}
	bal := p.balances[asset]
	bal.Free = bal.Free.Add(held)
	p.balances[asset] = bal

	o.Status = models.StatusCanceled
	return nil
}

func (p *Paper) FetchBalance(context.Context) (models.Balances, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.injected("balance"); err != nil {
		return nil, err
	}
	out := make(models.Balances, len(p.balances))
	for k, v := range p.balances {
		out[k] = v
	}
	return out, nil
}

func (p *Paper) FetchTicker(context.Context) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.injected("ticker"); err != nil {
		return decimal.Zero, err
	}
	return p.price, nil
}

// FetchMyTrades: последние limit сделок по времени, старые первыми.
func (p *Paper) FetchMyTrades(_ context.Context, limit int) ([]models.Trade, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.injected("trades"); err != nil {
		return nil, err
	}
	from := 0
	if limit > 0 && len(p.trades) > limit {
		from = len(p.trades) - limit
	}
	out := make([]models.Trade, len(p.trades)-from)
	copy(out, p.trades[from:])
	return out, nil
}

// SetPrice двигает цену и исполняет пересечённые лимитные заявки.
// Возвращает исполненные ордера.
func (p *Paper) SetPrice(price decimal.Decimal) []models.Order {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.price = price
	var filled []models.Order
	for _, o := range p.orders {
		if o.Status == models.StatusOpen && p.crossesLocked(o) {
			p.fillLocked(o)
			filled = append(filled, *o)
		}
	}
	return filled
}

// AddOrder кладёт готовый открытый лимитный ордер (для подготовки состояния).
func (p *Paper) AddOrder(side models.Side, price, amount decimal.Decimal) models.Order {
	p.mu.Lock()
	defer p.mu.Unlock()

	o := &models.Order{
		ID:        uuid.NewString(),
		Symbol:    p.limits.Symbol,
		Side:      side,
		Kind:      models.KindLimit,
		Price:     price,
		Amount:    amount,
		Filled:    decimal.Zero,
		Cost:      decimal.Zero,
		Status:    models.StatusOpen,
		Timestamp: p.now(),
	}
	asset, held := p.limits.Quote, price.Mul(amount)
	if side == models.SideSell {
		asset, held = p.limits.Base, amount
	}
	bal := p.balances[asset]
	bal.Free = bal.Free.Sub(held)
	p.balances[asset] = bal
	p.orders[o.ID] = o
	return *o
}

func (p *Paper) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}
