package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"ladder_bot/internal/journal"
	"ladder_bot/internal/metrics"
	"ladder_bot/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInvariantViolation = errors.New("order pairing invariant violation")
	ErrUnknownStatus      = errors.New("unknown order status")
)

// OrderLister: источник открытых ордеров для начальной загрузки.
type OrderLister interface {
	FetchOpenOrders(ctx context.Context) ([]models.Order, error)
}

type tracked struct {
	order  models.Order
	origin *models.Order // покупка, на которую выставлена эта продажа
}

// Transition: результат применения снимка ордера.
type Transition struct {
	Order    models.Order
	Previous models.Status
	Origin   *models.Order
	Filled   bool // ордер впервые перешёл в closed
	Canceled bool
	Changed  bool
	Profit   decimal.Decimal
}

// Monitor: единственный владелец состояния открытых и закрытых ордеров.
type Monitor struct {
	log     *zap.Logger
	journal journal.Journal

	mu     sync.Mutex
	open   map[string]*tracked
	closed map[string]*tracked
	profit decimal.Decimal

	// завершённые уже при создании, ещё не применённые через Observe
	pending map[string]*tracked
}

func New(log *zap.Logger, j journal.Journal) *Monitor {
	if j == nil {
		j = journal.Nop{}
	}
	return &Monitor{
		log:     log,
		journal: j,
		open:    make(map[string]*tracked),
		closed:  make(map[string]*tracked),
		pending: make(map[string]*tracked),
		profit:  decimal.Zero,
	}
}

// Init заполняет состояние открытыми ордерами с биржи.
func (m *Monitor) Init(ctx context.Context, src OrderLister) error {
	orders, err := src.FetchOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("monitor init: %w", err)
	}

	m.mu.Lock()
	m.open = make(map[string]*tracked, len(orders))
	for _, o := range orders {
		if o.Status != models.StatusOpen {
			continue
		}
		m.open[o.ID] = &tracked{order: o}
	}
	buys, sells := m.countLocked()
	m.mu.Unlock()

	metrics.SetOpenOrders(buys, sells)
	m.log.Info("monitor initialized", zap.Int("buys", buys), zap.Int("sells", sells))
	return nil
}

// Track регистрирует только что созданный ордер. origin: покупка, которая его профинансировала.
// В открытые попадает только ордер со статусом open; завершённый ждёт Observe.
func (m *Monitor) Track(ctx context.Context, order models.Order, origin *models.Order) {
	if origin != nil {
		cp := *origin
		origin = &cp
	}

	m.mu.Lock()
	if _, done := m.closed[order.ID]; !done {
		t := &tracked{order: order, origin: origin}
		if order.Status == models.StatusOpen {
			m.open[order.ID] = t
		} else {
			m.pending[order.ID] = t
		}
	}
	buys, sells := m.countLocked()
	m.mu.Unlock()

	metrics.IncOrderPlaced(string(order.Side), string(order.Kind))
	metrics.SetOpenOrders(buys, sells)
	m.record(ctx, order, decimal.Zero)
}

// Observe применяет внешний снимок ордера. Повторный closed: no-op.
func (m *Monitor) Observe(ctx context.Context, order models.Order) (Transition, error) {
	tr := Transition{Order: order, Profit: decimal.Zero}
	var violation error

	m.mu.Lock()
	switch order.Status {
	case models.StatusOpen:
		if _, done := m.closed[order.ID]; done {
			m.mu.Unlock()
			return tr, nil
		}
		if _, done := m.pending[order.ID]; done {
			m.mu.Unlock()
			return tr, nil
		}
		t, ok := m.open[order.ID]
		if !ok {
			m.open[order.ID] = &tracked{order: order}
			tr.Changed = true
		} else {
			tr.Previous = t.order.Status
			tr.Origin = t.origin
			tr.Changed = !t.order.Filled.Equal(order.Filled)
			t.order = order
		}

	case models.StatusClosed:
		if t, done := m.closed[order.ID]; done {
			tr.Previous = models.StatusClosed
			tr.Origin = t.origin
			m.mu.Unlock()
			return tr, nil
		}
		t, ok := m.take(order.ID)
		if ok {
			tr.Previous = t.order.Status
		} else {
			// закрылся ордер, которого не видели открытым: всё равно считаем исполнением
			t = &tracked{}
		}
		t.order = order
		m.closed[order.ID] = t
		tr.Origin = t.origin
		tr.Filled = true
		tr.Changed = true

		if order.Side == models.SideSell && t.origin != nil {
			profit, err := pairProfit(*t.origin, order)
			if err != nil {
				violation = err
			} else {
				tr.Profit = profit
				m.profit = m.profit.Add(profit)
			}
		}

	case models.StatusCanceled:
		t, ok := m.take(order.ID)
		if ok {
			tr.Previous = t.order.Status
			tr.Origin = t.origin
		}
		tr.Canceled = true
		tr.Changed = ok

	default:
		m.mu.Unlock()
		return tr, fmt.Errorf("%w: order %s", ErrUnknownStatus, order.ID)
	}
	buys, sells := m.countLocked()
	profit := m.profit
	m.mu.Unlock()

	metrics.SetOpenOrders(buys, sells)
	if tr.Changed {
		metrics.IncOrderEvent(string(order.Side), order.Status.String())
		m.record(ctx, order, tr.Profit)
	}
	if tr.Canceled && order.Filled.IsPositive() {
		m.log.Warn("canceled order was partially filled",
			zap.String("id", order.ID), zap.String("side", string(order.Side)),
			zap.Stringer("filled", order.Filled), zap.Stringer("amount", order.Amount))
	}
	if tr.Filled {
		metrics.SetSessionProfit(profit)
		m.log.Info("order closed",
			zap.String("id", order.ID), zap.String("side", string(order.Side)),
			zap.Stringer("price", order.Price), zap.Stringer("amount", order.EffectiveAmount()),
			zap.Stringer("profit", tr.Profit), zap.Stringer("session_profit", profit))
	}
	if violation != nil {
		metrics.IncInvariantViolation("monitor")
		m.log.Error("pairing check failed", zap.String("id", order.ID), zap.Error(violation))
		return tr, violation
	}
	return tr, nil
}

func pairProfit(buy, sell models.Order) (decimal.Decimal, error) {
	if buy.Side != models.SideBuy {
		return decimal.Zero, fmt.Errorf("%w: origin %s of sell %s is not a buy", ErrInvariantViolation, buy.ID, sell.ID)
	}
	bought := buy.Filled
	if !bought.IsPositive() {
		bought = buy.Amount
	}
	sold := sell.EffectiveAmount()
	if !bought.Equal(sold) {
		return decimal.Zero, fmt.Errorf("%w: sell %s amount %s != buy %s amount %s",
			ErrInvariantViolation, sell.ID, sold, buy.ID, bought)
	}
	if !buy.Timestamp.IsZero() && !sell.Timestamp.IsZero() && buy.Timestamp.After(sell.Timestamp) {
		return decimal.Zero, fmt.Errorf("%w: buy %s happened after sell %s", ErrInvariantViolation, buy.ID, sell.ID)
	}
	return sell.Price.Sub(buy.Price).Mul(sold), nil
}

func (m *Monitor) record(ctx context.Context, o models.Order, profit decimal.Decimal) {
	if err := m.journal.Record(ctx, journal.FromOrder(o, profit)); err != nil {
		m.log.Warn("trade journal write failed", zap.String("id", o.ID), zap.Error(err))
	}
}

// take извлекает ордер из открытых или ожидающих. Вызывается под mu.
func (m *Monitor) take(id string) (*tracked, bool) {
	if t, ok := m.open[id]; ok {
		delete(m.open, id)
		return t, true
	}
	if t, ok := m.pending[id]; ok {
		delete(m.pending, id)
		return t, true
	}
	return nil, false
}

func (m *Monitor) countLocked() (buys, sells int) {
	for _, t := range m.open {
		if t.order.Side == models.SideBuy {
			buys++
		} else {
			sells++
		}
	}
	return buys, sells
}

// LowestOpenSell: ближайшая к исполнению продажа.
func (m *Monitor) LowestOpenSell() (models.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *models.Order
	for _, t := range m.open {
		if t.order.Side != models.SideSell {
			continue
		}
		if best == nil || t.order.Price.LessThan(best.Price) {
			o := t.order
			best = &o
		}
	}
	if best == nil {
		return models.Order{}, false
	}
	return *best, true
}

func (m *Monitor) HighestOpenBuy() (models.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *models.Order
	for _, t := range m.open {
		if t.order.Side != models.SideBuy {
			continue
		}
		if best == nil || t.order.Price.GreaterThan(best.Price) {
			o := t.order
			best = &o
		}
	}
	if best == nil {
		return models.Order{}, false
	}
	return *best, true
}

// OpenOrders возвращает копии открытых ордеров стороны, по возрастанию цены.
func (m *Monitor) OpenOrders(side models.Side) []models.Order {
	m.mu.Lock()
	out := make([]models.Order, 0, len(m.open))
	for _, t := range m.open {
		if t.order.Side == side {
			out = append(out, t.order)
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Price.Equal(out[j].Price) {
			return out[i].ID < out[j].ID
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	return out
}

func (m *Monitor) IsOpen(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.open[id]
	return ok
}

func (m *Monitor) SessionProfit() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profit
}

type Snapshot struct {
	OpenBuys  int
	OpenSells int
	Closed    int
	Profit    decimal.Decimal
	SellMin   decimal.Decimal
	SellMax   decimal.Decimal
}

func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{Closed: len(m.closed), Profit: m.profit}
	first := true
	for _, t := range m.open {
		if t.order.Side == models.SideBuy {
			s.OpenBuys++
			continue
		}
		s.OpenSells++
		if first {
			s.SellMin, s.SellMax = t.order.Price, t.order.Price
			first = false
			continue
		}
		s.SellMin = decimal.Min(s.SellMin, t.order.Price)
		s.SellMax = decimal.Max(s.SellMax, t.order.Price)
	}
	return s
}
