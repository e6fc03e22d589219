package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"ladder_bot/internal/helper"
	"ladder_bot/internal/models"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
)

// Binance: спотовый шлюз поверх go-binance.
type Binance struct {
	client *binance.Client
	symbol string

	mu     sync.Mutex
	limits *models.ExchangeLimits
}

func NewBinance(apiKey, apiSecret, symbol string, testnet bool) *Binance {
	binance.UseTestnet = testnet
	return &Binance{
		client: binance.NewClient(apiKey, apiSecret),
		symbol: strings.ToUpper(symbol),
	}
}

func (b *Binance) Client() *binance.Client { return b.client }
func (b *Binance) Symbol() string          { return b.symbol }

func (b *Binance) Limits(ctx context.Context) (models.ExchangeLimits, error) {
	b.mu.Lock()
	if b.limits != nil {
		l := *b.limits
		b.mu.Unlock()
		return l, nil
	}
	b.mu.Unlock()

	info, err := b.client.NewExchangeInfoService().Symbol(b.symbol).Do(ctx)
	if err != nil {
		return models.ExchangeLimits{}, classify("exchangeInfo", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != b.symbol {
			continue
		}
		l, err := parseLimits(s)
		if err != nil {
			return models.ExchangeLimits{}, err
		}
		b.mu.Lock()
		b.limits = &l
		b.mu.Unlock()
		return l, nil
	}
	return models.ExchangeLimits{}, fmt.Errorf("exchangeInfo: symbol %s: %w", b.symbol, ErrInvalidOrder)
}

func parseLimits(s binance.Symbol) (models.ExchangeLimits, error) {
	l := models.ExchangeLimits{
		Symbol:         s.Symbol,
		Base:           s.BaseAsset,
		Quote:          s.QuoteAsset,
		MinAmount:      decimal.Zero,
		PriceIncrement: decimal.Zero,
		MinCost:        decimal.Zero,
		QuotePrecision: int32(s.QuotePrecision),
	}
	step, minQty := decimal.Zero, decimal.Zero
	for _, f := range s.Filters {
		switch f["filterType"] {
		case "LOT_SIZE":
			step = decimalOf(f["stepSize"])
			minQty = decimalOf(f["minQty"])
		case "PRICE_FILTER":
			l.PriceIncrement = decimalOf(f["tickSize"])
		case "MIN_NOTIONAL", "NOTIONAL":
			if v := decimalOf(f["minNotional"]); v.GreaterThan(l.MinCost) {
				l.MinCost = v
			}
		case "MAX_NUM_ORDERS":
			l.MaxOpenOrders = int(decimalOf(f["maxNumOrders"]).IntPart())
		}
	}
	l.MinAmount = decimal.Max(step, minQty)
	l.AmountPrecision = helper.PrecisionOf(step)
	l.PricePrecision = helper.PrecisionOf(l.PriceIncrement)
	if l.MaxOpenOrders == 0 {
		l.MaxOpenOrders = 200
	}
	return l, l.Validate()
}

func decimalOf(v interface{}) decimal.Decimal {
	switch x := v.(type) {
	case string:
		d, err := decimal.NewFromString(x)
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(x)
	case int:
		return decimal.NewFromInt(int64(x))
	case int64:
		return decimal.NewFromInt(x)
	default:
		return decimal.Zero
	}
}

func (b *Binance) FetchOpenOrders(ctx context.Context) ([]models.Order, error) {
	res, err := b.client.NewListOpenOrdersService().Symbol(b.symbol).Do(ctx)
	if err != nil {
		return nil, classify("openOrders", err)
	}
	out := make([]models.Order, 0, len(res))
	for _, o := range res {
		out = append(out, fromOrder(o))
	}
	return out, nil
}

func (b *Binance) FetchOrder(ctx context.Context, id string) (models.Order, error) {
	oid, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return models.Order{}, fmt.Errorf("fetchOrder %q: %w", id, ErrOrderNotFound)
	}
	o, err := b.client.NewGetOrderService().Symbol(b.symbol).OrderID(oid).Do(ctx)
	if err != nil {
		return models.Order{}, classify("fetchOrder", err)
	}
	return fromOrder(o), nil
}

func (b *Binance) fetchByClientID(ctx context.Context, clientID string) (models.Order, error) {
	o, err := b.client.NewGetOrderService().Symbol(b.symbol).OrigClientOrderID(clientID).Do(ctx)
	if err != nil {
		return models.Order{}, classify("fetchOrder", err)
	}
	return fromOrder(o), nil
}

func (b *Binance) CreateOrder(ctx context.Context, req models.OrderRequest) (models.Order, error) {
	svc := b.client.NewCreateOrderService().
		Symbol(b.symbol).
		Side(binance.SideType(req.Side)).
		Type(binance.OrderType(req.Kind)).
		Quantity(req.Amount.String()).
		NewOrderRespType(binance.NewOrderRespTypeFULL)
	if req.Kind == models.KindLimit {
		svc = svc.TimeInForce(binance.TimeInForceTypeGTC).Price(req.Price.String())
	}
	if req.ClientID != "" {
		svc = svc.NewClientOrderID(req.ClientID)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		// повтор уже принятой заявки: забираем исходный ордер
		if req.ClientID != "" && isDuplicate(err) {
			return b.fetchByClientID(ctx, req.ClientID)
		}
		return models.Order{}, fmt.Errorf("create %s: %w", req, classify("createOrder", err))
	}
	return fromCreateResponse(resp), nil
}

func (b *Binance) CancelOrder(ctx context.Context, id string) error {
	oid, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return fmt.Errorf("cancel %q: %w", id, ErrOrderNotFound)
	}
	_, err = b.client.NewCancelOrderService().Symbol(b.symbol).OrderID(oid).Do(ctx)
	if err != nil {
		return fmt.Errorf("cancel %s: %w", id, classify("cancelOrder", err))
	}
	return nil
}

func (b *Binance) FetchBalance(ctx context.Context) (models.Balances, error) {
	acc, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, classify("account", err)
	}
	out := make(models.Balances, len(acc.Balances))
	for _, bal := range acc.Balances {
		free, locked := decimalOf(bal.Free), decimalOf(bal.Locked)
		out[bal.Asset] = models.Balance{Free: free, Total: free.Add(locked)}
	}
	return out, nil
}

func (b *Binance) FetchTicker(ctx context.Context) (decimal.Decimal, error) {
	prices, err := b.client.NewListPricesService().Symbol(b.symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, classify("ticker", err)
	}
	for _, p := range prices {
		if p.Symbol == b.symbol {
			return decimal.NewFromString(p.Price)
		}
	}
	return decimal.Zero, fmt.Errorf("ticker %s: empty response: %w", b.symbol, ErrTransient)
}

func (b *Binance) FetchMyTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	res, err := b.client.NewListTradesService().Symbol(b.symbol).Limit(limit).Do(ctx)
	if err != nil {
		return nil, classify("myTrades", err)
	}
	out := make([]models.Trade, 0, len(res))
	for _, t := range res {
		side := models.SideSell
		if t.IsBuyer {
			side = models.SideBuy
		}
		out = append(out, models.Trade{
			ID:        strconv.FormatInt(t.ID, 10),
			OrderID:   strconv.FormatInt(t.OrderID, 10),
			Side:      side,
			Price:     decimalOf(t.Price),
			Amount:    decimalOf(t.Quantity),
			Timestamp: time.UnixMilli(t.Time),
		})
	}
	return out, nil
}

// ParseStatus переводит статус биржи в models.Status.
func ParseStatus(s string) models.Status {
	switch s {
	case "NEW", "PARTIALLY_FILLED", "PENDING_CANCEL":
		return models.StatusOpen
	case "FILLED":
		return models.StatusClosed
	case "CANCELED", "EXPIRED", "EXPIRED_IN_MATCH", "REJECTED":
		return models.StatusCanceled
	default:
		return models.StatusUnknown
	}
}

// avgPrice: для маркет-ордеров цена считается по факту исполнения.
func avgPrice(kind models.Kind, price, filled, cost decimal.Decimal) decimal.Decimal {
	if kind == models.KindMarket || price.IsZero() {
		if filled.IsPositive() {
			return cost.DivRound(filled, 16)
		}
		return decimal.Zero
	}
	return price
}

func fromOrder(o *binance.Order) models.Order {
	kind := models.Kind(o.Type)
	filled, cost := decimalOf(o.ExecutedQuantity), decimalOf(o.CummulativeQuoteQuantity)
	return models.Order{
		ID:        strconv.FormatInt(o.OrderID, 10),
		Symbol:    o.Symbol,
		Side:      models.Side(o.Side),
		Kind:      kind,
		Price:     avgPrice(kind, decimalOf(o.Price), filled, cost),
		Amount:    decimalOf(o.OrigQuantity),
		Filled:    filled,
		Cost:      cost,
		Status:    ParseStatus(string(o.Status)),
		Timestamp: time.UnixMilli(o.Time),
	}
}

func fromCreateResponse(r *binance.CreateOrderResponse) models.Order {
	kind := models.Kind(r.Type)
	filled, cost := decimalOf(r.ExecutedQuantity), decimalOf(r.CummulativeQuoteQuantity)
	return models.Order{
		ID:        strconv.FormatInt(r.OrderID, 10),
		Symbol:    r.Symbol,
		Side:      models.Side(r.Side),
		Kind:      kind,
		Price:     avgPrice(kind, decimalOf(r.Price), filled, cost),
		Amount:    decimalOf(r.OrigQuantity),
		Filled:    filled,
		Cost:      cost,
		Status:    ParseStatus(string(r.Status)),
		Timestamp: time.UnixMilli(r.TransactTime),
	}
}

func isDuplicate(err error) bool {
	var apiErr *common.APIError
	return errors.As(err, &apiErr) && strings.Contains(strings.ToLower(apiErr.Message), "duplicate order")
}

// classify оборачивает ошибку биржи в один из классов шлюза.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		msg := strings.ToLower(apiErr.Message)
		switch {
		case strings.Contains(msg, "max_num_orders"):
			return fmt.Errorf("%s: %w: %v", op, ErrOrderCountExceeded, err)
		case strings.Contains(msg, "insufficient balance"):
			return fmt.Errorf("%s: %w: %v", op, ErrInsufficientFunds, err)
		}
		switch apiErr.Code {
		case -2011, -2013:
			return fmt.Errorf("%s: %w: %v", op, ErrOrderNotFound, err)
		case -1000, -1001, -1003, -1006, -1007, -1008, -1015, -1021:
			return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
		default:
			return fmt.Errorf("%s: %w: %v", op, ErrInvalidOrder, err)
		}
	}

	// сбои транспорта: таймаут, обрыв, битый ответ
	return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
}
