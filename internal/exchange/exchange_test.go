package exchange

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"ladder_bot/internal/models"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testLimits() models.ExchangeLimits {
	return models.ExchangeLimits{
		Symbol:          "BTCUSDT",
		Base:            "BTC",
		Quote:           "USDT",
		MinAmount:       d("0.0001"),
		PriceIncrement:  d("0.01"),
		MinCost:         d("10"),
		MaxOpenOrders:   3,
		AmountPrecision: 4,
		PricePrecision:  2,
		QuotePrecision:  8,
	}
}

func newPaper() *Paper {
	return NewPaper(testLimits(), d("100"), models.Balances{
		"USDT": {Free: d("1000"), Total: d("1000")},
		"BTC":  {Free: d("1"), Total: d("1")},
	})
}

func TestClassifyAPIErrors(t *testing.T) {
	tests := []struct {
		code int64
		msg  string
		want error
	}{
		{-2010, "Filter failure: MAX_NUM_ORDERS", ErrOrderCountExceeded},
		{-1013, "Filter failure: MAX_NUM_ORDERS", ErrOrderCountExceeded},
		{-2010, "Account has insufficient balance for requested action.", ErrInsufficientFunds},
		{-2011, "Unknown order sent.", ErrOrderNotFound},
		{-2013, "Order does not exist.", ErrOrderNotFound},
		{-1003, "Too many requests.", ErrTransient},
		{-1021, "Timestamp for this request is outside of the recvWindow.", ErrTransient},
		{-1013, "Filter failure: LOT_SIZE", ErrInvalidOrder},
		{-1111, "Precision is over the maximum defined for this asset.", ErrInvalidOrder},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d %s", tt.code, tt.msg), func(t *testing.T) {
			err := classify("op", &common.APIError{Code: tt.code, Message: tt.msg})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.ErrorIs(t, classify("op", errors.New("connection reset")), ErrTransient)
	assert.ErrorIs(t, classify("op", context.Canceled), context.Canceled)
	assert.NoError(t, classify("op", nil))
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, models.StatusOpen, ParseStatus("NEW"))
	assert.Equal(t, models.StatusOpen, ParseStatus("PARTIALLY_FILLED"))
	assert.Equal(t, models.StatusClosed, ParseStatus("FILLED"))
	assert.Equal(t, models.StatusCanceled, ParseStatus("CANCELED"))
	assert.Equal(t, models.StatusCanceled, ParseStatus("EXPIRED"))
	assert.Equal(t, models.StatusUnknown, ParseStatus("WHATEVER"))
}

func TestParseLimits(t *testing.T) {
	l, err := parseLimits(binance.Symbol{
		Symbol:         "BTCUSDT",
		BaseAsset:      "BTC",
		QuoteAsset:     "USDT",
		QuotePrecision: 8,
		Filters: []map[string]interface{}{
			{"filterType": "PRICE_FILTER", "minPrice": "0.01000000", "tickSize": "0.01000000"},
			{"filterType": "LOT_SIZE", "minQty": "0.00001000", "stepSize": "0.00001000"},
			{"filterType": "NOTIONAL", "minNotional": "5.00000000"},
			{"filterType": "MAX_NUM_ORDERS", "maxNumOrders": float64(200)},
		},
	})
	require.NoError(t, err)
	assert.True(t, l.MinAmount.Equal(d("0.00001")))
	assert.True(t, l.PriceIncrement.Equal(d("0.01")))
	assert.True(t, l.MinCost.Equal(d("5")))
	assert.Equal(t, 200, l.MaxOpenOrders)
	assert.Equal(t, int32(5), l.AmountPrecision)
	assert.Equal(t, int32(2), l.PricePrecision)
	assert.Equal(t, "BTC", l.Base)
}

func TestParseExecutionReport(t *testing.T) {
	msg := []byte(`{"e":"executionReport","E":1700000000100,"s":"BTCUSDT","c":"abc","S":"SELL","o":"LIMIT",` +
		`"f":"GTC","q":"0.00100000","p":"30100.00","X":"FILLED","x":"TRADE","i":4242,"z":"0.00100000",` +
		`"Z":"30.10000000","T":1700000000099,"O":1700000000000}`)
	o, ok := parseExecutionReport(msg, "btcusdt")
	require.True(t, ok)
	assert.Equal(t, "4242", o.ID)
	assert.Equal(t, models.SideSell, o.Side)
	assert.Equal(t, models.StatusClosed, o.Status)
	assert.True(t, o.Price.Equal(d("30100")))
	assert.True(t, o.Filled.Equal(d("0.001")))
	assert.Equal(t, int64(1700000000000), o.Timestamp.UnixMilli())

	market := []byte(`{"e":"executionReport","s":"BTCUSDT","S":"BUY","o":"MARKET","q":"0.002","p":"0",` +
		`"X":"FILLED","i":7,"z":"0.002","Z":"60.2","O":1}`)
	o, ok = parseExecutionReport(market, "BTCUSDT")
	require.True(t, ok)
	assert.True(t, o.Price.Equal(d("30100")), "got %s", o.Price)

	_, ok = parseExecutionReport([]byte(`{"e":"outboundAccountPosition"}`), "BTCUSDT")
	assert.False(t, ok)
	_, ok = parseExecutionReport([]byte(`{"e":"executionReport","s":"ETHUSDT","i":1}`), "BTCUSDT")
	assert.False(t, ok)
}

func TestPaperMarketAndLimit(t *testing.T) {
	ctx := context.Background()
	p := newPaper()

	buy, err := p.CreateOrder(ctx, models.OrderRequest{Side: models.SideBuy, Kind: models.KindMarket, Amount: d("0.2")})
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, buy.Status)
	assert.True(t, buy.Price.Equal(d("100")))
	assert.True(t, buy.Filled.Equal(d("0.2")))

	sell, err := p.CreateOrder(ctx, models.OrderRequest{Side: models.SideSell, Kind: models.KindLimit, Amount: d("0.2"), Price: d("101")})
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, sell.Status)

	bal, err := p.FetchBalance(ctx)
	require.NoError(t, err)
	assert.True(t, bal.Get("USDT").Free.Equal(d("980")))
	assert.True(t, bal.Get("BTC").Free.Equal(d("1")))
	assert.True(t, bal.Get("BTC").Total.Equal(d("1.2")))

	filled := p.SetPrice(d("101.5"))
	require.Len(t, filled, 1)
	assert.Equal(t, sell.ID, filled[0].ID)

	got, err := p.FetchOrder(ctx, sell.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, got.Status)

	bal, _ = p.FetchBalance(ctx)
	assert.True(t, bal.Get("USDT").Total.Equal(d("1000.2")))

	trades, err := p.FetchMyTrades(ctx, 1)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, sell.ID, trades[0].OrderID)
}

func TestPaperRejections(t *testing.T) {
	ctx := context.Background()
	p := newPaper()

	_, err := p.CreateOrder(ctx, models.OrderRequest{Side: models.SideBuy, Kind: models.KindLimit, Amount: d("0.00015"), Price: d("99")})
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = p.CreateOrder(ctx, models.OrderRequest{Side: models.SideBuy, Kind: models.KindLimit, Amount: d("0.01"), Price: d("99")})
	assert.ErrorIs(t, err, ErrInvalidOrder, "below min cost")

	_, err = p.CreateOrder(ctx, models.OrderRequest{Side: models.SideBuy, Kind: models.KindLimit, Amount: d("20"), Price: d("99")})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	for i := 0; i < 3; i++ {
		_, err = p.CreateOrder(ctx, models.OrderRequest{Side: models.SideSell, Kind: models.KindLimit, Amount: d("0.2"), Price: decimal.NewFromInt(int64(110 + i))})
		require.NoError(t, err)
	}
	_, err = p.CreateOrder(ctx, models.OrderRequest{Side: models.SideSell, Kind: models.KindLimit, Amount: d("0.2"), Price: d("120")})
	assert.ErrorIs(t, err, ErrOrderCountExceeded)

	assert.ErrorIs(t, p.CancelOrder(ctx, "missing"), ErrOrderNotFound)
}

func TestPaperCancelReleasesFunds(t *testing.T) {
	ctx := context.Background()
	p := newPaper()

	o, err := p.CreateOrder(ctx, models.OrderRequest{Side: models.SideBuy, Kind: models.KindLimit, Amount: d("1"), Price: d("99")})
	require.NoError(t, err)
	bal, _ := p.FetchBalance(ctx)
	assert.True(t, bal.Get("USDT").Free.Equal(d("901")))

	require.NoError(t, p.CancelOrder(ctx, o.ID))
	bal, _ = p.FetchBalance(ctx)
	assert.True(t, bal.Get("USDT").Free.Equal(d("1000")))

	assert.ErrorIs(t, p.CancelOrder(ctx, o.ID), ErrOrderNotFound)
}

func fastResilient(t *testing.T, next Gateway, attempts int) *Resilient {
	return NewResilient(next, ResilientConfig{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Attempts: attempts}, zaptest.NewLogger(t))
}

func TestResilientRetriesTransient(t *testing.T) {
	p := newPaper()
	p.FailNext("ticker", fmt.Errorf("timeout: %w", ErrTransient))
	p.FailNext("ticker", fmt.Errorf("timeout: %w", ErrTransient))

	price, err := fastResilient(t, p, 0).FetchTicker(context.Background())
	require.NoError(t, err)
	assert.True(t, price.Equal(d("100")))
}

func TestResilientDoesNotRetryPermanent(t *testing.T) {
	p := newPaper()
	p.FailNext("create", fmt.Errorf("nope: %w", ErrInsufficientFunds))

	r := fastResilient(t, p, 0)
	_, err := r.CreateOrder(context.Background(), models.OrderRequest{Side: models.SideBuy, Kind: models.KindMarket, Amount: d("0.2")})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// следующая попытка уже проходит: ошибка была одна и не повторялась
	_, err = r.CreateOrder(context.Background(), models.OrderRequest{Side: models.SideBuy, Kind: models.KindMarket, Amount: d("0.2")})
	assert.NoError(t, err)
}

func TestResilientStopsOnCancel(t *testing.T) {
	p := newPaper()
	for i := 0; i < 100; i++ {
		p.FailNext("balance", ErrTransient)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	r := NewResilient(p, ResilientConfig{BaseDelay: time.Second, MaxDelay: time.Second}, zaptest.NewLogger(t))
	_, err := r.FetchBalance(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type recordingGateway struct {
	*Paper
	clientIDs []string
}

func (g *recordingGateway) CreateOrder(ctx context.Context, req models.OrderRequest) (models.Order, error) {
	g.clientIDs = append(g.clientIDs, req.ClientID)
	return g.Paper.CreateOrder(ctx, req)
}

func TestResilientKeepsClientID(t *testing.T) {
	g := &recordingGateway{Paper: newPaper()}
	g.FailNext("create", ErrTransient)

	_, err := fastResilient(t, g, 3).CreateOrder(context.Background(), models.OrderRequest{Side: models.SideBuy, Kind: models.KindMarket, Amount: d("0.2")})
	require.NoError(t, err)
	require.Len(t, g.clientIDs, 2)
	assert.NotEmpty(t, g.clientIDs[0])
	assert.Equal(t, g.clientIDs[0], g.clientIDs[1])
}

func TestTracedPassesThrough(t *testing.T) {
	tr := NewTraced(newPaper(), "BTCUSDT")
	_, err := tr.FetchOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	l, err := tr.Limits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", l.Symbol)
}
