package runner

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"ladder_bot/internal/exchange"
	"ladder_bot/internal/ladder"
	"ladder_bot/internal/models"
	"ladder_bot/internal/monitor"
	"ladder_bot/internal/notify"

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
		MaxOpenOrders:   200,
		AmountPrecision: 4,
		PricePrecision:  2,
		QuotePrecision:  8,
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MarginMin = d("1.01")
	cfg.MarginMax = d("1.03")
	cfg.SleepMin = time.Hour
	cfg.SleepMax = time.Hour
	cfg.BuyCancelTimeout = time.Hour
	cfg.PollInterval = 10 * time.Millisecond
	cfg.BackoffMax = 50 * time.Millisecond
	cfg.ShutdownTimeout = 5 * time.Second
	return cfg
}

func newPaper(limits models.ExchangeLimits, quote, base string) *exchange.Paper {
	return exchange.NewPaper(limits, d("100"), models.Balances{
		"USDT": {Free: d(quote), Total: d(quote)},
		"BTC":  {Free: d(base), Total: d(base)},
	})
}

type fakeHealth struct {
	ready atomic.Bool
	ticks atomic.Int64
}

func (h *fakeHealth) SetReady(v bool)       { h.ready.Store(v) }
func (h *fakeHealth) TouchTick(t time.Time) { h.ticks.Add(1) }

func newRunner(t *testing.T, gw exchange.Gateway, cfg Config) (*Runner, *monitor.Monitor) {
	t.Helper()
	log := zaptest.NewLogger(t)
	mon := monitor.New(log.Named("monitor"), nil)
	r := New(cfg, ladder.DefaultConfig(), gw, mon, notify.NewStdout(log), log)
	return r, mon
}

// initRunner готовит раннер без фоновых горутин: шаги цикла вызываются из теста.
func initRunner(t *testing.T, r *Runner) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		r.wg.Wait()
	})
	require.NoError(t, r.init(ctx))
	return ctx
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := []func(*Config){
		func(c *Config) { c.MarginMin = d("0.9") },
		func(c *Config) { c.MarginMax = d("1.001") },
		func(c *Config) { c.SleepMax = c.SleepMin - time.Second },
		func(c *Config) { c.PollInterval = 0 },
		func(c *Config) { c.MaxPlaceAttempts = 0 },
	}
	for i, mut := range bad {
		cfg := DefaultConfig()
		mut(&cfg)
		assert.Error(t, cfg.Validate(), "case %d", i)
	}
}

func TestBuyCyclePlacesLimitSell(t *testing.T) {
	gw := newPaper(testLimits(), "1000", "0")
	r, mon := newRunner(t, gw, testConfig())
	ctx := initRunner(t, r)

	require.NoError(t, r.buyCycle(ctx))

	sells := mon.OpenOrders(models.SideSell)
	require.Len(t, sells, 1)
	assert.True(t, sells[0].Price.Equal(d("103")), "price %s", sells[0].Price)
	assert.True(t, sells[0].Amount.Equal(d("0.1001")), "amount %s", sells[0].Amount)
	assert.Equal(t, 1, gw.OpenCount())
	assert.Empty(t, mon.OpenOrders(models.SideBuy))
}

func TestRoundTrip(t *testing.T) {
	gw := newPaper(testLimits(), "1000", "0")
	r, mon := newRunner(t, gw, testConfig())
	ctx := initRunner(t, r)
	require.NoError(t, r.buyCycle(ctx))

	// продажа исполнилась: прибыль и лимитная покупка ниже
	require.Len(t, gw.SetPrice(d("103")), 1)
	changed, err := r.pollExtremes(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	assert.True(t, mon.SessionProfit().Equal(d("0.3003")), "profit %s", mon.SessionProfit())
	assert.Empty(t, mon.OpenOrders(models.SideSell))
	buys := mon.OpenOrders(models.SideBuy)
	require.Len(t, buys, 1)
	assert.True(t, buys[0].Price.Equal(d("100")), "price %s", buys[0].Price)
	assert.True(t, buys[0].Amount.Equal(d("0.1001")), "amount %s", buys[0].Amount)

	// покупка исполнилась: снова продажа с наценкой
	require.Len(t, gw.SetPrice(d("100")), 1)
	changed, err = r.pollExtremes(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Empty(t, mon.OpenOrders(models.SideBuy))
	sells := mon.OpenOrders(models.SideSell)
	require.Len(t, sells, 1)
	assert.True(t, sells[0].Price.Equal(d("103")), "price %s", sells[0].Price)

	// повторный опрос без изменений ничего не делает
	changed, err = r.pollExtremes(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.True(t, mon.SessionProfit().Equal(d("0.3003")))
}

func TestLimitBuyExpires(t *testing.T) {
	cfg := testConfig()
	cfg.BuyCancelTimeout = 20 * time.Millisecond
	gw := newPaper(testLimits(), "1000", "0")
	r, mon := newRunner(t, gw, cfg)
	ctx := initRunner(t, r)

	require.NoError(t, r.buyCycle(ctx))
	gw.SetPrice(d("103"))
	_, err := r.pollExtremes(ctx)
	require.NoError(t, err)
	require.Len(t, mon.OpenOrders(models.SideBuy), 1)

	require.Eventually(t, func() bool {
		return len(mon.OpenOrders(models.SideBuy)) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, gw.OpenCount())
}

func TestOrderCountExceededMergesAndRetries(t *testing.T) {
	limits := testLimits()
	limits.MaxOpenOrders = 12
	gw := newPaper(limits, "1000", "1.2012")
	for i := 0; i < 12; i++ {
		gw.AddOrder(models.SideSell, decimal.NewFromInt(int64(110+i)), d("0.1001"))
	}
	r, mon := newRunner(t, gw, testConfig())
	ctx := initRunner(t, r)
	require.Len(t, mon.OpenOrders(models.SideSell), 12)

	require.NoError(t, r.buyCycle(ctx))

	sells := mon.OpenOrders(models.SideSell)
	assert.Len(t, sells, 8)
	assert.Equal(t, 8, gw.OpenCount())
	merged := 0
	for _, o := range sells {
		if o.Amount.Equal(d("0.2002")) {
			merged++
		}
	}
	assert.Equal(t, 5, merged)
	// новая продажа ниже всех склеенных
	assert.True(t, sells[0].Amount.Equal(d("0.1001")))
	assert.True(t, sells[0].Price.LessThan(d("110")))
}

func TestOrderCountExceededWithoutSellsAborts(t *testing.T) {
	gw := newPaper(testLimits(), "1000", "0")
	r, mon := newRunner(t, gw, testConfig())
	ctx := initRunner(t, r)

	gw.FailNext("create", fmt.Errorf("create: %w", exchange.ErrOrderCountExceeded))
	err := r.buyCycle(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, exchange.ErrOrderCountExceeded)
	assert.ErrorIs(t, err, ladder.ErrNotEnoughOrders)
	assert.Equal(t, 0, gw.OpenCount())
	assert.Empty(t, mon.OpenOrders(models.SideSell))
}

func TestInsufficientFundsSkipsCycle(t *testing.T) {
	gw := newPaper(testLimits(), "5", "0")
	r, mon := newRunner(t, gw, testConfig())
	ctx := initRunner(t, r)

	require.NoError(t, r.buyCycle(ctx))
	assert.Equal(t, 0, gw.OpenCount())
	assert.Empty(t, mon.OpenOrders(models.SideSell))
	assert.Equal(t, 0, mon.Snapshot().Closed)
}

func TestInvalidOrderIsNotRetried(t *testing.T) {
	gw := newPaper(testLimits(), "1000", "0")
	r, mon := newRunner(t, gw, testConfig())
	ctx := initRunner(t, r)

	gw.FailNext("create", fmt.Errorf("create: %w", exchange.ErrInvalidOrder))
	require.NoError(t, r.buyCycle(ctx))
	assert.Equal(t, 0, mon.Snapshot().Closed)

	// следующая попытка проходит: ошибка была одна и не повторялась
	require.NoError(t, r.buyCycle(ctx))
	assert.Len(t, mon.OpenOrders(models.SideSell), 1)
}

func TestCycleWaitsAfterTrade(t *testing.T) {
	cfg := testConfig()
	cfg.SleepMin = time.Minute
	gw := newPaper(testLimits(), "1000", "0")
	r, mon := newRunner(t, gw, cfg)
	ctx := initRunner(t, r)

	wait, err := r.cycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Second, wait)
	require.Len(t, mon.OpenOrders(models.SideSell), 1)

	wait, err = r.cycle(ctx)
	require.NoError(t, err)
	assert.Greater(t, wait, time.Second)
	assert.LessOrEqual(t, wait, cfg.SleepMax+time.Second)
	assert.Len(t, mon.OpenOrders(models.SideSell), 1)
}

// crossingGateway сдвигает цену на уровень лимитной продажи, и та исполняется при создании.
type crossingGateway struct {
	*exchange.Paper
}

func (g crossingGateway) CreateOrder(ctx context.Context, req models.OrderRequest) (models.Order, error) {
	if req.Side == models.SideSell && req.Kind == models.KindLimit {
		g.SetPrice(req.Price)
	}
	return g.Paper.CreateOrder(ctx, req)
}

func TestChainLimitLeavesNextSellPollable(t *testing.T) {
	cfg := testConfig()
	cfg.MaxChain = 1
	paper := newPaper(testLimits(), "1000", "0.1")
	far := paper.AddOrder(models.SideSell, d("150"), d("0.1"))
	r, mon := newRunner(t, crossingGateway{paper}, cfg)
	ctx := initRunner(t, r)

	require.NoError(t, r.buyCycle(ctx))

	// покупка и встречная продажа закрыты, цепочка остановилась на лимите
	assert.Equal(t, 2, mon.Snapshot().Closed)
	assert.True(t, mon.SessionProfit().IsPositive(), "profit %s", mon.SessionProfit())
	assert.Empty(t, mon.OpenOrders(models.SideBuy))
	lowest, ok := mon.LowestOpenSell()
	require.True(t, ok)
	assert.Equal(t, far.ID, lowest.ID)

	require.Len(t, paper.SetPrice(d("150")), 1)
	changed, err := r.pollExtremes(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, mon.IsOpen(far.ID))
	assert.Empty(t, mon.OpenOrders(models.SideSell))
	assert.Len(t, mon.OpenOrders(models.SideBuy), 1)
}

func TestPairingMismatchStopsChain(t *testing.T) {
	gw := newPaper(testLimits(), "1000", "0.1")
	sell := gw.AddOrder(models.SideSell, d("120"), d("0.1"))
	r, mon := newRunner(t, gw, testConfig())
	ctx := initRunner(t, r)

	origin := models.Order{
		ID: "b1", Side: models.SideBuy, Kind: models.KindMarket,
		Price: d("100"), Amount: d("0.2"), Filled: d("0.2"), Status: models.StatusClosed,
	}
	mon.Track(ctx, sell, &origin)

	require.Len(t, gw.SetPrice(d("120")), 1)
	changed, err := r.pollExtremes(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	assert.False(t, mon.IsOpen(sell.ID))
	assert.True(t, mon.SessionProfit().IsZero())
	assert.Empty(t, mon.OpenOrders(models.SideBuy))
	assert.Equal(t, 0, gw.OpenCount())
}

func TestVanishedOrderTreatedAsCanceled(t *testing.T) {
	gw := newPaper(testLimits(), "1000", "0")
	r, mon := newRunner(t, gw, testConfig())
	ctx := initRunner(t, r)
	require.NoError(t, r.buyCycle(ctx))

	gw.FailNext("fetch", fmt.Errorf("fetch: %w", exchange.ErrOrderNotFound))
	changed, err := r.pollExtremes(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Empty(t, mon.OpenOrders(models.SideSell))
}

func TestSellRemaining(t *testing.T) {
	cfg := testConfig()
	cfg.SellRemaining = true
	gw := newPaper(testLimits(), "1000", "0.5")
	gw.AddOrder(models.SideSell, d("120"), d("0.1"))
	r, mon := newRunner(t, gw, cfg)
	initRunner(t, r)

	sells := mon.OpenOrders(models.SideSell)
	require.Len(t, sells, 2)
	assert.True(t, sells[0].Price.Equal(d("119.99")), "price %s", sells[0].Price)
	assert.True(t, sells[0].Amount.Equal(d("0.4")), "amount %s", sells[0].Amount)
}

func TestStartStop(t *testing.T) {
	gw := newPaper(testLimits(), "1000", "0.1")
	stale := gw.AddOrder(models.SideBuy, d("90"), d("0.2"))
	keep := gw.AddOrder(models.SideSell, d("120"), d("0.1"))

	h := &fakeHealth{}
	r, mon := newRunner(t, gw, testConfig())
	r.WithHealth(h)

	require.NoError(t, r.Start(context.Background()))
	assert.True(t, h.ready.Load())

	o, err := gw.FetchOrder(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, o.Status)

	// цикл сразу покупает: сделок ещё не было
	require.Eventually(t, func() bool {
		return len(mon.OpenOrders(models.SideSell)) == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return h.ticks.Load() > 0 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))
	assert.False(t, h.ready.Load())

	o, err = gw.FetchOrder(context.Background(), keep.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, o.Status)
	assert.Equal(t, 2, gw.OpenCount())
}

func TestStopCancelsPendingBuyWithoutWaiting(t *testing.T) {
	gw := newPaper(testLimits(), "1000", "0")
	r, mon := newRunner(t, gw, testConfig())
	require.NoError(t, r.Start(context.Background()))

	require.Eventually(t, func() bool {
		return len(mon.OpenOrders(models.SideSell)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	gw.SetPrice(d("103"))
	require.Eventually(t, func() bool {
		return len(mon.OpenOrders(models.SideBuy)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	started := time.Now()
	require.NoError(t, r.Stop(ctx))
	assert.Less(t, time.Since(started), time.Second)

	open, err := gw.FetchOpenOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.True(t, mon.SessionProfit().Equal(d("0.3003")))
}

type chanStream chan models.Order

func (c chanStream) Updates(ctx context.Context) <-chan models.Order { return c }

func TestStreamUpdatesAreIdempotentWithPolling(t *testing.T) {
	gw := newPaper(testLimits(), "1000", "0")
	stream := make(chanStream, 4)
	r, mon := newRunner(t, gw, testConfig())
	r.WithStream(stream)
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(func() {
		close(stream)
		_ = r.Stop(context.Background())
	})

	require.Eventually(t, func() bool {
		return len(mon.OpenOrders(models.SideSell)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	for _, o := range gw.SetPrice(d("103")) {
		stream <- o
		stream <- o
	}
	require.Eventually(t, func() bool {
		return len(mon.OpenOrders(models.SideBuy)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, mon.SessionProfit().Equal(d("0.3003")), "profit %s", mon.SessionProfit())
}

func TestStatusText(t *testing.T) {
	gw := newPaper(testLimits(), "1000", "0")
	r, _ := newRunner(t, gw, testConfig())
	ctx := initRunner(t, r)
	require.NoError(t, r.buyCycle(ctx))

	text := r.StatusText(ctx)
	assert.True(t, strings.HasPrefix(text, "📊 BTCUSDT"), text)
	assert.Contains(t, text, "Продажи: 1")
	assert.Contains(t, text, "Покупки: 0")

	s, err := r.Status(ctx)
	require.NoError(t, err)
	assert.True(t, s.Balance.SellAmount.Equal(d("0.1001")))
	assert.Equal(t, "10.01", s.SellCurrent)
}
