package exchange

import (
	"fmt"
	"strings"
	"time"

	"ladder_bot/internal/exchange"
	"ladder_bot/internal/models"
	"ladder_bot/internal/modules/config"
	"ladder_bot/internal/modules/health/service"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var quoteAssets = []string{"USDT", "USDC", "FDUSD", "BUSD", "TUSD", "BTC", "ETH", "BNB", "EUR", "TRY"}

// SplitSymbol делит тикер пары на base и quote по известным quote-активам.
func SplitSymbol(symbol string) (base, quote string, err error) {
	for _, q := range quoteAssets {
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			return strings.TrimSuffix(symbol, q), q, nil
		}
	}
	return "", "", fmt.Errorf("unknown quote asset in %q", symbol)
}

// PaperLimits: ограничения бумажной пары, похожие на спот BTCUSDT.
func PaperLimits(cfg *config.Config) (models.ExchangeLimits, error) {
	base, quote, err := SplitSymbol(cfg.Trading.Symbol)
	if err != nil {
		return models.ExchangeLimits{}, err
	}
	return models.ExchangeLimits{
		Symbol:          cfg.Trading.Symbol,
		Base:            base,
		Quote:           quote,
		MinAmount:       decimal.RequireFromString("0.00001"),
		PriceIncrement:  decimal.RequireFromString("0.01"),
		MinCost:         decimal.NewFromInt(5),
		MaxOpenOrders:   cfg.Exchange.MaxOpenOrders,
		AmountPrecision: 5,
		PricePrecision:  2,
		QuotePrecision:  8,
	}, nil
}

func newPaper(cfg *config.Config) (*exchange.Paper, error) {
	limits, err := PaperLimits(cfg)
	if err != nil {
		return nil, err
	}
	price, err := decimal.NewFromString(cfg.Exchange.PaperPrice)
	if err != nil {
		return nil, fmt.Errorf("exchange.paper_price: %w", err)
	}
	quote, err := decimal.NewFromString(cfg.Exchange.PaperQuote)
	if err != nil {
		return nil, fmt.Errorf("exchange.paper_quote: %w", err)
	}
	base, err := decimal.NewFromString(cfg.Exchange.PaperBase)
	if err != nil {
		return nil, fmt.Errorf("exchange.paper_base: %w", err)
	}
	return exchange.NewPaper(limits, price, models.Balances{
		limits.Quote: {Free: quote, Total: quote},
		limits.Base:  {Free: base, Total: base},
	}), nil
}

type Out struct {
	fx.Out

	Gateway exchange.Gateway
	Binance *exchange.Binance // nil в бумажном режиме
}

// NewGateway: live: Binance за лимитером и ретраями, paper: биржа в памяти.
// Оба варианта оборачиваются в трейсинг.
func NewGateway(cfg *config.Config, log *zap.Logger) (Out, error) {
	var (
		gw  exchange.Gateway
		bin *exchange.Binance
	)
	switch cfg.Exchange.Mode {
	case config.ModeLive:
		bin = exchange.NewBinance(cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Trading.Symbol, cfg.Exchange.Testnet)
		gw = exchange.NewResilient(bin, exchange.ResilientConfig{
			RatePerSec: cfg.Exchange.RateLimit,
			Burst:      cfg.Exchange.Burst,
			BaseDelay:  time.Second,
			MaxDelay:   cfg.Trading.BackoffMax,
		}, log.Named("gateway"))
	default:
		p, err := newPaper(cfg)
		if err != nil {
			return Out{}, err
		}
		gw = p
	}
	log.Info("exchange gateway ready", zap.String("mode", cfg.Exchange.Mode), zap.String("symbol", cfg.Trading.Symbol))
	return Out{Gateway: exchange.NewTraced(gw, cfg.Trading.Symbol), Binance: bin}, nil
}

// NewStream: пользовательский поток ордеров. nil, если выключен или режим бумажный.
func NewStream(cfg *config.Config, b *exchange.Binance, state *service.State, log *zap.Logger) *exchange.Stream {
	if !cfg.Stream.Enabled || b == nil {
		return nil
	}
	s := exchange.NewStream(b, cfg.Exchange.Testnet, log.Named("stream"))
	s.OnStatus(state.SetStreamConnected)
	return s
}

func Module() fx.Option {
	return fx.Module("exchange",
		fx.Provide(
			NewGateway, // -> exchange.Gateway, *exchange.Binance
			NewStream,  // -> *exchange.Stream
		),
	)
}
