package runner

import (
	"context"

	"ladder_bot/internal/exchange"
	"ladder_bot/internal/journal"
	"ladder_bot/internal/ladder"
	"ladder_bot/internal/modules/config"
	"ladder_bot/internal/modules/health/service"
	"ladder_bot/internal/monitor"
	"ladder_bot/internal/notify"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ConfigFrom переводит конфиг приложения в настройки раннера и планировщика.
func ConfigFrom(cfg *config.Config) (Config, ladder.Config, error) {
	rc := DefaultConfig()
	rc.MarginMin, rc.MarginMax = cfg.Margins()
	rc.SleepMin = cfg.Trading.SleepMin
	rc.SleepMax = cfg.Trading.SleepMax
	rc.BuyCancelTimeout = cfg.Trading.BuyCancelTimeout
	rc.PollInterval = cfg.Trading.PollInterval
	rc.BackoffMax = cfg.Trading.BackoffMax
	rc.MaxPlaceAttempts = cfg.Trading.MaxPlaceAttempts
	rc.SellRemaining = cfg.Trading.SellRemaining
	if err := rc.Validate(); err != nil {
		return Config{}, ladder.Config{}, err
	}

	lc := ladder.DefaultConfig()
	lc.Remainder = ladder.RemainderPolicy(cfg.Ladder.Remainder)
	lc.AmountMode = ladder.AmountMode(cfg.Ladder.AmountMode)
	lc.MaxOrdersRatio = cfg.OrdersRatio()
	lc.MergeMinOrders = cfg.Ladder.MergeMinOrders
	if err := lc.Validate(); err != nil {
		return Config{}, ladder.Config{}, err
	}
	return rc, lc, nil
}

type Params struct {
	fx.In

	Config   *config.Config
	Gateway  exchange.Gateway
	Stream   *exchange.Stream
	Journal  journal.Journal
	Notifier notify.Notifier
	Telegram *notify.Telegram
	Health   *service.State
	Log      *zap.Logger
}

func NewRunner(p Params) (*Runner, error) {
	rc, lc, err := ConfigFrom(p.Config)
	if err != nil {
		return nil, err
	}
	log := p.Log.Named("runner").With(zap.String("symbol", p.Config.Trading.Symbol))
	mon := monitor.New(log.Named("monitor"), p.Journal)

	r := New(rc, lc, p.Gateway, mon, p.Notifier, log).WithHealth(p.Health)
	if p.Stream != nil {
		r = r.WithStream(p.Stream)
	}
	if p.Telegram != nil {
		p.Telegram.SetStatus(r.StatusText)
	}
	return r, nil
}

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			NewRunner, // *Runner
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			r *Runner,
			ctx context.Context,
		) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					return r.Start(ctx)
				},
				OnStop: r.Stop,
			})
		}),
	)
}
