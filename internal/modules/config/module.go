package config

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// logEffective пишет в лог итоговые настройки без секретов.
func logEffective(cfg *Config, log *zap.Logger) {
	log.Info("config loaded",
		zap.String("mode", cfg.Exchange.Mode),
		zap.Bool("testnet", cfg.Exchange.Testnet),
		zap.String("symbol", cfg.Trading.Symbol),
		zap.String("margin_min", cfg.Trading.MarginMin),
		zap.String("margin_max", cfg.Trading.MarginMax),
		zap.Duration("sleep_min", cfg.Trading.SleepMin),
		zap.Duration("sleep_max", cfg.Trading.SleepMax),
		zap.String("remainder", cfg.Ladder.Remainder),
		zap.Bool("journal_csv", cfg.Journal.CSVPath != ""),
		zap.Bool("journal_postgres", cfg.Journal.DSN != ""),
		zap.Bool("telegram", cfg.Telegram.Token != ""),
		zap.Bool("stream", cfg.Stream.Enabled))
}

func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			NewConfig,
		),
		fx.Invoke(logEffective),
	)
}
