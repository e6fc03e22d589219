package main

import (
	"context"
	"time"

	"ladder_bot/internal/modules/bootstrap"
	"ladder_bot/internal/modules/config"
	"ladder_bot/internal/modules/exchange"
	"ladder_bot/internal/modules/health"
	"ladder_bot/internal/modules/journal"
	"ladder_bot/internal/modules/postgres"
	telegram "ladder_bot/internal/modules/telegram_bot"
	"ladder_bot/internal/runner"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return ctx
			},
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		// снятие покупок при остановке не должно упираться в дефолтные 15s
		fx.StopTimeout(time.Minute),
		config.Module(),
		bootstrap.Module(),
		health.Module(),
		postgres.Module(),
		exchange.Module(),
		journal.Module(),
		telegram.Module(),
		runner.Module(),
	)
	// Run ждёт SIGINT/SIGTERM и прогоняет OnStop всех модулей
	app.Run()
}
