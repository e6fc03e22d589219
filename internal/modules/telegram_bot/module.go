package telegram

import (
	"context"

	"ladder_bot/internal/modules/config"
	"ladder_bot/internal/notify"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Out struct {
	fx.Out

	Notifier notify.Notifier
	Telegram *notify.Telegram // nil без токена
}

// NewNotifier: с токеном: Telegram, иначе уведомления идут в лог.
func NewNotifier(cfg *config.Config, log *zap.Logger) (Out, error) {
	if cfg.Telegram.Token == "" {
		return Out{Notifier: notify.NewStdout(log.Named("notify"))}, nil
	}
	t, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, log.Named("telegram"))
	if err != nil {
		return Out{}, err
	}
	return Out{Notifier: t, Telegram: t}, nil
}

func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(
			NewNotifier,
		),
		// Запуск приёма команд через Lifecycle
		fx.Invoke(
			func(lc fx.Lifecycle, ctx context.Context, t *notify.Telegram) {
				if t == nil {
					return
				}
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						return t.Start(ctx)
					},
					OnStop: func(context.Context) error {
						t.Stop()
						return nil
					},
				})
			},
		),
	)
}
