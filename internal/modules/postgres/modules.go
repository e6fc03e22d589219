package postgres

import (
	"context"
	"fmt"

	"ladder_bot/internal/modules/config"
	"ladder_bot/pkg/db"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module даёт *db.PgTxManager. Без journal.dsn менеджер nil и журнал пишется только в CSV.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(lc fx.Lifecycle, ctx context.Context, cfg *config.Config, log *zap.Logger) (*db.PgTxManager, error) {
				if cfg.Journal.DSN == "" {
					return nil, nil
				}
				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN:      cfg.Journal.DSN,
					MaxConns: 4,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				err = poolMaster.Ping(ctx)
				if err != nil {
					poolMaster.Close()
					return nil, err
				}

				log.Info("postgres journal connected")
				m := db.NewPgTxManager(poolMaster)
				lc.Append(fx.Hook{
					OnStop: func(context.Context) error {
						m.Close()
						return nil
					},
				})
				return m, nil
			},
		),
	)
}
