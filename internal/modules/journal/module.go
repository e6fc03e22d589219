package journal

import (
	"context"

	"ladder_bot/internal/journal"
	"ladder_bot/internal/modules/config"
	"ladder_bot/pkg/db"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewJournal собирает журнал сделок из настроенных приёмников: CSV и/или Postgres.
func NewJournal(lc fx.Lifecycle, cfg *config.Config, tx *db.PgTxManager, log *zap.Logger) (journal.Journal, error) {
	var sinks journal.Multi

	if cfg.Journal.CSVPath != "" {
		csv, err := journal.OpenCSV(cfg.Journal.CSVPath)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error { return csv.Close() },
		})
		sinks = append(sinks, csv)
	}

	if tx != nil {
		pg := journal.NewPostgres(tx)
		lc.Append(fx.Hook{
			OnStart: pg.EnsureSchema,
		})
		sinks = append(sinks, pg)
	}

	log.Info("trade journal configured", zap.String("csv", cfg.Journal.CSVPath), zap.Bool("postgres", tx != nil))
	if len(sinks) == 0 {
		return journal.Nop{}, nil
	}
	return sinks, nil
}

func Module() fx.Option {
	return fx.Module("journal",
		fx.Provide(NewJournal),
	)
}
