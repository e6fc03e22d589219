package journal

import (
	"context"

	"ladder_bot/pkg/db"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS order_events (
    id         BIGSERIAL PRIMARY KEY,
    ts         TIMESTAMPTZ NOT NULL,
    symbol     TEXT        NOT NULL,
    order_id   TEXT        NOT NULL,
    side       TEXT        NOT NULL,
    kind       TEXT        NOT NULL,
    status     TEXT        NOT NULL,
    price      NUMERIC     NOT NULL,
    amount     NUMERIC     NOT NULL,
    filled     NUMERIC     NOT NULL,
    cost       NUMERIC     NOT NULL,
    profit     NUMERIC     NOT NULL
)`

const insertEventSQL = `
INSERT INTO order_events (ts, symbol, order_id, side, kind, status, price, amount, filled, cost, profit)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// Postgres пишет журнал в таблицу order_events.
type Postgres struct {
	tx db.TxManager
}

func NewPostgres(tx db.TxManager) *Postgres {
	return &Postgres{tx: tx}
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	err := p.tx.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, createTableSQL)
		return err
	})
	return errors.Wrap(err, "create order_events")
}

func (p *Postgres) Record(ctx context.Context, e Entry) error {
	err := p.tx.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, insertEventSQL,
			e.Time, e.Symbol, e.OrderID, string(e.Side), string(e.Kind), e.Status.String(),
			e.Price.String(), e.Amount.String(), e.Filled.String(), e.Cost.String(), e.Profit.String(),
		)
		return err
	})
	return errors.Wrap(err, "insert order event")
}
