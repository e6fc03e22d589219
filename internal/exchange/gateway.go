package exchange

import (
	"context"
	"errors"

	"ladder_bot/internal/models"

	"github.com/shopspring/decimal"
)

// Классы ошибок шлюза. Реализации оборачивают исходную ошибку биржи,
// вызывающий проверяет класс через errors.Is.
var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidOrder       = errors.New("invalid order")
	ErrOrderCountExceeded = errors.New("open order count exceeded")
	ErrOrderNotFound      = errors.New("order not found")
	ErrTransient          = errors.New("transient exchange error")
)

// Gateway: доступ к бирже, привязанный к одной торговой паре.
type Gateway interface {
	Limits(ctx context.Context) (models.ExchangeLimits, error)
	FetchOpenOrders(ctx context.Context) ([]models.Order, error)
	FetchOrder(ctx context.Context, id string) (models.Order, error)
	CreateOrder(ctx context.Context, req models.OrderRequest) (models.Order, error)
	CancelOrder(ctx context.Context, id string) error
	FetchBalance(ctx context.Context) (models.Balances, error)
	FetchTicker(ctx context.Context) (decimal.Decimal, error)
	FetchMyTrades(ctx context.Context, limit int) ([]models.Trade, error)
}

// Classify возвращает метку класса ошибки для логов и метрик.
func Classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrOrderCountExceeded):
		return "order_count_exceeded"
	case errors.Is(err, ErrOrderNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidOrder):
		return "invalid_order"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
