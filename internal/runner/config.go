package runner

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	// маржа растёт вместе с долей свободного капитала
	MarginMin decimal.Decimal
	MarginMax decimal.Decimal

	// пауза между маркет-покупками: чем меньше свободного капитала, тем дольше
	SleepMin time.Duration
	SleepMax time.Duration

	BuyCancelTimeout time.Duration
	PollInterval     time.Duration
	BackoffMax       time.Duration
	ShutdownTimeout  time.Duration

	MaxPlaceAttempts int // попыток выставить ордер с учётом склейки
	MaxChain         int // подряд исполненных встречных ордеров за один проход
	SellRemaining    bool
}

func DefaultConfig() Config {
	return Config{
		MarginMin:        decimal.RequireFromString("1.002"),
		MarginMax:        decimal.RequireFromString("1.01"),
		SleepMin:         10 * time.Second,
		SleepMax:         10 * time.Minute,
		BuyCancelTimeout: 24 * time.Hour,
		PollInterval:     2 * time.Second,
		BackoffMax:       time.Minute,
		ShutdownTimeout:  30 * time.Second,
		MaxPlaceAttempts: 2,
		MaxChain:         10,
	}
}

func (c Config) Validate() error {
	one := decimal.NewFromInt(1)
	if c.MarginMin.LessThan(one) || c.MarginMax.LessThan(c.MarginMin) {
		return fmt.Errorf("runner: margin range [%s, %s] must satisfy 1 <= min <= max", c.MarginMin, c.MarginMax)
	}
	if c.SleepMin <= 0 || c.SleepMax < c.SleepMin {
		return fmt.Errorf("runner: sleep range [%s, %s] must satisfy 0 < min <= max", c.SleepMin, c.SleepMax)
	}
	if c.BuyCancelTimeout <= 0 || c.PollInterval <= 0 || c.BackoffMax <= 0 || c.ShutdownTimeout <= 0 {
		return fmt.Errorf("runner: timeouts must be positive")
	}
	if c.MaxPlaceAttempts < 1 || c.MaxChain < 1 {
		return fmt.Errorf("runner: attempts must be positive")
	}
	return nil
}
