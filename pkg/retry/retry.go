package retry

import (
	"context"
	"time"
)

// Backoff возвращает паузу перед попыткой attempt (с нуля).
type Backoff func(attempt int) time.Duration

// Linear: base, 2*base, 3*base ... не больше max.
func Linear(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt < 0 {
			attempt = 0
		}
		d := base * time.Duration(attempt+1)
		if d > max || d <= 0 {
			return max
		}
		return d
	}
}

// Exponential: base * 2^attempt, не больше max.
func Exponential(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt < 0 {
			return base
		}
		if attempt > 30 {
			return max
		}
		d := base * time.Duration(1<<attempt)
		if d > max || d <= 0 {
			return max
		}
		return d
	}
}

// Sleep ждёт d или отмены контекста. false: контекст отменён.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Do повторяет fn, пока retryable(err) и жив контекст. attempts <= 0: без ограничения.
func Do(ctx context.Context, attempts int, b Backoff, retryable func(error) bool, fn func(ctx context.Context) error) error {
	var err error
	for i := 0; attempts <= 0 || i < attempts; i++ {
		if err = fn(ctx); err == nil || !retryable(err) {
			return err
		}
		if attempts > 0 && i == attempts-1 {
			break
		}
		if !Sleep(ctx, b(i)) {
			return ctx.Err()
		}
	}
	return err
}
