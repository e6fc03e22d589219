package helper

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var ErrRangeViolation = errors.New("range violation")

// RangeViolation: входные значения вне допустимого диапазона.
// Значение никогда не обрезается до границ, вызывающий должен сам решить что делать.
type RangeViolation struct {
	Free  decimal.Decimal
	Total decimal.Decimal
}

func (e *RangeViolation) Error() string {
	return fmt.Sprintf("scale: free=%s total=%s out of range", e.Free, e.Total)
}

func (e *RangeViolation) Is(target error) bool { return target == ErrRangeViolation }

// MapRange линейно переводит x из [a, b] в [y, z].
func MapRange(x, a, b, y, z decimal.Decimal) decimal.Decimal {
	if a.Equal(b) {
		return y
	}
	return x.Sub(a).Mul(z.Sub(y)).DivRound(b.Sub(a), 16).Add(y)
}

// Scale отображает долю свободного капитала free/total на отрезок [low, high].
// Порядок low/high задаёт направление: Scale(f, t, min, max) растёт вместе со свободным капиталом,
// Scale(f, t, max, min): убывает.
func Scale(free, total, low, high decimal.Decimal) (decimal.Decimal, error) {
	if !total.IsPositive() || free.IsNegative() || free.GreaterThan(total) {
		return decimal.Zero, &RangeViolation{Free: free, Total: total}
	}
	v := MapRange(free, decimal.Zero, total, low, high)

	// защита от хвостов округления на границах
	lo, hi := decimal.Min(low, high), decimal.Max(low, high)
	if v.LessThan(lo) {
		v = lo
	}
	if v.GreaterThan(hi) {
		v = hi
	}
	return v, nil
}

// ScaleDuration: то же, что Scale, но границы и результат в виде длительности.
func ScaleDuration(free, total decimal.Decimal, low, high time.Duration) (time.Duration, error) {
	v, err := Scale(free, total, decimal.NewFromInt(int64(low)), decimal.NewFromInt(int64(high)))
	if err != nil {
		return 0, err
	}
	return time.Duration(v.Round(0).IntPart()), nil
}
