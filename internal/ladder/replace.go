package ladder

import (
	"context"
	"errors"
	"fmt"

	"ladder_bot/internal/exchange"
	"ladder_bot/internal/metrics"
	"ladder_bot/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderPlacer: часть шлюза, нужная для замены ордеров.
type OrderPlacer interface {
	CreateOrder(ctx context.Context, req models.OrderRequest) (models.Order, error)
	CancelOrder(ctx context.Context, id string) error
}

// Result: что реально произошло на бирже. По нему оператор восстанавливает состояние
// после частичного сбоя.
type Result struct {
	Canceled   []string
	Created    []models.Order
	Failed     []models.Rung
	Multiplier decimal.Decimal
}

type Replacer struct {
	planner *Planner
	gw      OrderPlacer
	log     *zap.Logger
}

func NewReplacer(planner *Planner, gw OrderPlacer, log *zap.Logger) *Replacer {
	return &Replacer{planner: planner, gw: gw, log: log}
}

// Prepare проверяет инварианты и при нужде поднимает цены новой лестницы,
// чтобы её стоимость была не меньше старой. Биржу не трогает.
func (r *Replacer) Prepare(old []models.Order, next models.Ladder) (models.Ladder, decimal.Decimal, error) {
	limits := r.planner.limits
	oldAmount, newAmount := models.SumAmount(old), next.TotalAmount()

	switch r.planner.cfg.AmountMode {
	case AmountCapped:
		if newAmount.GreaterThan(oldAmount) && !limits.AmountsEqual(newAmount, oldAmount) {
			return nil, decimal.Zero, fmt.Errorf("%w: new amount %s exceeds old %s", ErrInvariantViolation, newAmount, oldAmount)
		}
	default:
		if !limits.AmountsEqual(newAmount, oldAmount) {
			return nil, decimal.Zero, fmt.Errorf("%w: new amount %s != old %s", ErrInvariantViolation, newAmount, oldAmount)
		}
	}

	oldValue, newValue := models.SumValue(old), next.TotalValue()
	multiplier := decimal.NewFromInt(1)
	if newValue.LessThan(oldValue) {
		if !newValue.IsPositive() {
			return nil, decimal.Zero, fmt.Errorf("%w: new ladder has no value", ErrInvariantViolation)
		}
		multiplier = oldValue.DivRound(newValue, 16)
		next = next.Scale(multiplier, limits)
		newValue = next.TotalValue()
	}
	if newValue.LessThan(oldValue) {
		return nil, decimal.Zero, fmt.Errorf("%w: new value %s < old value %s", ErrInvariantViolation, newValue, oldValue)
	}
	return next, multiplier, nil
}

// Replace снимает все старые ордера и выставляет новые. Инварианты проверяются
// до первого обращения к бирже. Ошибки создания не прерывают остальные создания.
func (r *Replacer) Replace(ctx context.Context, old []models.Order, next models.Ladder) (*Result, error) {
	prepared, multiplier, err := r.Prepare(old, next)
	if err != nil {
		metrics.IncRebalance("rejected")
		r.log.Error("replace rejected",
			zap.Int("old", len(old)), zap.Int("new", len(next)), zap.Error(err))
		return nil, err
	}

	res := &Result{Multiplier: multiplier}
	for _, o := range old {
		if err := r.gw.CancelOrder(ctx, o.ID); err != nil && !errors.Is(err, exchange.ErrOrderNotFound) {
			// новые ордера поверх неснятых старых заблокируют лишний объём
			metrics.IncRebalance("partial")
			r.log.Error("replace cancel failed",
				zap.String("id", o.ID), zap.Stringer("price", o.Price), zap.Stringer("amount", o.Amount),
				zap.Strings("canceled", res.Canceled), zap.Error(err))
			return res, fmt.Errorf("replace: cancel %s: %w", o.ID, err)
		}
		res.Canceled = append(res.Canceled, o.ID)
	}

	var errs []error
	for _, rung := range prepared {
		order, err := r.gw.CreateOrder(ctx, models.OrderRequest{
			Side:   models.SideSell,
			Kind:   models.KindLimit,
			Amount: rung.Amount,
			Price:  rung.Price,
		})
		if err != nil {
			r.log.Error("replace create failed",
				zap.Stringer("price", rung.Price), zap.Stringer("amount", rung.Amount), zap.Error(err))
			res.Failed = append(res.Failed, rung)
			errs = append(errs, fmt.Errorf("create %s@%s: %w", rung.Amount, rung.Price, err))
			continue
		}
		res.Created = append(res.Created, order)
	}

	if len(errs) > 0 {
		metrics.IncRebalance("partial")
		return res, errors.Join(errs...)
	}
	metrics.IncRebalance("ok")
	r.log.Info("replace done",
		zap.Int("canceled", len(res.Canceled)), zap.Int("created", len(res.Created)),
		zap.Stringer("multiplier", multiplier))
	return res, nil
}

// Merge склеивает пары продаж через Replace, чтобы освободить слоты под новые ордера.
func (r *Replacer) Merge(ctx context.Context, orders []models.Order) (*Result, error) {
	plan, err := r.planner.MergePlan(orders)
	if err != nil {
		return nil, err
	}

	total := &Result{Multiplier: decimal.NewFromInt(1)}
	var errs []error
	for _, m := range plan {
		res, err := r.Replace(ctx, m.Old[:], models.Ladder{m.New})
		if res != nil {
			total.Canceled = append(total.Canceled, res.Canceled...)
			total.Created = append(total.Created, res.Created...)
			total.Failed = append(total.Failed, res.Failed...)
		}
		if err != nil {
			if errors.Is(err, ErrInvariantViolation) || ctx.Err() != nil {
				return total, err
			}
			errs = append(errs, err)
		}
	}
	metrics.AddMerges(len(total.Created))
	r.log.Info("merge done",
		zap.Int("pairs", len(plan)), zap.Int("created", len(total.Created)), zap.Int("failed", len(total.Failed)))
	return total, errors.Join(errs...)
}
