package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ladder_bot/internal/ladder"
	"ladder_bot/internal/models"
	"ladder_bot/internal/modules/bootstrap"
	"ladder_bot/internal/modules/config"
	"ladder_bot/internal/modules/exchange"
	"ladder_bot/internal/runner"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// ladder: разовая перестройка открытых продаж: печатает план в YAML,
// с -apply снимает старые ордера и выставляет новые.
func main() {
	apply := flag.Bool("apply", false, "replace open sell orders with the planned ladder")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline")
	flag.Parse()

	if err := run(*apply, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, "ladder:", err)
		os.Exit(1)
	}
}

func run(apply bool, timeout time.Duration) error {
	cfg, err := config.NewConfig()
	if err != nil {
		return err
	}
	log, err := bootstrap.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	_, lcfg, err := runner.ConfigFrom(cfg)
	if err != nil {
		return err
	}
	out, err := exchange.NewGateway(cfg, log)
	if err != nil {
		return err
	}
	gw := out.Gateway

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limits, err := gw.Limits(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch limits")
	}
	open, err := gw.FetchOpenOrders(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch open orders")
	}
	var sells []models.Order
	for _, o := range open {
		if o.Side == models.SideSell {
			sells = append(sells, o)
		}
	}

	planner := ladder.NewPlanner(limits, lcfg)
	plan, err := planner.Plan(sells, limits.MaxOpenOrders)
	if err != nil {
		return err
	}

	replacer := ladder.NewReplacer(planner, gw, log.Named("ladder"))
	prepared, multiplier, err := replacer.Prepare(plan.Old, plan.New)
	if err != nil {
		return err
	}
	plan.New, plan.NewValue = prepared, prepared.TotalValue()

	body, err := yaml.Marshal(plan)
	if err != nil {
		return errors.Wrap(err, "marshal plan")
	}
	fmt.Printf("# %s: %d -> %d orders, multiplier %s\n", limits.Symbol, len(sells), plan.Orders, multiplier)
	fmt.Print(string(body))

	if !apply {
		return nil
	}
	res, err := replacer.Replace(ctx, plan.Old, plan.New)
	if res != nil {
		log.Info("ladder applied",
			zap.Int("canceled", len(res.Canceled)), zap.Int("created", len(res.Created)), zap.Int("failed", len(res.Failed)))
	}
	return err
}
