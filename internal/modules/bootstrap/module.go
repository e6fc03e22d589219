package bootstrap

import (
	"context"

	"ladder_bot/internal/modules/config"
	"ladder_bot/pkg/logger"
	"ladder_bot/pkg/tracing"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewLogger поднимает глобальный логгер с именем сервиса из конфига.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	logger.SetServiceName(cfg.Service.Name)
	tracing.SetServiceName(cfg.Service.Name)
	return logger.New(cfg.Service.LogLevel)
}

// NewTracer: без tracing.host остаётся noop-трейсер opentracing.
func NewTracer(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (opentracing.Tracer, error) {
	if cfg.Tracing.Host == "" {
		return opentracing.GlobalTracer(), nil
	}
	tracer, closeFn, err := tracing.InitTracer(tracing.Config{Host: cfg.Tracing.Host, Port: cfg.Tracing.Port}, log.Named("jaeger"))
	if err != nil {
		return nil, err
	}
	log.Info("jaeger tracer initialized", zap.String("host", cfg.Tracing.Host), zap.Int("port", cfg.Tracing.Port))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return closeFn()
		},
	})
	return tracer, nil
}

func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(
			NewLogger, // -> *zap.Logger
			NewTracer, // -> opentracing.Tracer
		),
		fx.Invoke(func(opentracing.Tracer) {}),
	)
}
