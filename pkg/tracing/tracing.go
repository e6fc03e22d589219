package tracing

import (
	"fmt"

	"github.com/opentracing/opentracing-go"
	jCfg "github.com/uber/jaeger-client-go/config"
	jZap "github.com/uber/jaeger-client-go/log/zap"
	"github.com/uber/jaeger-lib/metrics"
	"go.uber.org/zap"
)

var (
	serviceName = "default"
)

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

type Config struct {
	Host string
	Port int
	// доля сэмплируемых трасс, 0: все
	SampleRate float64
}

func (c Config) sampler() *jCfg.SamplerConfig {
	if c.SampleRate <= 0 || c.SampleRate >= 1 {
		return &jCfg.SamplerConfig{Type: "const", Param: 1}
	}
	return &jCfg.SamplerConfig{Type: "probabilistic", Param: c.SampleRate}
}

// InitTracer поднимает jaeger-трейсер, делает его глобальным для opentracing
// и возвращает функцию закрытия репортёра.
func InitTracer(conf Config, log *zap.Logger) (opentracing.Tracer, func() error, error) {
	cfg := &jCfg.Configuration{
		ServiceName: serviceName,
		Sampler:     conf.sampler(),
		Reporter: &jCfg.ReporterConfig{
			LogSpans:           false,
			LocalAgentHostPort: fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		},
	}

	tracer, closer, err := cfg.NewTracer(
		jCfg.Metrics(metrics.NullFactory),
		jCfg.Logger(jZap.NewLogger(log)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("jaeger tracer: %w", err)
	}

	opentracing.SetGlobalTracer(tracer)
	return tracer, func() error {
		opentracing.SetGlobalTracer(opentracing.NoopTracer{})
		return closer.Close()
	}, nil
}
