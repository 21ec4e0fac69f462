// Package tracing wires up the Jaeger tracer used as the process-global
// opentracing tracer.
package tracing

import (
	"fmt"
	"io"

	"github.com/opentracing/opentracing-go"
	"github.com/uber/jaeger-client-go/config"
	"github.com/uber/jaeger-lib/metrics"
	"go.uber.org/zap"
)

// New creates a Jaeger tracer reporting to the given agent, logging
// through the provided zap logger. The returned closer flushes buffered
// spans.
func New(serviceName, jaegerHost, jaegerPort string, logger *zap.Logger) (opentracing.Tracer, io.Closer, error) {
	cfg := &config.Configuration{
		ServiceName: serviceName,
		Sampler: &config.SamplerConfig{
			Type:  "const",
			Param: 1,
		},
		Reporter: &config.ReporterConfig{
			LogSpans:           true,
			LocalAgentHostPort: fmt.Sprintf("%s:%s", jaegerHost, jaegerPort),
		},
	}

	tracer, closer, err := cfg.NewTracer(
		config.Logger(&zapLoggerAdapter{logger: logger}),
		config.Metrics(metrics.NullFactory),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Jaeger tracer: %w", err)
	}
	return tracer, closer, nil
}

// zapLoggerAdapter adapts a zap logger to the Jaeger logger interface.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (l *zapLoggerAdapter) Error(msg string) {
	l.logger.Error(msg)
}

func (l *zapLoggerAdapter) Infof(msg string, args ...interface{}) {
	l.logger.Sugar().Infof(msg, args...)
}
