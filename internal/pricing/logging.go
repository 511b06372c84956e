package pricing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"reasongate-gateway/internal/metrics"
	"reasongate-gateway/pkg/logging/logging"
)

// LoggingStore wraps a Store with logging and metrics. A failed lookup is
// logged and answered with the fallback table, so cost accounting never
// fails a request.
type LoggingStore struct {
	inner    Store
	backend  string
	fallback Table
}

func NewLoggingStore(inner Store, backend string, fallback Table) *LoggingStore {
	return &LoggingStore{inner: inner, backend: backend, fallback: fallback}
}

func (s *LoggingStore) Table(ctx context.Context) (Table, error) {
	start := time.Now()
	table, err := s.inner.Table(ctx)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	fields := []zap.Field{
		zap.String("pricing_backend", s.backend),
		zap.Float64("latency_ms", latencyMs),
	}

	if err != nil {
		metrics.PricingLookupsTotal.WithLabelValues(s.backend, "fallback").Inc()
		logging.L(ctx).Warn("pricing_lookup_fallback", append(fields, zap.Error(err))...)
		return s.fallback, nil
	}

	metrics.PricingLookupsTotal.WithLabelValues(s.backend, "ok").Inc()
	logging.L(ctx).Debug("pricing_lookup", fields...)
	return table, nil
}
