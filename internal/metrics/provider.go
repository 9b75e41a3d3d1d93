package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultExportInterval is used when ProviderConfig.Interval is not positive.
const DefaultExportInterval = time.Minute

// ErrNoLogger is returned by InitProvider without a destination for exports.
var ErrNoLogger = errors.New("metrics provider requires a logger")

// Logger receives one formatted line per exported data point.
type Logger interface {
	Info(format string, args ...any)
}

// ProviderConfig configures the SDK meter provider.
type ProviderConfig struct {
	// ServiceName is reported as the service.name resource attribute.
	ServiceName string
	// Interval between periodic exports. Shutdown always exports once more.
	Interval time.Duration
	// Log receives the exported data points.
	Log Logger
}

// InitProvider installs an SDK meter provider as the global provider and
// returns instruments bound to it. Call shutdown before exit to flush the
// final values.
func InitProvider(cfg ProviderConfig) (met *Metrics, shutdown func(context.Context) error, err error) {
	if cfg.Log == nil {
		return nil, nil, ErrNoLogger
	}

	if cfg.Interval <= 0 {
		cfg.Interval = DefaultExportInterval
	}

	res := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(cfg.ServiceName))
	reader := sdkmetric.NewPeriodicReader(&logExporter{log: cfg.Log}, sdkmetric.WithInterval(cfg.Interval))

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	met, err = New(mp)
	if err != nil {
		_ = mp.Shutdown(context.Background())

		return nil, nil, err
	}

	return met, mp.Shutdown, nil
}

// logExporter writes each data point as "name{attrs} value" through a Logger.
type logExporter struct {
	log Logger
}

var _ sdkmetric.Exporter = (*logExporter)(nil)

func (e *logExporter) Temporality(kind sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(kind)
}

func (e *logExporter) Aggregation(kind sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(kind)
}

func (e *logExporter) Export(_ context.Context, rm *metricdata.ResourceMetrics) error {
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			for _, line := range formatMetric(m) {
				e.log.Info("metric %s", line)
			}
		}
	}

	return nil
}

func (e *logExporter) ForceFlush(context.Context) error {
	return nil
}

func (e *logExporter) Shutdown(context.Context) error {
	return nil
}

func formatMetric(m metricdata.Metrics) []string {
	var lines []string

	switch data := m.Data.(type) {
	case metricdata.Sum[int64]:
		for _, point := range data.DataPoints {
			lines = append(lines, fmt.Sprintf("%s%s %d", m.Name, formatAttrs(point.Attributes), point.Value))
		}
	case metricdata.Sum[float64]:
		for _, point := range data.DataPoints {
			lines = append(lines, fmt.Sprintf("%s%s %g", m.Name, formatAttrs(point.Attributes), point.Value))
		}
	case metricdata.Histogram[float64]:
		for _, point := range data.DataPoints {
			lines = append(lines, fmt.Sprintf("%s%s count=%d sum=%.3f%s",
				m.Name, formatAttrs(point.Attributes), point.Count, point.Sum, m.Unit))
		}
	default:
		lines = append(lines, fmt.Sprintf("%s (%T not exported)", m.Name, m.Data))
	}

	return lines
}

func formatAttrs(set attribute.Set) string {
	if set.Len() == 0 {
		return ""
	}

	return "{" + set.Encoded(attribute.DefaultEncoder()) + "}"
}
