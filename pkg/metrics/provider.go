package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitProvider installs a global meter provider backed by the Prometheus
// exporter (it registers in the default Prometheus registry, so
// promhttp.Handler serves the values). The returned function flushes it.
func InitProvider(ctx context.Context) (_ *sdkmetric.MeterProvider, _shutdown func(context.Context) error, _err error) {
	promExp, err := promexporter.New()
	if err != nil {
		return nil, nil, fmt.Errorf("unable to initialize the Prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExp),
	)
	otel.SetMeterProvider(mp)
	return mp, mp.Shutdown, nil
}
