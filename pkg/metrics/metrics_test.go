package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestRecordInference(t *testing.T) {
	ctx := context.Background()
	m, reader := newTestMetrics(t)

	m.RecordInference(ctx, 2*time.Millisecond)
	m.RecordInference(ctx, 3*time.Millisecond)
	m.RecordBypass(ctx)

	rm := collect(t, reader)

	processed := findMetric(rm, NameFramesProcessed)
	require.NotNil(t, processed, spew.Sdump(rm))
	sum, ok := processed.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)

	duration := findMetric(rm, NameInferenceDuration)
	require.NotNil(t, duration)
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
	assert.InDelta(t, 0.005, hist.DataPoints[0].Sum, 1e-9)

	bypassed := findMetric(rm, NameFramesBypassed)
	require.NotNil(t, bypassed)
	assert.Equal(t, int64(1), bypassed.Data.(metricdata.Sum[int64]).DataPoints[0].Value)
}

func TestRecordRenderOpenAttempt(t *testing.T) {
	ctx := context.Background()
	m, reader := newTestMetrics(t)

	m.RecordRenderOpenAttempt(ctx, ResultFailure)
	m.RecordRenderOpenAttempt(ctx, ResultFailure)
	m.RecordRenderOpenAttempt(ctx, ResultSuccess)

	rm := collect(t, reader)
	attempts := findMetric(rm, NameRenderOpenAttempts)
	require.NotNil(t, attempts)
	sum := attempts.Data.(metricdata.Sum[int64])

	byResult := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, ok := dp.Attributes.Value(attribute.Key(AttrResult))
		require.True(t, ok)
		byResult[v.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{ResultFailure: 2, ResultSuccess: 1}, byResult)
}

func TestSessionsActive(t *testing.T) {
	ctx := context.Background()
	m, reader := newTestMetrics(t)

	m.SessionsActive.Add(ctx, 1)
	m.SessionsActive.Add(ctx, 1)
	m.SessionsActive.Add(ctx, -1)

	rm := collect(t, reader)
	active := findMetric(rm, NameSessionsActive)
	require.NotNil(t, active)
	assert.Equal(t, int64(1), active.Data.(metricdata.Sum[int64]).DataPoints[0].Value)
}

func TestNoop(t *testing.T) {
	m := Noop()
	m.RecordInference(context.Background(), time.Millisecond)
	m.RecordRenderOpenAttempt(context.Background(), ResultSuccess)

	m, err := NewMetrics(nil)
	require.NoError(t, err)
	require.NotNil(t, m)
}
