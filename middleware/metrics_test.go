package middleware_test

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	mw "github.com/xraph/jobqueue/middleware"
)

func setupTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return reader, mp
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
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

func TestMetrics_RecordsDuration(t *testing.T) {
	reader, mp := setupTestMeter()
	m := mw.MetricsWithMeter(mp.Meter("test"))

	_, _ = m(context.Background(), newTestInvocation(), okHandler)

	metric := findMetric(collectMetrics(t, reader), "jobqueue.job.duration")
	if metric == nil {
		t.Fatal("jobqueue.job.duration metric not found")
	}
	hist, ok := metric.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("expected Histogram[float64] data type")
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Fatalf("expected one data point with count 1, got %+v", hist.DataPoints)
	}
}

func TestMetrics_OutcomeAttribute(t *testing.T) {
	tests := []struct {
		name    string
		handler mw.Handler
		want    string
	}{
		{"ok", okHandler, "ok"},
		{"failed", func(context.Context) (bool, error) { return false, nil }, "failed"},
		{"error", func(context.Context) (bool, error) { return false, errors.New("boom") }, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, mp := setupTestMeter()
			m := mw.MetricsWithMeter(mp.Meter("test"))
			_, _ = m(context.Background(), newTestInvocation(), tt.handler)

			metric := findMetric(collectMetrics(t, reader), "jobqueue.job.executions")
			if metric == nil {
				t.Fatal("jobqueue.job.executions metric not found")
			}
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) != 1 {
				t.Fatalf("expected one Sum[int64] data point, got %+v", metric.Data)
			}
			dp := sum.DataPoints[0]
			if dp.Value != 1 {
				t.Errorf("value = %d, want 1", dp.Value)
			}
			got, _ := dp.Attributes.Value("outcome")
			if got.AsString() != tt.want {
				t.Errorf("outcome = %q, want %q", got.AsString(), tt.want)
			}
			client, _ := dp.Attributes.Value("client")
			if client.AsString() != "mailers" {
				t.Errorf("client = %q, want %q", client.AsString(), "mailers")
			}
		})
	}
}
