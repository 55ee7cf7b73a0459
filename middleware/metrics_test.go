package middleware_test

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/aliendabz/evalqueue"
	"github.com/aliendabz/evalqueue/job"
	mw "github.com/aliendabz/evalqueue/middleware"
)

// measure runs one evaluation through the metrics middleware and returns
// everything the reader collected.
func measure(t *testing.T, h mw.Handler) metricdata.ResourceMetrics {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	_, _ = mw.MetricsWithMeter(mp.Meter("test"))(context.Background(), newTestJob(), h)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	return rm
}

func lookup(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Aggregation {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m.Data
			}
		}
	}
	t.Fatalf("instrument %s not recorded", name)
	return nil
}

func TestMetrics_ExecutionStatus(t *testing.T) {
	tests := []struct {
		name    string
		handler mw.Handler
		want    string
	}{
		{"passed", okHandler, "ok"},
		{"evaluator error", func(context.Context) (*job.Result, error) {
			return nil, errors.New("grader unavailable")
		}, "error"},
		{"timeout", func(context.Context) (*job.Result, error) {
			return nil, evalqueue.ErrProcessingTimeout
		}, "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rm := measure(t, tt.handler)

			sum, ok := lookup(t, rm, "evalqueue.evaluation.executions").(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) != 1 {
				t.Fatalf("executions = %#v", sum)
			}
			dp := sum.DataPoints[0]
			if dp.Value != 1 {
				t.Errorf("executions = %d, want 1", dp.Value)
			}
			if v, _ := dp.Attributes.Value("status"); v.AsString() != tt.want {
				t.Errorf("status = %q, want %q", v.AsString(), tt.want)
			}
			if v, _ := dp.Attributes.Value("priority"); v.AsString() != string(evalqueue.PriorityHigh) {
				t.Errorf("priority = %q", v.AsString())
			}
		})
	}
}

func TestMetrics_Duration(t *testing.T) {
	rm := measure(t, okHandler)

	hist, ok := lookup(t, rm, "evalqueue.evaluation.duration").(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 {
		t.Fatalf("duration = %#v", hist)
	}
	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("count = %d, want 1", dp.Count)
	}
	if v, _ := dp.Attributes.Value("status"); v.AsString() != "ok" {
		t.Errorf("status = %q, want ok", v.AsString())
	}
}

func TestMetrics_GlobalProvider(t *testing.T) {
	res, err := mw.Metrics()(context.Background(), newTestJob(), okHandler)
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || !res.Passed {
		t.Errorf("result = %+v, want the evaluator's result", res)
	}
}
