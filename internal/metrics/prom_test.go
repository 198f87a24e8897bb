package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	SetBuildInfo("1.0.0", "abc", "2024-01-01")
	SetHandlerInfo("sample", "raw", true)
	RecordRequest("tcp", "success", 3)
	RecordRequest("tcp", "decode_error", 5)
	ObserveScoring(100 * time.Millisecond)
	ObserveGateWait(time.Millisecond)
	ConnOpened()
	ConnOpened()
	ConnClosed()
	RequestStart()

	if v := testutil.ToFloat64(requests.WithLabelValues("tcp", "success")); v != 1 {
		t.Fatalf("requests success: %v", v)
	}
	if v := testutil.ToFloat64(requests.WithLabelValues("tcp", "decode_error")); v != 1 {
		t.Fatalf("requests decode_error: %v", v)
	}
	if v := testutil.ToFloat64(documents); v != 3 {
		t.Fatalf("documents: %v", v)
	}
	if v := testutil.ToFloat64(connectionsActive); v != 1 {
		t.Fatalf("connections active: %v", v)
	}
	if v := testutil.ToFloat64(connectionsTotal); v != 2 {
		t.Fatalf("connections total: %v", v)
	}
	if v := testutil.ToFloat64(inflight); v != 1 {
		t.Fatalf("inflight: %v", v)
	}
	if v := testutil.ToFloat64(handlerInfo.WithLabelValues("sample", "raw", "true")); v != 1 {
		t.Fatalf("handler info: %v", v)
	}
	if v := testutil.ToFloat64(buildInfo.WithLabelValues("2024-01-01", "abc", "1.0.0")); v != 1 {
		t.Fatalf("build info: %v", v)
	}
	if n := testutil.CollectAndCount(scoringDuration); n != 1 {
		t.Fatalf("scoring duration series: %d", n)
	}
	RequestEnd()
}
