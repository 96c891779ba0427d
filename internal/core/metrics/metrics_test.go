package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/solatis/scorekeeper/internal/types"
)

func TestCollector_ObserveEvaluation(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.ObserveEvaluation(types.KindScore, "ok", time.Millisecond)
	c.ObserveEvaluation(types.KindScore, "ok", 2*time.Millisecond)
	c.ObserveEvaluation("", "error", time.Microsecond)

	if got := testutil.ToFloat64(c.evaluations.WithLabelValues("score", "ok")); got != 2 {
		t.Errorf("evaluations{score,ok} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.evaluations.WithLabelValues("unknown", "error")); got != 1 {
		t.Errorf("evaluations{unknown,error} = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(c.evalDuration); got != 2 {
		t.Errorf("duration series = %d, want 2", got)
	}
}

func TestCollector_Counters(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.ObserveParse("dsl", "ok")
	c.ObserveParse("ai", "unavailable")
	c.FormulaFailures(2)
	c.FormulaFailures(0)
	c.ObserveHTTP("/calculate", "POST", 200, 5*time.Millisecond)

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"parse dsl ok", c.parses.WithLabelValues("dsl", "ok"), 1},
		{"parse ai unavailable", c.parses.WithLabelValues("ai", "unavailable"), 1},
		{"formula failures", c.formulaFailures, 2},
		{"http requests", c.httpRequests.WithLabelValues("/calculate", "POST", "200"), 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.c); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector(nil)
	c.ObserveParse("dsl", "ok")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`scorekeeper_parse_total{outcome="ok",source="dsl"} 1`,
		"scorekeeper_formula_failures_total 0",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func findFamily(families []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestCollector_HTTPDuration(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	c.ObserveHTTP("/parse", "POST", 400, 3*time.Millisecond)
	c.ObserveHTTP("/parse", "POST", 200, time.Millisecond)

	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	f := findFamily(families, "scorekeeper_http_request_duration_seconds")
	if f == nil || len(f.GetMetric()) != 1 {
		t.Fatalf("duration family = %v, want one series", f)
	}
	if got := f.GetMetric()[0].GetHistogram().GetSampleCount(); got != 2 {
		t.Errorf("sample count = %d, want 2", got)
	}
}
