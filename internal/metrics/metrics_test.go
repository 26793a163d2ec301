package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Expected no error writing metric, got %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestRegisterTwice(t *testing.T) {
	Register()
	Register()
}

func TestCounters(t *testing.T) {
	before := counterValue(t, SignUps.WithLabelValues("confirmed"))
	SignUps.WithLabelValues("confirmed").Inc()
	if got := counterValue(t, SignUps.WithLabelValues("confirmed")); got != before+1 {
		t.Errorf("Expected %v, got %v", before+1, got)
	}
}
