package cmd

import (
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	latencies := make([]time.Duration, 0, 100)
	for i := 100; i >= 1; i-- {
		latencies = append(latencies, time.Duration(i)*time.Millisecond)
	}

	tests := []struct {
		p    int
		want time.Duration
	}{
		{50, 50 * time.Millisecond},
		{95, 95 * time.Millisecond},
		{99, 99 * time.Millisecond},
		{100, 100 * time.Millisecond},
		{0, 1 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := percentile(latencies, tt.p); got != tt.want {
			t.Errorf("percentile(%d) = %s, want %s", tt.p, got, tt.want)
		}
	}

	if got := percentile(nil, 50); got != 0 {
		t.Errorf("percentile of no samples = %s, want 0", got)
	}
	if latencies[0] != 100*time.Millisecond {
		t.Error("percentile must not reorder its input")
	}
}
