package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue sums every series of the named counter family.
func counterValue(t *testing.T, name string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestCompletions_Registered(t *testing.T) {
	Completions.WithLabelValues("extended").Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "quizhub_streak_completions_total" {
			found = true
		}
	}
	if !found {
		t.Error("quizhub_streak_completions_total not found in gathered metrics")
	}
}

func TestFreezeCounters(t *testing.T) {
	before := counterValue(t, "quizhub_streak_freezes_used_total")
	FreezesUsed.Inc()
	if got := counterValue(t, "quizhub_streak_freezes_used_total"); got != before+1 {
		t.Errorf("FreezesUsed = %v, want %v", got, before+1)
	}

	FreezesRejected.WithLabelValues("no_freezes").Inc()
	if got := counterValue(t, "quizhub_streak_freezes_rejected_total"); got < 1 {
		t.Errorf("FreezesRejected = %v, want >= 1", got)
	}
}

func TestAllMetricsGathered(t *testing.T) {
	XPAwarded.WithLabelValues("manual").Add(10)
	RankUps.WithLabelValues("Ambitny").Inc()
	VersionConflicts.Inc()
	MalformedStates.Inc()
	HTTPDuration.WithLabelValues("/health", "GET", "200").Observe(0.002)

	families, _ := prometheus.DefaultGatherer.Gather()
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	for _, want := range []string{
		"quizhub_xp_awarded_total",
		"quizhub_rank_ups_total",
		"quizhub_store_version_conflicts_total",
		"quizhub_streak_malformed_states_total",
		"quizhub_http_request_duration_seconds",
	} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}
