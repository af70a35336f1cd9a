package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsRecordsRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	finished := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	m.ObserveRun("invoice-backfill", CronResultSuccess, 250*time.Millisecond, finished)
	m.ObserveRun("invoice-backfill", CronResultFailure, time.Second, finished.Add(time.Minute))
	m.Skipped()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, tc := range []struct {
		labels map[string]string
		want   float64
	}{
		{map[string]string{"job": "invoice-backfill", "result": CronResultSuccess}, 1},
		{map[string]string{"job": "invoice-backfill", "result": CronResultFailure}, 1},
		{map[string]string{"job": "cycle", "result": CronResultSkipped}, 1},
	} {
		got, err := metricValue(mfs, "bazaar_cron_job_runs_total", tc.labels)
		if err != nil {
			t.Fatalf("runs %v: %v", tc.labels, err)
		}
		if got != tc.want {
			t.Fatalf("runs %v: expected %v, got %v", tc.labels, tc.want, got)
		}
	}

	last, err := metricValue(mfs, "bazaar_cron_job_last_success_timestamp_seconds", map[string]string{"job": "invoice-backfill"})
	if err != nil {
		t.Fatalf("last success: %v", err)
	}
	if last != float64(finished.Unix()) {
		t.Fatalf("failure must not move last success: got %v", last)
	}
}

func TestOutboxMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.Event("order_created", OutboxPublished)
	m.Event("order_created", OutboxPublished)
	m.Event("", OutboxDeadLettered)
	m.ObserveBatch(40 * time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	got, err := metricValue(mfs, "bazaar_outbox_events_total", map[string]string{"event_type": "order_created", "outcome": OutboxPublished})
	if err != nil || got != 2 {
		t.Fatalf("expected 2 published, got %v (%v)", got, err)
	}
	got, err = metricValue(mfs, "bazaar_outbox_events_total", map[string]string{"event_type": "unknown", "outcome": OutboxDeadLettered})
	if err != nil || got != 1 {
		t.Fatalf("expected 1 dead lettered, got %v (%v)", got, err)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var cron *CronJobMetrics
	cron.ObserveRun("x", CronResultSuccess, time.Second, time.Now())
	cron.Skipped()
	var outbox *OutboxMetrics
	outbox.Event("x", OutboxRetry)
	outbox.ObserveBatch(time.Second)
	NewOutboxMetrics(nil).Event("x", OutboxRetry)
}

// metricValue returns the counter or gauge value of the series matching labels.
func metricValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if !hasLabels(metric.GetLabel(), labels) {
				continue
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue(), nil
			}
			return metric.GetGauge().GetValue(), nil
		}
		return 0, fmt.Errorf("metric %q has no series %v", name, labels)
	}
	return 0, fmt.Errorf("metric %q not found", name)
}

func hasLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; ok && v == p.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
