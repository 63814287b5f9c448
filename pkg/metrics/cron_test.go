package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsRecordsRunsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	job := "subscription-expiry"
	m.JobFinished(job, TriggerSchedule, 250*time.Millisecond, nil)
	m.JobFinished(job, TriggerAdmin, 10*time.Millisecond, errors.New("boom"))
	m.CycleSkipped()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "componentry_cron_job_runs_total", "outcome", JobSucceeded); err != nil || got != 1 {
		t.Fatalf("expected one success, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "componentry_cron_job_runs_total", "trigger", TriggerAdmin); err != nil || got != 1 {
		t.Fatalf("expected one admin run, got %f (%v)", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "componentry_cron_job_duration_seconds", "job", job); err != nil || got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f (%v)", got, err)
	}
	if findMetricFamily(mfs, "componentry_cron_job_last_success_timestamp_seconds") == nil {
		t.Fatal("last success gauge not exported")
	}
	skipped := findMetricFamily(mfs, "componentry_cron_cycles_skipped_total")
	if skipped == nil || skipped.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatal("expected one skipped cycle")
	}

	var nilMetrics *CronJobMetrics
	nilMetrics.JobFinished(job, "", time.Second, nil)
	nilMetrics.CycleSkipped()
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}

func TestPaymentMetricsCountByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaymentMetrics(reg)
	m.OrderCreated("subscription", "razorpay")
	m.Verification("subscription", "verified")
	m.Verification("subscription", "verified")
	m.Webhook("razorpay", "payment.failed", "ok")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "componentry_payment_verifications_total", "outcome", "verified"); err != nil || got != 2 {
		t.Fatalf("expected 2 verifications, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "componentry_payment_webhook_events_total", "event", "payment.failed"); err != nil || got != 1 {
		t.Fatalf("expected 1 webhook event, got %f (%v)", got, err)
	}

	var nilMetrics *PaymentMetrics
	nilMetrics.OrderCreated("x", "y")
}

func TestOutboxMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.Relayed("purchase.completed", "published")
	m.Relayed("purchase.completed", "published")
	m.Relayed("payment.failed", "dead_letter")
	m.Batch(3)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	family := findMetricFamily(mfs, "componentry_outbox_relay_events_total")
	if family == nil {
		t.Fatalf("relay counter not exported")
	}
	var published float64
	for _, metric := range family.GetMetric() {
		if matchesLabel(metric.GetLabel(), "outcome", "published") {
			published += metric.GetCounter().GetValue()
		}
	}
	if published != 2 {
		t.Fatalf("expected 2 published got %v", published)
	}

	var nilMetrics *OutboxMetrics
	nilMetrics.Relayed("x", "y")
	nilMetrics.Batch(1)
}

func TestHTTPMetricsLabelsByRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.Observe("GET", "/api/v1/marketplace/{type}", 200, 20*time.Millisecond)
	m.Observe("GET", "", 404, time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	requests := findMetricFamily(families, "componentry_http_requests_total")
	if requests == nil {
		t.Fatal("missing request counter")
	}
	if len(requests.Metric) != 2 {
		t.Fatalf("expected 2 series, got %d", len(requests.Metric))
	}
	for _, metric := range requests.Metric {
		if matchesLabel(metric.GetLabel(), "status", "404") && !matchesLabel(metric.GetLabel(), "route", "unknown") {
			t.Fatalf("unmatched routes should be labelled unknown")
		}
	}

	var nilMetrics *HTTPMetrics
	nilMetrics.Observe("GET", "/", 200, time.Millisecond)
}
