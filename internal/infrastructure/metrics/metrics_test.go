package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/service-request-analytics/internal/core/domain"
)

func sampleReport() *domain.AnalysisReport {
	return &domain.AnalysisReport{
		GeneratedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Exclusions: domain.ExclusionReport{
			Total:    10,
			Accepted: 8,
			Excluded: 2,
			Reasons: map[domain.ExclusionReason]int{
				domain.ReasonMissingAgency:      1,
				domain.ReasonInvalidCreatedDate: 1,
			},
		},
		Peaks: []domain.PeakPeriod{{}, {}},
		Summary: domain.Summary{
			Departments: 3,
			LabelCounts: map[domain.UtilizationLabel]int{
				domain.LabelOverburdened: 1,
				domain.LabelOptimal:      2,
			},
		},
	}
}

func scrape(t *testing.T, m *Metrics) map[string]*dto.MetricFamily {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(rec.Body)
	require.NoError(t, err)
	return families
}

func valueWithLabel(mf *dto.MetricFamily, name, value string) float64 {
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == name && lp.GetValue() == value {
				if m.Counter != nil {
					return m.Counter.GetValue()
				}
				return m.Gauge.GetValue()
			}
		}
	}
	return -1
}

func TestMetrics_RecordRun(t *testing.T) {
	m := NewMetrics()
	m.RecordRun(sampleReport(), 1500*time.Millisecond)
	m.RecordRun(sampleReport(), 500*time.Millisecond)

	families := scrape(t, m)

	runs := families[namespace+"_analysis_runs_total"]
	require.NotNil(t, runs)
	assert.Equal(t, 2.0, runs.GetMetric()[0].GetCounter().GetValue())

	records := families[namespace+"_analysis_records_total"]
	require.NotNil(t, records)
	assert.Equal(t, 16.0, valueWithLabel(records, "outcome", "accepted"))
	assert.Equal(t, 4.0, valueWithLabel(records, "outcome", "excluded"))

	exclusions := families[namespace+"_analysis_exclusions_total"]
	require.NotNil(t, exclusions)
	assert.Equal(t, 2.0, valueWithLabel(exclusions, "reason", string(domain.ReasonMissingAgency)))

	duration := families[namespace+"_analysis_last_run_duration_seconds"]
	require.NotNil(t, duration)
	assert.Equal(t, 0.5, duration.GetMetric()[0].GetGauge().GetValue())

	labels := families[namespace+"_analysis_last_run_classifications"]
	require.NotNil(t, labels)
	assert.Equal(t, 1.0, valueWithLabel(labels, "label", string(domain.LabelOverburdened)))
	assert.Equal(t, 0.0, valueWithLabel(labels, "label", string(domain.LabelUnderutilized)))
}

func TestMetrics_FailuresAndRequests(t *testing.T) {
	m := NewMetrics()
	m.RecordFailure("config")
	m.RecordFailure("config")
	m.RecordFailure("persist")
	m.RecordRequest(http.MethodPost, "/api/v1/analyses", http.StatusCreated)
	m.RecordRequest(http.MethodGet, "/api/v1/analyses/{runID}", http.StatusNotFound)

	families := scrape(t, m)

	failures := families[namespace+"_analysis_run_failures_total"]
	require.NotNil(t, failures)
	assert.Equal(t, 2.0, valueWithLabel(failures, "stage", "config"))
	assert.Equal(t, 1.0, valueWithLabel(failures, "stage", "persist"))

	requests := families[namespace+"_http_requests_total"]
	require.NotNil(t, requests)
	assert.Len(t, requests.GetMetric(), 2)
	assert.Equal(t, 1.0, valueWithLabel(requests, "route", "/api/v1/analyses/{runID}"))
}

func TestMetrics_EmptyFamiliesOmitted(t *testing.T) {
	families := scrape(t, NewMetrics())

	assert.Contains(t, families, namespace+"_analysis_runs_total")
	assert.NotContains(t, families, namespace+"_analysis_run_failures_total")
	assert.NotContains(t, families, namespace+"_http_requests_total")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRun(sampleReport(), time.Second)
		m.RecordFailure("config")
		m.RecordRequest(http.MethodGet, "/", http.StatusOK)
	})
}
