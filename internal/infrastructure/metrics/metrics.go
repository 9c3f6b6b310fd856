package metrics

import (
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/lorrc/service-request-analytics/internal/core/domain"
	"github.com/lorrc/service-request-analytics/internal/core/ports"
)

const namespace = "service_request_analytics"

// Metrics provides in-memory counters for analysis runs and HTTP traffic,
// exposed in the Prometheus text format.
type Metrics struct {
	mu sync.Mutex

	runs           int64
	failures       map[string]int64 // stage -> count
	records        map[string]int64 // accepted | excluded
	exclusions     map[string]int64 // reason -> count
	requests       map[requestKey]int64
	lastDuration   float64
	lastRunAt      float64
	lastLabels     map[string]float64
	lastPeakCount  float64
	lastDepartment float64
}

type requestKey struct {
	method string
	route  string
	status string
}

var _ ports.MetricsRecorder = (*Metrics)(nil)

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		failures:   make(map[string]int64),
		records:    make(map[string]int64),
		exclusions: make(map[string]int64),
		requests:   make(map[requestKey]int64),
		lastLabels: make(map[string]float64),
	}
}

// RecordRun accumulates the outcome of a completed analysis run.
func (m *Metrics) RecordRun(report *domain.AnalysisReport, duration time.Duration) {
	if m == nil || report == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs++
	m.records["accepted"] += int64(report.Exclusions.Accepted)
	m.records["excluded"] += int64(report.Exclusions.Excluded)
	for reason, n := range report.Exclusions.Reasons {
		m.exclusions[string(reason)] += int64(n)
	}

	m.lastDuration = duration.Seconds()
	m.lastRunAt = float64(report.GeneratedAt.Unix())
	m.lastPeakCount = float64(len(report.Peaks))
	m.lastDepartment = float64(report.Summary.Departments)
	for _, label := range domain.UtilizationLabels {
		m.lastLabels[string(label)] = float64(report.Summary.LabelCounts[label])
	}
}

// RecordFailure increments the failure counter for a pipeline stage.
func (m *Metrics) RecordFailure(stage string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[stage]++
}

// RecordRequest increments the HTTP request counter.
func (m *Metrics) RecordRequest(method, route string, status int) {
	if m == nil {
		return
	}
	key := requestKey{method: method, route: route, status: strconv.Itoa(status)}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[key]++
}

// Gather snapshots all metrics as Prometheus metric families, sorted by name.
func (m *Metrics) Gather() []*dto.MetricFamily {
	m.mu.Lock()
	defer m.mu.Unlock()

	families := []*dto.MetricFamily{
		counterFamily("analysis_runs_total", "Completed analysis runs.",
			[]*dto.Metric{counterMetric(float64(m.runs))}),
		counterFamily("analysis_run_failures_total", "Failed analysis runs by pipeline stage.",
			labelledCounters("stage", m.failures)),
		counterFamily("analysis_records_total", "Raw records processed by outcome.",
			labelledCounters("outcome", m.records)),
		counterFamily("analysis_exclusions_total", "Excluded records by reason.",
			labelledCounters("reason", m.exclusions)),
		counterFamily("http_requests_total", "HTTP requests by method, route and status.",
			m.requestCounters()),
		gaugeFamily("analysis_last_run_duration_seconds", "Duration of the most recent run.",
			[]*dto.Metric{gaugeMetric(m.lastDuration)}),
		gaugeFamily("analysis_last_run_timestamp_seconds", "Unix time the most recent run was generated.",
			[]*dto.Metric{gaugeMetric(m.lastRunAt)}),
		gaugeFamily("analysis_last_run_departments", "Departments in the most recent run.",
			[]*dto.Metric{gaugeMetric(m.lastDepartment)}),
		gaugeFamily("analysis_last_run_peak_periods", "Peak periods flagged in the most recent run.",
			[]*dto.Metric{gaugeMetric(m.lastPeakCount)}),
		gaugeFamily("analysis_last_run_classifications", "Classifications by label in the most recent run.",
			labelledGauges("label", m.lastLabels)),
	}

	// The text format rejects families without samples.
	out := families[:0]
	for _, mf := range families {
		if len(mf.Metric) > 0 {
			out = append(out, mf)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].GetName() < out[j].GetName()
	})
	return out
}

// Handler serves the metrics in the Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		w.WriteHeader(http.StatusOK)
		for _, mf := range m.Gather() {
			if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
				return
			}
		}
	})
}

func (m *Metrics) requestCounters() []*dto.Metric {
	keys := make([]requestKey, 0, len(m.requests))
	for k := range m.requests {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.route != b.route {
			return a.route < b.route
		}
		if a.method != b.method {
			return a.method < b.method
		}
		return a.status < b.status
	})

	out := make([]*dto.Metric, 0, len(keys))
	for _, k := range keys {
		metric := counterMetric(float64(m.requests[k]))
		metric.Label = []*dto.LabelPair{
			labelPair("method", k.method),
			labelPair("route", k.route),
			labelPair("status", k.status),
		}
		out = append(out, metric)
	}
	return out
}

func counterFamily(name, help string, metrics []*dto.Metric) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   ptr(namespace + "_" + name),
		Help:   ptr(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: metrics,
	}
}

func gaugeFamily(name, help string, metrics []*dto.Metric) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   ptr(namespace + "_" + name),
		Help:   ptr(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: metrics,
	}
}

func counterMetric(v float64) *dto.Metric {
	return &dto.Metric{Counter: &dto.Counter{Value: ptr(v)}}
}

func gaugeMetric(v float64) *dto.Metric {
	return &dto.Metric{Gauge: &dto.Gauge{Value: ptr(v)}}
}

func labelledCounters(label string, values map[string]int64) []*dto.Metric {
	out := make([]*dto.Metric, 0, len(values))
	for _, k := range sortedKeys(values) {
		metric := counterMetric(float64(values[k]))
		metric.Label = []*dto.LabelPair{labelPair(label, k)}
		out = append(out, metric)
	}
	return out
}

func labelledGauges(label string, values map[string]float64) []*dto.Metric {
	out := make([]*dto.Metric, 0, len(values))
	for _, k := range sortedKeys(values) {
		metric := gaugeMetric(values[k])
		metric.Label = []*dto.LabelPair{labelPair(label, k)}
		out = append(out, metric)
	}
	return out
}

func labelPair(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: ptr(name), Value: ptr(value)}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ptr returns a pointer to v.
func ptr[T any](v T) *T { return &v }
