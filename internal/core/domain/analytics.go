package domain

import (
	"cmp"
	"slices"
	"time"

	"github.com/google/uuid"
)

// AggregateKey groups requests by department and bucket.
type AggregateKey struct {
	Agency string
	Period time.Time
}

// ResolutionStats summarizes resolution hours over closed requests.
type ResolutionStats struct {
	Mean   float64 `json:"mean_hours"`
	Median float64 `json:"median_hours"`
	P75    float64 `json:"p75_hours"`
	Min    float64 `json:"min_hours"`
	Max    float64 `json:"max_hours"`
}

// DepartmentAggregate is the workload of one agency in one bucket.
type DepartmentAggregate struct {
	Agency        string                `json:"agency"`
	AgencyName    string                `json:"agency_name,omitempty"`
	Period        time.Time             `json:"period"`
	PeriodLabel   string                `json:"period_label"`
	RequestCount  int                   `json:"request_count"`
	ClosedCount   int                   `json:"closed_count"`
	ClosureRate   float64               `json:"closure_rate"`
	Resolution    *ResolutionStats      `json:"resolution,omitempty"`
	BoroughCounts map[Borough]int       `json:"borough_counts"`
	StatusCounts  map[RequestStatus]int `json:"status_counts"`
}

// Key returns the grouping key of the aggregate.
func (a DepartmentAggregate) Key() AggregateKey {
	return AggregateKey{Agency: a.Agency, Period: a.Period}
}

// AggregateSet holds one aggregate per (agency, period).
type AggregateSet map[AggregateKey]DepartmentAggregate

// Rows returns the aggregates ordered by agency, then period.
func (s AggregateSet) Rows() []DepartmentAggregate {
	rows := make([]DepartmentAggregate, 0, len(s))
	for _, agg := range s {
		rows = append(rows, agg)
	}
	slices.SortFunc(rows, func(a, b DepartmentAggregate) int {
		if c := cmp.Compare(a.Agency, b.Agency); c != 0 {
			return c
		}
		return a.Period.Compare(b.Period)
	})
	return rows
}

// TotalRequests sums RequestCount over every group.
func (s AggregateSet) TotalRequests() int {
	total := 0
	for _, agg := range s {
		total += agg.RequestCount
	}
	return total
}

// UtilizationLabel is the outcome of comparing volume with capacity.
type UtilizationLabel string

const (
	LabelOverburdened  UtilizationLabel = "overburdened"
	LabelOptimal       UtilizationLabel = "optimal"
	LabelUnderutilized UtilizationLabel = "underutilized"
)

// UtilizationLabels lists every label in reporting order.
var UtilizationLabels = []UtilizationLabel{LabelOverburdened, LabelOptimal, LabelUnderutilized}

// UtilizationClassification is the label assigned to one DepartmentAggregate.
type UtilizationClassification struct {
	Agency               string           `json:"agency"`
	Period               time.Time        `json:"period"`
	PeriodLabel          string           `json:"period_label"`
	ObservedVolume       int              `json:"observed_volume"`
	Baseline             float64          `json:"baseline"`
	BaselineConfigured   bool             `json:"baseline_configured"`
	Ratio                *float64         `json:"utilization_ratio"`
	Label                UtilizationLabel `json:"label"`
	OverburdenedFloor    float64          `json:"overburdened_floor"`
	UnderutilizedCeiling float64          `json:"underutilized_ceiling"`
}

// VolumePoint is the request count of one bucket.
type VolumePoint struct {
	Bucket time.Time
	Agency string
	Volume int
}

// PeakScope selects how volume series are built for peak detection.
type PeakScope string

const (
	PeakScopeTotal  PeakScope = "total"
	PeakScopeAgency PeakScope = "agency"
)

// PeakPeriod is a bucket whose volume is at or above the percentile cutoff.
type PeakPeriod struct {
	BucketStart    time.Time `json:"bucket_start"`
	Agency         string    `json:"agency,omitempty"`
	Volume         int       `json:"volume"`
	PercentileRank float64   `json:"percentile_rank"`
	Cutoff         float64   `json:"cutoff"`
	Percentile     float64   `json:"percentile"`
	RatioToMean    float64   `json:"ratio_to_mean"`
}

// ClosureBand buckets a borough by closure rate.
type ClosureBand string

const (
	BandHigh   ClosureBand = "HIGH"
	BandMedium ClosureBand = "MEDIUM"
	BandLow    ClosureBand = "LOW"
)

// BoroughPerformance is the closure performance of one borough.
type BoroughPerformance struct {
	Borough         Borough     `json:"borough"`
	RequestCount    int         `json:"request_count"`
	ClosedCount     int         `json:"closed_count"`
	ClosureRate     float64     `json:"closure_rate"`
	RequestsPer1000 float64     `json:"requests_per_1000"`
	Band            ClosureBand `json:"band"`
}

// CoverageReport describes the time span and completeness of the input.
type CoverageReport struct {
	Earliest      *time.Time     `json:"earliest,omitempty"`
	Latest        *time.Time     `json:"latest,omitempty"`
	UniqueDays    int            `json:"unique_days"`
	DailyCounts   map[string]int `json:"daily_counts"`
	MonthlyCounts map[string]int `json:"monthly_counts"`
	LowCoverage   bool           `json:"low_coverage"`
	MissingFields map[string]int `json:"missing_fields"`
}

// AgencyPerformance ranks an agency by mean resolution time.
type AgencyPerformance struct {
	Rank                int     `json:"rank"`
	Agency              string  `json:"agency"`
	AgencyName          string  `json:"agency_name,omitempty"`
	ClosedCount         int     `json:"closed_count"`
	MeanResolutionHours float64 `json:"mean_resolution_hours"`
}

// VolumeShare is one entry of a volume ranking. Share is relative to all
// accepted requests.
type VolumeShare struct {
	Rank  int     `json:"rank"`
	Key   string  `json:"key"`
	Label string  `json:"label,omitempty"`
	Count int     `json:"count"`
	Share float64 `json:"share"`
}

// StatusShare is the number of accepted requests in one status.
type StatusShare struct {
	Status RequestStatus `json:"status"`
	Count  int           `json:"count"`
	Share  float64       `json:"share"`
}

// Summary holds headline counts for a run.
type Summary struct {
	TotalRecords   int                          `json:"total_records"`
	Departments    int                          `json:"departments"`
	LabelCounts    map[UtilizationLabel]int     `json:"label_counts"`
	LabelFractions map[UtilizationLabel]float64 `json:"label_fractions"`
	PeakCount      int                          `json:"peak_count"`
}

// AnalysisReport is the immutable output of one pipeline run.
type AnalysisReport struct {
	RunID           uuid.UUID                   `json:"run_id"`
	GeneratedAt     time.Time                   `json:"generated_at"`
	Source          string                      `json:"source"`
	Config          AnalysisConfig              `json:"config"`
	Exclusions      ExclusionReport             `json:"exclusions"`
	Aggregates      []DepartmentAggregate       `json:"aggregates"`
	Classifications []UtilizationClassification `json:"classifications"`
	Peaks           []PeakPeriod                `json:"peaks"`
	Boroughs        []BoroughPerformance        `json:"boroughs"`
	Coverage        CoverageReport              `json:"coverage"`
	Rankings        []AgencyPerformance         `json:"rankings"`
	TopCategories   []VolumeShare               `json:"top_categories"`
	TopAgencies     []VolumeShare               `json:"top_agencies"`
	Statuses        []StatusShare               `json:"statuses"`
	Summary         Summary                     `json:"summary"`
}

// Overburdened returns the classifications labelled overburdened.
func (r *AnalysisReport) Overburdened() []UtilizationClassification {
	var out []UtilizationClassification
	for _, c := range r.Classifications {
		if c.Label == LabelOverburdened {
			out = append(out, c)
		}
	}
	return out
}

// AggregateFilter narrows the aggregates of a stored report.
type AggregateFilter struct {
	RunID  uuid.UUID
	Agency string
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// RunSummary is the listing view of a stored report.
type RunSummary struct {
	RunID        uuid.UUID `json:"run_id"`
	GeneratedAt  time.Time `json:"generated_at"`
	Source       string    `json:"source"`
	TotalRecords int       `json:"total_records"`
	Excluded     int       `json:"excluded"`
	Departments  int       `json:"departments"`
	Overburdened int       `json:"overburdened"`
}

// RunSummary returns the listing view of the report.
func (r *AnalysisReport) RunSummary() RunSummary {
	return RunSummary{
		RunID:        r.RunID,
		GeneratedAt:  r.GeneratedAt,
		Source:       r.Source,
		TotalRecords: r.Summary.TotalRecords,
		Excluded:     r.Exclusions.Excluded,
		Departments:  r.Summary.Departments,
		Overburdened: r.Summary.LabelCounts[LabelOverburdened],
	}
}
