package services

import (
	"cmp"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/lorrc/service-request-analytics/internal/core/domain"
)

// TrackedFields are the raw fields whose absence is counted for coverage.
var TrackedFields = []string{
	FieldID,
	FieldCreatedDate,
	FieldClosedDate,
	FieldAgency,
	FieldComplaintType,
	FieldBorough,
	FieldStatus,
}

// TrackMissingFields passes src through unchanged while counting, per tracked
// field, the records where it is absent or blank. counts is reset on each
// iteration.
func TrackMissingFields(src iter.Seq[domain.RawRecord], counts map[string]int) iter.Seq[domain.RawRecord] {
	return func(yield func(domain.RawRecord) bool) {
		clear(counts)
		for _, f := range TrackedFields {
			counts[f] = 0
		}
		for raw := range src {
			for _, f := range TrackedFields {
				keys := []string{f}
				if f == FieldID {
					keys = append(keys, FieldUniqueKey)
				}
				if _, ok := lookup(raw, keys...); !ok {
					counts[f]++
				}
			}
			if !yield(raw) {
				return
			}
		}
	}
}

type boroughTally struct {
	requests int
	closed   int
}

// InsightAccumulator collects borough, volume mix and time coverage over
// accepted requests.
type InsightAccumulator struct {
	boroughs    map[domain.Borough]*boroughTally
	categories  map[string]int
	agencies    map[string]int
	agencyNames map[string]string
	statuses    map[domain.RequestStatus]int
	daily       map[string]int
	monthly     map[string]int
	earliest    time.Time
	latest      time.Time
	total       int
}

// NewInsightAccumulator creates an empty accumulator.
func NewInsightAccumulator() *InsightAccumulator {
	return &InsightAccumulator{
		boroughs:    make(map[domain.Borough]*boroughTally),
		categories:  make(map[string]int),
		agencies:    make(map[string]int),
		agencyNames: make(map[string]string),
		statuses:    make(map[domain.RequestStatus]int),
		daily:       make(map[string]int),
		monthly:     make(map[string]int),
	}
}

// Add records one request.
func (a *InsightAccumulator) Add(req domain.ServiceRequest) {
	t, ok := a.boroughs[req.Borough]
	if !ok {
		t = &boroughTally{}
		a.boroughs[req.Borough] = t
	}
	t.requests++
	if req.IsClosed() {
		t.closed++
	}

	a.categories[req.Category]++
	a.agencies[req.Agency]++
	if a.agencyNames[req.Agency] == "" {
		a.agencyNames[req.Agency] = req.AgencyName
	}
	a.statuses[req.Status]++

	a.daily[domain.GranularityDay.Label(req.CreatedAt)]++
	a.monthly[domain.GranularityMonth.Label(req.CreatedAt)]++

	if a.total == 0 || req.CreatedAt.Before(a.earliest) {
		a.earliest = req.CreatedAt
	}
	if a.total == 0 || req.CreatedAt.After(a.latest) {
		a.latest = req.CreatedAt
	}
	a.total++
}

// BoroughPerformance returns per-borough closure rates with their bands,
// ordered by descending closure rate.
func (a *InsightAccumulator) BoroughPerformance(cfg domain.AnalysisConfig) []domain.BoroughPerformance {
	out := make([]domain.BoroughPerformance, 0, len(a.boroughs))
	for b, t := range a.boroughs {
		rate := fraction(t.closed, t.requests)
		out = append(out, domain.BoroughPerformance{
			Borough:         b,
			RequestCount:    t.requests,
			ClosedCount:     t.closed,
			ClosureRate:     rate,
			RequestsPer1000: 1000 * fraction(t.requests, a.total),
			Band:            closureBand(rate, cfg),
		})
	}
	slices.SortFunc(out, func(x, y domain.BoroughPerformance) int {
		if c := cmp.Compare(y.ClosureRate, x.ClosureRate); c != 0 {
			return c
		}
		return cmp.Compare(x.Borough, y.Borough)
	})
	return out
}

// Coverage reports the time span of the accepted requests.
func (a *InsightAccumulator) Coverage(cfg domain.AnalysisConfig, missing map[string]int) domain.CoverageReport {
	report := domain.CoverageReport{
		UniqueDays:    len(a.daily),
		DailyCounts:   make(map[string]int, len(a.daily)),
		MonthlyCounts: make(map[string]int, len(a.monthly)),
		LowCoverage:   len(a.daily) < cfg.MinCoverageDays,
		MissingFields: make(map[string]int, len(missing)),
	}
	for k, v := range a.daily {
		report.DailyCounts[k] = v
	}
	for k, v := range a.monthly {
		report.MonthlyCounts[k] = v
	}
	for k, v := range missing {
		report.MissingFields[k] = v
	}
	if a.total > 0 {
		earliest, latest := a.earliest, a.latest
		report.Earliest = &earliest
		report.Latest = &latest
	}
	return report
}

// TopCategories returns the n most frequent complaint types.
func (a *InsightAccumulator) TopCategories(n int) []domain.VolumeShare {
	return topShares(a.categories, nil, a.total, n)
}

// TopAgencies returns the n agencies with the most requests.
func (a *InsightAccumulator) TopAgencies(n int) []domain.VolumeShare {
	return topShares(a.agencies, a.agencyNames, a.total, n)
}

// Statuses returns the request count of every status in reporting order.
func (a *InsightAccumulator) Statuses() []domain.StatusShare {
	out := make([]domain.StatusShare, 0, len(domain.RequestStatuses))
	for _, status := range domain.RequestStatuses {
		out = append(out, domain.StatusShare{
			Status: status,
			Count:  a.statuses[status],
			Share:  fraction(a.statuses[status], a.total),
		})
	}
	return out
}

// topShares ranks counts by descending count, ties broken by key.
func topShares(counts map[string]int, labels map[string]string, total, n int) []domain.VolumeShare {
	out := make([]domain.VolumeShare, 0, len(counts))
	for key, count := range counts {
		out = append(out, domain.VolumeShare{
			Key:   key,
			Label: labels[key],
			Count: count,
			Share: fraction(count, total),
		})
	}
	slices.SortFunc(out, func(x, y domain.VolumeShare) int {
		if c := cmp.Compare(y.Count, x.Count); c != 0 {
			return c
		}
		return strings.Compare(x.Key, y.Key)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func closureBand(rate float64, cfg domain.AnalysisConfig) domain.ClosureBand {
	switch {
	case rate > cfg.BoroughHighBand:
		return domain.BandHigh
	case rate > cfg.BoroughMediumBand:
		return domain.BandMedium
	default:
		return domain.BandLow
	}
}

// RankAgencies orders agencies by mean resolution hours over all periods,
// fastest first. Agencies with fewer than minClosed closed requests are left out.
func RankAgencies(aggregates []domain.DepartmentAggregate, minClosed int) []domain.AgencyPerformance {
	type totals struct {
		name   string
		closed int
		hours  float64
	}
	byAgency := make(map[string]*totals)
	for _, agg := range aggregates {
		t, ok := byAgency[agg.Agency]
		if !ok {
			t = &totals{}
			byAgency[agg.Agency] = t
		}
		if t.name == "" {
			t.name = agg.AgencyName
		}
		if agg.Resolution != nil {
			t.closed += agg.ClosedCount
			t.hours += agg.Resolution.Mean * float64(agg.ClosedCount)
		}
	}

	out := make([]domain.AgencyPerformance, 0, len(byAgency))
	for agency, t := range byAgency {
		if t.closed == 0 || t.closed < minClosed {
			continue
		}
		out = append(out, domain.AgencyPerformance{
			Agency:              agency,
			AgencyName:          t.name,
			ClosedCount:         t.closed,
			MeanResolutionHours: t.hours / float64(t.closed),
		})
	}
	slices.SortFunc(out, func(a, b domain.AgencyPerformance) int {
		if c := cmp.Compare(a.MeanResolutionHours, b.MeanResolutionHours); c != 0 {
			return c
		}
		return strings.Compare(a.Agency, b.Agency)
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// Summarize computes headline counts for a run.
func Summarize(aggregates []domain.DepartmentAggregate, classifications []domain.UtilizationClassification, peaks []domain.PeakPeriod) domain.Summary {
	summary := domain.Summary{
		LabelCounts:    make(map[domain.UtilizationLabel]int, len(domain.UtilizationLabels)),
		LabelFractions: make(map[domain.UtilizationLabel]float64, len(domain.UtilizationLabels)),
		PeakCount:      len(peaks),
	}

	agencies := make(map[string]struct{})
	for _, agg := range aggregates {
		summary.TotalRecords += agg.RequestCount
		agencies[agg.Agency] = struct{}{}
	}
	summary.Departments = len(agencies)

	for _, label := range domain.UtilizationLabels {
		summary.LabelCounts[label] = 0
	}
	for _, c := range classifications {
		summary.LabelCounts[c.Label]++
	}
	for _, label := range domain.UtilizationLabels {
		summary.LabelFractions[label] = fraction(summary.LabelCounts[label], len(classifications))
	}
	return summary
}
