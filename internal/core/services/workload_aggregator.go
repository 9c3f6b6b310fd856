package services

import (
	"iter"
	"time"

	"github.com/lorrc/service-request-analytics/internal/core/domain"
)

type groupState struct {
	agencyName string
	requests   int
	closed     int
	hours      []float64
	boroughs   map[domain.Borough]int
	statuses   map[domain.RequestStatus]int
}

func newGroupState() *groupState {
	return &groupState{
		boroughs: make(map[domain.Borough]int),
		statuses: make(map[domain.RequestStatus]int),
	}
}

// WorkloadAccumulator folds requests into per (agency, period) groups.
// Accumulators built over disjoint chunks can be combined with Merge.
type WorkloadAccumulator struct {
	period   domain.PeriodFunc
	label    func(time.Time) string
	groups   map[domain.AggregateKey]*groupState
	consumed int
}

// NewWorkloadAccumulator creates an accumulator bucketing by period. label
// formats bucket starts; nil falls back to the ISO date.
func NewWorkloadAccumulator(period domain.PeriodFunc, label func(time.Time) string) *WorkloadAccumulator {
	if label == nil {
		label = func(t time.Time) string { return t.Format("2006-01-02") }
	}
	return &WorkloadAccumulator{
		period: period,
		label:  label,
		groups: make(map[domain.AggregateKey]*groupState),
	}
}

// Add folds one request into its group.
func (a *WorkloadAccumulator) Add(req domain.ServiceRequest) {
	key := domain.AggregateKey{Agency: req.Agency, Period: a.period(req.CreatedAt)}
	g, ok := a.groups[key]
	if !ok {
		g = newGroupState()
		a.groups[key] = g
	}
	if g.agencyName == "" {
		g.agencyName = req.AgencyName
	}
	g.requests++
	g.boroughs[req.Borough]++
	g.statuses[req.Status]++
	if hours, ok := req.ResolutionHours(); ok {
		g.closed++
		g.hours = append(g.hours, hours)
	}
	a.consumed++
}

// Len returns the number of requests folded in so far.
func (a *WorkloadAccumulator) Len() int {
	return a.consumed
}

// Merge adds every group of other into a. other must use the same period function.
func (a *WorkloadAccumulator) Merge(other *WorkloadAccumulator) {
	for key, og := range other.groups {
		g, ok := a.groups[key]
		if !ok {
			g = newGroupState()
			a.groups[key] = g
		}
		if g.agencyName == "" {
			g.agencyName = og.agencyName
		}
		g.requests += og.requests
		g.closed += og.closed
		g.hours = append(g.hours, og.hours...)
		for b, n := range og.boroughs {
			g.boroughs[b] += n
		}
		for s, n := range og.statuses {
			g.statuses[s] += n
		}
	}
	a.consumed += other.consumed
}

// Result snapshots the accumulated groups as immutable aggregates.
func (a *WorkloadAccumulator) Result() domain.AggregateSet {
	set := make(domain.AggregateSet, len(a.groups))
	for key, g := range a.groups {
		agg := domain.DepartmentAggregate{
			Agency:        key.Agency,
			AgencyName:    g.agencyName,
			Period:        key.Period,
			PeriodLabel:   a.label(key.Period),
			RequestCount:  g.requests,
			ClosedCount:   g.closed,
			ClosureRate:   fraction(g.closed, g.requests),
			BoroughCounts: make(map[domain.Borough]int, len(g.boroughs)),
			StatusCounts:  make(map[domain.RequestStatus]int, len(g.statuses)),
		}
		for b, n := range g.boroughs {
			agg.BoroughCounts[b] = n
		}
		for s, n := range g.statuses {
			agg.StatusCounts[s] = n
		}
		if len(g.hours) > 0 {
			m, median, p75, lo, hi := resolutionStats(g.hours)
			agg.Resolution = &domain.ResolutionStats{Mean: m, Median: median, P75: p75, Min: lo, Max: hi}
		}
		set[key] = agg
	}
	return set
}

// Aggregate groups requests by agency and the bucket periodFn assigns them.
func Aggregate(requests iter.Seq[domain.ServiceRequest], periodFn domain.PeriodFunc) domain.AggregateSet {
	acc := NewWorkloadAccumulator(periodFn, nil)
	for req := range requests {
		acc.Add(req)
	}
	return acc.Result()
}

// AggregateByGranularity is Aggregate with labels matching g.
func AggregateByGranularity(requests iter.Seq[domain.ServiceRequest], g domain.Granularity) domain.AggregateSet {
	acc := NewWorkloadAccumulator(g.PeriodFunc(), g.Label)
	for req := range requests {
		acc.Add(req)
	}
	return acc.Result()
}
