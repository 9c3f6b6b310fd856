package domain

import (
	"cmp"
	"slices"
)

// ExclusionReason explains why a raw record was dropped during normalization.
type ExclusionReason string

const (
	ReasonMissingID              ExclusionReason = "missing_id"
	ReasonMissingCreatedDate     ExclusionReason = "missing_created_date"
	ReasonInvalidCreatedDate     ExclusionReason = "invalid_created_date"
	ReasonMissingAgency          ExclusionReason = "missing_agency"
	ReasonInvalidClosedDate      ExclusionReason = "invalid_closed_date"
	ReasonClosedBeforeCreated    ExclusionReason = "closed_before_created"
	ReasonClosedWithoutTimestamp ExclusionReason = "closed_without_timestamp"
	ReasonDuplicateID            ExclusionReason = "duplicate_id"
)

// ExclusionReport counts records seen, accepted and excluded in one pass.
type ExclusionReport struct {
	Total    int                     `json:"total"`
	Accepted int                     `json:"accepted"`
	Excluded int                     `json:"excluded"`
	Reasons  map[ExclusionReason]int `json:"reasons"`
}

// NewExclusionReport returns an empty report.
func NewExclusionReport() *ExclusionReport {
	return &ExclusionReport{Reasons: make(map[ExclusionReason]int)}
}

// Reset clears all counters.
func (r *ExclusionReport) Reset() {
	r.Total, r.Accepted, r.Excluded = 0, 0, 0
	r.Reasons = make(map[ExclusionReason]int)
}

// Accept records an accepted record.
func (r *ExclusionReport) Accept() {
	r.Total++
	r.Accepted++
}

// Exclude records an excluded record and its reason.
func (r *ExclusionReport) Exclude(reason ExclusionReason) {
	if r.Reasons == nil {
		r.Reasons = make(map[ExclusionReason]int)
	}
	r.Total++
	r.Excluded++
	r.Reasons[reason]++
}

// Merge adds the counters of other into r.
func (r *ExclusionReport) Merge(other ExclusionReport) {
	if r.Reasons == nil {
		r.Reasons = make(map[ExclusionReason]int)
	}
	r.Total += other.Total
	r.Accepted += other.Accepted
	r.Excluded += other.Excluded
	for reason, n := range other.Reasons {
		r.Reasons[reason] += n
	}
}

// SortedReasons returns reasons with a non-zero count in a stable order.
func (r *ExclusionReport) SortedReasons() []ExclusionReason {
	reasons := make([]ExclusionReason, 0, len(r.Reasons))
	for reason, n := range r.Reasons {
		if n > 0 {
			reasons = append(reasons, reason)
		}
	}
	slices.SortFunc(reasons, func(a, b ExclusionReason) int { return cmp.Compare(a, b) })
	return reasons
}
