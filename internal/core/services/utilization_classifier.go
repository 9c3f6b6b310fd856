package services

import (
	"github.com/lorrc/service-request-analytics/internal/core/domain"
)

// UtilizationClassifier labels aggregates by comparing volume with capacity.
// It holds no mutable state; the same config and input always give the same labels.
type UtilizationClassifier struct {
	cfg domain.AnalysisConfig
}

// NewUtilizationClassifier creates a classifier. cfg should already be validated.
func NewUtilizationClassifier(cfg domain.AnalysisConfig) *UtilizationClassifier {
	return &UtilizationClassifier{cfg: cfg.Clone()}
}

// Classify labels one aggregate.
func (c *UtilizationClassifier) Classify(agg domain.DepartmentAggregate) domain.UtilizationClassification {
	out := domain.UtilizationClassification{
		Agency:               agg.Agency,
		Period:               agg.Period,
		PeriodLabel:          agg.PeriodLabel,
		ObservedVolume:       agg.RequestCount,
		Label:                domain.LabelOptimal,
		OverburdenedFloor:    c.cfg.OverburdenedFloor,
		UnderutilizedCeiling: c.cfg.UnderutilizedCeiling,
	}

	capacity, ok := c.cfg.BaselineFor(agg.Agency)
	if !ok {
		return out
	}

	baseline := float64(capacity) * c.cfg.Granularity.CapacityScale()
	ratio := float64(agg.RequestCount) / baseline
	out.Baseline = baseline
	out.BaselineConfigured = true
	out.Ratio = &ratio
	out.Label = c.label(ratio)
	return out
}

// ClassifyAll labels every aggregate, preserving order.
func (c *UtilizationClassifier) ClassifyAll(aggregates []domain.DepartmentAggregate) []domain.UtilizationClassification {
	out := make([]domain.UtilizationClassification, 0, len(aggregates))
	for _, agg := range aggregates {
		out = append(out, c.Classify(agg))
	}
	return out
}

func (c *UtilizationClassifier) label(ratio float64) domain.UtilizationLabel {
	switch {
	case ratio > c.cfg.OverburdenedFloor:
		return domain.LabelOverburdened
	case ratio < c.cfg.UnderutilizedCeiling:
		return domain.LabelUnderutilized
	default:
		return domain.LabelOptimal
	}
}
