package domain

import (
	"time"
)

// AnalysisCompletedPayload announces a finished run to dashboard clients.
type AnalysisCompletedPayload struct {
	RunID        string                   `json:"runId"`
	GeneratedAt  string                   `json:"generatedAt"`
	Source       string                   `json:"source"`
	TotalRecords int                      `json:"totalRecords"`
	Excluded     int                      `json:"excluded"`
	Departments  int                      `json:"departments"`
	LabelCounts  map[UtilizationLabel]int `json:"labelCounts"`
	PeakCount    int                      `json:"peakCount"`
}

// OverburdenedPayload describes one overburdened department bucket.
type OverburdenedPayload struct {
	RunID    string  `json:"runId"`
	Agency   string  `json:"agency"`
	Period   string  `json:"period"`
	Volume   int     `json:"volume"`
	Baseline float64 `json:"baseline"`
	Ratio    float64 `json:"ratio"`
}

// NewAnalysisCompletedPayload builds the completion payload from a report.
func NewAnalysisCompletedPayload(report *AnalysisReport) AnalysisCompletedPayload {
	return AnalysisCompletedPayload{
		RunID:        report.RunID.String(),
		GeneratedAt:  report.GeneratedAt.UTC().Format(time.RFC3339),
		Source:       report.Source,
		TotalRecords: report.Summary.TotalRecords,
		Excluded:     report.Exclusions.Excluded,
		Departments:  report.Summary.Departments,
		LabelCounts:  report.Summary.LabelCounts,
		PeakCount:    report.Summary.PeakCount,
	}
}

// NewOverburdenedPayload builds the alert payload for a classification.
func NewOverburdenedPayload(report *AnalysisReport, c UtilizationClassification) OverburdenedPayload {
	var ratio float64
	if c.Ratio != nil {
		ratio = *c.Ratio
	}
	return OverburdenedPayload{
		RunID:    report.RunID.String(),
		Agency:   c.Agency,
		Period:   c.PeriodLabel,
		Volume:   c.ObservedVolume,
		Baseline: c.Baseline,
		Ratio:    ratio,
	}
}
