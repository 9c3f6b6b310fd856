package domain

import "strings"

// Default analysis settings.
const (
	DefaultOverburdenedFloor    = 1.0
	DefaultUnderutilizedCeiling = 0.5
	DefaultPeakPercentile       = 90.0
	DefaultChunkSize            = 10000
	DefaultMinClosedForRanking  = 10
	DefaultMinCoverageDays      = 30
	DefaultBoroughHighBand      = 0.55
	DefaultBoroughMediumBand    = 0.45
	DefaultTopN                 = 10
	DefaultTimezone             = "UTC"
)

// AnalysisConfig parameterizes a pipeline run. Values are copied into each
// run and never mutated afterwards.
type AnalysisConfig struct {
	Granularity          Granularity    `json:"granularity" validate:"oneof=day week month"`
	Baselines            map[string]int `json:"baselines" validate:"dive,keys,required,endkeys,gt=0"`
	DefaultBaseline      int            `json:"default_baseline" validate:"gte=0"`
	OverburdenedFloor    float64        `json:"overburdened_floor" validate:"gt=0"`
	UnderutilizedCeiling float64        `json:"underutilized_ceiling" validate:"gte=0"`
	PeakPercentile       float64        `json:"peak_percentile" validate:"gte=0,lte=100"`
	PeakGranularity      Granularity    `json:"peak_granularity" validate:"oneof=day week month"`
	PeakScope            PeakScope      `json:"peak_scope" validate:"oneof=total agency"`
	ChunkSize            int            `json:"chunk_size" validate:"gt=0"`
	MinClosedForRanking  int            `json:"min_closed_for_ranking" validate:"gte=0"`
	MinCoverageDays      int            `json:"min_coverage_days" validate:"gte=0"`
	BoroughHighBand      float64        `json:"borough_high_band" validate:"gte=0,lte=1"`
	BoroughMediumBand    float64        `json:"borough_medium_band" validate:"gte=0,lte=1"`
	TopN                 int            `json:"top_n" validate:"gt=0"`
	Timezone             string         `json:"timezone" validate:"required"`
}

// DefaultAnalysisConfig returns the settings used when nothing is configured.
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		Granularity:          GranularityMonth,
		Baselines:            map[string]int{},
		OverburdenedFloor:    DefaultOverburdenedFloor,
		UnderutilizedCeiling: DefaultUnderutilizedCeiling,
		PeakPercentile:       DefaultPeakPercentile,
		PeakGranularity:      GranularityDay,
		PeakScope:            PeakScopeTotal,
		ChunkSize:            DefaultChunkSize,
		MinClosedForRanking:  DefaultMinClosedForRanking,
		MinCoverageDays:      DefaultMinCoverageDays,
		BoroughHighBand:      DefaultBoroughHighBand,
		BoroughMediumBand:    DefaultBoroughMediumBand,
		TopN:                 DefaultTopN,
		Timezone:             DefaultTimezone,
	}
}

// Clone returns a deep copy with agency codes in canonical upper case.
func (c AnalysisConfig) Clone() AnalysisConfig {
	baselines := make(map[string]int, len(c.Baselines))
	for agency, capacity := range c.Baselines {
		baselines[strings.ToUpper(strings.TrimSpace(agency))] = capacity
	}
	c.Baselines = baselines
	return c
}

// BaselineFor returns the monthly capacity of agency and whether one applies.
func (c AnalysisConfig) BaselineFor(agency string) (int, bool) {
	if capacity, ok := c.Baselines[agency]; ok {
		return capacity, true
	}
	if c.DefaultBaseline > 0 {
		return c.DefaultBaseline, true
	}
	return 0, false
}
