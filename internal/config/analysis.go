package config

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/lorrc/service-request-analytics/internal/core/domain"
	"github.com/lorrc/service-request-analytics/internal/core/ports"
	"gopkg.in/yaml.v3"
)

// analysisFile is the on-disk layout of the analysis YAML file.
type analysisFile struct {
	Analysis analysisSection `yaml:"analysis"`
}

type analysisSection struct {
	// Granularity is the bucket width used for workload aggregation: day | week | month.
	Granularity string `yaml:"granularity"`

	// Baselines maps agency codes to their expected monthly request capacity.
	Baselines map[string]int `yaml:"baselines"`

	// DefaultBaseline applies to agencies missing from Baselines. 0 disables it.
	DefaultBaseline int `yaml:"default_baseline"`

	OverburdenedFloor    float64 `yaml:"overburdened_floor"`
	UnderutilizedCeiling float64 `yaml:"underutilized_ceiling"`

	Peaks struct {
		Percentile  float64 `yaml:"percentile"`
		Granularity string  `yaml:"granularity"`
		// Scope is total | agency.
		Scope string `yaml:"scope"`
	} `yaml:"peaks"`

	Boroughs struct {
		HighBand   float64 `yaml:"high_band"`
		MediumBand float64 `yaml:"medium_band"`
	} `yaml:"boroughs"`

	ChunkSize           int    `yaml:"chunk_size"`
	MinClosedForRanking int    `yaml:"min_closed_for_ranking"`
	MinCoverageDays     int    `yaml:"min_coverage_days"`
	TopN                int    `yaml:"top_n"`
	Timezone            string `yaml:"timezone"`
}

// LoadAnalysis reads the analysis YAML file at path. Fields missing from the
// file keep their defaults. The result is validated before it is returned.
func LoadAnalysis(path string) (domain.AnalysisConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.AnalysisConfig{}, fmt.Errorf("analysis config: read %q: %w", path, err)
	}
	return ParseAnalysis(data)
}

// ParseAnalysis parses analysis YAML content.
func ParseAnalysis(data []byte) (domain.AnalysisConfig, error) {
	file := defaultAnalysisFile()
	if err := yaml.Unmarshal(data, file); err != nil {
		return domain.AnalysisConfig{}, fmt.Errorf("analysis config: parse yaml: %w", err)
	}

	cfg := file.toDomain()
	if err := cfg.Validate(); err != nil {
		return domain.AnalysisConfig{}, fmt.Errorf("analysis config: %w", err)
	}
	return cfg, nil
}

func defaultAnalysisFile() *analysisFile {
	d := domain.DefaultAnalysisConfig()
	f := &analysisFile{}
	a := &f.Analysis
	a.Granularity = string(d.Granularity)
	a.DefaultBaseline = d.DefaultBaseline
	a.OverburdenedFloor = d.OverburdenedFloor
	a.UnderutilizedCeiling = d.UnderutilizedCeiling
	a.Peaks.Percentile = d.PeakPercentile
	a.Peaks.Granularity = string(d.PeakGranularity)
	a.Peaks.Scope = string(d.PeakScope)
	a.Boroughs.HighBand = d.BoroughHighBand
	a.Boroughs.MediumBand = d.BoroughMediumBand
	a.ChunkSize = d.ChunkSize
	a.MinClosedForRanking = d.MinClosedForRanking
	a.MinCoverageDays = d.MinCoverageDays
	a.TopN = d.TopN
	a.Timezone = d.Timezone
	return f
}

func (f *analysisFile) toDomain() domain.AnalysisConfig {
	a := f.Analysis
	cfg := domain.AnalysisConfig{
		Granularity:          domain.Granularity(a.Granularity),
		Baselines:            a.Baselines,
		DefaultBaseline:      a.DefaultBaseline,
		OverburdenedFloor:    a.OverburdenedFloor,
		UnderutilizedCeiling: a.UnderutilizedCeiling,
		PeakPercentile:       a.Peaks.Percentile,
		PeakGranularity:      domain.Granularity(a.Peaks.Granularity),
		PeakScope:            domain.PeakScope(a.Peaks.Scope),
		ChunkSize:            a.ChunkSize,
		MinClosedForRanking:  a.MinClosedForRanking,
		MinCoverageDays:      a.MinCoverageDays,
		BoroughHighBand:      a.Boroughs.HighBand,
		BoroughMediumBand:    a.Boroughs.MediumBand,
		TopN:                 a.TopN,
		Timezone:             a.Timezone,
	}
	return cfg.Clone()
}

// AnalysisStore holds the active analysis configuration. Readers get a copy
// of the snapshot current at the time of the call.
type AnalysisStore struct {
	current atomic.Pointer[domain.AnalysisConfig]
}

var _ ports.ConfigProvider = (*AnalysisStore)(nil)

// NewAnalysisStore creates a store holding cfg.
func NewAnalysisStore(cfg domain.AnalysisConfig) *AnalysisStore {
	s := &AnalysisStore{}
	s.Set(cfg)
	return s
}

// Current returns the active configuration.
func (s *AnalysisStore) Current() domain.AnalysisConfig {
	return s.current.Load().Clone()
}

// Set replaces the active configuration.
func (s *AnalysisStore) Set(cfg domain.AnalysisConfig) {
	snapshot := cfg.Clone()
	s.current.Store(&snapshot)
}

// LoadAnalysisStore builds a store from path, or from defaults when path is empty.
func LoadAnalysisStore(path string) (*AnalysisStore, error) {
	if path == "" {
		return NewAnalysisStore(domain.DefaultAnalysisConfig()), nil
	}
	cfg, err := LoadAnalysis(path)
	if err != nil {
		return nil, err
	}
	return NewAnalysisStore(cfg), nil
}
