package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-request-analytics/internal/core/domain"
	apperrors "github.com/lorrc/service-request-analytics/internal/core/errors"
	"github.com/lorrc/service-request-analytics/internal/core/ports"
	"github.com/lorrc/service-request-analytics/internal/infrastructure/logging"
	"golang.org/x/sync/errgroup"
)

// AnalysisService runs the workload pipeline and serves stored reports.
// reports, cache, broadcaster and metrics are optional.
type AnalysisService struct {
	configs     ports.ConfigProvider
	reports     ports.ReportRepository
	cache       ports.ReportCache
	broadcaster ports.EventBroadcaster
	metrics     ports.MetricsRecorder
	logger      *slog.Logger
	now         func() time.Time
}

var _ ports.AnalysisService = (*AnalysisService)(nil)

// NewAnalysisService creates a new analysis service
func NewAnalysisService(
	configs ports.ConfigProvider,
	reports ports.ReportRepository,
	cache ports.ReportCache,
	broadcaster ports.EventBroadcaster,
	metrics ports.MetricsRecorder,
	logger *slog.Logger,
) *AnalysisService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisService{
		configs:     configs,
		reports:     reports,
		cache:       cache,
		broadcaster: broadcaster,
		metrics:     metrics,
		logger:      logger.With("component", "analysis_service"),
		now:         time.Now,
	}
}

// Run executes one pipeline run over params.Records.
func (s *AnalysisService) Run(ctx context.Context, params ports.RunParams) (*domain.AnalysisReport, error) {
	start := s.now()

	// 1. Resolve and validate configuration
	var cfg domain.AnalysisConfig
	switch {
	case params.Config != nil:
		cfg = params.Config.Clone()
	case s.configs != nil:
		cfg = s.configs.Current().Clone()
	default:
		cfg = domain.DefaultAnalysisConfig()
	}
	if err := cfg.Validate(); err != nil {
		s.recordFailure("config")
		return nil, err
	}
	if params.Records == nil {
		return nil, apperrors.ErrNoRecords
	}
	loc, _ := time.LoadLocation(cfg.Timezone)

	runID := uuid.New()
	ctx = logging.WithRunID(ctx, runID.String())
	logger := s.logger

	// 2. Normalize and aggregate in chunks
	normalizer := NewNormalizer(loc)
	exclusions := domain.NewExclusionReport()
	missing := make(map[string]int)
	workload := NewWorkloadAccumulator(cfg.Granularity.PeriodFunc(), cfg.Granularity.Label)
	chunk := NewWorkloadAccumulator(cfg.Granularity.PeriodFunc(), cfg.Granularity.Label)
	volumes := NewVolumeSeries(cfg.PeakGranularity, cfg.PeakScope)
	insights := NewInsightAccumulator()

	for req := range normalizer.All(TrackMissingFields(params.Records, missing), exclusions) {
		chunk.Add(req)
		volumes.Add(req)
		insights.Add(req)
		if chunk.Len() < cfg.ChunkSize {
			continue
		}
		workload.Merge(chunk)
		chunk = NewWorkloadAccumulator(cfg.Granularity.PeriodFunc(), cfg.Granularity.Label)
		if err := ctx.Err(); err != nil {
			s.recordFailure("aggregate")
			return nil, fmt.Errorf("%w: %w", apperrors.ErrRunCancelled, err)
		}
	}
	workload.Merge(chunk)
	aggregates := workload.Result().Rows()

	s.logExclusions(ctx, logger, exclusions)

	// 3. Classify and detect peaks concurrently
	var (
		classifications []domain.UtilizationClassification
		peaks           []domain.PeakPeriod
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		classifications = NewUtilizationClassifier(cfg).ClassifyAll(aggregates)
		return egCtx.Err()
	})
	eg.Go(func() error {
		peaks = NewPeakDetector(cfg.PeakPercentile).DetectAll(volumes.Series())
		return egCtx.Err()
	})
	if err := eg.Wait(); err != nil {
		s.recordFailure("classify")
		return nil, fmt.Errorf("%w: %w", apperrors.ErrRunCancelled, err)
	}

	// 4. Assemble the report
	report := &domain.AnalysisReport{
		RunID:           runID,
		GeneratedAt:     s.now().UTC(),
		Source:          params.Source,
		Config:          cfg,
		Exclusions:      *exclusions,
		Aggregates:      aggregates,
		Classifications: classifications,
		Peaks:           peaks,
		Boroughs:        insights.BoroughPerformance(cfg),
		Coverage:        insights.Coverage(cfg, missing),
		Rankings:        RankAgencies(aggregates, cfg.MinClosedForRanking),
		TopCategories:   insights.TopCategories(cfg.TopN),
		TopAgencies:     insights.TopAgencies(cfg.TopN),
		Statuses:        insights.Statuses(),
	}
	report.Summary = Summarize(aggregates, classifications, peaks)

	if report.Coverage.LowCoverage {
		logger.WarnContext(ctx, "low date coverage",
			"unique_days", report.Coverage.UniqueDays,
			"min_days", cfg.MinCoverageDays,
		)
	}

	// 5. Persist, cache and announce
	if s.reports != nil {
		if err := s.reports.Save(ctx, report); err != nil {
			s.recordFailure("persist")
			return nil, fmt.Errorf("saving report %s: %w", runID, err)
		}
	}
	if s.cache != nil {
		if err := s.cache.SetLatest(ctx, report); err != nil {
			logger.WarnContext(ctx, "failed to cache latest report", "error", err)
		}
	}
	s.broadcastReport(ctx, logger, report)

	duration := s.now().Sub(start)
	if s.metrics != nil {
		s.metrics.RecordRun(report, duration)
	}

	logger.InfoContext(ctx, "analysis run completed",
		"source", report.Source,
		"records", report.Summary.TotalRecords,
		"departments", report.Summary.Departments,
		"overburdened", report.Summary.LabelCounts[domain.LabelOverburdened],
		"peaks", report.Summary.PeakCount,
		"duration_ms", duration.Milliseconds(),
	)

	return report, nil
}

// GetReport retrieves a stored report by run ID.
func (s *AnalysisService) GetReport(ctx context.Context, runID uuid.UUID) (*domain.AnalysisReport, error) {
	if s.reports == nil {
		return nil, apperrors.ErrReportNotFound
	}
	return s.reports.GetByID(ctx, runID)
}

// LatestReport returns the most recent report, preferring the cache.
func (s *AnalysisService) LatestReport(ctx context.Context) (*domain.AnalysisReport, error) {
	logger := s.logger

	if s.cache != nil {
		report, err := s.cache.GetLatest(ctx)
		if err == nil {
			return report, nil
		}
		if !errors.Is(err, apperrors.ErrReportNotFound) {
			logger.WarnContext(ctx, "report cache unavailable", "error", err)
		}
	}

	if s.reports == nil {
		return nil, apperrors.ErrReportNotFound
	}
	report, err := s.reports.Latest(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetLatest(ctx, report); err != nil {
			logger.WarnContext(ctx, "failed to refill report cache", "error", err)
		}
	}
	return report, nil
}

// ListRuns lists stored runs, newest first.
func (s *AnalysisService) ListRuns(ctx context.Context, limit, offset int) ([]domain.RunSummary, error) {
	if s.reports == nil {
		return []domain.RunSummary{}, nil
	}
	return s.reports.ListRuns(ctx, limit, offset)
}

// ListAggregates lists the stored aggregates of one run.
func (s *AnalysisService) ListAggregates(ctx context.Context, filter domain.AggregateFilter) ([]domain.DepartmentAggregate, error) {
	if s.reports == nil {
		return nil, apperrors.ErrReportNotFound
	}
	return s.reports.ListAggregates(ctx, filter)
}

func (s *AnalysisService) logExclusions(ctx context.Context, logger *slog.Logger, report *domain.ExclusionReport) {
	logger.InfoContext(ctx, "records normalized",
		"total", report.Total,
		"accepted", report.Accepted,
		"excluded", report.Excluded,
	)
	for _, reason := range report.SortedReasons() {
		logger.WarnContext(ctx, "records excluded",
			"reason", string(reason),
			"count", report.Reasons[reason],
		)
	}
}

// broadcastReport announces the run to every client and alerts agency rooms
// about overburdened buckets.
func (s *AnalysisService) broadcastReport(ctx context.Context, logger *slog.Logger, report *domain.AnalysisReport) {
	if s.broadcaster == nil {
		return
	}

	events := []domain.Event{{
		Type:    domain.EventAnalysisCompleted,
		Payload: domain.NewAnalysisCompletedPayload(report),
	}}
	for _, c := range report.Overburdened() {
		events = append(events, domain.Event{
			Type:    domain.EventDepartmentOverburdened,
			Payload: domain.NewOverburdenedPayload(report, c),
			Agency:  c.Agency,
		})
	}

	for _, event := range events {
		if err := s.broadcaster.Broadcast(event); err != nil {
			logger.WarnContext(ctx, "failed to broadcast event",
				"event_type", event.Type,
				"error", err,
			)
		}
	}
}

func (s *AnalysisService) recordFailure(stage string) {
	if s.metrics != nil {
		s.metrics.RecordFailure(stage)
	}
}
