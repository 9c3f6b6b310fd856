package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-request-analytics/internal/core/domain"
	"github.com/lorrc/service-request-analytics/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

// MockReportRepository is a mock implementation of ports.ReportRepository
type MockReportRepository struct {
	mock.Mock
}

var _ ports.ReportRepository = (*MockReportRepository)(nil)

func NewMockReportRepository() *MockReportRepository {
	return &MockReportRepository{}
}

func (m *MockReportRepository) Save(ctx context.Context, report *domain.AnalysisReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockReportRepository) GetByID(ctx context.Context, runID uuid.UUID) (*domain.AnalysisReport, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AnalysisReport), args.Error(1)
}

func (m *MockReportRepository) Latest(ctx context.Context) (*domain.AnalysisReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AnalysisReport), args.Error(1)
}

func (m *MockReportRepository) ListRuns(ctx context.Context, limit, offset int) ([]domain.RunSummary, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RunSummary), args.Error(1)
}

func (m *MockReportRepository) ListAggregates(ctx context.Context, filter domain.AggregateFilter) ([]domain.DepartmentAggregate, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DepartmentAggregate), args.Error(1)
}

// MockReportCache is a mock implementation of ports.ReportCache
type MockReportCache struct {
	mock.Mock
}

var _ ports.ReportCache = (*MockReportCache)(nil)

func NewMockReportCache() *MockReportCache {
	return &MockReportCache{}
}

func (m *MockReportCache) GetLatest(ctx context.Context) (*domain.AnalysisReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AnalysisReport), args.Error(1)
}

func (m *MockReportCache) SetLatest(ctx context.Context, report *domain.AnalysisReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

// MockEventBroadcaster is a mock implementation of ports.EventBroadcaster
type MockEventBroadcaster struct {
	mock.Mock
}

var _ ports.EventBroadcaster = (*MockEventBroadcaster)(nil)

func NewMockEventBroadcaster() *MockEventBroadcaster {
	return &MockEventBroadcaster{}
}

func (m *MockEventBroadcaster) Broadcast(event domain.Event) error {
	args := m.Called(event)
	return args.Error(0)
}

// MockConfigProvider is a mock implementation of ports.ConfigProvider
type MockConfigProvider struct {
	mock.Mock
}

var _ ports.ConfigProvider = (*MockConfigProvider)(nil)

func NewMockConfigProvider() *MockConfigProvider {
	return &MockConfigProvider{}
}

func (m *MockConfigProvider) Current() domain.AnalysisConfig {
	args := m.Called()
	return args.Get(0).(domain.AnalysisConfig)
}

// MockMetricsRecorder is a mock implementation of ports.MetricsRecorder
type MockMetricsRecorder struct {
	mock.Mock
}

var _ ports.MetricsRecorder = (*MockMetricsRecorder)(nil)

func NewMockMetricsRecorder() *MockMetricsRecorder {
	return &MockMetricsRecorder{}
}

func (m *MockMetricsRecorder) RecordRun(report *domain.AnalysisReport, duration time.Duration) {
	m.Called(report, duration)
}

func (m *MockMetricsRecorder) RecordFailure(stage string) {
	m.Called(stage)
}

// MockRecordSource is a mock implementation of ports.RecordSource
type MockRecordSource struct {
	mock.Mock
}

var _ ports.RecordSource = (*MockRecordSource)(nil)

func NewMockRecordSource() *MockRecordSource {
	return &MockRecordSource{}
}

func (m *MockRecordSource) Fetch(ctx context.Context, params ports.FetchParams) ([]domain.RawRecord, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RawRecord), args.Error(1)
}

func (m *MockRecordSource) Name() string {
	args := m.Called()
	return args.String(0)
}

// MockAnalysisService is a mock implementation of ports.AnalysisService
type MockAnalysisService struct {
	mock.Mock
}

var _ ports.AnalysisService = (*MockAnalysisService)(nil)

func NewMockAnalysisService() *MockAnalysisService {
	return &MockAnalysisService{}
}

func (m *MockAnalysisService) Run(ctx context.Context, params ports.RunParams) (*domain.AnalysisReport, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AnalysisReport), args.Error(1)
}

func (m *MockAnalysisService) GetReport(ctx context.Context, runID uuid.UUID) (*domain.AnalysisReport, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AnalysisReport), args.Error(1)
}

func (m *MockAnalysisService) LatestReport(ctx context.Context) (*domain.AnalysisReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AnalysisReport), args.Error(1)
}

func (m *MockAnalysisService) ListRuns(ctx context.Context, limit, offset int) ([]domain.RunSummary, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RunSummary), args.Error(1)
}

func (m *MockAnalysisService) ListAggregates(ctx context.Context, filter domain.AggregateFilter) ([]domain.DepartmentAggregate, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DepartmentAggregate), args.Error(1)
}
