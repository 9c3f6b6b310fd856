package ports

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-request-analytics/internal/core/domain"
)

// RunParams defines the input for one analysis run.
type RunParams struct {
	Source  string
	Records iter.Seq[domain.RawRecord]
	// Config overrides the current analysis configuration when set.
	Config *domain.AnalysisConfig
}

// FetchParams defines the window requested from a record source.
type FetchParams struct {
	From   time.Time
	To     time.Time
	Agency string
	Limit  int
}

// AnalysisService defines the core business operations of the pipeline.
type AnalysisService interface {
	Run(ctx context.Context, params RunParams) (*domain.AnalysisReport, error)
	GetReport(ctx context.Context, runID uuid.UUID) (*domain.AnalysisReport, error)
	LatestReport(ctx context.Context) (*domain.AnalysisReport, error)
	ListRuns(ctx context.Context, limit, offset int) ([]domain.RunSummary, error)
	ListAggregates(ctx context.Context, filter domain.AggregateFilter) ([]domain.DepartmentAggregate, error)
}

// RecordSource defines the port for pulling raw records from an upstream dataset.
type RecordSource interface {
	Fetch(ctx context.Context, params FetchParams) ([]domain.RawRecord, error)
	Name() string
}

// ConfigProvider defines the port for reading the active analysis configuration.
type ConfigProvider interface {
	Current() domain.AnalysisConfig
}

// EventBroadcaster defines the port for pushing real-time events to clients.
type EventBroadcaster interface {
	Broadcast(event domain.Event) error
}

// MetricsRecorder defines the port for recording pipeline metrics.
type MetricsRecorder interface {
	RecordRun(report *domain.AnalysisReport, duration time.Duration)
	RecordFailure(stage string)
}

// TransactionManager defines the port for running atomic operations.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
