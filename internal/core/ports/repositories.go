package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/lorrc/service-request-analytics/internal/core/domain"
)

// ReportRepository persists finished analysis reports.
type ReportRepository interface {
	Save(ctx context.Context, report *domain.AnalysisReport) error
	GetByID(ctx context.Context, runID uuid.UUID) (*domain.AnalysisReport, error)
	Latest(ctx context.Context) (*domain.AnalysisReport, error)
	ListRuns(ctx context.Context, limit, offset int) ([]domain.RunSummary, error)
	ListAggregates(ctx context.Context, filter domain.AggregateFilter) ([]domain.DepartmentAggregate, error)
}

// ReportCache keeps the most recent report close to the API.
type ReportCache interface {
	GetLatest(ctx context.Context) (*domain.AnalysisReport, error)
	SetLatest(ctx context.Context, report *domain.AnalysisReport) error
}
