package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/service-request-analytics/internal/core/domain"
	apperrors "github.com/lorrc/service-request-analytics/internal/core/errors"
	"github.com/lorrc/service-request-analytics/internal/core/ports"
)

const (
	tableRuns       = "analysis_runs"
	tableAggregates = "department_aggregates"
)

var runColumns = []string{
	"id", "generated_at", "source", "total_records", "excluded", "departments", "overburdened",
}

var aggregateColumns = []string{
	"agency", "agency_name", "period_start", "period_label", "request_count", "closed_count",
	"closure_rate", "mean_resolution_hours", "median_resolution_hours", "p75_resolution_hours",
	"min_resolution_hours", "max_resolution_hours", "borough_counts", "status_counts",
}

// ReportRepository is the secondary adapter for analysis report persistence.
// The full report is stored as JSONB. Aggregates are also stored as rows so
// they can be filtered without decoding every report.
type ReportRepository struct {
	pool *pgxpool.Pool
	tm   *TransactionManager
}

// Ensure ReportRepository implements the ports.ReportRepository interface.
var _ ports.ReportRepository = (*ReportRepository)(nil)

// NewReportRepository creates a new report repository.
func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{pool: pool, tm: NewTransactionManager(pool)}
}

// builder returns a squirrel statement builder using PostgreSQL placeholders.
func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Save persists the report and its aggregate rows in one transaction.
func (r *ReportRepository) Save(ctx context.Context, report *domain.AnalysisReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	summary := report.RunSummary()
	insert := builder().Insert(tableRuns).
		Columns(runColumns...).
		Columns("report").
		Values(summary.RunID, summary.GeneratedAt, summary.Source, summary.TotalRecords,
			summary.Excluded, summary.Departments, summary.Overburdened, payload)

	return r.tm.WithTransaction(ctx, func(ctx context.Context) error {
		db := GetDBTX(ctx, r.pool)

		query, args, err := insert.ToSql()
		if err != nil {
			return err
		}
		if _, err := db.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		rows, err := aggregateRows(report.RunID, report.Aggregates)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		_, err = db.CopyFrom(ctx,
			pgx.Identifier{tableAggregates},
			append([]string{"run_id"}, aggregateColumns...),
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copy aggregates: %w", err)
		}
		return nil
	})
}

// GetByID returns the stored report for runID.
func (r *ReportRepository) GetByID(ctx context.Context, runID uuid.UUID) (*domain.AnalysisReport, error) {
	query := builder().Select("report").
		From(tableRuns).
		Where(squirrel.Eq{"id": runID})
	return r.getReport(ctx, query)
}

// Latest returns the most recently generated report.
func (r *ReportRepository) Latest(ctx context.Context) (*domain.AnalysisReport, error) {
	query := builder().Select("report").
		From(tableRuns).
		OrderBy("generated_at DESC").
		Limit(1)
	return r.getReport(ctx, query)
}

func (r *ReportRepository) getReport(ctx context.Context, q squirrel.SelectBuilder) (*domain.AnalysisReport, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	var payload []byte
	if err := GetDBTX(ctx, r.pool).QueryRow(ctx, query, args...).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrReportNotFound
		}
		return nil, err
	}

	var report domain.AnalysisReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}

// ListRuns returns run summaries, newest first.
func (r *ReportRepository) ListRuns(ctx context.Context, limit, offset int) ([]domain.RunSummary, error) {
	q := builder().Select(runColumns...).
		From(tableRuns).
		OrderBy("generated_at DESC", "id")
	q = paginate(q, limit, offset)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]domain.RunSummary, 0)
	for rows.Next() {
		var s domain.RunSummary
		if err := rows.Scan(&s.RunID, &s.GeneratedAt, &s.Source, &s.TotalRecords,
			&s.Excluded, &s.Departments, &s.Overburdened); err != nil {
			return nil, err
		}
		runs = append(runs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// ListAggregates returns the aggregate rows of one run matching filter,
// ordered by agency, then period.
func (r *ReportRepository) ListAggregates(ctx context.Context, filter domain.AggregateFilter) ([]domain.DepartmentAggregate, error) {
	db := GetDBTX(ctx, r.pool)

	var exists bool
	if err := db.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM "+tableRuns+" WHERE id = $1)", filter.RunID,
	).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.ErrReportNotFound
	}

	q := builder().Select(aggregateColumns...).
		From(tableAggregates).
		Where(squirrel.Eq{"run_id": filter.RunID}).
		OrderBy("agency", "period_start")

	if agency := strings.ToUpper(strings.TrimSpace(filter.Agency)); agency != "" {
		q = q.Where(squirrel.Eq{"agency": agency})
	}
	if filter.From != nil {
		q = q.Where(squirrel.GtOrEq{"period_start": *filter.From})
	}
	if filter.To != nil {
		q = q.Where(squirrel.LtOrEq{"period_start": *filter.To})
	}
	q = paginate(q, filter.Limit, filter.Offset)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	aggregates := make([]domain.DepartmentAggregate, 0)
	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, err
		}
		aggregates = append(aggregates, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return aggregates, nil
}

func paginate(q squirrel.SelectBuilder, limit, offset int) squirrel.SelectBuilder {
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}
	return q
}

func aggregateRows(runID uuid.UUID, aggregates []domain.DepartmentAggregate) ([][]any, error) {
	rows := make([][]any, 0, len(aggregates))
	for _, agg := range aggregates {
		boroughs, err := json.Marshal(agg.BoroughCounts)
		if err != nil {
			return nil, fmt.Errorf("encode borough counts: %w", err)
		}
		statuses, err := json.Marshal(agg.StatusCounts)
		if err != nil {
			return nil, fmt.Errorf("encode status counts: %w", err)
		}

		var mean, median, p75, lo, hi pgtype.Float8
		if res := agg.Resolution; res != nil {
			mean = float8(res.Mean)
			median = float8(res.Median)
			p75 = float8(res.P75)
			lo = float8(res.Min)
			hi = float8(res.Max)
		}

		rows = append(rows, []any{
			runID, agg.Agency, agg.AgencyName, agg.Period, agg.PeriodLabel,
			agg.RequestCount, agg.ClosedCount, agg.ClosureRate,
			mean, median, p75, lo, hi, boroughs, statuses,
		})
	}
	return rows, nil
}

func scanAggregate(rows pgx.Rows) (domain.DepartmentAggregate, error) {
	var (
		agg                       domain.DepartmentAggregate
		mean, median, p75, lo, hi pgtype.Float8
		boroughs, statuses        []byte
	)
	if err := rows.Scan(&agg.Agency, &agg.AgencyName, &agg.Period, &agg.PeriodLabel,
		&agg.RequestCount, &agg.ClosedCount, &agg.ClosureRate,
		&mean, &median, &p75, &lo, &hi, &boroughs, &statuses); err != nil {
		return agg, err
	}

	if mean.Valid {
		agg.Resolution = &domain.ResolutionStats{
			Mean:   mean.Float64,
			Median: median.Float64,
			P75:    p75.Float64,
			Min:    lo.Float64,
			Max:    hi.Float64,
		}
	}
	if err := json.Unmarshal(boroughs, &agg.BoroughCounts); err != nil {
		return agg, fmt.Errorf("decode borough counts: %w", err)
	}
	if err := json.Unmarshal(statuses, &agg.StatusCounts); err != nil {
		return agg, fmt.Errorf("decode status counts: %w", err)
	}
	return agg, nil
}

func float8(v float64) pgtype.Float8 {
	return pgtype.Float8{Float64: v, Valid: true}
}
