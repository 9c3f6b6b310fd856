package http

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/service-request-analytics/internal/core/domain"
	apperrors "github.com/lorrc/service-request-analytics/internal/core/errors"
	"github.com/lorrc/service-request-analytics/internal/core/mocks"
	"github.com/lorrc/service-request-analytics/internal/core/ports"
)

func newAnalysisRouter(service ports.AnalysisService, source ports.RecordSource) *chi.Mux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewAnalysisHandler(service, source, NewErrorHandler(logger), 1<<16, logger)

	router := chi.NewRouter()
	router.Route("/analyses", func(r chi.Router) {
		handler.RegisterRoutes(r)
		handler.RegisterRunRoutes(r)
	})
	return router
}

func serve(router stdhttp.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func sampleReport() *domain.AnalysisReport {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ratio := 1.5
	return &domain.AnalysisReport{
		RunID:       uuid.New(),
		GeneratedAt: time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC),
		Source:      "upload",
		Aggregates: []domain.DepartmentAggregate{
			{Agency: "NYPD", Period: jan, RequestCount: 3},
		},
		Classifications: []domain.UtilizationClassification{
			{Agency: "NYPD", Period: jan, ObservedVolume: 3, Baseline: 2, BaselineConfigured: true,
				Ratio: &ratio, Label: domain.LabelOverburdened, OverburdenedFloor: 1, UnderutilizedCeiling: 0.5},
		},
		Summary: domain.Summary{TotalRecords: 3, Departments: 1},
	}
}

func countRecords(p ports.RunParams) int {
	n := 0
	for range p.Records {
		n++
	}
	return n
}

func TestAnalysisHandler_Run(t *testing.T) {
	t.Run("runs posted records", func(t *testing.T) {
		service := mocks.NewMockAnalysisService()
		report := sampleReport()
		service.On("Run", mock.Anything, mock.MatchedBy(func(p ports.RunParams) bool {
			return p.Source == "upload" && p.Config == nil && countRecords(p) == 2
		})).Return(report, nil)

		rec := serve(newAnalysisRouter(service, nil), stdhttp.MethodPost, "/analyses", map[string]any{
			"records": []map[string]any{
				{"unique_key": 1, "agency": "NYPD", "created_date": "2024-01-05T10:00:00"},
				{"unique_key": 2, "agency": "NYPD", "created_date": "2024-01-06T10:00:00"},
			},
		})

		require.Equal(t, stdhttp.StatusCreated, rec.Code)
		assert.Equal(t, "/api/v1/analyses/"+report.RunID.String(), rec.Header().Get("Location"))

		var got domain.AnalysisReport
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, report.RunID, got.RunID)
		service.AssertExpectations(t)
	})

	t.Run("config overrides apply on top of defaults", func(t *testing.T) {
		service := mocks.NewMockAnalysisService()
		service.On("Run", mock.Anything, mock.MatchedBy(func(p ports.RunParams) bool {
			return p.Source == "batch-7" &&
				p.Config != nil &&
				p.Config.OverburdenedFloor == 1.2 &&
				p.Config.PeakPercentile == domain.DefaultPeakPercentile
		})).Return(sampleReport(), nil)

		rec := serve(newAnalysisRouter(service, nil), stdhttp.MethodPost, "/analyses", map[string]any{
			"source":  "batch-7",
			"records": []map[string]any{{"unique_key": 1}},
			"config":  map[string]any{"overburdened_floor": 1.2},
		})

		require.Equal(t, stdhttp.StatusCreated, rec.Code)
		service.AssertExpectations(t)
	})

	t.Run("empty records are rejected", func(t *testing.T) {
		service := mocks.NewMockAnalysisService()

		rec := serve(newAnalysisRouter(service, nil), stdhttp.MethodPost, "/analyses", map[string]any{
			"records": []any{},
		})

		require.Equal(t, stdhttp.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "records")
		service.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(stdhttp.MethodPost, "/analyses", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		newAnalysisRouter(mocks.NewMockAnalysisService(), nil).ServeHTTP(rec, req)

		assert.Equal(t, stdhttp.StatusBadRequest, rec.Code)
	})

	t.Run("body too large", func(t *testing.T) {
		records := make([]map[string]any, 0, 2000)
		for i := range 2000 {
			records = append(records, map[string]any{"unique_key": i, "descriptor": "Loud Music/Party"})
		}

		rec := serve(newAnalysisRouter(mocks.NewMockAnalysisService(), nil), stdhttp.MethodPost, "/analyses",
			map[string]any{"records": records})

		assert.Equal(t, stdhttp.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "too large")
	})

	t.Run("invalid configuration maps to 422", func(t *testing.T) {
		service := mocks.NewMockAnalysisService()
		service.On("Run", mock.Anything, mock.Anything).Return(nil, &apperrors.ConfigurationError{
			Field: "overburdened_floor", Value: 0.2, Reason: "must exceed underutilized_ceiling",
		})

		rec := serve(newAnalysisRouter(service, nil), stdhttp.MethodPost, "/analyses", map[string]any{
			"records": []map[string]any{{"unique_key": 1}},
			"config":  map[string]any{"overburdened_floor": 0.2},
		})

		require.Equal(t, stdhttp.StatusUnprocessableEntity, rec.Code)
		var body ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "INVALID_CONFIGURATION", body.Code)
		assert.Equal(t, "overburdened_floor", body.Details["field"])
	})
}

func TestAnalysisHandler_FetchAndRun(t *testing.T) {
	t.Run("fetches then runs", func(t *testing.T) {
		service := mocks.NewMockAnalysisService()
		source := mocks.NewMockRecordSource()
		source.On("Name").Return("socrata")
		source.On("Fetch", mock.Anything, ports.FetchParams{
			From:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			To:     time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			Agency: "DOB",
			Limit:  500,
		}).Return([]domain.RawRecord{{"unique_key": "1"}}, nil)
		service.On("Run", mock.Anything, mock.MatchedBy(func(p ports.RunParams) bool {
			return p.Source == "socrata" && countRecords(p) == 1
		})).Return(sampleReport(), nil)

		rec := serve(newAnalysisRouter(service, source), stdhttp.MethodPost, "/analyses/fetch", map[string]any{
			"from": "2024-01-01", "to": "2024-02-01", "agency": " dob ", "limit": 500,
		})

		require.Equal(t, stdhttp.StatusCreated, rec.Code)
		source.AssertExpectations(t)
		service.AssertExpectations(t)
	})

	t.Run("validates the window", func(t *testing.T) {
		source := mocks.NewMockRecordSource()

		rec := serve(newAnalysisRouter(mocks.NewMockAnalysisService(), source), stdhttp.MethodPost, "/analyses/fetch",
			map[string]any{"from": "2024-02-01", "to": "2024-01-01", "limit": -1})

		require.Equal(t, stdhttp.StatusUnprocessableEntity, rec.Code)
		var body ValidationErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Contains(t, body.Fields, "to")
		assert.Contains(t, body.Fields, "limit")
		source.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
	})

	t.Run("upstream failure maps to 502", func(t *testing.T) {
		source := mocks.NewMockRecordSource()
		source.On("Fetch", mock.Anything, mock.Anything).Return(nil, apperrors.ErrFetchFailed)

		rec := serve(newAnalysisRouter(mocks.NewMockAnalysisService(), source), stdhttp.MethodPost, "/analyses/fetch",
			map[string]any{"from": "2024-01-01", "to": "2024-01-02"})

		assert.Equal(t, stdhttp.StatusBadGateway, rec.Code)
	})

	t.Run("not registered without a source", func(t *testing.T) {
		rec := serve(newAnalysisRouter(mocks.NewMockAnalysisService(), nil), stdhttp.MethodPost, "/analyses/fetch",
			map[string]any{"from": "2024-01-01", "to": "2024-01-02"})

		assert.Equal(t, stdhttp.StatusMethodNotAllowed, rec.Code)
	})
}

func TestAnalysisHandler_Reads(t *testing.T) {
	report := sampleReport()

	t.Run("list runs paginates", func(t *testing.T) {
		service := mocks.NewMockAnalysisService()
		runs := []domain.RunSummary{report.RunSummary(), report.RunSummary(), report.RunSummary()}
		service.On("ListRuns", mock.Anything, 3, 4).Return(runs, nil)

		rec := serve(newAnalysisRouter(service, nil), stdhttp.MethodGet, "/analyses?limit=2&offset=4", nil)

		require.Equal(t, stdhttp.StatusOK, rec.Code)
		var body PaginatedResponse[RunSummaryDTO]
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Len(t, body.Data, 2)
		assert.True(t, body.Pagination.HasMore)
		assert.Equal(t, report.RunID.String(), body.Data[0].RunID)
	})

	t.Run("latest", func(t *testing.T) {
		service := mocks.NewMockAnalysisService()
		service.On("LatestReport", mock.Anything).Return(nil, apperrors.ErrReportNotFound)

		rec := serve(newAnalysisRouter(service, nil), stdhttp.MethodGet, "/analyses/latest", nil)

		assert.Equal(t, stdhttp.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "REPORT_NOT_FOUND")
	})

	t.Run("get report", func(t *testing.T) {
		service := mocks.NewMockAnalysisService()
		service.On("GetReport", mock.Anything, report.RunID).Return(report, nil)

		rec := serve(newAnalysisRouter(service, nil), stdhttp.MethodGet, "/analyses/"+report.RunID.String(), nil)

		require.Equal(t, stdhttp.StatusOK, rec.Code)
		var got domain.AnalysisReport
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, report.RunID, got.RunID)
	})

	t.Run("invalid run id", func(t *testing.T) {
		rec := serve(newAnalysisRouter(mocks.NewMockAnalysisService(), nil), stdhttp.MethodGet, "/analyses/not-a-uuid", nil)
		assert.Equal(t, stdhttp.StatusBadRequest, rec.Code)
	})

	t.Run("aggregates with filters", func(t *testing.T) {
		service := mocks.NewMockAnalysisService()
		from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		service.On("ListAggregates", mock.Anything, domain.AggregateFilter{
			RunID:  report.RunID,
			Agency: "nypd",
			From:   &from,
			Limit:  11,
			Offset: 0,
		}).Return(report.Aggregates, nil)

		rec := serve(newAnalysisRouter(service, nil), stdhttp.MethodGet,
			"/analyses/"+report.RunID.String()+"/aggregates?agency=nypd&from=2024-01-01&limit=10", nil)

		require.Equal(t, stdhttp.StatusOK, rec.Code)
		var body PaginatedResponse[domain.DepartmentAggregate]
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Len(t, body.Data, 1)
		assert.False(t, body.Pagination.HasMore)
		service.AssertExpectations(t)
	})

	t.Run("aggregates reject bad dates", func(t *testing.T) {
		rec := serve(newAnalysisRouter(mocks.NewMockAnalysisService(), nil), stdhttp.MethodGet,
			"/analyses/"+report.RunID.String()+"/aggregates?from=January", nil)
		assert.Equal(t, stdhttp.StatusUnprocessableEntity, rec.Code)
	})
}

func TestAnalysisHandler_Export(t *testing.T) {
	report := sampleReport()

	t.Run("csv table", func(t *testing.T) {
		service := mocks.NewMockAnalysisService()
		service.On("GetReport", mock.Anything, report.RunID).Return(report, nil)

		rec := serve(newAnalysisRouter(service, nil), stdhttp.MethodGet,
			"/analyses/"+report.RunID.String()+"/export/utilization_classifications.csv", nil)

		require.Equal(t, stdhttp.StatusOK, rec.Code)
		assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "utilization_classifications-")

		rows, err := csv.NewReader(rec.Body).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "NYPD", rows[1][0])
		assert.Equal(t, "overburdened", rows[1][6])
	})

	t.Run("unknown table", func(t *testing.T) {
		service := mocks.NewMockAnalysisService()

		rec := serve(newAnalysisRouter(service, nil), stdhttp.MethodGet,
			"/analyses/"+report.RunID.String()+"/export/tickets", nil)

		assert.Equal(t, stdhttp.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "UNKNOWN_TABLE")
		service.AssertNotCalled(t, "GetReport", mock.Anything, mock.Anything)
	})
}

func TestErrorHandler_MapDomainError(t *testing.T) {
	h := NewErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))

	cases := []struct {
		err  error
		code int
	}{
		{apperrors.ErrNoRecords, stdhttp.StatusBadRequest},
		{apperrors.ErrRunCancelled, stdhttp.StatusServiceUnavailable},
		{apperrors.ErrRateLimited, stdhttp.StatusTooManyRequests},
		{context.Canceled, stdhttp.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			code, _ := h.mapDomainError(tc.err)
			assert.Equal(t, tc.code, code)
		})
	}
}
