package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lorrc/service-request-analytics/internal/adapters/primary/validation"
	"github.com/lorrc/service-request-analytics/internal/adapters/secondary/csvexport"
	"github.com/lorrc/service-request-analytics/internal/core/domain"
	apperrors "github.com/lorrc/service-request-analytics/internal/core/errors"
	"github.com/lorrc/service-request-analytics/internal/core/ports"
	"github.com/lorrc/service-request-analytics/internal/infrastructure/logging"
)

const (
	maxRunsPerPage       = 100
	maxAggregatesPerPage = 1000
	maxFetchLimit        = 1_000_000

	// DefaultMaxBodyBytes bounds uploaded record batches.
	DefaultMaxBodyBytes int64 = 64 << 20
)

// AnalysisHandler handles HTTP requests for analysis runs and reports.
type AnalysisHandler struct {
	service      ports.AnalysisService
	source       ports.RecordSource
	errorHandler *ErrorHandler
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewAnalysisHandler creates a new analysis handler. source may be nil, in
// which case the fetch endpoint is not registered.
func NewAnalysisHandler(
	service ports.AnalysisService,
	source ports.RecordSource,
	errorHandler *ErrorHandler,
	maxBodyBytes int64,
	logger *slog.Logger,
) *AnalysisHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &AnalysisHandler{
		service:      service,
		source:       source,
		errorHandler: errorHandler,
		maxBodyBytes: maxBodyBytes,
		logger:       logger.With("handler", "analysis"),
	}
}

// RegisterRoutes sets up the read-only routes.
func (h *AnalysisHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleListRuns)
	r.Get("/latest", h.HandleLatest)

	r.Route("/{runID}", func(r chi.Router) {
		r.Get("/", h.HandleGetReport)
		r.Get("/aggregates", h.HandleListAggregates)
		r.Get("/export/{table}", h.HandleExport)
	})
}

// RegisterRunRoutes sets up the routes that start analysis runs.
func (h *AnalysisHandler) RegisterRunRoutes(r chi.Router) {
	r.Post("/", h.HandleRun)
	if h.source != nil {
		r.Post("/fetch", h.HandleFetchAndRun)
	}
}

// --- Request/Response DTOs ---

// RunRequest defines the JSON body for running the pipeline over posted records.
type RunRequest struct {
	Source  string             `json:"source"`
	Records []domain.RawRecord `json:"records"`
	// Config overrides fields of the default analysis configuration.
	Config json.RawMessage `json:"config,omitempty"`
}

// Validate validates the run request
func (r *RunRequest) Validate() error {
	v := validation.NewValidator()

	v.MaxLength("source", r.Source, 100)
	v.Custom("records", len(r.Records) > 0, "At least one record is required")

	if v.HasErrors() {
		return v.Errors()
	}
	return nil
}

// FetchRequest defines the JSON body for fetching records and running the pipeline.
type FetchRequest struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Agency string          `json:"agency"`
	Limit  int             `json:"limit"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Params validates the request and converts it to fetch parameters.
func (r *FetchRequest) Params() (ports.FetchParams, error) {
	v := validation.NewValidator()

	v.Required("from", r.From).Required("to", r.To)
	from := v.Date("from", r.From)
	to := v.Date("to", r.To)
	if from != nil && to != nil {
		v.Custom("to", to.After(*from), "Must be after from")
	}
	v.MaxLength("agency", r.Agency, 32)
	v.Range("limit", r.Limit, 0, maxFetchLimit)

	if v.HasErrors() {
		return ports.FetchParams{}, v.Errors()
	}
	return ports.FetchParams{
		From:   *from,
		To:     *to,
		Agency: strings.ToUpper(strings.TrimSpace(r.Agency)),
		Limit:  r.Limit,
	}, nil
}

// RunSummaryDTO defines the JSON response for a listed run.
type RunSummaryDTO struct {
	RunID        string `json:"runId"`
	GeneratedAt  string `json:"generatedAt"`
	Source       string `json:"source"`
	TotalRecords int    `json:"totalRecords"`
	Excluded     int    `json:"excluded"`
	Departments  int    `json:"departments"`
	Overburdened int    `json:"overburdened"`
}

func toRunSummaryDTOs(runs []domain.RunSummary) []RunSummaryDTO {
	response := make([]RunSummaryDTO, 0, len(runs))
	for _, run := range runs {
		response = append(response, RunSummaryDTO{
			RunID:        run.RunID.String(),
			GeneratedAt:  run.GeneratedAt.Format(time.RFC3339),
			Source:       run.Source,
			TotalRecords: run.TotalRecords,
			Excluded:     run.Excluded,
			Departments:  run.Departments,
			Overburdened: run.Overburdened,
		})
	}
	return response
}

// --- Handlers ---

// HandleRun handles POST /analyses
func (h *AnalysisHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	req, err := validation.DecodeAndValidate[RunRequest](w, r, h.maxBodyBytes)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	if err := req.Validate(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	cfg, err := decodeConfig(req.Config)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	source := req.Source
	if source == "" {
		source = "upload"
	}

	h.run(w, r, ports.RunParams{
		Source:  source,
		Records: slices.Values(req.Records),
		Config:  cfg,
	})
}

// HandleFetchAndRun handles POST /analyses/fetch
func (h *AnalysisHandler) HandleFetchAndRun(w http.ResponseWriter, r *http.Request) {
	req, err := validation.DecodeAndValidate[FetchRequest](w, r, 1<<20)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	params, err := req.Params()
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	cfg, err := decodeConfig(req.Config)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	records, err := h.source.Fetch(r.Context(), params)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.Info("records fetched",
		"source", h.source.Name(),
		"records", len(records),
		"from", req.From,
		"to", req.To,
		"agency", params.Agency,
	)

	h.run(w, r, ports.RunParams{
		Source:  h.source.Name(),
		Records: slices.Values(records),
		Config:  cfg,
	})
}

func (h *AnalysisHandler) run(w http.ResponseWriter, r *http.Request, params ports.RunParams) {
	report, err := h.service.Run(r.Context(), params)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	logging.LoggerFromContext(r.Context(), h.logger).Info("analysis run completed",
		"run_id", report.RunID,
		"source", report.Source,
		"departments", report.Summary.Departments,
	)

	w.Header().Set("Location", "/api/v1/analyses/"+report.RunID.String())
	WriteCreated(w, report)
}

// HandleListRuns handles GET /analyses
func (h *AnalysisHandler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	pagination := validation.ParsePagination(r, maxRunsPerPage)

	runs, err := h.service.ListRuns(r.Context(), pagination.Limit+1, pagination.Offset)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WritePaginatedSimple(w, toRunSummaryDTOs(runs), pagination.Limit, pagination.Offset)
}

// HandleLatest handles GET /analyses/latest
func (h *AnalysisHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.LatestReport(r.Context())
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, report)
}

// HandleGetReport handles GET /analyses/{runID}
func (h *AnalysisHandler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	runID, err := parseRunID(r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	report, err := h.service.GetReport(r.Context(), runID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, report)
}

// HandleListAggregates handles GET /analyses/{runID}/aggregates
func (h *AnalysisHandler) HandleListAggregates(w http.ResponseWriter, r *http.Request) {
	runID, err := parseRunID(r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	pagination := validation.ParsePagination(r, maxAggregatesPerPage)
	query := r.URL.Query()

	v := validation.NewValidator()
	from := v.Date("from", query.Get("from"))
	to := v.Date("to", query.Get("to"))
	if from != nil && to != nil {
		v.Custom("to", !to.Before(*from), "Must not be before from")
	}
	if v.HasErrors() {
		h.errorHandler.Handle(w, r, v.Errors())
		return
	}

	aggregates, err := h.service.ListAggregates(r.Context(), domain.AggregateFilter{
		RunID:  runID,
		Agency: strings.TrimSpace(query.Get("agency")),
		From:   from,
		To:     to,
		Limit:  pagination.Limit + 1,
		Offset: pagination.Offset,
	})
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WritePaginatedSimple(w, aggregates, pagination.Limit, pagination.Offset)
}

// HandleExport handles GET /analyses/{runID}/export/{table}
func (h *AnalysisHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	runID, err := parseRunID(r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	table := chi.URLParam(r, "table")
	table = strings.TrimSuffix(table, ".csv")
	if _, err := csvexport.Columns(table); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	report, err := h.service.GetReport(r.Context(), runID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-%s.csv"`, table, runID))
	if err := csvexport.WriteTable(w, report, table); err != nil {
		// Headers are already sent; log only.
		h.logger.Error("csv export failed",
			"run_id", runID,
			"table", table,
			"error", err,
		)
	}
}

// --- Helpers ---

func parseRunID(r *http.Request) (uuid.UUID, error) {
	idStr := chi.URLParam(r, "runID")
	runID, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, apperrors.NewBadRequestError(err, "Invalid run ID")
	}
	return runID, nil
}

// decodeConfig applies raw overrides on top of the default configuration.
// An empty override yields nil so the service uses its configured settings.
func decodeConfig(raw json.RawMessage) (*domain.AnalysisConfig, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	cfg := domain.DefaultAnalysisConfig()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, apperrors.NewBadRequestError(err, "Invalid analysis configuration")
	}
	return &cfg, nil
}
