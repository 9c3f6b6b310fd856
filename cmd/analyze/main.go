package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorrc/service-request-analytics/internal/adapters/primary/validation"
	"github.com/lorrc/service-request-analytics/internal/adapters/secondary/csvexport"
	"github.com/lorrc/service-request-analytics/internal/adapters/secondary/postgres"
	"github.com/lorrc/service-request-analytics/internal/adapters/secondary/socrata"
	"github.com/lorrc/service-request-analytics/internal/config"
	"github.com/lorrc/service-request-analytics/internal/core/domain"
	"github.com/lorrc/service-request-analytics/internal/core/ports"
	"github.com/lorrc/service-request-analytics/internal/core/services"
	"github.com/lorrc/service-request-analytics/internal/infrastructure/logging"
)

type options struct {
	input      string
	from       string
	to         string
	agency     string
	limit      int
	configPath string
	outDir     string
	source     string
	persist    bool
}

func main() {
	opts := options{}
	flag.StringVar(&opts.input, "input", "", "JSON file of raw records (array or {\"records\": [...]}); - reads stdin")
	flag.StringVar(&opts.from, "from", "", "fetch records created on or after this date (YYYY-MM-DD)")
	flag.StringVar(&opts.to, "to", "", "fetch records created before this date (YYYY-MM-DD)")
	flag.StringVar(&opts.agency, "agency", "", "restrict the fetch to one agency")
	flag.IntVar(&opts.limit, "limit", 0, "maximum number of records to fetch (0 uses SOCRATA_MAX_RECORDS)")
	flag.StringVar(&opts.configPath, "config", "", "analysis YAML file (defaults to ANALYSIS_CONFIG_PATH)")
	flag.StringVar(&opts.outDir, "out", "out", "directory for CSV tables")
	flag.StringVar(&opts.source, "source", "", "source label recorded on the report")
	flag.BoolVar(&opts.persist, "persist", false, "save the report to DATABASE_URL")
	flag.Parse()

	if err := run(opts); err != nil {
		slog.Error("analysis failed", "error", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	if (opts.input == "") == (opts.from == "" && opts.to == "") {
		return errors.New("exactly one of -input or -from/-to is required")
	}

	cfg, err := config.LoadBatch()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stderr,
		ServiceName: cfg.App.Name + "-analyze",
		Environment: cfg.App.Environment,
	})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath := opts.configPath
	if configPath == "" {
		configPath = cfg.Analysis.Path
	}
	store, err := config.LoadAnalysisStore(configPath)
	if err != nil {
		return fmt.Errorf("load analysis configuration: %w", err)
	}

	var reports ports.ReportRepository
	if opts.persist {
		if cfg.Database.URL == "" {
			return errors.New("-persist requires DATABASE_URL")
		}
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
		reports = postgres.NewReportRepository(pool)
	}

	records, source, err := loadRecords(ctx, opts, cfg, logger)
	if err != nil {
		return err
	}
	if opts.source != "" {
		source = opts.source
	}

	service := services.NewAnalysisService(store, reports, nil, nil, nil, logger)

	start := time.Now()
	report, err := service.Run(ctx, ports.RunParams{
		Source:  source,
		Records: services.Records(records),
	})
	if err != nil {
		return err
	}

	paths, err := csvexport.WriteAll(opts.outDir, report)
	if err != nil {
		return fmt.Errorf("export csv: %w", err)
	}

	logger.Info("analysis complete",
		"run_id", report.RunID,
		"source", report.Source,
		"records", report.Exclusions.Total,
		"excluded", report.Exclusions.Excluded,
		"departments", report.Summary.Departments,
		"peaks", report.Summary.PeakCount,
		"persisted", reports != nil,
		"files", len(paths),
		"out", opts.outDir,
		"duration", time.Since(start),
	)
	return nil
}

func loadRecords(ctx context.Context, opts options, cfg *config.Config, logger *slog.Logger) ([]domain.RawRecord, string, error) {
	if opts.input != "" {
		records, err := readRecordsFile(opts.input)
		if err != nil {
			return nil, "", err
		}
		logger.Info("records loaded", "input", opts.input, "records", len(records))
		return records, "file", nil
	}

	params, err := fetchParams(opts)
	if err != nil {
		return nil, "", err
	}

	client := socrata.NewClient(socrata.Config{
		BaseURL:    cfg.Socrata.BaseURL,
		AppToken:   cfg.Socrata.AppToken,
		Timeout:    cfg.Socrata.Timeout,
		PageSize:   cfg.Socrata.PageSize,
		MaxRecords: cfg.Socrata.MaxRecords,
		MaxRetries: cfg.Socrata.MaxRetries,
	}, logger)

	records, err := client.Fetch(ctx, params)
	if err != nil {
		return nil, "", err
	}
	logger.Info("records fetched", "source", client.Name(), "records", len(records))
	return records, client.Name(), nil
}

func fetchParams(opts options) (ports.FetchParams, error) {
	v := validation.NewValidator()
	v.Required("from", opts.from).Required("to", opts.to)
	from := v.Date("from", opts.from)
	to := v.Date("to", opts.to)
	if from != nil && to != nil {
		v.Custom("to", to.After(*from), "Must be after from")
	}
	v.Min("limit", opts.limit, 0)
	if v.HasErrors() {
		return ports.FetchParams{}, v.Errors()
	}
	return ports.FetchParams{
		From:   *from,
		To:     *to,
		Agency: opts.agency,
		Limit:  opts.limit,
	}, nil
}
