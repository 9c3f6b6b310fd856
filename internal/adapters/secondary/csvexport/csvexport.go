// Package csvexport writes the row-oriented tables of an analysis report as CSV
// files for BI tools.
//
// Column names are stable:
//
//	department_aggregates:       agency, agency_name, period, request_count, closed_count,
//	                             closure_rate, mean_resolution_hours, median_resolution_hours,
//	                             p75_resolution_hours, min_resolution_hours,
//	                             max_resolution_hours, borough_<name> (one per borough)
//	utilization_classifications: agency, period, observed_volume, baseline,
//	                             baseline_configured, utilization_ratio, label,
//	                             overburdened_floor, underutilized_ceiling
//	peak_periods:                bucket_start, agency, volume, percentile_rank, cutoff,
//	                             percentile, ratio_to_mean
//	borough_performance:         borough, request_count, closed_count, closure_rate,
//	                             requests_per_1000, band
//	agency_rankings:             rank, agency, agency_name, closed_count,
//	                             mean_resolution_hours
//	complaint_types:             rank, complaint_type, request_count, share
//	agency_volume:               rank, agency, agency_name, request_count, share
//	status_distribution:         status, request_count, share
//
// Dates are written as YYYY-MM-DD. Values that are undefined (no closed
// requests, no configured baseline) are written as empty cells.
package csvexport

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lorrc/service-request-analytics/internal/core/domain"
	apperrors "github.com/lorrc/service-request-analytics/internal/core/errors"
)

// Table names.
const (
	TableAggregates      = "department_aggregates"
	TableClassifications = "utilization_classifications"
	TablePeaks           = "peak_periods"
	TableBoroughs        = "borough_performance"
	TableRankings        = "agency_rankings"
	TableCategories      = "complaint_types"
	TableAgencyVolume    = "agency_volume"
	TableStatuses        = "status_distribution"
)

// Tables lists every exportable table in export order.
var Tables = []string{
	TableAggregates,
	TableClassifications,
	TablePeaks,
	TableBoroughs,
	TableRankings,
	TableCategories,
	TableAgencyVolume,
	TableStatuses,
}

const dateLayout = "2006-01-02"

type table struct {
	header []string
	rows   func(r *domain.AnalysisReport) [][]string
}

var tables = map[string]table{
	TableAggregates: {
		header: aggregateHeader(),
		rows:   aggregateRows,
	},
	TableClassifications: {
		header: []string{"agency", "period", "observed_volume", "baseline", "baseline_configured",
			"utilization_ratio", "label", "overburdened_floor", "underutilized_ceiling"},
		rows: classificationRows,
	},
	TablePeaks: {
		header: []string{"bucket_start", "agency", "volume", "percentile_rank", "cutoff",
			"percentile", "ratio_to_mean"},
		rows: peakRows,
	},
	TableBoroughs: {
		header: []string{"borough", "request_count", "closed_count", "closure_rate",
			"requests_per_1000", "band"},
		rows: boroughRows,
	},
	TableRankings: {
		header: []string{"rank", "agency", "agency_name", "closed_count", "mean_resolution_hours"},
		rows:   rankingRows,
	},
	TableCategories: {
		header: []string{"rank", "complaint_type", "request_count", "share"},
		rows:   categoryRows,
	},
	TableAgencyVolume: {
		header: []string{"rank", "agency", "agency_name", "request_count", "share"},
		rows:   agencyVolumeRows,
	},
	TableStatuses: {
		header: []string{"status", "request_count", "share"},
		rows:   statusRows,
	},
}

// Columns returns the header of table.
func Columns(name string) ([]string, error) {
	t, ok := tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownTable, name)
	}
	return append([]string(nil), t.header...), nil
}

// WriteTable writes one table of report to w, header first.
func WriteTable(w io.Writer, report *domain.AnalysisReport, name string) error {
	t, ok := tables[name]
	if !ok {
		return fmt.Errorf("%w: %q", apperrors.ErrUnknownTable, name)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(t.header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.rows(report)); err != nil {
		return err
	}
	return cw.Error()
}

// WriteAll writes every table into dir as <table>.csv and returns the paths written.
func WriteAll(dir string, report *domain.AnalysisReport) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	paths := make([]string, 0, len(Tables))
	for _, name := range Tables {
		path := filepath.Join(dir, name+".csv")
		if err := writeFile(path, report, name); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, report *domain.AnalysisReport, name string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, closeErr)
		}
	}()
	return WriteTable(f, report, name)
}

func aggregateHeader() []string {
	header := []string{"agency", "agency_name", "period", "request_count", "closed_count",
		"closure_rate", "mean_resolution_hours", "median_resolution_hours",
		"p75_resolution_hours", "min_resolution_hours", "max_resolution_hours"}
	for _, b := range domain.Boroughs {
		header = append(header, boroughColumn(b))
	}
	return header
}

func boroughColumn(b domain.Borough) string {
	return "borough_" + strings.ReplaceAll(strings.ToLower(string(b)), " ", "_")
}

func aggregateRows(r *domain.AnalysisReport) [][]string {
	rows := make([][]string, 0, len(r.Aggregates))
	for _, a := range r.Aggregates {
		row := []string{
			a.Agency,
			a.AgencyName,
			formatDate(a.Period),
			strconv.Itoa(a.RequestCount),
			strconv.Itoa(a.ClosedCount),
			formatFloat(a.ClosureRate),
		}
		if res := a.Resolution; res != nil {
			row = append(row,
				formatFloat(res.Mean), formatFloat(res.Median), formatFloat(res.P75),
				formatFloat(res.Min), formatFloat(res.Max))
		} else {
			row = append(row, "", "", "", "", "")
		}
		for _, b := range domain.Boroughs {
			row = append(row, strconv.Itoa(a.BoroughCounts[b]))
		}
		rows = append(rows, row)
	}
	return rows
}

func classificationRows(r *domain.AnalysisReport) [][]string {
	rows := make([][]string, 0, len(r.Classifications))
	for _, c := range r.Classifications {
		ratio := ""
		if c.Ratio != nil {
			ratio = formatFloat(*c.Ratio)
		}
		baseline := ""
		if c.BaselineConfigured {
			baseline = formatFloat(c.Baseline)
		}
		rows = append(rows, []string{
			c.Agency,
			formatDate(c.Period),
			strconv.Itoa(c.ObservedVolume),
			baseline,
			strconv.FormatBool(c.BaselineConfigured),
			ratio,
			string(c.Label),
			formatFloat(c.OverburdenedFloor),
			formatFloat(c.UnderutilizedCeiling),
		})
	}
	return rows
}

func peakRows(r *domain.AnalysisReport) [][]string {
	rows := make([][]string, 0, len(r.Peaks))
	for _, p := range r.Peaks {
		rows = append(rows, []string{
			formatDate(p.BucketStart),
			p.Agency,
			strconv.Itoa(p.Volume),
			formatFloat(p.PercentileRank),
			formatFloat(p.Cutoff),
			formatFloat(p.Percentile),
			formatFloat(p.RatioToMean),
		})
	}
	return rows
}

func boroughRows(r *domain.AnalysisReport) [][]string {
	rows := make([][]string, 0, len(r.Boroughs))
	for _, b := range r.Boroughs {
		rows = append(rows, []string{
			string(b.Borough),
			strconv.Itoa(b.RequestCount),
			strconv.Itoa(b.ClosedCount),
			formatFloat(b.ClosureRate),
			formatFloat(b.RequestsPer1000),
			string(b.Band),
		})
	}
	return rows
}

func rankingRows(r *domain.AnalysisReport) [][]string {
	rows := make([][]string, 0, len(r.Rankings))
	for _, a := range r.Rankings {
		rows = append(rows, []string{
			strconv.Itoa(a.Rank),
			a.Agency,
			a.AgencyName,
			strconv.Itoa(a.ClosedCount),
			formatFloat(a.MeanResolutionHours),
		})
	}
	return rows
}

func categoryRows(r *domain.AnalysisReport) [][]string {
	rows := make([][]string, 0, len(r.TopCategories))
	for _, c := range r.TopCategories {
		rows = append(rows, []string{
			strconv.Itoa(c.Rank),
			c.Key,
			strconv.Itoa(c.Count),
			formatFloat(c.Share),
		})
	}
	return rows
}

func agencyVolumeRows(r *domain.AnalysisReport) [][]string {
	rows := make([][]string, 0, len(r.TopAgencies))
	for _, a := range r.TopAgencies {
		rows = append(rows, []string{
			strconv.Itoa(a.Rank),
			a.Key,
			a.Label,
			strconv.Itoa(a.Count),
			formatFloat(a.Share),
		})
	}
	return rows
}

func statusRows(r *domain.AnalysisReport) [][]string {
	rows := make([][]string, 0, len(r.Statuses))
	for _, st := range r.Statuses {
		rows = append(rows, []string{
			string(st.Status),
			strconv.Itoa(st.Count),
			formatFloat(st.Share),
		})
	}
	return rows
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
