package csvexport

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/service-request-analytics/internal/core/domain"
	apperrors "github.com/lorrc/service-request-analytics/internal/core/errors"
)

func testReport() *domain.AnalysisReport {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ratio := 1.2
	return &domain.AnalysisReport{
		Aggregates: []domain.DepartmentAggregate{
			{
				Agency: "DOB", Period: jan, RequestCount: 5,
				BoroughCounts: map[domain.Borough]int{domain.BoroughBrooklyn: 5},
			},
			{
				Agency: "NYPD", AgencyName: "New York City Police Department", Period: jan,
				RequestCount: 120, ClosedCount: 60, ClosureRate: 0.5,
				Resolution:    &domain.ResolutionStats{Mean: 4.5, Median: 3, P75: 6, Min: 0.5, Max: 12},
				BoroughCounts: map[domain.Borough]int{domain.BoroughStatenIsland: 20, domain.BoroughManhattan: 100},
			},
		},
		Classifications: []domain.UtilizationClassification{
			{Agency: "DOB", Period: jan, ObservedVolume: 5, Label: domain.LabelOptimal, OverburdenedFloor: 1, UnderutilizedCeiling: 0.5},
			{
				Agency: "NYPD", Period: jan, ObservedVolume: 120, Baseline: 100, BaselineConfigured: true,
				Ratio: &ratio, Label: domain.LabelOverburdened, OverburdenedFloor: 1, UnderutilizedCeiling: 0.5,
			},
		},
		Peaks: []domain.PeakPeriod{
			{BucketStart: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), Volume: 40, PercentileRank: 100, Cutoff: 31.5, Percentile: 90, RatioToMean: 2},
		},
		Boroughs: []domain.BoroughPerformance{
			{Borough: domain.BoroughManhattan, RequestCount: 100, ClosedCount: 60, ClosureRate: 0.6, RequestsPer1000: 800, Band: domain.BandHigh},
		},
		Rankings: []domain.AgencyPerformance{
			{Rank: 1, Agency: "NYPD", ClosedCount: 60, MeanResolutionHours: 4.5},
		},
		TopCategories: []domain.VolumeShare{
			{Rank: 1, Key: "Noise - Residential", Count: 75, Share: 0.6},
		},
		TopAgencies: []domain.VolumeShare{
			{Rank: 1, Key: "NYPD", Label: "New York City Police Department", Count: 120, Share: 0.96},
			{Rank: 2, Key: "DOB", Count: 5, Share: 0.04},
		},
		Statuses: []domain.StatusShare{
			{Status: domain.RequestOpen, Count: 65, Share: 0.52},
			{Status: domain.RequestClosed, Count: 60, Share: 0.48},
		},
	}
}

func readTable(t *testing.T, name string, report *domain.AnalysisReport) [][]string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, report, name))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteTable_Aggregates(t *testing.T) {
	records := readTable(t, TableAggregates, testReport())

	require.Len(t, records, 3)
	header := records[0]
	assert.Equal(t, "agency", header[0])
	assert.Contains(t, header, "borough_staten_island")
	assert.Contains(t, header, "p75_resolution_hours")

	col := func(name string) int {
		for i, h := range header {
			if h == name {
				return i
			}
		}
		t.Fatalf("column %s missing", name)
		return -1
	}

	dob, nypd := records[1], records[2]
	assert.Equal(t, "2024-01-01", dob[col("period")])
	assert.Equal(t, "", dob[col("mean_resolution_hours")])
	assert.Equal(t, "5", dob[col("borough_brooklyn")])

	assert.Equal(t, "New York City Police Department", nypd[col("agency_name")])
	assert.Equal(t, "4.5", nypd[col("mean_resolution_hours")])
	assert.Equal(t, "0.5", nypd[col("closure_rate")])
	assert.Equal(t, "20", nypd[col("borough_staten_island")])
	assert.Equal(t, "0", nypd[col("borough_bronx")])
}

func TestWriteTable_Classifications(t *testing.T) {
	records := readTable(t, TableClassifications, testReport())

	require.Len(t, records, 3)
	assert.Equal(t, []string{"agency", "period", "observed_volume", "baseline", "baseline_configured",
		"utilization_ratio", "label", "overburdened_floor", "underutilized_ceiling"}, records[0])
	assert.Equal(t, []string{"DOB", "2024-01-01", "5", "", "false", "", "optimal", "1", "0.5"}, records[1])
	assert.Equal(t, []string{"NYPD", "2024-01-01", "120", "100", "true", "1.2", "overburdened", "1", "0.5"}, records[2])
}

func TestWriteTable_OtherTables(t *testing.T) {
	report := testReport()

	peaks := readTable(t, TablePeaks, report)
	require.Len(t, peaks, 2)
	assert.Equal(t, []string{"2024-01-15", "", "40", "100", "31.5", "90", "2"}, peaks[1])

	boroughs := readTable(t, TableBoroughs, report)
	require.Len(t, boroughs, 2)
	assert.Equal(t, []string{"MANHATTAN", "100", "60", "0.6", "800", "HIGH"}, boroughs[1])

	rankings := readTable(t, TableRankings, report)
	require.Len(t, rankings, 2)
	assert.Equal(t, []string{"1", "NYPD", "", "60", "4.5"}, rankings[1])

	categories := readTable(t, TableCategories, report)
	require.Len(t, categories, 2)
	assert.Equal(t, []string{"rank", "complaint_type", "request_count", "share"}, categories[0])
	assert.Equal(t, []string{"1", "Noise - Residential", "75", "0.6"}, categories[1])

	agencies := readTable(t, TableAgencyVolume, report)
	require.Len(t, agencies, 3)
	assert.Equal(t, []string{"1", "NYPD", "New York City Police Department", "120", "0.96"}, agencies[1])
	assert.Equal(t, []string{"2", "DOB", "", "5", "0.04"}, agencies[2])

	statuses := readTable(t, TableStatuses, report)
	require.Len(t, statuses, 3)
	assert.Equal(t, []string{"open", "65", "0.52"}, statuses[1])
	assert.Equal(t, []string{"closed", "60", "0.48"}, statuses[2])
}

func TestWriteTable_EmptyReport(t *testing.T) {
	for _, name := range Tables {
		t.Run(name, func(t *testing.T) {
			records := readTable(t, name, &domain.AnalysisReport{})
			require.Len(t, records, 1)
			columns, err := Columns(name)
			require.NoError(t, err)
			assert.Equal(t, columns, records[0])
		})
	}
}

func TestWriteTable_UnknownTable(t *testing.T) {
	var buf bytes.Buffer
	err := WriteTable(&buf, testReport(), "tickets")

	assert.ErrorIs(t, err, apperrors.ErrUnknownTable)
	assert.Zero(t, buf.Len())

	_, err = Columns("tickets")
	assert.ErrorIs(t, err, apperrors.ErrUnknownTable)
}

func TestWriteAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	paths, err := WriteAll(dir, testReport())

	require.NoError(t, err)
	require.Len(t, paths, len(Tables))
	for i, name := range Tables {
		assert.Equal(t, filepath.Join(dir, name+".csv"), paths[i])
		info, err := os.Stat(paths[i])
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}
