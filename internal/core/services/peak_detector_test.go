package services_test

import (
	"testing"
	"time"

	"github.com/lorrc/service-request-analytics/internal/core/domain"
	"github.com/lorrc/service-request-analytics/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(volumes ...int) []domain.VolumePoint {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]domain.VolumePoint, len(volumes))
	for i, v := range volumes {
		points[i] = domain.VolumePoint{Bucket: start.AddDate(0, 0, i), Volume: v}
	}
	return points
}

func TestPeakDetector_Detect(t *testing.T) {
	points := series(10, 20, 30, 40, 50, 60, 70, 80, 90, 100)

	t.Run("90th percentile", func(t *testing.T) {
		peaks := services.NewPeakDetector(90).Detect(points)

		// cutoff = 90 + 0.1*(100-90) = 91
		require.Len(t, peaks, 1)
		assert.Equal(t, 100, peaks[0].Volume)
		assert.InDelta(t, 91.0, peaks[0].Cutoff, 1e-9)
		assert.InDelta(t, 100.0, peaks[0].PercentileRank, 1e-9)
		assert.InDelta(t, 100.0/55.0, peaks[0].RatioToMean, 1e-9)
		assert.Equal(t, 90.0, peaks[0].Percentile)
	})

	t.Run("100th percentile flags only the maximum", func(t *testing.T) {
		peaks := services.NewPeakDetector(100).Detect(series(5, 9, 9, 3))

		require.Len(t, peaks, 2)
		for _, p := range peaks {
			assert.Equal(t, 9, p.Volume)
		}
		assert.True(t, peaks[0].BucketStart.Before(peaks[1].BucketStart))
	})

	t.Run("0th percentile flags every bucket", func(t *testing.T) {
		peaks := services.NewPeakDetector(0).Detect(points)
		assert.Len(t, peaks, len(points))
		assert.InDelta(t, 10.0, peaks[0].PercentileRank, 1e-9)
	})

	t.Run("empty input gives empty output", func(t *testing.T) {
		peaks := services.NewPeakDetector(90).Detect(nil)
		assert.NotNil(t, peaks)
		assert.Empty(t, peaks)
	})

	t.Run("single bucket is its own peak", func(t *testing.T) {
		peaks := services.NewPeakDetector(90).Detect(series(7))
		require.Len(t, peaks, 1)
		assert.InDelta(t, 1.0, peaks[0].RatioToMean, 1e-9)
	})
}

func TestVolumeSeries(t *testing.T) {
	day := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	requests := []domain.ServiceRequest{
		request("1", "NYPD", day, -1, domain.BoroughBronx),
		request("2", "NYPD", day.Add(time.Hour), -1, domain.BoroughBronx),
		request("3", "DOB", day, -1, domain.BoroughBronx),
		request("4", "DOB", day.AddDate(0, 0, 2), -1, domain.BoroughBronx),
	}

	t.Run("total scope does not fill gaps", func(t *testing.T) {
		points := dailyVolume(requests)

		require.Len(t, points, 2)
		assert.Equal(t, 3, points[0].Volume)
		assert.Equal(t, 1, points[1].Volume)
		assert.Equal(t, "", points[0].Agency)
	})

	t.Run("agency scope builds one series per agency", func(t *testing.T) {
		v := services.NewVolumeSeries(domain.GranularityDay, domain.PeakScopeAgency)
		for _, r := range requests {
			v.Add(r)
		}
		s := v.Series()

		require.Len(t, s, 2)
		assert.Len(t, s["NYPD"], 1)
		assert.Equal(t, 2, s["NYPD"][0].Volume)
		assert.Len(t, s["DOB"], 2)

		peaks := services.NewPeakDetector(100).DetectAll(s)
		require.Len(t, peaks, 3)
		assert.Equal(t, "DOB", peaks[0].Agency)
		assert.Equal(t, "NYPD", peaks[1].Agency)
	})
}

func dailyVolume(requests []domain.ServiceRequest) []domain.VolumePoint {
	v := services.NewVolumeSeries(domain.GranularityDay, domain.PeakScopeTotal)
	for _, r := range requests {
		v.Add(r)
	}
	return v.Series()[""]
}
