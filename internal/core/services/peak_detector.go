package services

import (
	"cmp"
	"slices"

	"github.com/lorrc/service-request-analytics/internal/core/domain"
)

// PeakDetector flags buckets whose volume reaches a percentile of the series.
type PeakDetector struct {
	percentile float64
}

// NewPeakDetector creates a detector for percentile p in [0, 100].
func NewPeakDetector(p float64) *PeakDetector {
	return &PeakDetector{percentile: p}
}

// Detect returns the peak buckets of one series ordered by bucket start.
// Missing buckets are not filled with zeros.
func (d *PeakDetector) Detect(points []domain.VolumePoint) []domain.PeakPeriod {
	if len(points) == 0 {
		return []domain.PeakPeriod{}
	}

	volumes := make([]float64, len(points))
	for i, p := range points {
		volumes[i] = float64(p.Volume)
	}
	slices.Sort(volumes)

	cutoff := percentile(volumes, d.percentile)
	avg := mean(volumes)

	peaks := make([]domain.PeakPeriod, 0)
	for _, p := range points {
		v := float64(p.Volume)
		if v < cutoff {
			continue
		}
		// Count of volumes <= v, found as the insertion point after the last equal value.
		atOrBelow, _ := slices.BinarySearchFunc(volumes, v, func(e, target float64) int {
			if e <= target {
				return -1
			}
			return 1
		})
		peak := domain.PeakPeriod{
			BucketStart:    p.Bucket,
			Agency:         p.Agency,
			Volume:         p.Volume,
			PercentileRank: 100 * float64(atOrBelow) / float64(len(volumes)),
			Cutoff:         cutoff,
			Percentile:     d.percentile,
		}
		if avg > 0 {
			peak.RatioToMean = v / avg
		}
		peaks = append(peaks, peak)
	}

	slices.SortFunc(peaks, comparePeaks)
	return peaks
}

// DetectAll runs Detect on every series and merges the results.
func (d *PeakDetector) DetectAll(series map[string][]domain.VolumePoint) []domain.PeakPeriod {
	peaks := make([]domain.PeakPeriod, 0)
	for _, points := range series {
		peaks = append(peaks, d.Detect(points)...)
	}
	slices.SortFunc(peaks, comparePeaks)
	return peaks
}

func comparePeaks(a, b domain.PeakPeriod) int {
	if c := a.BucketStart.Compare(b.BucketStart); c != 0 {
		return c
	}
	return cmp.Compare(a.Agency, b.Agency)
}

// VolumeSeries counts requests per bucket, either overall or per agency.
type VolumeSeries struct {
	granularity domain.Granularity
	scope       domain.PeakScope
	counts      map[domain.AggregateKey]int
}

// NewVolumeSeries creates an empty series builder.
func NewVolumeSeries(g domain.Granularity, scope domain.PeakScope) *VolumeSeries {
	return &VolumeSeries{
		granularity: g,
		scope:       scope,
		counts:      make(map[domain.AggregateKey]int),
	}
}

// Add counts one request.
func (v *VolumeSeries) Add(req domain.ServiceRequest) {
	key := domain.AggregateKey{Period: v.granularity.Truncate(req.CreatedAt)}
	if v.scope == domain.PeakScopeAgency {
		key.Agency = req.Agency
	}
	v.counts[key]++
}

// Merge adds the counts of other into v.
func (v *VolumeSeries) Merge(other *VolumeSeries) {
	for key, n := range other.counts {
		v.counts[key] += n
	}
}

// Series returns one ordered point list per scope key. The total scope uses
// the empty key.
func (v *VolumeSeries) Series() map[string][]domain.VolumePoint {
	series := make(map[string][]domain.VolumePoint)
	for key, n := range v.counts {
		series[key.Agency] = append(series[key.Agency], domain.VolumePoint{
			Bucket: key.Period,
			Agency: key.Agency,
			Volume: n,
		})
	}
	for _, points := range series {
		slices.SortFunc(points, func(a, b domain.VolumePoint) int { return a.Bucket.Compare(b.Bucket) })
	}
	return series
}
