package services_test

import (
	"errors"
	"testing"
	"time"

	"github.com/lorrc/service-request-analytics/internal/core/domain"
	apperrors "github.com/lorrc/service-request-analytics/internal/core/errors"
	"github.com/lorrc/service-request-analytics/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawRecord(id, agency, created, closed string) domain.RawRecord {
	r := domain.RawRecord{
		"unique_key":   id,
		"agency":       agency,
		"created_date": created,
	}
	if closed != "" {
		r["closed_date"] = closed
	}
	return r
}

func TestNormalizer_NormalizeRecord(t *testing.T) {
	n := services.NewNormalizer(nil)

	t.Run("socrata floating timestamps and defaults", func(t *testing.T) {
		req, err := n.NormalizeRecord(domain.RawRecord{
			"unique_key":   "59893919",
			"created_date": "2024-01-15T08:30:00.000",
			"closed_date":  "2024-01-15T10:00:00.000",
			"agency":       " nypd ",
		})

		require.NoError(t, err)
		assert.Equal(t, "59893919", req.ID)
		assert.Equal(t, "NYPD", req.Agency)
		assert.Equal(t, time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC), req.CreatedAt)
		require.NotNil(t, req.ClosedAt)
		assert.Equal(t, domain.RequestClosed, req.Status)
		assert.Equal(t, domain.BoroughUnspecified, req.Borough)
		assert.Equal(t, "Unspecified", req.Category)
	})

	t.Run("numeric id and zoned timestamp", func(t *testing.T) {
		req, err := n.NormalizeRecord(domain.RawRecord{
			"id":             float64(42),
			"created_date":   "2024-02-01T12:00:00-05:00",
			"agency":         "DOB",
			"borough":        "brooklyn",
			"status":         "In Progress",
			"complaint_type": "Noise - Residential",
		})

		require.NoError(t, err)
		assert.Equal(t, "42", req.ID)
		assert.True(t, req.CreatedAt.Equal(time.Date(2024, 2, 1, 17, 0, 0, 0, time.UTC)))
		assert.Equal(t, domain.BoroughBrooklyn, req.Borough)
		assert.Equal(t, domain.RequestPending, req.Status)
		assert.Equal(t, "Noise - Residential", req.Category)
		assert.Nil(t, req.ClosedAt)
	})

	t.Run("floating timestamps use configured location", func(t *testing.T) {
		ny, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)

		req, err := services.NewNormalizer(ny).NormalizeRecord(rawRecord("1", "DSNY", "2024-07-01 09:00:00", ""))
		require.NoError(t, err)
		assert.Equal(t, ny, req.CreatedAt.Location())
		assert.Equal(t, 13, req.CreatedAt.UTC().Hour())
	})

	tests := []struct {
		name   string
		record domain.RawRecord
		reason domain.ExclusionReason
	}{
		{"missing id", domain.RawRecord{"agency": "NYPD", "created_date": "2024-01-01"}, domain.ReasonMissingID},
		{"blank id", rawRecord("  ", "NYPD", "2024-01-01", ""), domain.ReasonMissingID},
		{"missing created date", domain.RawRecord{"id": "1", "agency": "NYPD"}, domain.ReasonMissingCreatedDate},
		{"unparseable created date", rawRecord("1", "NYPD", "not-a-date", ""), domain.ReasonInvalidCreatedDate},
		{"missing agency", rawRecord("1", "", "2024-01-01", ""), domain.ReasonMissingAgency},
		{"unparseable closed date", rawRecord("1", "NYPD", "2024-01-01", "soon"), domain.ReasonInvalidClosedDate},
		{"closed before created", rawRecord("1", "NYPD", "2024-01-02", "2024-01-01"), domain.ReasonClosedBeforeCreated},
		{
			"closed status without timestamp",
			domain.RawRecord{"id": "1", "agency": "NYPD", "created_date": "2024-01-01", "status": "Closed"},
			domain.ReasonClosedWithoutTimestamp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.NormalizeRecord(tt.record)

			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrMalformedRecord)

			var malformed *apperrors.MalformedRecordError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, string(tt.reason), malformed.Reason)
		})
	}
}

func TestNormalizer_All(t *testing.T) {
	n := services.NewNormalizer(nil)
	records := []domain.RawRecord{
		rawRecord("1", "NYPD", "2024-01-01T10:00:00.000", "2024-01-01T12:00:00.000"),
		rawRecord("2", "NYPD", "not-a-date", ""),
		rawRecord("3", "DOB", "2024-01-03T10:00:00.000", ""),
		rawRecord("1", "NYPD", "2024-01-04T10:00:00.000", ""),
	}

	t.Run("invalid date is excluded and counted", func(t *testing.T) {
		reqs, report := n.NormalizeAll(services.Records(records))

		require.Len(t, reqs, 2)
		assert.Equal(t, "1", reqs[0].ID)
		assert.Equal(t, "3", reqs[1].ID)
		assert.Equal(t, 4, report.Total)
		assert.Equal(t, 2, report.Accepted)
		assert.Equal(t, 2, report.Excluded)
		assert.Equal(t, 1, report.Reasons[domain.ReasonInvalidCreatedDate])
		assert.Equal(t, 1, report.Reasons[domain.ReasonDuplicateID])
	})

	t.Run("re-iteration is idempotent", func(t *testing.T) {
		report := domain.NewExclusionReport()
		seq := n.All(services.Records(records), report)

		var first, second []domain.ServiceRequest
		for r := range seq {
			first = append(first, r)
		}
		firstReport := *report
		for r := range seq {
			second = append(second, r)
		}

		assert.Equal(t, first, second)
		assert.Equal(t, firstReport.Total, report.Total)
		assert.Equal(t, firstReport.Reasons, report.Reasons)
	})

	t.Run("stopping early stops consuming the source", func(t *testing.T) {
		consumed := 0
		src := func(yield func(domain.RawRecord) bool) {
			for _, r := range records {
				consumed++
				if !yield(r) {
					return
				}
			}
		}
		for range n.All(src, nil) {
			break
		}
		assert.Equal(t, 1, consumed)
	})

	t.Run("closed timestamp never precedes creation", func(t *testing.T) {
		reqs, _ := n.NormalizeAll(services.Records(records))
		for _, r := range reqs {
			if r.ClosedAt != nil {
				assert.False(t, r.ClosedAt.Before(r.CreatedAt))
			}
		}
	})
}
