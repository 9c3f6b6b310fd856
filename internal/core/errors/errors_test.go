package errors_test

import (
	"errors"
	"fmt"
	"testing"

	apperrors "github.com/lorrc/service-request-analytics/internal/core/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurationError(t *testing.T) {
	err := fmt.Errorf("load: %w", &apperrors.ConfigurationError{
		Field:  "overburdened_floor",
		Value:  -1.0,
		Reason: "must be greater than 0",
	})

	assert.ErrorIs(t, err, apperrors.ErrInvalidConfiguration)

	var cfgErr *apperrors.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "overburdened_floor", cfgErr.Field)
	assert.Contains(t, err.Error(), "overburdened_floor=-1")
}

func TestMalformedRecordError(t *testing.T) {
	err := &apperrors.MalformedRecordError{Reason: "invalid_created_date", Field: "created_date", Value: "not-a-date"}
	assert.ErrorIs(t, err, apperrors.ErrMalformedRecord)
	assert.Equal(t, "malformed record: invalid_created_date (created_date=not-a-date)", err.Error())

	bare := &apperrors.MalformedRecordError{Reason: "missing_id"}
	assert.Equal(t, "malformed record: missing_id", bare.Error())
}

func TestAppError(t *testing.T) {
	err := apperrors.NewNotFoundError(apperrors.ErrReportNotFound, "Report not found")
	assert.Equal(t, 404, err.StatusCode)
	assert.Equal(t, "Report not found", err.Error())
	assert.ErrorIs(t, err, apperrors.ErrReportNotFound)

	upstream := apperrors.NewUpstreamError(apperrors.ErrFetchFailed, "Source unavailable")
	assert.Equal(t, 502, upstream.StatusCode)
}

func TestValidationErrors(t *testing.T) {
	v := apperrors.NewValidationErrors()
	assert.False(t, v.HasErrors())
	v.Add("records", "must not be empty")
	assert.True(t, v.HasErrors())
	assert.Equal(t, "validation failed: 1 field(s) have errors", v.Error())
}
