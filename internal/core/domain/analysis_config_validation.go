package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/lorrc/service-request-analytics/internal/core/errors"
)

var configValidator = newConfigValidator()

func newConfigValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks c and returns the first problem as a
// *apperrors.ConfigurationError naming the offending field and value.
func (c AnalysisConfig) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &apperrors.ConfigurationError{
				Field:  configFieldName(fe),
				Value:  fe.Value(),
				Reason: describeRule(fe),
			}
		}
		return &apperrors.ConfigurationError{Field: "config", Reason: err.Error()}
	}

	if c.UnderutilizedCeiling > c.OverburdenedFloor {
		return &apperrors.ConfigurationError{
			Field:  "underutilized_ceiling",
			Value:  c.UnderutilizedCeiling,
			Reason: fmt.Sprintf("must not exceed overburdened_floor (%v)", c.OverburdenedFloor),
		}
	}
	if c.BoroughMediumBand > c.BoroughHighBand {
		return &apperrors.ConfigurationError{
			Field:  "borough_medium_band",
			Value:  c.BoroughMediumBand,
			Reason: fmt.Sprintf("must not exceed borough_high_band (%v)", c.BoroughHighBand),
		}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return &apperrors.ConfigurationError{
			Field:  "timezone",
			Value:  c.Timezone,
			Reason: "unknown time zone",
		}
	}
	return nil
}

// configFieldName renders map entries as baselines[AGENCY].
func configFieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return ns
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "required":
		return "is required"
	default:
		return "failed " + fe.Tag() + " rule"
	}
}
