package validation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/lorrc/service-request-analytics/internal/core/errors"
)

// DateLayout is the accepted format of date query parameters.
const DateLayout = "2006-01-02"

// Validator validates request data
type Validator struct {
	errors *apperrors.ValidationErrors
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		errors: apperrors.NewValidationErrors(),
	}
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return v.errors.HasErrors()
}

// Errors returns the validation errors
func (v *Validator) Errors() *apperrors.ValidationErrors {
	return v.errors
}

// Required validates that a string is not empty
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.errors.Add(field, "This field is required")
	}
	return v
}

// MaxLength validates maximum string length
func (v *Validator) MaxLength(field, value string, max int) *Validator {
	if len(value) > max {
		v.errors.Add(field, "Must be at most "+strconv.Itoa(max)+" characters")
	}
	return v
}

// Min validates minimum integer value
func (v *Validator) Min(field string, value, min int) *Validator {
	if value < min {
		v.errors.Add(field, "Must be at least "+strconv.Itoa(min))
	}
	return v
}

// Range validates integer is within range
func (v *Validator) Range(field string, value, min, max int) *Validator {
	if value < min || value > max {
		v.errors.Add(field, "Must be between "+strconv.Itoa(min)+" and "+strconv.Itoa(max))
	}
	return v
}

// OneOf validates value is one of the allowed values
func (v *Validator) OneOf(field, value string, allowed []string) *Validator {
	if value == "" {
		return v // Empty is handled by Required
	}

	for _, a := range allowed {
		if value == a {
			return v
		}
	}

	v.errors.Add(field, "Must be one of: "+strings.Join(allowed, ", "))
	return v
}

// Custom adds a custom validation
func (v *Validator) Custom(field string, valid bool, message string) *Validator {
	if !valid {
		v.errors.Add(field, message)
	}
	return v
}

// Date parses value as a YYYY-MM-DD date. Empty values yield nil.
func (v *Validator) Date(field, value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		v.errors.Add(field, "Must be a date in YYYY-MM-DD format")
		return nil
	}
	return &t
}

// Int parses value as an integer. Empty values yield defaultValue.
func (v *Validator) Int(field, value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		v.errors.Add(field, "Must be an integer")
		return defaultValue
	}
	return n
}

// DecodeAndValidate decodes a JSON request body of at most maxBytes.
func DecodeAndValidate[T any](w http.ResponseWriter, r *http.Request, maxBytes int64) (*T, error) {
	var req T

	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperrors.NewBadRequestError(err, "Request body too large")
		}
		return nil, apperrors.NewBadRequestError(err, "Invalid request body")
	}

	return &req, nil
}

// PaginationParams holds pagination parameters
type PaginationParams struct {
	Limit  int
	Offset int
}

// DefaultPagination returns default pagination values
func DefaultPagination() PaginationParams {
	return PaginationParams{
		Limit:  25,
		Offset: 0,
	}
}

// ParsePagination extracts and validates pagination from query parameters
func ParsePagination(r *http.Request, maxLimit int) PaginationParams {
	params := DefaultPagination()

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			params.Limit = limit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			params.Offset = offset
		}
	}

	// Enforce maximum limit
	if params.Limit > maxLimit {
		params.Limit = maxLimit
	}

	return params
}
