package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/lorrc/service-request-analytics/internal/core/domain"
	apperrors "github.com/lorrc/service-request-analytics/internal/core/errors"
)

// Layouts accepted for timestamps, tried in order. Layouts without a zone are
// interpreted in the normalizer's location.
var (
	zonedLayouts    = []string{time.RFC3339Nano, time.RFC3339}
	floatingLayouts = []string{
		"2006-01-02T15:04:05.000",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
)

// Field names recognized in raw records.
const (
	FieldID            = "id"
	FieldUniqueKey     = "unique_key"
	FieldCreatedDate   = "created_date"
	FieldClosedDate    = "closed_date"
	FieldAgency        = "agency"
	FieldAgencyName    = "agency_name"
	FieldComplaintType = "complaint_type"
	FieldDescriptor    = "descriptor"
	FieldBorough       = "borough"
	FieldStatus        = "status"
)

const defaultCategory = "Unspecified"

// Normalizer validates raw records and coerces them into ServiceRequests.
type Normalizer struct {
	loc *time.Location
}

// NewNormalizer creates a normalizer that reads zone-less timestamps in loc.
// A nil loc means UTC.
func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{loc: loc}
}

// NormalizeRecord converts a single raw record. Rejected records return a
// *apperrors.MalformedRecordError whose Reason is a domain.ExclusionReason.
func (n *Normalizer) NormalizeRecord(raw domain.RawRecord) (domain.ServiceRequest, error) {
	id := stringField(raw, FieldID, FieldUniqueKey)
	if id == "" {
		return domain.ServiceRequest{}, malformed(domain.ReasonMissingID, FieldID, nil)
	}

	createdRaw, ok := lookup(raw, FieldCreatedDate)
	if !ok {
		return domain.ServiceRequest{}, malformed(domain.ReasonMissingCreatedDate, FieldCreatedDate, nil)
	}
	createdAt, err := n.parseTime(createdRaw)
	if err != nil {
		return domain.ServiceRequest{}, malformed(domain.ReasonInvalidCreatedDate, FieldCreatedDate, createdRaw)
	}

	agency := strings.ToUpper(stringField(raw, FieldAgency))
	if agency == "" {
		return domain.ServiceRequest{}, malformed(domain.ReasonMissingAgency, FieldAgency, nil)
	}

	var closedAt *time.Time
	if closedRaw, ok := lookup(raw, FieldClosedDate); ok {
		parsed, err := n.parseTime(closedRaw)
		if err != nil {
			return domain.ServiceRequest{}, malformed(domain.ReasonInvalidClosedDate, FieldClosedDate, closedRaw)
		}
		if parsed.Before(createdAt) {
			return domain.ServiceRequest{}, malformed(domain.ReasonClosedBeforeCreated, FieldClosedDate, closedRaw)
		}
		closedAt = &parsed
	}

	status := domain.ParseRequestStatus(stringField(raw, FieldStatus), closedAt != nil)
	if status == domain.RequestClosed && closedAt == nil {
		return domain.ServiceRequest{}, malformed(domain.ReasonClosedWithoutTimestamp, FieldStatus, stringField(raw, FieldStatus))
	}

	category := stringField(raw, FieldComplaintType)
	if category == "" {
		category = defaultCategory
	}

	return domain.ServiceRequest{
		ID:         id,
		CreatedAt:  createdAt,
		ClosedAt:   closedAt,
		Agency:     agency,
		AgencyName: stringField(raw, FieldAgencyName),
		Category:   category,
		Descriptor: stringField(raw, FieldDescriptor),
		Borough:    domain.ParseBorough(stringField(raw, FieldBorough)),
		Status:     status,
	}, nil
}

// All lazily normalizes src. Each iteration starts from the beginning of src
// and resets report, so ranging twice over the result yields the same
// requests and the same counts. A repeated ID within one pass is excluded.
func (n *Normalizer) All(src iter.Seq[domain.RawRecord], report *domain.ExclusionReport) iter.Seq[domain.ServiceRequest] {
	return func(yield func(domain.ServiceRequest) bool) {
		if report != nil {
			report.Reset()
		}
		seen := make(map[string]struct{})
		for raw := range src {
			req, err := n.NormalizeRecord(raw)
			if err == nil {
				if _, dup := seen[req.ID]; dup {
					err = malformed(domain.ReasonDuplicateID, FieldID, req.ID)
				}
			}
			if err != nil {
				if report != nil {
					report.Exclude(exclusionReason(err))
				}
				continue
			}
			seen[req.ID] = struct{}{}
			if report != nil {
				report.Accept()
			}
			if !yield(req) {
				return
			}
		}
	}
}

// NormalizeAll materializes All and returns the requests with their report.
func (n *Normalizer) NormalizeAll(src iter.Seq[domain.RawRecord]) ([]domain.ServiceRequest, domain.ExclusionReport) {
	report := domain.NewExclusionReport()
	var out []domain.ServiceRequest
	for req := range n.All(src, report) {
		out = append(out, req)
	}
	return out, *report
}

// Records adapts a slice of raw records to a sequence.
func Records(records []domain.RawRecord) iter.Seq[domain.RawRecord] {
	return func(yield func(domain.RawRecord) bool) {
		for _, r := range records {
			if !yield(r) {
				return
			}
		}
	}
}

// parseTime returns timestamps in the normalizer's location so that equal
// calendar buckets compare equal as map keys.
func (n *Normalizer) parseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.In(n.loc), nil
	case *time.Time:
		if t != nil {
			return t.In(n.loc), nil
		}
		return time.Time{}, fmt.Errorf("nil time")
	}

	s := strings.TrimSpace(toString(v))
	for _, layout := range zonedLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.In(n.loc), nil
		}
	}
	for _, layout := range floatingLayouts {
		if ts, err := time.ParseInLocation(layout, s, n.loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func malformed(reason domain.ExclusionReason, field string, value any) error {
	return &apperrors.MalformedRecordError{Reason: string(reason), Field: field, Value: value}
}

func exclusionReason(err error) domain.ExclusionReason {
	var m *apperrors.MalformedRecordError
	if errors.As(err, &m) {
		return domain.ExclusionReason(m.Reason)
	}
	return domain.ExclusionReason("unknown")
}

// lookup returns the first present, non-blank value among keys.
func lookup(raw domain.RawRecord, keys ...string) (any, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		if strings.TrimSpace(toString(v)) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

func stringField(raw domain.RawRecord, keys ...string) string {
	v, ok := lookup(raw, keys...)
	if !ok {
		return ""
	}
	return strings.TrimSpace(toString(v))
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}
