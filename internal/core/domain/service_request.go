package domain

import (
	"strings"
	"time"
)

// RawRecord is an untyped service request as it arrives from a source.
type RawRecord map[string]any

// Borough identifies the NYC borough a request was filed in.
type Borough string

const (
	BoroughManhattan    Borough = "MANHATTAN"
	BoroughBrooklyn     Borough = "BROOKLYN"
	BoroughQueens       Borough = "QUEENS"
	BoroughBronx        Borough = "BRONX"
	BoroughStatenIsland Borough = "STATEN ISLAND"
	BoroughUnspecified  Borough = "UNSPECIFIED"
)

// Boroughs lists every borough in reporting order.
var Boroughs = []Borough{
	BoroughManhattan,
	BoroughBrooklyn,
	BoroughQueens,
	BoroughBronx,
	BoroughStatenIsland,
	BoroughUnspecified,
}

// ParseBorough maps free text to a Borough. Anything unknown is UNSPECIFIED.
func ParseBorough(s string) Borough {
	normalized := strings.Join(strings.Fields(strings.ToUpper(s)), " ")
	switch Borough(normalized) {
	case BoroughManhattan, BoroughBrooklyn, BoroughQueens, BoroughBronx, BoroughStatenIsland:
		return Borough(normalized)
	}
	if normalized == "STATEN_ISLAND" {
		return BoroughStatenIsland
	}
	return BoroughUnspecified
}

// RequestStatus is the lifecycle state of a service request.
type RequestStatus string

const (
	RequestOpen    RequestStatus = "open"
	RequestClosed  RequestStatus = "closed"
	RequestPending RequestStatus = "pending"
)

// RequestStatuses lists every status in reporting order.
var RequestStatuses = []RequestStatus{RequestOpen, RequestPending, RequestClosed}

// ParseRequestStatus maps a source status string to a RequestStatus.
// An empty string is derived from whether the request has a closed timestamp.
func ParseRequestStatus(s string, hasClosedAt bool) RequestStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		if hasClosedAt {
			return RequestClosed
		}
		return RequestOpen
	case "closed":
		return RequestClosed
	case "open":
		return RequestOpen
	default:
		// "In Progress", "Assigned", "Started", "Pending" and anything else
		// the source invents are still in flight.
		return RequestPending
	}
}

// ServiceRequest is a validated, typed service request.
type ServiceRequest struct {
	ID         string
	CreatedAt  time.Time
	ClosedAt   *time.Time
	Agency     string
	AgencyName string
	Category   string
	Descriptor string
	Borough    Borough
	Status     RequestStatus
}

// IsClosed reports whether the request has a closed timestamp.
func (r ServiceRequest) IsClosed() bool {
	return r.ClosedAt != nil
}

// ResolutionHours returns the elapsed hours between creation and closure.
func (r ServiceRequest) ResolutionHours() (float64, bool) {
	if r.ClosedAt == nil {
		return 0, false
	}
	return r.ClosedAt.Sub(r.CreatedAt).Hours(), true
}
