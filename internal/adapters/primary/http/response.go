package http

import (
	"encoding/json"
	"net/http"
)

// PaginatedResponse wraps paginated data with metadata
type PaginatedResponse[T any] struct {
	Data       []T                `json:"data"`
	Pagination PaginationMetadata `json:"pagination"`
}

// PaginationMetadata contains pagination information
type PaginationMetadata struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The header has already been sent, so an encode error cannot be reported.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteCreated writes a created response
func WriteCreated(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusCreated, data)
}

// WritePaginatedSimple writes a paginated response without a total count
func WritePaginatedSimple[T any](w http.ResponseWriter, data []T, limit, offset int) {
	// Callers fetch limit+1 rows; an extra row means there is another page.
	hasMore := len(data) > limit

	responseItems := data
	if hasMore {
		// Slice the data to return only the requested amount
		responseItems = data[:limit]
	}

	response := PaginatedResponse[T]{
		Data: responseItems,
		Pagination: PaginationMetadata{
			Limit:   limit,
			Offset:  offset,
			HasMore: hasMore,
		},
	}

	WriteJSON(w, http.StatusOK, response)
}
