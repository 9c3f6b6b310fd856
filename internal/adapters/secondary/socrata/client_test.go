package socrata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lorrc/service-request-analytics/internal/core/errors"
	"github.com/lorrc/service-request-analytics/internal/core/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(url string, cfg Config) *Client {
	cfg.BaseURL = url
	cfg.RetryInterval = time.Millisecond
	return NewClient(cfg, discardLogger())
}

// pagedServer serves total rows, honouring $limit and $offset.
func pagedServer(t *testing.T, total int, seen *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if seen != nil {
			*seen = append(*seen, r.URL.RawQuery)
		}
		limit, _ := strconv.Atoi(q.Get("$limit"))
		offset, _ := strconv.Atoi(q.Get("$offset"))

		rows := make([]map[string]any, 0)
		for i := offset; i < total && i < offset+limit; i++ {
			rows = append(rows, map[string]any{
				"unique_key":   fmt.Sprint(1000 + i),
				"created_date": "2024-01-15T10:00:00.000",
				"agency":       "NYPD",
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rows)
	}))
}

func TestClient_FetchPaginates(t *testing.T) {
	var queries []string
	srv := pagedServer(t, 25, &queries)
	defer srv.Close()

	client := testClient(srv.URL, Config{PageSize: 10})
	records, err := client.Fetch(context.Background(), ports.FetchParams{})

	require.NoError(t, err)
	assert.Len(t, records, 25)
	assert.Len(t, queries, 3)
	assert.Equal(t, "1000", records[0]["unique_key"])
	assert.Equal(t, "1024", records[24]["unique_key"])
}

func TestClient_FetchRespectsLimit(t *testing.T) {
	srv := pagedServer(t, 100, nil)
	defer srv.Close()

	client := testClient(srv.URL, Config{PageSize: 10, MaxRecords: 50})

	records, err := client.Fetch(context.Background(), ports.FetchParams{Limit: 15})
	require.NoError(t, err)
	assert.Len(t, records, 15)

	records, err = client.Fetch(context.Background(), ports.FetchParams{})
	require.NoError(t, err)
	assert.Len(t, records, 50)
}

func TestClient_QueryAndHeaders(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	client := testClient(srv.URL, Config{PageSize: 10, AppToken: "token-123"})
	_, err := client.Fetch(context.Background(), ports.FetchParams{
		From:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:     time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Agency: "o'dot",
	})

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "token-123", got.Header.Get("X-App-Token"))
	assert.Equal(t,
		"created_date >= '2024-01-01T00:00:00' AND created_date < '2024-02-01T00:00:00' AND agency = 'O''DOT'",
		got.URL.Query().Get("$where"))
	assert.Equal(t, "10", got.URL.Query().Get("$limit"))
	assert.Equal(t, "0", got.URL.Query().Get("$offset"))
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"unique_key": 1, "created_date": "2024-01-01", "agency": "DOB"}]`))
	}))
	defer srv.Close()

	client := testClient(srv.URL, Config{PageSize: 10, MaxRetries: 3})
	records, err := client.Fetch(context.Background(), ports.FetchParams{})

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, json.Number("1"), records[0]["unique_key"])
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Failures(t *testing.T) {
	t.Run("client errors are not retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "bad query", http.StatusBadRequest)
		}))
		defer srv.Close()

		client := testClient(srv.URL, Config{PageSize: 10, MaxRetries: 5})
		_, err := client.Fetch(context.Background(), ports.FetchParams{})

		assert.ErrorIs(t, err, apperrors.ErrFetchFailed)
		assert.Contains(t, err.Error(), "bad query")
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("retries exhausted", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		client := testClient(srv.URL, Config{PageSize: 10, MaxRetries: 2})
		_, err := client.Fetch(context.Background(), ports.FetchParams{})

		assert.ErrorIs(t, err, apperrors.ErrFetchFailed)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("cancelled context", func(t *testing.T) {
		srv := pagedServer(t, 10, nil)
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		client := testClient(srv.URL, Config{PageSize: 10, MaxRetries: 3})
		_, err := client.Fetch(ctx, ports.FetchParams{})

		assert.ErrorIs(t, err, apperrors.ErrFetchFailed)
	})
}
