// Package socrata pulls NYC 311 service requests from the Socrata open data API.
package socrata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lorrc/service-request-analytics/internal/core/domain"
	apperrors "github.com/lorrc/service-request-analytics/internal/core/errors"
	"github.com/lorrc/service-request-analytics/internal/core/ports"
)

// SoQL timestamps are floating (no zone).
const soqlTime = "2006-01-02T15:04:05"

var selectFields = []string{
	"unique_key", "created_date", "closed_date", "agency", "agency_name",
	"complaint_type", "descriptor", "status", "borough",
}

// Config configures the client.
type Config struct {
	BaseURL       string
	AppToken      string
	Timeout       time.Duration
	PageSize      int
	MaxRecords    int
	MaxRetries    int
	RetryInterval time.Duration
}

// Client is a ports.RecordSource backed by a Socrata dataset endpoint.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

var _ ports.RecordSource = (*Client)(nil)

// NewClient creates a new client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50000
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Name identifies the source in reports.
func (c *Client) Name() string {
	return "socrata"
}

// Fetch pages through the dataset until the window is exhausted or the
// record limit is reached.
func (c *Client) Fetch(ctx context.Context, params ports.FetchParams) ([]domain.RawRecord, error) {
	limit := c.cfg.MaxRecords
	if params.Limit > 0 && (limit <= 0 || params.Limit < limit) {
		limit = params.Limit
	}

	records := make([]domain.RawRecord, 0)
	for offset := 0; limit <= 0 || offset < limit; {
		pageSize := c.cfg.PageSize
		if limit > 0 && limit-offset < pageSize {
			pageSize = limit - offset
		}

		page, err := c.fetchPage(ctx, buildQuery(params, pageSize, offset))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrFetchFailed, err)
		}
		records = append(records, page...)

		c.logger.DebugContext(ctx, "fetched page",
			"offset", offset,
			"rows", len(page),
		)

		if len(page) < pageSize {
			break
		}
		offset += len(page)
	}

	c.logger.InfoContext(ctx, "fetch completed",
		"source", c.Name(),
		"records", len(records),
	)
	return records, nil
}

func (c *Client) fetchPage(ctx context.Context, query url.Values) ([]domain.RawRecord, error) {
	endpoint := c.cfg.BaseURL + "?" + query.Encode()

	var page []domain.RawRecord
	attempt := 0
	err := backoff.Retry(
		func() error {
			attempt++
			rows, err := c.get(ctx, endpoint)
			if err != nil {
				c.logger.WarnContext(ctx, "page request failed",
					"attempt", attempt,
					"error", err,
				)
				return err
			}
			page = rows
			return nil
		},
		backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.RetryInterval), uint64(max(c.cfg.MaxRetries, 0))),
			ctx,
		),
	)
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]domain.RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.AppToken != "" {
		req.Header.Set("X-App-Token", c.cfg.AppToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		// Client errors other than throttling will not succeed on retry.
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(statusErr)
		}
		return nil, statusErr
	}

	var rows []domain.RawRecord
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		if errors.Is(err, io.EOF) {
			return []domain.RawRecord{}, nil
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return rows, nil
}

func buildQuery(params ports.FetchParams, limit, offset int) url.Values {
	q := url.Values{}
	q.Set("$select", strings.Join(selectFields, ","))
	q.Set("$order", "created_date,unique_key")
	q.Set("$limit", strconv.Itoa(limit))
	q.Set("$offset", strconv.Itoa(offset))

	var where []string
	if !params.From.IsZero() {
		where = append(where, fmt.Sprintf("created_date >= '%s'", params.From.Format(soqlTime)))
	}
	if !params.To.IsZero() {
		where = append(where, fmt.Sprintf("created_date < '%s'", params.To.Format(soqlTime)))
	}
	if agency := strings.ToUpper(strings.TrimSpace(params.Agency)); agency != "" {
		where = append(where, fmt.Sprintf("agency = '%s'", strings.ReplaceAll(agency, "'", "''")))
	}
	if len(where) > 0 {
		q.Set("$where", strings.Join(where, " AND "))
	}
	return q
}
