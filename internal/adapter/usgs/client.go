// Package usgs fetches gauge discharge from the USGS NWIS instantaneous
// values service.
package usgs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/fimserve-service/internal/domain"
	"github.com/couchcryptid/fimserve-service/internal/observability"
	"golang.org/x/time/rate"
)

// discharge, cubic feet per second
const parameterDischarge = "00060"

// Client implements domain.SiteSeriesFetcher using the NWIS IV API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an NWIS client limited to a few requests per second.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		limiter: rate.NewLimiter(rate.Limit(5), 1),
		metrics: metrics,
		logger:  logger,
	}
}

// SiteSeries returns the discharge of site between start and end, converted
// to m³/s. No-data values are dropped.
func (c *Client) SiteSeries(ctx context.Context, site string, start, end time.Time) ([]domain.Observation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{
		"format":      {"json"},
		"sites":       {site},
		"parameterCd": {parameterDischarge},
		"startDT":     {start.UTC().Format(time.RFC3339)},
		"endDT":       {end.UTC().Format(time.RFC3339)},
		"siteStatus":  {"all"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	began := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.USGSAPIDuration.Observe(time.Since(began).Seconds())
	if err != nil {
		c.metrics.USGSRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("usgs request for site %s: %w", site, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.USGSRequests.WithLabelValues("error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("usgs API error: status %d: %s", resp.StatusCode, body)
	}

	var ivResp response
	if err := json.NewDecoder(resp.Body).Decode(&ivResp); err != nil {
		c.metrics.USGSRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("decode response: %w", err)
	}

	obs := ivResp.observations(site, c.logger)
	outcome := "success"
	if len(obs) == 0 {
		outcome = "empty"
	}
	c.metrics.USGSRequests.WithLabelValues(outcome).Inc()
	return obs, nil
}

func (r response) observations(site string, logger *slog.Logger) []domain.Observation {
	var out []domain.Observation
	for _, ts := range r.Value.TimeSeries {
		for _, block := range ts.Values {
			for _, v := range block.Value {
				q, err := strconv.ParseFloat(v.Value, 64)
				if err != nil || q == ts.Variable.NoDataValue || q < 0 {
					continue
				}
				t, err := time.Parse(time.RFC3339Nano, v.DateTime)
				if err != nil {
					logger.Debug("skip usgs value with bad time", "site", site, "time", v.DateTime)
					continue
				}
				out = append(out, domain.Observation{
					LocationID: domain.USGSLocationID(site),
					ValueTime:  t.UTC(),
					Value:      q * domain.CubicFeetToMeters,
				})
			}
		}
	}
	return out
}

// NWIS IV response types.

type response struct {
	Value struct {
		TimeSeries []timeSeries `json:"timeSeries"`
	} `json:"value"`
}

type timeSeries struct {
	Variable struct {
		NoDataValue float64 `json:"noDataValue"`
	} `json:"variable"`
	Values []struct {
		Value []value `json:"value"`
	} `json:"values"`
}

type value struct {
	Value    string `json:"value"`
	DateTime string `json:"dateTime"`
}
