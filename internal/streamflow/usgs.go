package streamflow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/couchcryptid/fimserve-service/internal/domain"
	"github.com/couchcryptid/fimserve-service/internal/observability"
	"github.com/couchcryptid/fimserve-service/internal/workspace"
)

const (
	sourceUSGS = "usgs"
	usgsDir    = "usgs_streamflow"
)

// USGS stores gauge discharge for a HUC as a parquet series.
type USGS struct {
	layout  workspace.Layout
	fetcher domain.SiteSeriesFetcher
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewUSGS creates a USGS retriever backed by fetcher.
func NewUSGS(layout workspace.Layout, fetcher domain.SiteSeriesFetcher, metrics *observability.Metrics, logger *slog.Logger) *USGS {
	return &USGS{layout: layout, fetcher: fetcher, metrics: metrics, logger: logger}
}

// SeriesPath is the parquet file holding the gauges of huc over [start, end].
func (u *USGS) SeriesPath(huc string, start, end time.Time) string {
	name := fmt.Sprintf("%s_%s.parquet", start.UTC().Format(windowLayout), end.UTC().Format(windowLayout))
	return filepath.Join(u.layout.DischargeDir(huc, usgsDir), name)
}

// Fetch writes the series of every site over [start, end], replacing any
// earlier file. Sites that fail are logged and left out.
func (u *USGS) Fetch(ctx context.Context, huc string, sites []string, start, end time.Time) (string, error) {
	if len(sites) == 0 {
		return "", fmt.Errorf("no USGS sites given for HUC %s", huc)
	}
	var obs []domain.Observation
	for _, site := range sites {
		series, err := u.fetcher.SiteSeries(ctx, site, start, end)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			u.metrics.StreamflowFiles.WithLabelValues(sourceUSGS, "error").Inc()
			u.logger.Warn("USGS site skipped", "huc", huc, "site", site, "error", err)
			continue
		}
		u.metrics.StreamflowFiles.WithLabelValues(sourceUSGS, "success").Inc()
		obs = append(obs, series...)
	}
	if len(obs) == 0 {
		return "", fmt.Errorf("no USGS discharge for HUC %s between %s and %s", huc,
			start.Format(time.DateTime), end.Format(time.DateTime))
	}

	path := u.SeriesPath(huc, start, end)
	if err := writeSeries(path, obs); err != nil {
		return "", fmt.Errorf("write USGS series: %w", err)
	}
	u.logger.Info("USGS discharge written", "huc", huc, "path", path, "sites", len(sites), "values", len(obs))
	return path, nil
}
