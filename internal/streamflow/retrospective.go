// Package streamflow retrieves discharge series from NWM retrospective and
// forecast output, GEOGLOWS and USGS gauges, and turns them into the
// feature_id,discharge files consumed by the mapping program.
package streamflow

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/fimserve-service/internal/domain"
	"github.com/couchcryptid/fimserve-service/internal/hand"
	"github.com/couchcryptid/fimserve-service/internal/observability"
	"github.com/couchcryptid/fimserve-service/internal/workspace"
	"github.com/ubuntu/decorate"
	"golang.org/x/sync/errgroup"
)

const (
	sourceRetrospective = "retrospective"
	retroDir            = "nwm30_retrospective"
	windowLayout        = "20060102T15"
)

// ObjectFetcher downloads one object to a local file. Missing objects are
// reported as domain.ErrObjectNotFound.
type ObjectFetcher interface {
	Download(ctx context.Context, key, dest string) error
}

// Retrospective reads NWM v3.0 retrospective channel output.
type Retrospective struct {
	layout  workspace.Layout
	store   ObjectFetcher
	read    ChannelReader
	workers int
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewRetrospective creates a Retrospective reading CHRTOUT files from store.
func NewRetrospective(layout workspace.Layout, store ObjectFetcher, workers int, metrics *observability.Metrics, logger *slog.Logger) *Retrospective {
	if workers < 1 {
		workers = 1
	}
	return &Retrospective{
		layout:  layout,
		store:   store,
		read:    ReadChannelFile,
		workers: workers,
		metrics: metrics,
		logger:  logger,
	}
}

// RetrospectiveWindow is the series window fetched around d: one day either
// side of a date, one hour either side of a date and hour.
func RetrospectiveWindow(d domain.DateSpec) (start, end time.Time) {
	if d.HasHour {
		t := d.Time()
		return t.Add(-time.Hour), t.Add(time.Hour)
	}
	return d.Day.AddDate(0, 0, -1), d.Day.AddDate(0, 0, 1)
}

// CHRTOUTKey is the object key of the channel output valid at t.
func CHRTOUTKey(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("CONUS/netcdf/CHRTOUT/%04d/%s00.CHRTOUT_DOMAIN1", t.Year(), t.Format("2006010215"))
}

// CachePath is the parquet file caching the series of huc over [start, end].
func (r *Retrospective) CachePath(huc string, start, end time.Time) string {
	name := fmt.Sprintf("%s_%s.parquet", start.UTC().Format(windowLayout), end.UTC().Format(windowLayout))
	return filepath.Join(r.layout.DischargeDir(huc, retroDir), name)
}

// Generate fetches the series around d and writes the discharge file for d.
func (r *Retrospective) Generate(ctx context.Context, huc string, d domain.DateSpec) (string, error) {
	start, end := RetrospectiveWindow(d)
	series, err := r.FetchSeries(ctx, huc, start, end)
	if err != nil {
		return "", err
	}
	return r.Extract(huc, d, series)
}

// FetchSeries caches the hourly streamflow of every feature of huc over
// [start, end]. Hours that cannot be read are logged and skipped.
func (r *Retrospective) FetchSeries(ctx context.Context, huc string, start, end time.Time) (path string, err error) {
	defer decorate.OnError(&err, "fetch retrospective series for HUC %s", huc)

	path = r.CachePath(huc, start, end)
	if _, err := os.Stat(path); err == nil {
		r.logger.Info("retrospective series cached", "huc", huc, "path", path)
		return path, nil
	}

	ids, err := hand.ReadFeatureIDs(r.layout.FeatureIDs(huc))
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrMissingInputs, err)
	}
	want := idSet(ids)

	dir := r.layout.DischargeDir(huc, retroDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	scratch, err := os.MkdirTemp(dir, "chrtout-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(scratch)

	var (
		mu  sync.Mutex
		obs []domain.Observation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, t := range hourlySteps(start, end) {
		g.Go(func() error {
			values, err := r.fetchHour(gctx, scratch, t, want)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.metrics.StreamflowFiles.WithLabelValues(sourceRetrospective, "error").Inc()
				r.logger.Warn("retrospective hour skipped", "huc", huc, "time", t, "error", err)
				return nil
			}
			r.metrics.StreamflowFiles.WithLabelValues(sourceRetrospective, "success").Inc()
			mu.Lock()
			defer mu.Unlock()
			for fid, v := range values {
				obs = append(obs, domain.Observation{LocationID: domain.NWMLocationID(fid), ValueTime: t, Value: v})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	if len(obs) == 0 {
		return "", fmt.Errorf("no retrospective data between %s and %s", start.Format(time.DateTime), end.Format(time.DateTime))
	}

	slices.SortFunc(obs, func(a, b domain.Observation) int {
		if c := a.ValueTime.Compare(b.ValueTime); c != 0 {
			return c
		}
		return strings.Compare(a.LocationID, b.LocationID)
	})
	if err := writeSeries(path, obs); err != nil {
		return "", err
	}
	r.logger.Info("retrospective series written", "huc", huc, "path", path, "values", len(obs))
	return path, nil
}

func (r *Retrospective) fetchHour(ctx context.Context, dir string, t time.Time, want map[int64]struct{}) (map[int64]float64, error) {
	key := CHRTOUTKey(t)
	dest := filepath.Join(dir, filepath.Base(key))
	if err := r.store.Download(ctx, key, dest); err != nil {
		return nil, err
	}
	defer os.Remove(dest)
	return r.read(dest, want)
}

// Extract writes data/inputs/NWM_<label>_<huc>.csv from a cached series:
// the daily mean per feature for a date, the exact value for a date and hour.
func (r *Retrospective) Extract(huc string, d domain.DateSpec, seriesPath string) (string, error) {
	obs, err := ReadSeries(seriesPath)
	if err != nil {
		return "", err
	}
	ids, err := hand.ReadFeatureIDs(r.layout.FeatureIDs(huc))
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrMissingInputs, err)
	}
	want := idSet(ids)

	type acc struct {
		sum float64
		n   int
	}
	byFeature := make(map[int64]*acc)
	for _, o := range obs {
		fid, ok := parseNWMLocation(o.LocationID)
		if !ok {
			continue
		}
		if _, ok := want[fid]; !ok {
			continue
		}
		if d.HasHour {
			if !o.ValueTime.Equal(d.Time()) {
				continue
			}
		} else if !d.SameDay(o.ValueTime) {
			continue
		}
		a := byFeature[fid]
		if a == nil {
			a = &acc{}
			byFeature[fid] = a
		}
		a.sum += o.Value
		a.n++
	}
	if len(byFeature) == 0 {
		return "", fmt.Errorf("no retrospective values for HUC %s at %s", huc, d)
	}

	rows := make([]domain.Discharge, 0, len(byFeature))
	for fid, a := range byFeature {
		rows = append(rows, domain.Discharge{FeatureID: fid, Value: a.sum / float64(a.n)})
	}
	slices.SortFunc(rows, func(a, b domain.Discharge) int { return cmp.Compare(a.FeatureID, b.FeatureID) })

	out := filepath.Join(r.layout.InputsDir(), domain.DischargeFileName(huc, d))
	if err := writeDischargeCSV(out, rows); err != nil {
		return "", err
	}
	r.logger.Info("retrospective discharge written", "huc", huc, "date", d.String(), "path", out, "features", len(rows))
	return out, nil
}

// RunEventMap generates discharge files for every HUC and timestamp of
// events. HUCs that were never downloaded are skipped.
func (r *Retrospective) RunEventMap(ctx context.Context, events map[string][]string) ([]string, error) {
	hucs := make([]string, 0, len(events))
	for huc := range events {
		hucs = append(hucs, huc)
	}
	slices.Sort(hucs)

	var (
		written []string
		errs    []error
	)
	for _, huc := range hucs {
		if _, err := os.Stat(r.layout.HUCDir(huc)); err != nil {
			r.logger.Warn("HUC directory missing, download it first", "huc", huc)
			continue
		}
		if _, err := os.Stat(r.layout.FeatureIDs(huc)); err != nil {
			r.logger.Warn("feature IDs missing", "huc", huc)
			continue
		}
		for _, raw := range events[huc] {
			d, err := domain.ParseDateSpec(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("HUC %s: %w", huc, err))
				continue
			}
			path, err := r.Generate(ctx, huc, d)
			if err != nil {
				if ctx.Err() != nil {
					return written, ctx.Err()
				}
				errs = append(errs, err)
				continue
			}
			written = append(written, path)
		}
	}
	return written, errors.Join(errs...)
}

// RunRange caches the series of huc over [start, end] and extracts each of
// valueTimes from it.
func (r *Retrospective) RunRange(ctx context.Context, huc string, start, end domain.DateSpec, valueTimes []domain.DateSpec) ([]string, error) {
	if huc == "" || start.Day.IsZero() || end.Day.IsZero() || len(valueTimes) == 0 {
		return nil, errors.New("retrospective range needs a HUC, a start and end date and at least one value time")
	}
	last := end.Time()
	if !end.HasHour {
		last = end.Day.Add(23 * time.Hour)
	}
	series, err := r.FetchSeries(ctx, huc, start.Time(), last)
	if err != nil {
		return nil, err
	}
	var (
		written []string
		errs    []error
	)
	for _, d := range valueTimes {
		path, err := r.Extract(huc, d, series)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		written = append(written, path)
	}
	return written, errors.Join(errs...)
}

func hourlySteps(start, end time.Time) []time.Time {
	var out []time.Time
	for t := start.UTC().Truncate(time.Hour); !t.After(end); t = t.Add(time.Hour) {
		out = append(out, t)
	}
	return out
}

func parseNWMLocation(loc string) (int64, bool) {
	s, ok := strings.CutPrefix(loc, "nwm30-")
	if !ok {
		return 0, false
	}
	fid, err := strconv.ParseInt(s, 10, 64)
	return fid, err == nil
}
