package streamflow

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/fimserve-service/internal/domain"
	"github.com/couchcryptid/fimserve-service/internal/hand"
	"github.com/couchcryptid/fimserve-service/internal/observability"
	"github.com/couchcryptid/fimserve-service/internal/workspace"
	"github.com/jonboulle/clockwork"
	"github.com/ubuntu/decorate"
	"golang.org/x/sync/errgroup"
)

const (
	sourceForecast      = "forecast"
	maxForecastAttempts = 24
)

// ErrNoForecast is returned when no forecast cycle could be found.
var ErrNoForecast = errors.New("no forecast files found")

// ForecastRange is an NWM operational configuration.
type ForecastRange string

const (
	ShortRange  ForecastRange = "shortrange"
	MediumRange ForecastRange = "mediumrange"
	LongRange   ForecastRange = "longrange"
)

// ParseForecastRange accepts "shortrange", "short_range", "short-range" and
// "short range" spellings of each range.
func ParseForecastRange(s string) (ForecastRange, error) {
	norm := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch r := ForecastRange(norm); r {
	case ShortRange, MediumRange, LongRange:
		return r, nil
	}
	return "", fmt.Errorf("unknown forecast range %q", s)
}

// Aggregation reduces the values of one day of a medium or long range run.
type Aggregation string

const (
	Minimum Aggregation = "minimum"
	Median  Aggregation = "median"
	Maximum Aggregation = "maximum"
)

// ParseAggregation defaults to Maximum.
func ParseAggregation(s string) (Aggregation, error) {
	switch a := Aggregation(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return Maximum, nil
	case Minimum, Median, Maximum:
		return a, nil
	}
	return "", fmt.Errorf("unknown aggregation %q (want minimum, median or maximum)", s)
}

// AdjustHour maps hour onto a cycle the range is issued at: any hour up to
// 23 for short range, the latest of 00/06/12/18 otherwise.
func AdjustHour(hour int, r ForecastRange) int {
	switch r {
	case ShortRange:
		return min(max(hour, 0), 23)
	case MediumRange, LongRange:
		return max(hour, 0) / 6 * 6
	}
	return hour
}

func cycleStep(r ForecastRange) int {
	if r == ShortRange {
		return 1
	}
	return 6
}

var (
	memberSwitchStart = time.Date(2018, 9, 17, 0, 0, 0, 0, time.UTC)
	memberSwitchEnd   = time.Date(2019, 6, 18, 0, 0, 0, 0, time.UTC)
)

// ForecastProduct is the bucket directory of r on day. Medium range runs
// between 2018-09-17 and 2019-06-18 were published without a member suffix.
func ForecastProduct(r ForecastRange, day time.Time) string {
	switch r {
	case ShortRange:
		return "short_range"
	case MediumRange:
		if !day.Before(memberSwitchStart) && !day.After(memberSwitchEnd) {
			return "medium_range"
		}
		return "medium_range_mem1"
	case LongRange:
		return "long_range_mem1"
	}
	return string(r)
}

// ForecastFiles lists the channel files of one cycle of product.
func ForecastFiles(product string, cycle int) []string {
	var (
		stem        string
		first, last int
		step        int
	)
	switch product {
	case "short_range":
		stem, first, last, step = "short_range.channel_rt", 1, 17, 1
	case "medium_range":
		stem, first, last, step = "medium_range.channel_rt", 3, 237, 3
	case "medium_range_mem1":
		stem, first, last, step = "medium_range.channel_rt_1", 3, 237, 3
	case "long_range_mem1":
		stem, first, last, step = "long_range.channel_rt_1", 6, 714, 6
	default:
		return nil
	}
	files := make([]string, 0, (last-first)/step+1)
	for f := first; f <= last; f += step {
		files = append(files, fmt.Sprintf("nwm.t%02dz.%s.f%03d.conus.nc", cycle, stem, f))
	}
	return files
}

// ForecastKey is the object key of file in the product directory for day.
func ForecastKey(day time.Time, product, file string) string {
	return fmt.Sprintf("nwm.%s/%s/%s", day.Format("20060102"), product, file)
}

var leadPattern = regexp.MustCompile(`\.f(\d{3})\.`)

func leadHours(file string) (int, bool) {
	m := leadPattern.FindStringSubmatch(file)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	return n, err == nil
}

// ForecastRequest selects a forecast run. A zero Date means today and a nil
// Hour means the current hour, both in UTC.
type ForecastRequest struct {
	HUC       string
	Range     ForecastRange
	Date      time.Time
	Hour      *int
	Aggregate Aggregation
}

// Forecast reads NWM operational forecasts.
type Forecast struct {
	layout  workspace.Layout
	store   ObjectFetcher
	read    ChannelReader
	clock   clockwork.Clock
	workers int
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewForecast creates a Forecast reading channel files from store.
func NewForecast(layout workspace.Layout, store ObjectFetcher, clock clockwork.Clock, workers int, metrics *observability.Metrics, logger *slog.Logger) *Forecast {
	if workers < 1 {
		workers = 1
	}
	return &Forecast{
		layout:  layout,
		store:   store,
		read:    ReadChannelFile,
		clock:   clock,
		workers: workers,
		metrics: metrics,
		logger:  logger,
	}
}

// Fetch finds the requested cycle, stepping back one cycle at a time for up
// to 24 attempts, and writes discharge files into data/inputs. Short range
// yields one file per valid hour; medium and long range one file per day.
func (f *Forecast) Fetch(ctx context.Context, req ForecastRequest) (written []string, err error) {
	defer decorate.OnError(&err, "fetch %s forecast for HUC %s", req.Range, req.HUC)

	if _, err := ParseForecastRange(string(req.Range)); err != nil {
		return nil, err
	}
	agg := req.Aggregate
	if agg == "" {
		agg = Maximum
	}
	ids, err := hand.ReadFeatureIDs(f.layout.FeatureIDs(req.HUC))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMissingInputs, err)
	}

	now := f.clock.Now().UTC()
	day := now.Truncate(24 * time.Hour)
	if !req.Date.IsZero() {
		y, m, d := req.Date.Date()
		day = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	hour := now.Hour()
	if req.Hour != nil {
		hour = *req.Hour
	}
	hour = AdjustHour(hour, req.Range)

	workDir := f.layout.DischargeDir(req.HUC, string(req.Range)+"_forecast")
	defer os.RemoveAll(workDir)

	var files []string
	for attempt := 1; attempt <= maxForecastAttempts; attempt++ {
		f.logger.Info("downloading forecast cycle", "huc", req.HUC, "range", req.Range,
			"date", day.Format(time.DateOnly), "cycle", hour, "attempt", attempt)
		files, err = f.downloadCycle(ctx, workDir, req.Range, day, hour)
		if err != nil {
			return nil, err
		}
		if len(files) > 0 {
			break
		}
		hour -= cycleStep(req.Range)
		if hour < 0 {
			hour += 24
			day = day.AddDate(0, 0, -1)
		}
	}
	if len(files) == 0 {
		return nil, ErrNoForecast
	}

	series := make(map[string]map[int64]float64, len(files))
	want := idSet(ids)
	for _, path := range files {
		values, err := f.read(path, want)
		if err != nil {
			f.logger.Warn("forecast file unreadable", "path", path, "error", err)
			continue
		}
		series[filepath.Base(path)] = values
	}

	if req.Range == ShortRange {
		return f.writeHourly(req.HUC, ids, series, day, hour)
	}
	return f.writeDaily(req.HUC, req.Range, agg, ids, series, day, hour)
}

// downloadCycle fetches every file of one cycle and returns the local paths
// of those that exist.
func (f *Forecast) downloadCycle(ctx context.Context, workDir string, r ForecastRange, day time.Time, cycle int) ([]string, error) {
	product := ForecastProduct(r, day)
	dir := filepath.Join(workDir, "netCDF", day.Format("20060102"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		paths []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	for _, name := range ForecastFiles(product, cycle) {
		g.Go(func() error {
			dest := filepath.Join(dir, name)
			err := f.store.Download(gctx, ForecastKey(day, product, name), dest)
			switch {
			case err == nil:
				f.metrics.StreamflowFiles.WithLabelValues(sourceForecast, "success").Inc()
				mu.Lock()
				paths = append(paths, dest)
				mu.Unlock()
			case gctx.Err() != nil:
				return gctx.Err()
			case errors.Is(err, domain.ErrObjectNotFound):
				f.logger.Debug("forecast file not published", "file", name)
			default:
				f.metrics.StreamflowFiles.WithLabelValues(sourceForecast, "error").Inc()
				f.logger.Warn("forecast file download failed", "file", name, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slices.Sort(paths)
	return paths, nil
}

// ShortRangeFileName names the discharge file of one valid hour.
func ShortRangeFileName(huc string, valid time.Time) string {
	return fmt.Sprintf("shortrange_%s_%02dUTC_%s.csv", valid.Format("20060102"), valid.Hour(), huc)
}

// DailyForecastFileName names the aggregated discharge file of one day.
func DailyForecastFileName(huc string, r ForecastRange, cycle int, day time.Time) string {
	return fmt.Sprintf("%02dUTC_%s_%s_%s.csv", cycle, r, day.Format("20060102"), huc)
}

func (f *Forecast) writeHourly(huc string, ids []int64, series map[string]map[int64]float64, day time.Time, cycle int) ([]string, error) {
	issued := day.Add(time.Duration(cycle) * time.Hour)
	var written []string
	for _, name := range sortedKeys(series) {
		lead, ok := leadHours(name)
		if !ok {
			continue
		}
		valid := issued.Add(time.Duration(lead) * time.Hour)
		out := filepath.Join(f.layout.InputsDir(), ShortRangeFileName(huc, valid))
		if err := writeDischargeCSV(out, orderedRows(ids, series[name])); err != nil {
			return written, err
		}
		written = append(written, out)
	}
	f.logger.Info("short range discharge written", "huc", huc, "files", len(written))
	return written, nil
}

func (f *Forecast) writeDaily(huc string, r ForecastRange, agg Aggregation, ids []int64, series map[string]map[int64]float64, day time.Time, cycle int) ([]string, error) {
	groups := make(map[int][]map[int64]float64)
	for _, name := range sortedKeys(series) {
		lead, ok := leadHours(name)
		if !ok {
			f.logger.Warn("forecast file name has no lead time", "file", name)
			continue
		}
		offset := (lead + cycle) / 24
		groups[offset] = append(groups[offset], series[name])
	}

	offsets := make([]int, 0, len(groups))
	for o := range groups {
		offsets = append(offsets, o)
	}
	slices.Sort(offsets)

	var written []string
	for _, o := range offsets {
		rows := aggregateDay(ids, groups[o], agg)
		out := filepath.Join(f.layout.InputsDir(), DailyForecastFileName(huc, r, cycle, day.AddDate(0, 0, o)))
		if err := writeDischargeCSV(out, rows); err != nil {
			return written, err
		}
		written = append(written, out)
	}
	f.logger.Info("daily forecast discharge written", "huc", huc, "range", r, "aggregate", agg, "files", len(written))
	return written, nil
}

// aggregateDay reduces the values of each feature across files.
func aggregateDay(ids []int64, files []map[int64]float64, agg Aggregation) []domain.Discharge {
	seen := make(map[int64]bool, len(ids))
	var rows []domain.Discharge
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		var vals []float64
		for _, values := range files {
			if v, ok := values[id]; ok {
				vals = append(vals, v)
			}
		}
		if len(vals) == 0 {
			continue
		}
		rows = append(rows, domain.Discharge{FeatureID: id, Value: reduce(vals, agg)})
	}
	slices.SortFunc(rows, func(a, b domain.Discharge) int { return cmp.Compare(a.FeatureID, b.FeatureID) })
	return rows
}

func reduce(vals []float64, agg Aggregation) float64 {
	slices.Sort(vals)
	switch agg {
	case Minimum:
		return vals[0]
	case Median:
		n := len(vals)
		if n%2 == 1 {
			return vals[n/2]
		}
		return (vals[n/2-1] + vals[n/2]) / 2
	}
	return vals[len(vals)-1]
}

// orderedRows keeps the order of the feature-ID list.
func orderedRows(ids []int64, values map[int64]float64) []domain.Discharge {
	rows := make([]domain.Discharge, 0, len(values))
	for _, id := range ids {
		if v, ok := values[id]; ok {
			rows = append(rows, domain.Discharge{FeatureID: id, Value: v})
		}
	}
	return rows
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
