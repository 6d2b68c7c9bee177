package streamflow

import (
	"cmp"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/fimserve-service/internal/adapter/geoglows"
	"github.com/couchcryptid/fimserve-service/internal/domain"
	"github.com/couchcryptid/fimserve-service/internal/observability"
	"github.com/couchcryptid/fimserve-service/internal/workspace"
	"github.com/jonboulle/clockwork"
	"github.com/ubuntu/decorate"
	"golang.org/x/sync/errgroup"
)

const sourceGEOGLOWS = "geoglows"

// RiverSeriesFetcher returns the retrospective flow of one GEOGLOWS river.
type RiverSeriesFetcher interface {
	Retrospective(ctx context.Context, river int64, start, end time.Time) ([]geoglows.Point, error)
}

// GEOGLOWSRequest selects the rivers of a HUC around an event. Start and End
// default to one day either side of the event, capped at now.
type GEOGLOWSRequest struct {
	HUC        string
	EventTime  domain.DateSpec
	Hydrotable string // CSV mapping LINKNO to feature_id
	Start, End time.Time
}

// GEOGLOWSResult lists the files written by GEOGLOWS.Fetch.
type GEOGLOWSResult struct {
	WindowPath string
	ValuePath  string
	Rows       int
}

// GEOGLOWS retrieves GEOGLOWS retrospective flows keyed by NWM feature id.
type GEOGLOWS struct {
	layout  workspace.Layout
	client  RiverSeriesFetcher
	clock   clockwork.Clock
	workers int
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewGEOGLOWS creates a GEOGLOWS retriever.
func NewGEOGLOWS(layout workspace.Layout, client RiverSeriesFetcher, clock clockwork.Clock, workers int, metrics *observability.Metrics, logger *slog.Logger) *GEOGLOWS {
	if workers < 1 {
		workers = 1
	}
	return &GEOGLOWS{layout: layout, client: client, clock: clock, workers: workers, metrics: metrics, logger: logger}
}

type flowRow struct {
	featureID int64
	time      time.Time
	value     float64
}

// Fetch writes the full window to flood_<huc>/GEOGLOWS and the values at the
// event time to data/inputs/GeoGLOWS_<YYYYMMDD>_<huc>.csv.
func (g *GEOGLOWS) Fetch(ctx context.Context, req GEOGLOWSRequest) (res GEOGLOWSResult, err error) {
	defer decorate.OnError(&err, "fetch GEOGLOWS streamflow for HUC %s", req.HUC)

	links, err := readLinkMap(req.Hydrotable)
	if err != nil {
		return GEOGLOWSResult{}, err
	}

	event := req.EventTime.Time()
	start, end := req.Start, req.End
	if start.IsZero() || end.IsZero() {
		start = event.AddDate(0, 0, -1)
		end = event.AddDate(0, 0, 1)
		if now := g.clock.Now().UTC(); now.Before(end) {
			end = now
		}
	}

	var (
		mu   sync.Mutex
		rows []flowRow
	)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for _, l := range links {
		eg.Go(func() error {
			points, err := g.client.Retrospective(gctx, l.river, start, end)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				g.metrics.StreamflowFiles.WithLabelValues(sourceGEOGLOWS, "error").Inc()
				g.logger.Warn("GEOGLOWS river skipped", "huc", req.HUC, "river", l.river, "error", err)
				return nil
			}
			g.metrics.StreamflowFiles.WithLabelValues(sourceGEOGLOWS, "success").Inc()
			mu.Lock()
			defer mu.Unlock()
			for _, p := range points {
				if p.Time.Before(start) || p.Time.After(end) {
					continue
				}
				rows = append(rows, flowRow{featureID: l.featureID, time: p.Time, value: p.Value})
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return GEOGLOWSResult{}, err
	}
	if len(rows) == 0 {
		return GEOGLOWSResult{}, fmt.Errorf("no GEOGLOWS flows between %s and %s", start.Format(time.DateTime), end.Format(time.DateTime))
	}
	slices.SortFunc(rows, func(a, b flowRow) int {
		if c := a.time.Compare(b.time); c != 0 {
			return c
		}
		return cmp.Compare(a.featureID, b.featureID)
	})

	windowName := fmt.Sprintf("%s_%s_%s_streamflow.csv", req.HUC, start.Format(windowLayout), end.Format(windowLayout))
	res.WindowPath = filepath.Join(g.layout.HUCDir(req.HUC), "GEOGLOWS", windowName)
	if err := writeFlowWindow(res.WindowPath, rows); err != nil {
		return GEOGLOWSResult{}, err
	}

	var atEvent []domain.Discharge
	for _, r := range rows {
		if r.time.Equal(event) {
			atEvent = append(atEvent, domain.Discharge{FeatureID: r.featureID, Value: r.value})
		}
	}
	res.ValuePath = filepath.Join(g.layout.InputsDir(), fmt.Sprintf("GeoGLOWS_%s_%s.csv", req.EventTime.YMD(), req.HUC))
	if err := writeDischargeCSV(res.ValuePath, atEvent); err != nil {
		return GEOGLOWSResult{}, err
	}
	res.Rows = len(rows)

	g.logger.Info("GEOGLOWS streamflow written", "huc", req.HUC, "window", res.WindowPath,
		"path", res.ValuePath, "rows", len(rows), "event_rows", len(atEvent))
	return res, nil
}

type link struct {
	river     int64
	featureID int64
}

// readLinkMap reads the LINKNO and feature_id columns of a hydrotable. When
// a LINKNO repeats, the last feature id wins; rivers keep first-seen order.
func readLinkMap(path string) ([]link, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", filepath.Base(path), err)
	}
	linkCol, fidCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) {
		case "LINKNO":
			linkCol = i
		case "feature_id":
			fidCol = i
		}
	}
	if linkCol < 0 || fidCol < 0 {
		return nil, fmt.Errorf("%s needs LINKNO and feature_id columns", filepath.Base(path))
	}

	index := make(map[int64]int)
	var links []link
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		if linkCol >= len(row) || fidCol >= len(row) {
			continue
		}
		river, err1 := parseIntish(row[linkCol])
		fid, err2 := parseIntish(row[fidCol])
		if err1 != nil || err2 != nil {
			continue
		}
		if i, ok := index[river]; ok {
			links[i].featureID = fid
			continue
		}
		index[river] = len(links)
		links = append(links, link{river: river, featureID: fid})
	}
	if len(links) == 0 {
		return nil, fmt.Errorf("%s maps no rivers", filepath.Base(path))
	}
	return links, nil
}

func parseIntish(s string) (int64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

func writeFlowWindow(path string, rows []flowRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	_ = w.Write([]string{"feature_id", "discharge", "time"})
	for _, r := range rows {
		_ = w.Write([]string{strconv.FormatInt(r.featureID, 10), formatFlow(r.value), r.time.UTC().Format(time.DateTime)})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
