package streamflow

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/fimserve-service/internal/domain"
	"github.com/parquet-go/parquet-go"
)

// seriesRow is the on-disk layout of cached streamflow series.
type seriesRow struct {
	LocationID string  `parquet:"location_id"`
	ValueTime  int64   `parquet:"value_time"` // unix milliseconds, UTC
	Value      float64 `parquet:"value"`
}

// writeSeries atomically writes obs to path via a .tmp intermediate file.
func writeSeries(path string, obs []domain.Observation) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	rows := make([]seriesRow, len(obs))
	for i, o := range obs {
		rows[i] = seriesRow{LocationID: o.LocationID, ValueTime: o.ValueTime.UnixMilli(), Value: o.Value}
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := parquet.NewGenericWriter[seriesRow](f)
	if _, err := w.Write(rows); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// ReadSeries reads a parquet series written by this package.
func ReadSeries(path string) ([]domain.Observation, error) {
	rows, err := parquet.ReadFile[seriesRow](path)
	if err != nil {
		return nil, fmt.Errorf("read series %s: %w", filepath.Base(path), err)
	}
	obs := make([]domain.Observation, len(rows))
	for i, r := range rows {
		obs[i] = domain.Observation{
			LocationID: r.LocationID,
			ValueTime:  time.UnixMilli(r.ValueTime).UTC(),
			Value:      r.Value,
		}
	}
	return obs, nil
}

// SeriesFile serves gauge series from a parquet file written by USGS.Fetch.
type SeriesFile struct {
	Path string
}

// SiteSeries returns the observations of site within [start, end].
func (s SeriesFile) SiteSeries(_ context.Context, site string, start, end time.Time) ([]domain.Observation, error) {
	all, err := ReadSeries(s.Path)
	if err != nil {
		return nil, err
	}
	loc := domain.USGSLocationID(site)
	var out []domain.Observation
	for _, o := range all {
		if o.LocationID != loc || o.ValueTime.Before(start) || o.ValueTime.After(end) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// writeDischargeCSV writes the feature_id,discharge file read by the
// mapping program.
func writeDischargeCSV(path string, rows []domain.Discharge) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	_ = w.Write([]string{"feature_id", "discharge"})
	for _, r := range rows {
		_ = w.Write([]string{strconv.FormatInt(r.FeatureID, 10), formatFlow(r.Value)})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formatFlow(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func idSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
