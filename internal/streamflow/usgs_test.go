package streamflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/couchcryptid/fimserve-service/internal/domain"
	"github.com/couchcryptid/fimserve-service/internal/observability"
	"github.com/couchcryptid/fimserve-service/internal/workspace"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGauges struct {
	series map[string][]domain.Observation
}

func (f fakeGauges) SiteSeries(_ context.Context, site string, _, _ time.Time) ([]domain.Observation, error) {
	s, ok := f.series[site]
	if !ok {
		return nil, errors.New("site not found")
	}
	return s, nil
}

func TestUSGS_FetchAndReadBack(t *testing.T) {
	layout := workspace.New(t.TempDir())
	start := time.Date(2019, 9, 19, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	gauges := fakeGauges{series: map[string][]domain.Observation{
		"08066500": {
			{LocationID: "usgs-08066500", ValueTime: start.Add(time.Hour), Value: 28.3168},
			{LocationID: "usgs-08066500", ValueTime: start.Add(2 * time.Hour), Value: 30},
		},
		"08067000": {
			{LocationID: "usgs-08067000", ValueTime: start.Add(time.Hour), Value: 1.5},
		},
	}}
	u := NewUSGS(layout, gauges, observability.NewMetricsForTesting(), observability.NopLogger())

	path, err := u.Fetch(context.Background(), testHUC, []string{"08066500", "08067000", "00000000"}, start, end)
	require.NoError(t, err)
	assert.Equal(t, u.SeriesPath(testHUC, start, end), path)
	assert.FileExists(t, path)

	got, err := SeriesFile{Path: path}.SiteSeries(context.Background(), "08066500", start, start.Add(90*time.Minute))
	require.NoError(t, err)
	want := []domain.Observation{{LocationID: "usgs-08066500", ValueTime: start.Add(time.Hour), Value: 28.3168}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SiteSeries mismatch (-want +got):\n%s", diff)
	}
}

func TestUSGS_Fetch_Errors(t *testing.T) {
	u := NewUSGS(workspace.New(t.TempDir()), fakeGauges{}, observability.NewMetricsForTesting(), observability.NopLogger())
	start := time.Date(2019, 9, 19, 0, 0, 0, 0, time.UTC)

	_, err := u.Fetch(context.Background(), testHUC, nil, start, start)
	require.Error(t, err)

	_, err = u.Fetch(context.Background(), testHUC, []string{"08066500"}, start, start)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no USGS discharge")
}

func TestPackingUnpack(t *testing.T) {
	p := packing{scale: 0.01, fill: -999900, hasFill: true}
	v, ok := p.unpack(1234)
	assert.True(t, ok)
	assert.InDelta(t, 12.34, v, 1e-9)
	_, ok = p.unpack(-999900)
	assert.False(t, ok)

	f, ok := attrFloat([]float32{0.5})
	assert.True(t, ok)
	assert.InDelta(t, 0.5, f, 0)

	ids, err := toInt64s([]int32{7, 8})
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 8}, ids)
	_, err = toFloat64s("streamflow")
	require.Error(t, err)
}
