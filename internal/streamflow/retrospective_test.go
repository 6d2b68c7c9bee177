package streamflow

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/fimserve-service/internal/domain"
	"github.com/couchcryptid/fimserve-service/internal/observability"
	"github.com/couchcryptid/fimserve-service/internal/workspace"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hourAt(day, hour int) time.Time {
	return time.Date(2019, 9, day, hour, 0, 0, 0, time.UTC)
}

func newTestRetrospective(t *testing.T) (*Retrospective, *fakeStore, workspace.Layout) {
	t.Helper()
	layout := workspace.New(t.TempDir())
	writeFeatureIDs(t, layout, testHUC, "feature_id\n101\n102\n")

	store := newFakeStore()
	store.objects[CHRTOUTKey(hourAt(18, 23))] = map[int64]float64{101: 99, 102: 99}
	store.objects[CHRTOUTKey(hourAt(19, 0))] = map[int64]float64{101: 10, 102: 1}
	store.objects[CHRTOUTKey(hourAt(19, 1))] = map[int64]float64{101: 20, 103: 5}

	r := NewRetrospective(layout, store, 4, observability.NewMetricsForTesting(), observability.NopLogger())
	r.read = store.reader()
	return r, store, layout
}

func TestCHRTOUTKey(t *testing.T) {
	assert.Equal(t, "CONUS/netcdf/CHRTOUT/2019/201909191600.CHRTOUT_DOMAIN1", CHRTOUTKey(hourAt(19, 16)))
}

func TestRetrospectiveWindow(t *testing.T) {
	start, end := RetrospectiveWindow(domain.MustParseDateSpec("2019-09-19"))
	assert.Equal(t, hourAt(18, 0), start)
	assert.Equal(t, hourAt(20, 0), end)

	start, end = RetrospectiveWindow(domain.MustParseDateSpec("2019-09-19 16"))
	assert.Equal(t, hourAt(19, 15), start)
	assert.Equal(t, hourAt(19, 17), end)
}

func TestRetrospective_Generate_DailyMean(t *testing.T) {
	r, store, layout := newTestRetrospective(t)
	d := domain.MustParseDateSpec("2019-09-19")

	path, err := r.Generate(context.Background(), testHUC, d)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(layout.InputsDir(), "NWM_20190919_10170203.csv"), path)
	assert.Equal(t, "feature_id,discharge\n101,15\n102,1\n", readFile(t, path))
	assert.Equal(t, 49, store.callCount())
	assert.InDelta(t, 3, testutil.ToFloat64(r.metrics.StreamflowFiles.WithLabelValues(sourceRetrospective, "success")), 0)
	assert.InDelta(t, 46, testutil.ToFloat64(r.metrics.StreamflowFiles.WithLabelValues(sourceRetrospective, "error")), 0)

	start, end := RetrospectiveWindow(d)
	assert.FileExists(t, r.CachePath(testHUC, start, end))

	_, err = r.Generate(context.Background(), testHUC, d)
	require.NoError(t, err)
	assert.Equal(t, 49, store.callCount(), "cached series is reused")
}

func TestRetrospective_Generate_ExactHour(t *testing.T) {
	r, _, layout := newTestRetrospective(t)

	path, err := r.Generate(context.Background(), testHUC, domain.MustParseDateSpec("2019-09-19 01"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(layout.InputsDir(), "NWM_20190919010000_10170203.csv"), path)
	assert.Equal(t, "feature_id,discharge\n101,20\n", readFile(t, path))
}

func TestRetrospective_Generate_NoData(t *testing.T) {
	r, _, _ := newTestRetrospective(t)

	_, err := r.Generate(context.Background(), testHUC, domain.MustParseDateSpec("2020-01-01"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no retrospective data")
}

func TestRetrospective_Generate_MissingInputs(t *testing.T) {
	r, _, _ := newTestRetrospective(t)

	_, err := r.Generate(context.Background(), "99999999", domain.MustParseDateSpec("2019-09-19"))
	require.ErrorIs(t, err, domain.ErrMissingInputs)
}

func TestRetrospective_SkipsFailingHours(t *testing.T) {
	r, store, _ := newTestRetrospective(t)
	store.failing[CHRTOUTKey(hourAt(19, 1))] = errors.New("connection reset")

	path, err := r.Generate(context.Background(), testHUC, domain.MustParseDateSpec("2019-09-19"))
	require.NoError(t, err)
	assert.Equal(t, "feature_id,discharge\n101,10\n102,1\n", readFile(t, path))
}

func TestRetrospective_RunEventMap(t *testing.T) {
	r, _, _ := newTestRetrospective(t)

	written, err := r.RunEventMap(context.Background(), map[string][]string{
		testHUC:    {"2019-09-19", "2019-09-19 01:00:00"},
		"12090301": {"2019-09-19"},
	})
	require.NoError(t, err)
	assert.Len(t, written, 2)
}

func TestRetrospective_RunEventMap_BadDate(t *testing.T) {
	r, _, _ := newTestRetrospective(t)

	written, err := r.RunEventMap(context.Background(), map[string][]string{testHUC: {"not a date", "2019-09-19"}})
	require.ErrorIs(t, err, domain.ErrBadDate)
	assert.Len(t, written, 1)
}

func TestRetrospective_RunRange(t *testing.T) {
	r, store, _ := newTestRetrospective(t)

	written, err := r.RunRange(context.Background(), testHUC,
		domain.MustParseDateSpec("2019-09-19"), domain.MustParseDateSpec("2019-09-19"),
		[]domain.DateSpec{domain.MustParseDateSpec("2019-09-19"), domain.MustParseDateSpec("2019-09-19 00")})
	require.NoError(t, err)
	require.Len(t, written, 2)
	assert.Equal(t, 24, store.callCount())
	assert.Equal(t, "feature_id,discharge\n101,10\n102,1\n", readFile(t, written[1]))

	_, err = r.RunRange(context.Background(), testHUC, domain.DateSpec{}, domain.DateSpec{}, nil)
	require.Error(t, err)
}
