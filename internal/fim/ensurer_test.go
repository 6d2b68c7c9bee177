package fim

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/fimserve-service/internal/domain"
	"github.com/couchcryptid/fimserve-service/internal/observability"
	"github.com/couchcryptid/fimserve-service/internal/workspace"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerator optionally writes a raster into the layout when called.
type fakeGenerator struct {
	layout workspace.Layout
	write  string // raster name to produce, "" for none
	err    error
	calls  int
}

func (g *fakeGenerator) Generate(_ context.Context, huc string, _ domain.DateSpec) (string, error) {
	g.calls++
	if g.write != "" {
		dir := g.layout.InundationDir(huc)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(filepath.Join(dir, g.write), []byte("generated"), 0o644); err != nil {
			return "", err
		}
	}
	return "run-1", g.err
}

func newTestEnsurer(t *testing.T, gen *fakeGenerator, events EventSink) (*Ensurer, workspace.Layout) {
	t.Helper()
	layout := workspace.New(t.TempDir())
	if gen != nil {
		gen.layout = layout
	}
	var g ArtifactGenerator
	if gen != nil {
		g = gen
	}
	e := NewEnsurer(layout, g, events, clockwork.NewFakeClock(), observability.NewMetricsForTesting(), observability.NopLogger())
	return e, layout
}

func TestEnsurer_ExistingArtifactIsCopiedOnly(t *testing.T) {
	gen := &fakeGenerator{}
	events := &fakeEvents{}
	e, layout := newTestEnsurer(t, gen, events)
	src := writeArtifact(t, layout, exampleHUC, "NWM_20190919160000_10170203_inundation.tif")
	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, mtime, mtime))

	dest := filepath.Join(t.TempDir(), "bench")
	got, err := e.Ensure(context.Background(), exampleHUC, domain.MustParseDateSpec("2019-09-19 16"), dest, true)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dest, "NWM_20190919160000_10170203_inundation.tif"), got)
	assert.Zero(t, gen.calls)
	info, err := os.Stat(got)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
	assert.True(t, info.ModTime().Equal(mtime))
	assert.Equal(t, []string{domain.EventArtifactCopied}, events.types())
	assert.InDelta(t, 1, testutil.ToFloat64(e.metrics.Artifacts.WithLabelValues("copied")), 0)
}

func TestEnsurer_DayOnlyAcceptsAnyHour(t *testing.T) {
	e, layout := newTestEnsurer(t, nil, nil)
	writeArtifact(t, layout, exampleHUC, "NWM_20190919180000_10170203_inundation.tif")
	writeArtifact(t, layout, exampleHUC, "NWM_20190919060000_10170203_inundation.tif")
	writeArtifact(t, layout, exampleHUC, "NWM_20190920_10170203_inundation.tif")

	got := e.Find(exampleHUC, domain.MustParseDateSpec("2019-09-19"))
	assert.Equal(t, filepath.Join(layout.InundationDir(exampleHUC), "NWM_20190919060000_10170203_inundation.tif"), got)

	day := writeArtifact(t, layout, exampleHUC, "NWM_20190919_10170203_inundation.tif")
	assert.Equal(t, day, e.Find(exampleHUC, domain.MustParseDateSpec("20190919")))
}

func TestEnsurer_HourlyRequiresExactHour(t *testing.T) {
	e, layout := newTestEnsurer(t, nil, nil)
	writeArtifact(t, layout, exampleHUC, "NWM_20190919_10170203_inundation.tif")
	writeArtifact(t, layout, exampleHUC, "NWM_20190919180000_10170203_inundation.tif")

	assert.Empty(t, e.Find(exampleHUC, domain.MustParseDateSpec("2019-09-19 16")))
}

func TestEnsurer_MissingWithoutGenerationHasNoSideEffects(t *testing.T) {
	gen := &fakeGenerator{write: "NWM_20190919_10170203_inundation.tif"}
	events := &fakeEvents{}
	e, layout := newTestEnsurer(t, gen, events)
	dest := filepath.Join(t.TempDir(), "bench")

	got, err := e.Ensure(context.Background(), exampleHUC, domain.MustParseDateSpec("2019-09-19"), dest, false)
	require.NoError(t, err)

	assert.Empty(t, got)
	assert.Zero(t, gen.calls)
	assert.Empty(t, events.events)
	assert.NoDirExists(t, dest)
	assert.NoDirExists(t, layout.InundationDir(exampleHUC))
}

func TestEnsurer_GeneratesWhenMissing(t *testing.T) {
	gen := &fakeGenerator{write: "NWM_20190919160000_10170203_inundation.tif"}
	events := &fakeEvents{}
	e, _ := newTestEnsurer(t, gen, events)
	dest := t.TempDir()

	got, err := e.Ensure(context.Background(), exampleHUC, domain.MustParseDateSpec("2019-09-19T16"), dest, true)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dest, "NWM_20190919160000_10170203_inundation.tif"), got)
	assert.Equal(t, 1, gen.calls)
	require.Len(t, events.events, 1)
	assert.Equal(t, domain.EventArtifactGenerated, events.events[0].Type)
	assert.Equal(t, "run-1", events.events[0].RunID)
	assert.Equal(t, "2019-09-19 16:00:00", events.events[0].Date)
	assert.InDelta(t, 1, testutil.ToFloat64(e.metrics.Artifacts.WithLabelValues("generated")), 0)
}

func TestEnsurer_GeneratedDayOnlyRechecksAnyHour(t *testing.T) {
	gen := &fakeGenerator{write: "NWM_20190919000000_10170203_inundation.tif"}
	e, _ := newTestEnsurer(t, gen, nil)

	got, err := e.Ensure(context.Background(), exampleHUC, domain.MustParseDateSpec("2019-09-19"), t.TempDir(), true)
	require.NoError(t, err)
	assert.Equal(t, "NWM_20190919000000_10170203_inundation.tif", filepath.Base(got))
}

func TestEnsurer_GeneratorFailureIsAbsence(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("mapping program exited 1")}
	events := &fakeEvents{err: errors.New("broker down")}
	e, _ := newTestEnsurer(t, gen, events)

	got, err := e.Ensure(context.Background(), exampleHUC, domain.MustParseDateSpec("2019-09-19"), t.TempDir(), true)
	require.NoError(t, err)

	assert.Empty(t, got)
	assert.Equal(t, []string{domain.EventArtifactMissing}, events.types())
	assert.InDelta(t, 1, testutil.ToFloat64(e.metrics.Artifacts.WithLabelValues("missing")), 0)
}

func TestEnsurer_CancelledGeneration(t *testing.T) {
	gen := &fakeGenerator{err: context.Canceled}
	e, _ := newTestEnsurer(t, gen, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Ensure(ctx, exampleHUC, domain.MustParseDateSpec("2019-09-19"), t.TempDir(), true)
	require.ErrorIs(t, err, context.Canceled)
}
