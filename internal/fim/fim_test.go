package fim

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/couchcryptid/fimserve-service/internal/adapter/s3"
	"github.com/couchcryptid/fimserve-service/internal/domain"
	"github.com/couchcryptid/fimserve-service/internal/observability"
	"github.com/couchcryptid/fimserve-service/internal/workspace"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

const exampleHUC = "10170203"

// catalogFixture mirrors a small slice of catalog_core.json.
func catalogFixture() []domain.Record {
	return []domain.Record{
		{
			HUC8:        exampleHUC,
			DateOfFlood: "20190919T165541",
			FileName:    "PSS_1_0m_20190919T165541_BM.tif",
			Tier:        "Tier_1",
			ResolutionM: domain.Resolution{Meters: 1, Valid: true},
			S3Key:       "FIM_Database/HUC10170203/PSS/PSS_1_0m_20190919T165541_BM.tif",
		},
		{
			HUC8:     exampleHUC,
			DateYMD:  "2019-09-20",
			DateRaw:  "20190920",
			FileName: "HWM_20190920_BM.tif",
			Tier:     "Tier_2",
			S3Key:    "FIM_Database/HUC10170203/HWM/HWM_20190920_BM.tif",
		},
		{
			HUC8:         exampleHUC,
			Site:         "Sandy Creek",
			ReturnPeriod: "100",
			FileName:     "synthetic_100yr.tif",
			S3Key:        "FIM_Database/HUC10170203/Synthetic/synthetic_100yr.tif",
		},
		{
			HUC8:     "12090301",
			DateRaw:  "20170830",
			FileName: "shared_BM.tif",
			S3Key:    "FIM_Database/HUC12090301/Harvey/shared_BM.tif",
		},
	}
}

type fakeCatalog struct {
	recs  []domain.Record
	err   error
	calls int
}

func (f *fakeCatalog) Records(context.Context) ([]domain.Record, error) {
	f.calls++
	return f.recs, f.err
}

// fakeAssets serves objects from memory and records every download.
type fakeAssets struct {
	mu        sync.Mutex
	objects   map[string]string
	downloads []string
	failKey   string
}

func newFakeAssets() *fakeAssets {
	return &fakeAssets{objects: map[string]string{
		"FIM_Database/HUC10170203/PSS/PSS_1_0m_20190919T165541_BM.tif": "tif",
		"FIM_Database/HUC10170203/PSS/PSS_boundary.gpkg":                "gpkg",
		"FIM_Database/HUC10170203/PSS/README.txt":                       "txt",
		"FIM_Database/HUC10170203/HWM/HWM_20190920_BM.tif":              "tif",
		"FIM_Database/HUC10170203/Synthetic/synthetic_100yr.tif":        "tif",
		"FIM_Database/HUC12090301/Harvey/shared_BM.tif":                 "tif",
		"FIM_Database/HUC12090301/Harvey/Harvey.GPKG":                   "gpkg",
	}}
}

func (f *fakeAssets) Download(_ context.Context, key, dest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if key == f.failKey {
		return errors.New("access denied")
	}
	body, ok := f.objects[key]
	if !ok {
		return domain.ErrObjectNotFound
	}
	f.downloads = append(f.downloads, key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, []byte(body), 0o644)
}

func (f *fakeAssets) List(_ context.Context, prefix string) ([]s3.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []s3.Object
	for k, v := range f.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, s3.Object{Key: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

type fakeEvents struct {
	events []domain.Event
	err    error
}

func (f *fakeEvents) Publish(_ context.Context, events ...domain.Event) error {
	f.events = append(f.events, events...)
	return f.err
}

func (f *fakeEvents) types() []string {
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

type ensureCall struct {
	HUC      string
	Date     domain.DateSpec
	Dest     string
	Generate bool
}

type fakeEnsurer struct {
	found bool
	err   error
	calls []ensureCall
}

func (f *fakeEnsurer) Ensure(_ context.Context, huc string, d domain.DateSpec, dest string, generate bool) (string, error) {
	f.calls = append(f.calls, ensureCall{HUC: huc, Date: d, Dest: dest, Generate: generate})
	if f.err != nil || !f.found {
		return "", f.err
	}
	return filepath.Join(dest, domain.ArtifactName(huc, d)), nil
}

func newTestService(t *testing.T, cat *fakeCatalog, assets *fakeAssets, ens ArtifactEnsurer, events EventSink) *Service {
	t.Helper()
	return NewService(cat, assets, ens, events, t.TempDir(),
		clockwork.NewFakeClock(), observability.NewMetricsForTesting(), observability.NopLogger())
}

func writeArtifact(t *testing.T, layout workspace.Layout, huc, name string) string {
	t.Helper()
	dir := layout.InundationDir(huc)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(name), 0o640))
	return path
}
