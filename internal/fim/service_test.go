package fim

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/fimserve-service/internal/domain"
	"github.com/couchcryptid/fimserve-service/internal/workspace"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Query_HourlyRecordStrictHit(t *testing.T) {
	svc := newTestService(t, &fakeCatalog{recs: catalogFixture()}, newFakeAssets(), &fakeEnsurer{}, nil)

	res, err := svc.Query(context.Background(), domain.Query{HUC: exampleHUC, Date: "2019-09-19 16:00:00"})
	require.NoError(t, err)

	assert.Equal(t, StatusOK, res.Status)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "PSS_1_0m_20190919T165541_BM.tif", res.Matches[0].FileName)
	assert.Equal(t,
		"Found 1 record(s) for HUC 10170203 and '2019-09-19 16:00:00'\n"+
			"Available benchmark dates on HUC 10170203: days: 2019-09-19, 2019-09-20 | hourly: 2019-09-19T16",
		res.Message)
	assert.InDelta(t, 1, testutil.ToFloat64(svc.metrics.CatalogQueries.WithLabelValues(StatusOK)), 0)
}

func TestService_Query_DayOnlyMissesHourlyRecordButListsIt(t *testing.T) {
	svc := newTestService(t, &fakeCatalog{recs: catalogFixture()}, newFakeAssets(), &fakeEnsurer{}, nil)

	res, err := svc.Query(context.Background(), domain.Query{HUC: exampleHUC, Date: "2019-09-19"})
	require.NoError(t, err)

	assert.Equal(t, StatusNotFound, res.Status)
	assert.Empty(t, res.Matches)
	assert.Contains(t, res.Message, "No match for HUC 10170203 and '2019-09-19'\n")
	assert.Equal(t,
		"Data Tier: Tier_1\nBenchmark FIM date: 2019-09-19T16\nSpatial Resolution: 1m\nRaster Filename in DB: PSS_1_0m_20190919T165541_BM.tif",
		res.Printable)
}

func TestService_Query_Statuses(t *testing.T) {
	svc := newTestService(t, &fakeCatalog{recs: catalogFixture()}, newFakeAssets(), &fakeEnsurer{}, nil)

	res, err := svc.Query(context.Background(), domain.Query{HUC: exampleHUC})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Len(t, res.Matches, 3)

	res, err = svc.Query(context.Background(), domain.Query{HUC: "99999999"})
	require.NoError(t, err)
	assert.Equal(t, StatusInfo, res.Status)
	assert.Equal(t, "No match for HUC 99999999\nNo benchmark FIMs on HUC 99999999.", res.Message)

	res, err = svc.Query(context.Background(), domain.Query{HUC: exampleHUC, Start: "2019-09-20"})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Contains(t, res.Message, "in range [2019-09-20 , ∞]")
	assert.Contains(t, res.Printable, "HWM_20190920_BM.tif")
	assert.NotContains(t, res.Printable, "PSS_1_0m")
}

func TestService_Query_BadDate(t *testing.T) {
	svc := newTestService(t, &fakeCatalog{recs: catalogFixture()}, newFakeAssets(), &fakeEnsurer{}, nil)

	_, err := svc.Query(context.Background(), domain.Query{HUC: exampleHUC, Date: "not-a-date"})
	require.ErrorIs(t, err, domain.ErrBadDate)
}

func TestService_Readiness(t *testing.T) {
	cat := &fakeCatalog{err: errors.New("s3 unavailable")}
	svc := newTestService(t, cat, newFakeAssets(), &fakeEnsurer{}, nil)

	require.Error(t, svc.CheckReadiness(context.Background()))
	_, err := svc.Availability(context.Background(), exampleHUC)
	require.Error(t, err)
	require.Error(t, svc.CheckReadiness(context.Background()))

	cat.err = nil
	cat.recs = catalogFixture()
	require.NoError(t, svc.LoadCatalog(context.Background()))
	got, err := svc.Availability(context.Background(), exampleHUC)
	require.NoError(t, err)
	assert.Contains(t, got, "days: 2019-09-19, 2019-09-20")
	require.NoError(t, svc.CheckReadiness(context.Background()))
}

func TestService_Process_WithDate(t *testing.T) {
	assets := newFakeAssets()
	ens := &fakeEnsurer{found: true}
	events := &fakeEvents{}
	svc := newTestService(t, &fakeCatalog{recs: catalogFixture()}, assets, ens, events)
	root := t.TempDir()

	res, err := svc.Process(context.Background(), ProcessRequest{
		HUC: exampleHUC, Date: "2019-09-19 16:00:00", OutDir: root,
		EnsureArtifact: true, GenerateMissing: true,
	})
	require.NoError(t, err)

	folder := workspace.BenchmarkDir(root, "HUC10170203_flood20190919160000")
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "Downloaded 1 benchmark item(s) into '"+filepath.Join(root, "FIM_evaluation", "FIM_inputs")+"'. "+
		"OWP HAND FIM ensured for '2019-09-19 16:00:00' (copied/generated).", res.Message)
	require.Len(t, res.Folders, 1)
	assert.Equal(t, folder, res.Folders[0].Path)

	want := Downloads{
		TIF:  filepath.Join(folder, "PSS_1_0m_20190919T165541_BM.tif"),
		GPKG: []string{filepath.Join(folder, "PSS_boundary.gpkg")},
	}
	if diff := cmp.Diff(want, res.Folders[0].Downloads[0].Downloads); diff != "" {
		t.Errorf("downloads mismatch (-want +got):\n%s", diff)
	}
	assert.FileExists(t, want.TIF)
	assert.NoFileExists(t, filepath.Join(folder, "README.txt"))

	require.Len(t, ens.calls, 1)
	assert.Equal(t, ensureCall{HUC: exampleHUC, Date: domain.MustParseDateSpec("2019-09-19 16"), Dest: folder, Generate: true}, ens.calls[0])
	assert.Equal(t, filepath.Join(folder, "NWM_20190919160000_10170203_inundation.tif"), res.Folders[0].ArtifactPath)
	assert.Equal(t, []string{domain.EventBenchmarkDownloaded}, events.types())
}

func TestService_Process_ExistingFilesAreNotDownloadedAgain(t *testing.T) {
	assets := newFakeAssets()
	svc := newTestService(t, &fakeCatalog{recs: catalogFixture()}, assets, &fakeEnsurer{}, nil)
	req := ProcessRequest{HUC: exampleHUC, Date: "2019-09-19T16", OutDir: t.TempDir()}

	_, err := svc.Process(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, assets.downloads, 2)

	res, err := svc.Process(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, assets.downloads, 2)
	assert.True(t, res.Folders[0].Downloads[0].Downloads.Any())
}

func TestService_Process_WithoutDateGroupsByRecordLabel(t *testing.T) {
	ens := &fakeEnsurer{found: true}
	svc := newTestService(t, &fakeCatalog{recs: catalogFixture()}, newFakeAssets(), ens, nil)
	root := t.TempDir()

	res, err := svc.Process(context.Background(), ProcessRequest{HUC: exampleHUC, OutDir: root, EnsureArtifact: true})
	require.NoError(t, err)

	labels := make([]string, 0, len(res.Folders))
	for _, f := range res.Folders {
		labels = append(labels, f.Label)
	}
	assert.Equal(t, []string{"Sandy_Creek", "flood20190919160000", "flood20190920"}, labels)
	assert.Equal(t, "Downloaded 3 benchmark item(s) into '"+filepath.Join(root, "FIM_evaluation", "FIM_inputs")+"'.", res.Message)
	assert.Empty(t, ens.calls)
	assert.DirExists(t, workspace.BenchmarkDir(root, "HUC10170203_Sandy_Creek"))
}

func TestService_Process_FileNameFallback(t *testing.T) {
	ens := &fakeEnsurer{}
	svc := newTestService(t, &fakeCatalog{recs: catalogFixture()}, newFakeAssets(), ens, nil)
	root := t.TempDir()

	res, err := svc.Process(context.Background(), ProcessRequest{
		HUC: exampleHUC, Date: "2017-08-30", FileName: "shared_BM.tif", OutDir: root,
		EnsureArtifact: true, GenerateMissing: false,
	})
	require.NoError(t, err)

	folder := workspace.BenchmarkDir(root, "HUC10170203_flood20170830")
	assert.Equal(t, StatusAssumed, res.Status)
	assert.Equal(t, "Used user-specified file 'shared_BM.tif' as benchmark reference. Downloaded into '"+folder+"'. "+
		"OWP HAND FIM not found and not generated.", res.Message)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "12090301", res.Matches[0].HUC())
	assert.Equal(t, []string{filepath.Join(folder, "Harvey.GPKG")}, res.Folders[0].Downloads[0].Downloads.GPKG)
	require.Len(t, ens.calls, 1)
	assert.False(t, ens.calls[0].Generate)
	assert.InDelta(t, 1, testutil.ToFloat64(svc.metrics.CatalogQueries.WithLabelValues(StatusAssumed)), 0)
}

func TestService_Process_NotFound(t *testing.T) {
	svc := newTestService(t, &fakeCatalog{recs: catalogFixture()}, newFakeAssets(), &fakeEnsurer{}, nil)

	res, err := svc.Process(context.Background(), ProcessRequest{HUC: exampleHUC, Date: "2019-09-21", FileName: "missing.tif"})
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, res.Status)
	assert.Equal(t, "No strict benchmark match for HUC 10170203 and '2019-09-21', and file 'missing.tif' not found in catalog.", res.Message)
	assert.Empty(t, res.Folders)

	res, err = svc.Process(context.Background(), ProcessRequest{HUC: exampleHUC, Date: "2019-09-21"})
	require.NoError(t, err)
	assert.Equal(t, "No strict benchmark match for HUC 10170203 and '2019-09-21'", res.Message)
}

func TestService_Process_DownloadFailureIsReported(t *testing.T) {
	assets := newFakeAssets()
	assets.failKey = "FIM_Database/HUC10170203/HWM/HWM_20190920_BM.tif"
	svc := newTestService(t, &fakeCatalog{recs: catalogFixture()}, assets, &fakeEnsurer{}, nil)

	res, err := svc.Process(context.Background(), ProcessRequest{HUC: exampleHUC, Date: "2019-09-20", OutDir: t.TempDir()})
	require.NoError(t, err)
	assert.Contains(t, res.Message, "Downloaded 0 benchmark item(s)")
	assert.False(t, res.Folders[0].Downloads[0].Downloads.Any())
}

func TestService_Lookup(t *testing.T) {
	ens := &fakeEnsurer{found: true}
	svc := newTestService(t, &fakeCatalog{recs: catalogFixture()}, newFakeAssets(), ens, nil)
	ctx := context.Background()

	got, err := svc.Lookup(ctx, LookupRequest{Query: domain.Query{HUC: exampleHUC, Date: "2019-09-20"}})
	require.NoError(t, err)
	assert.Equal(t, "Following are the available benchmark data for HUC 10170203, date '2019-09-20':\n"+
		"Data Tier: Tier_2\nBenchmark FIM date: 2019-09-20\nSpatial Resolution: NA\nRaster Filename in DB: HWM_20190920_BM.tif", got)

	got, err = svc.Lookup(ctx, LookupRequest{Query: domain.Query{HUC: exampleHUC, Date: "2019-09-21", FileName: "x.tif"}})
	require.NoError(t, err)
	assert.Equal(t, "No benchmark FIMs were matched with the information you provided.\n(HUC=10170203, date=2019-09-21, file_name=x.tif)", got)

	got, err = svc.Lookup(ctx, LookupRequest{Query: domain.Query{HUC: exampleHUC, Date: "2019-09-20"}, Run: true, OutDir: t.TempDir()})
	require.NoError(t, err)
	assert.Contains(t, got, "OWP HAND FIM ensured for '2019-09-20' (copied/generated).")
	require.Len(t, ens.calls, 1)
	assert.True(t, ens.calls[0].Generate)
}
