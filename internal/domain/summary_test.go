package domain

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestSummarizeAvailability(t *testing.T) {
	t.Run("dated records", func(t *testing.T) {
		got := SummarizeAvailability(testCatalog(), testHUC)
		assert.Equal(t,
			"Available benchmark dates on HUC 10170203: days: 2019-09-19, 2019-09-20 | hourly: 2019-09-19T16, 2019-09-20T06, 2019-09-20T18",
			got)
	})

	t.Run("day-only records", func(t *testing.T) {
		got := SummarizeAvailability(testCatalog(), testOtherHUC)
		assert.Equal(t, "Available benchmark dates on HUC 12090301: days: 2019-09-20", got)
	})

	t.Run("synthetic return periods", func(t *testing.T) {
		recs := []Record{
			{HUC8: "03020202", ReturnPeriod: "500"},
			{HUC8: "03020202", ReturnPeriod: "100"},
			{HUC8: "03020202", ReturnPeriod: "100"},
		}
		assert.Equal(t,
			"No real flood-based benchmarks on HUC 03020202. Only synthetic return periods available: 100, 500.",
			SummarizeAvailability(recs, "03020202"))
	})

	t.Run("undated without return periods", func(t *testing.T) {
		recs := []Record{{HUC8: "03020202", FileName: "x.tif"}}
		assert.Equal(t, "No real flood-based benchmarks on HUC 03020202.", SummarizeAvailability(recs, "03020202"))
	})

	t.Run("unknown HUC", func(t *testing.T) {
		assert.Equal(t, "No benchmark FIMs on HUC 99999999.", SummarizeAvailability(testCatalog(), " 99999999 "))
	})
}

func TestFormatRecords(t *testing.T) {
	recs := []Record{
		{Tier: "Tier_1", DateRaw: "20190919T165541", ResolutionM: Resolution{Meters: 3, Valid: true}, FileName: "PSS_3m.tif"},
		{Quality: "Tier_4", DateYMD: "2019-09-20", DateRaw: "20190920"},
	}

	got := FormatRecords(recs, "HUC 10170203")
	want := "Following are the available benchmark data for HUC 10170203:\n" +
		"Data Tier: Tier_1\n" +
		"Benchmark FIM date: 2019-09-19T16\n" +
		"Spatial Resolution: 3m\n" +
		"Raster Filename in DB: PSS_3m.tif\n" +
		"\n" +
		"Data Tier: Tier_4\n" +
		"Benchmark FIM date: 2019-09-20\n" +
		"Spatial Resolution: NA\n" +
		"Raster Filename in DB: NA"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FormatRecords mismatch (-want +got):\n%s", diff)
	}

	assert.Empty(t, FormatRecords(nil, "HUC 10170203"))
	assert.NotContains(t, FormatRecords(recs[:1], ""), "Following")
}

func TestBuildHUCEventMap(t *testing.T) {
	got := BuildHUCEventMap(testCatalog())
	want := map[string][]string{
		testHUC:      {"2019-09-19 16:00:00", "2019-09-20", "2019-09-20 06:00:00", "2019-09-20 18:00:00"},
		testOtherHUC: {"2019-09-20"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BuildHUCEventMap mismatch (-want +got):\n%s", diff)
	}
}
