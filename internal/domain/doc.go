// Package domain models benchmark flood inundation maps (FIMs) and the
// on-disk conventions used to pair them with HAND model output.
//
// # Catalog
//
// Benchmark FIMs are listed in a JSON catalog kept in the public "sdmlab"
// bucket (FIM_Database/FIM_Viz/catalog_core.json):
//
//	{"records": [{"huc8": "10170203", "date_raw": "20190919T165541", ...}]}
//
// The catalog is re-fetched on every query. Records have no primary key;
// (huc8, date, file_name) is unique in practice and duplicates are resolved
// first-match-wins.
//
// # Record dates
//
// A record's calendar day comes from "date_ymd" (YYYY-MM-DD) and falls back
// to the first eight characters of "date_raw" (YYYYMMDD). Some catalogs use
// "date_of_flood" instead of "date_raw"; both are read. A record carries an
// hour only when the raw date has a "T" separator followed by two digits:
//
//	"20190919"         day-only record
//	"20190919T165541"  hourly record, hour 16
//
// Records without any parsable date are synthetic return-period benchmarks.
//
// # User dates
//
// Users pass dates loosely. [ParseDateSpec] accepts "YYYYMMDD",
// "YYYY-MM-DD", "YYYY/MM/DD", "YYYY-MM-DD HH", "YYYY-MM-DDTHH" and ISO
// date-times with minutes, seconds, fractions or zones. Minutes and seconds
// are dropped: matching works at hour granularity.
//
// # Matching
//
// Strict matching drives every side effect (downloads, generation):
//
//	day-only query  -> only day-only records of that day
//	hourly query    -> only records with the same day and hour
//
// Relaxed matching is for listings only: a date range returns every record
// whose day lies in the inclusive range, and a day-only query returns every
// record of that day, hourly or not. Anything else falls back to strict.
//
// # Artifacts
//
// HAND output rasters live under the output root:
//
//	flood_<huc>/<huc>_inundation/NWM_<YYYYMMDD>[<HH>0000]_<huc>_inundation.tif
//
// Existence on disk is the only state tracked. A day-only request is
// satisfied by the day-only raster or by any hourly raster of that day.
package domain
