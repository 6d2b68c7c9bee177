package domain

import (
	"fmt"
	"path"
	"strings"
)

// ArtifactName is the file name of the inundation raster for huc at d.
func ArtifactName(huc string, d DateSpec) string {
	return fmt.Sprintf("NWM_%s_%s_inundation.tif", d.Label(), huc)
}

// ArtifactDayPattern is a filepath.Match pattern for every raster of huc on
// d's day, hourly or not.
func ArtifactDayPattern(huc string, d DateSpec) string {
	return fmt.Sprintf("NWM_%s*_%s_inundation.tif", d.YMD(), huc)
}

// DischargeFileName is the discharge CSV consumed by the mapping program.
// Its stem matches the raster the program produces from it.
func DischargeFileName(huc string, d DateSpec) string {
	return fmt.Sprintf("NWM_%s_%s.csv", d.Label(), huc)
}

// BenchmarkFolderName names the per-event benchmark input folder.
func BenchmarkFolderName(huc, label string) string {
	return fmt.Sprintf("HUC%s_%s", huc, label)
}

// FolderKey returns the object-store prefix holding the record's assets.
func (r Record) FolderKey() (string, error) {
	i := strings.LastIndex(r.S3Key, "/")
	if i <= 0 {
		return "", fmt.Errorf("record %q lacks an s3_key to derive its folder", r.FileName)
	}
	return r.S3Key[:i+1], nil
}

// RasterKey returns the object key of the benchmark raster. The key is taken
// from the tif URL when it points at an S3 host, otherwise it is the folder
// key joined with the file name. ok is false when neither is available.
func (r Record) RasterKey() (key string, ok bool) {
	if _, after, found := strings.Cut(r.TIFURL, ".amazonaws.com/"); found && after != "" {
		return after, true
	}
	if r.FileName == "" {
		return "", false
	}
	folder, err := r.FolderKey()
	if err != nil {
		return "", false
	}
	return path.Join(folder, r.FileName), true
}

// Discharge is the flow assigned to one stream reach.
type Discharge struct {
	FeatureID int64
	Value     float64 // m³/s
}
