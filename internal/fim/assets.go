package fim

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/fimserve-service/internal/adapter/s3"
	"github.com/couchcryptid/fimserve-service/internal/domain"
)

// AssetStore is the object store holding benchmark rasters and vectors.
type AssetStore interface {
	Download(ctx context.Context, key, dest string) error
	List(ctx context.Context, prefix string) ([]s3.Object, error)
}

// Downloads lists the local files of one benchmark record.
type Downloads struct {
	TIF  string   `json:"tif,omitempty"`
	GPKG []string `json:"gpkg_files"`
}

// Any reports whether at least one file is present.
func (d Downloads) Any() bool {
	return d.TIF != "" || len(d.GPKG) > 0
}

// downloadAssets places the record's raster and every .gpkg of its folder
// into dest. Files already present locally are not fetched again. Records
// without an s3_key only yield their raster.
func downloadAssets(ctx context.Context, store AssetStore, rec domain.Record, dest string) (Downloads, error) {
	out := Downloads{GPKG: []string{}}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return out, err
	}

	if key, ok := rec.RasterKey(); ok {
		local := filepath.Join(dest, path.Base(key))
		if err := fetchMissing(ctx, store, key, local); err != nil {
			return out, err
		}
		out.TIF = local
	}

	folder, err := rec.FolderKey()
	if err != nil {
		return out, nil
	}
	objects, err := store.List(ctx, folder)
	if err != nil {
		return out, err
	}
	for _, obj := range objects {
		if !strings.HasSuffix(strings.ToLower(obj.Key), ".gpkg") {
			continue
		}
		local := filepath.Join(dest, path.Base(obj.Key))
		if err := fetchMissing(ctx, store, obj.Key, local); err != nil {
			return out, err
		}
		out.GPKG = append(out.GPKG, local)
	}
	return out, nil
}

func fetchMissing(ctx context.Context, store AssetStore, key, local string) error {
	if _, err := os.Stat(local); err == nil {
		return nil
	}
	return store.Download(ctx, key, local)
}
