// Package hand prepares the HAND inputs of a HUC: the mapping program
// checkout, the synced hydraulic tables and the derived feature-ID list.
package hand

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/fimserve-service/internal/adapter/s3"
	"github.com/couchcryptid/fimserve-service/internal/command"
	"github.com/couchcryptid/fimserve-service/internal/domain"
	"github.com/couchcryptid/fimserve-service/internal/workspace"
	"github.com/joho/godotenv"
	"github.com/ubuntu/decorate"
)

// mappingEnv is the .env consumed by the mapping program, relative to tools/.
var mappingEnv = map[string]string{
	"inputsDir":  "inputs",
	"outputsDir": "output",
}

// Syncer mirrors an object-store prefix into a local directory.
type Syncer interface {
	Sync(ctx context.Context, prefix, destDir string) (s3.SyncResult, error)
}

// Options tune a HUC download.
type Options struct {
	Version     string // "4.8" (default) or "4.5"
	StreamOrder StreamOrderFilter
}

// Downloader fetches HAND inputs into a workspace.
type Downloader struct {
	layout  workspace.Layout
	store   Syncer
	runner  command.Runner
	repoURL string
	logger  *slog.Logger
}

// NewDownloader creates a Downloader.
func NewDownloader(layout workspace.Layout, store Syncer, runner command.Runner, repoURL string, logger *slog.Logger) *Downloader {
	return &Downloader{layout: layout, store: store, runner: runner, repoURL: repoURL, logger: logger}
}

// HANDPrefix is the bucket prefix holding the tables of huc for version.
func HANDPrefix(huc, version string) string {
	if version == "4.5" {
		return fmt.Sprintf("hand_fim_4_5_2_11/%s/", huc)
	}
	return fmt.Sprintf("hand_fim_4_8_7_2/%s/", huc)
}

// RepoTag is the mapping program tag matching version, or "" for the
// default branch.
func RepoTag(version string) string {
	if version == "4.5" {
		return "v4.6.1.4"
	}
	return ""
}

// Download prepares everything the mapping program needs for huc.
func (d *Downloader) Download(ctx context.Context, huc string, opts Options) (err error) {
	defer decorate.OnError(&err, "download HAND inputs for HUC %s", huc)

	if err := d.layout.Ensure(); err != nil {
		return err
	}
	if err := d.CloneRepo(ctx, opts.Version); err != nil {
		return err
	}

	res, err := d.store.Sync(ctx, HANDPrefix(huc, opts.Version), d.layout.HANDDir(huc))
	if err != nil {
		return err
	}
	d.logger.Info("HAND tables synced", "huc", huc, "dir", d.layout.HANDDir(huc),
		"downloaded", res.Downloaded, "skipped", res.Skipped)

	if err := copyFile(d.layout.BranchIDs(huc), d.layout.FIMInputs(huc)); err != nil {
		return fmt.Errorf("copy branch_ids.csv: %w", err)
	}
	if err := d.WriteEnvFile(); err != nil {
		return err
	}

	n, err := WriteFeatureIDs(d.layout.Hydrotable(huc), d.layout.FeatureIDs(huc), opts.StreamOrder)
	if err != nil {
		return err
	}
	d.logger.Info("feature IDs written", "huc", huc, "path", d.layout.FeatureIDs(huc),
		"count", n, "stream_order", opts.StreamOrder.String())
	return nil
}

// EnsureInputs downloads huc unless its hydrotable and feature-ID list are
// already present.
func (d *Downloader) EnsureInputs(ctx context.Context, huc string, opts Options) error {
	if HasInputs(d.layout, huc) {
		d.logger.Debug("HAND inputs present", "huc", huc)
		return nil
	}
	return d.Download(ctx, huc, opts)
}

// HasInputs reports whether huc has a hydrotable and a feature-ID list.
func HasInputs(layout workspace.Layout, huc string) bool {
	for _, p := range []string{layout.Hydrotable(huc), layout.FeatureIDs(huc)} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// CloneRepo clones the mapping program unless the checkout is non-empty.
func (d *Downloader) CloneRepo(ctx context.Context, version string) error {
	dir := d.layout.CodeDir()
	if entries, err := os.ReadDir(dir); err == nil && len(entries) > 0 {
		d.logger.Debug("mapping program already cloned", "dir", dir)
		return nil
	}
	if _, err := d.runner.Run(ctx, command.Spec{Name: "git", Args: []string{"clone", d.repoURL, dir}}); err != nil {
		return fmt.Errorf("clone %s: %w", d.repoURL, err)
	}
	if tag := RepoTag(version); tag != "" {
		if _, err := d.runner.Run(ctx, command.Spec{Name: "git", Args: []string{"checkout", tag}, Dir: dir}); err != nil {
			return fmt.Errorf("checkout %s: %w", tag, err)
		}
	}
	d.logger.Info("mapping program cloned", "dir", dir, "tag", RepoTag(version))
	return nil
}

// WriteEnvFile writes the .env read by the mapping program.
func (d *Downloader) WriteEnvFile() error {
	path := d.layout.EnvFile()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return godotenv.Write(mappingEnv, path)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// RequireInputs returns domain.ErrMissingInputs when huc was never downloaded.
func RequireInputs(layout workspace.Layout, huc string) error {
	if _, err := os.Stat(layout.FeatureIDs(huc)); err != nil {
		return fmt.Errorf("HUC %s: %w (run download first)", huc, domain.ErrMissingInputs)
	}
	return nil
}
