// Package inundation drives the external mapping program that turns a
// discharge file into an inundation raster.
package inundation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/couchcryptid/fimserve-service/internal/command"
	"github.com/couchcryptid/fimserve-service/internal/observability"
	"github.com/couchcryptid/fimserve-service/internal/workspace"
	"github.com/joho/godotenv"
)

const wrapperScript = "inundate_mosaic_wrapper.py"

// Options tune a mapping run.
type Options struct {
	Depth bool // also write a depth raster
	Force bool // rerun discharge files whose raster already exists
}

// Result summarises a run over several discharge files.
type Result struct {
	Produced []string
	Skipped  []string
	Failed   []string
}

// Runner invokes the mapping program of a workspace.
type Runner struct {
	layout  workspace.Layout
	cmd     command.Runner
	python  string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewRunner creates a Runner executing the wrapper with python.
func NewRunner(layout workspace.Layout, cmd command.Runner, python string, metrics *observability.Metrics, logger *slog.Logger) *Runner {
	if python == "" {
		python = "python3"
	}
	return &Runner{layout: layout, cmd: cmd, python: python, metrics: metrics, logger: logger}
}

// Stem is the discharge file name up to its first dot.
func Stem(csvPath string) string {
	base := filepath.Base(csvPath)
	if i := strings.Index(base, "."); i >= 0 {
		return base[:i]
	}
	return base
}

// OutputPath is the raster produced from csvPath.
func (r *Runner) OutputPath(huc, csvPath string) string {
	return filepath.Join(r.layout.InundationDir(huc), Stem(csvPath)+"_inundation.tif")
}

func (r *Runner) tempDir(huc string) string {
	return filepath.Join(r.layout.InundationDir(huc), "temp")
}

// Command builds the wrapper invocation for one discharge file.
func (r *Runner) Command(huc, csvPath string, depth bool) (command.Spec, error) {
	tmp := r.tempDir(huc)
	stem := Stem(csvPath)
	args := []string{
		wrapperScript,
		"-y", r.layout.HUCDir(huc),
		"-u", huc,
		"-f", csvPath,
		"-i", filepath.Join(tmp, stem+"_inundation.tif"),
	}
	if depth {
		args = append(args, "-d", filepath.Join(tmp, stem+"_depth.tif"))
	}

	env, err := readEnvFile(r.layout.EnvFile())
	if err != nil {
		return command.Spec{}, err
	}
	code := r.layout.CodeDir()
	env = append(env, "PYTHONPATH="+filepath.Join(code, "src")+string(os.PathListSeparator)+code)

	return command.Spec{Name: r.python, Args: args, Dir: r.layout.ToolsDir(), Env: env}, nil
}

// RunFile maps one discharge file and moves the results from temp/ into
// the HUC's inundation directory.
func (r *Runner) RunFile(ctx context.Context, huc, csvPath string, depth bool) (string, error) {
	spec, err := r.Command(huc, csvPath, depth)
	if err != nil {
		return "", err
	}
	tmp := r.tempDir(huc)
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return "", err
	}

	r.logger.Info("running inundation mapping", "huc", huc, "discharge", csvPath)
	if _, err := r.cmd.Run(ctx, spec); err != nil {
		r.metrics.InundationRuns.WithLabelValues("error").Inc()
		return "", fmt.Errorf("inundation mapping for HUC %s from %s: %w", huc, filepath.Base(csvPath), err)
	}

	stem := Stem(csvPath)
	names := []string{stem + "_inundation.tif"}
	if depth {
		names = append(names, stem+"_depth.tif")
	}
	for _, name := range names {
		src := filepath.Join(tmp, name)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := os.Rename(src, filepath.Join(r.layout.InundationDir(huc), name)); err != nil {
			return "", fmt.Errorf("move %s: %w", name, err)
		}
	}
	if err := os.RemoveAll(tmp); err != nil {
		r.logger.Warn("remove inundation temp dir", "path", tmp, "error", err)
	}

	out := r.OutputPath(huc, csvPath)
	if _, err := os.Stat(out); err != nil {
		r.metrics.InundationRuns.WithLabelValues("error").Inc()
		return "", fmt.Errorf("mapping program produced no raster for %s", filepath.Base(csvPath))
	}
	r.metrics.InundationRuns.WithLabelValues("success").Inc()
	r.logger.Info("inundation raster written", "huc", huc, "path", out)
	return out, nil
}

// DischargeFiles lists data/inputs/*<huc>*.csv.
func (r *Runner) DischargeFiles(huc string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(r.layout.InputsDir(), "*"+huc+"*.csv"))
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

// Run maps every discharge file of huc. A failing file does not stop the
// others; the failures are joined into the returned error.
func (r *Runner) Run(ctx context.Context, huc string, opts Options) (Result, error) {
	files, err := r.DischargeFiles(huc)
	if err != nil {
		return Result{}, err
	}
	if len(files) == 0 {
		return Result{}, fmt.Errorf("no discharge files for HUC %s in %s", huc, r.layout.InputsDir())
	}
	return r.RunFiles(ctx, huc, files, opts)
}

// RunFiles maps the given discharge files of huc.
func (r *Runner) RunFiles(ctx context.Context, huc string, files []string, opts Options) (Result, error) {
	var (
		res  Result
		errs []error
	)
	for _, f := range files {
		if !opts.Force {
			if _, err := os.Stat(r.OutputPath(huc, f)); err == nil {
				r.metrics.InundationRuns.WithLabelValues("skipped").Inc()
				res.Skipped = append(res.Skipped, f)
				continue
			}
		}
		out, err := r.RunFile(ctx, huc, f, opts.Depth)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			r.logger.Error("inundation mapping failed", "huc", huc, "discharge", f, "error", err)
			res.Failed = append(res.Failed, f)
			errs = append(errs, err)
			continue
		}
		res.Produced = append(res.Produced, out)
	}
	return res, errors.Join(errs...)
}

// readEnvFile returns the variables of a dotenv file as sorted KEY=value
// pairs. A missing file yields no variables.
func readEnvFile(path string) ([]string, error) {
	vars, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env, nil
}
