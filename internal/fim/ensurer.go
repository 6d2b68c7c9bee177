package fim

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/fimserve-service/internal/domain"
	"github.com/couchcryptid/fimserve-service/internal/observability"
	"github.com/couchcryptid/fimserve-service/internal/workspace"
	"github.com/jonboulle/clockwork"
)

// ArtifactGenerator produces the inundation raster of a HUC at a date spec.
// It returns an identifier of the run.
type ArtifactGenerator interface {
	Generate(ctx context.Context, huc string, d domain.DateSpec) (runID string, err error)
}

// EventSink receives lifecycle events.
type EventSink interface {
	Publish(ctx context.Context, events ...domain.Event) error
}

// Ensurer makes a model output raster available in a destination folder,
// copying an existing one or generating it on demand. Existence on disk is
// the only state it consults.
type Ensurer struct {
	layout    workspace.Layout
	generator ArtifactGenerator
	events    EventSink
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewEnsurer creates an Ensurer over the rasters of layout. generator and
// events may be nil.
func NewEnsurer(layout workspace.Layout, generator ArtifactGenerator, events EventSink, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Ensurer {
	return &Ensurer{
		layout:    layout,
		generator: generator,
		events:    events,
		clock:     clock,
		metrics:   metrics,
		logger:    logger,
	}
}

// ExpectedPath is the canonical raster path for huc at d.
func (e *Ensurer) ExpectedPath(huc string, d domain.DateSpec) string {
	return filepath.Join(e.layout.InundationDir(huc), domain.ArtifactName(huc, d))
}

// Find returns the existing raster for huc at d, or "" when there is none.
// An hourly spec only accepts its exact path. A day-only spec prefers the
// day path and otherwise takes the lexically first raster of that day.
func (e *Ensurer) Find(huc string, d domain.DateSpec) string {
	exact := e.ExpectedPath(huc, d)
	if isFile(exact) {
		return exact
	}
	if d.HasHour {
		return ""
	}
	matches, err := filepath.Glob(filepath.Join(e.layout.InundationDir(huc), domain.ArtifactDayPattern(huc, d)))
	if err != nil {
		return ""
	}
	// Glob returns names in lexical order.
	for _, m := range matches {
		if isFile(m) {
			return m
		}
	}
	return ""
}

// Ensure places the raster for huc at d into destDir and returns its path
// there. An empty path with a nil error means the raster is absent and was
// not (or could not be) generated.
func (e *Ensurer) Ensure(ctx context.Context, huc string, d domain.DateSpec, destDir string, generate bool) (string, error) {
	src := e.Find(huc, d)
	result := domain.EventArtifactCopied
	var (
		runID     string
		attempted bool
	)

	if src == "" && generate && e.generator != nil {
		attempted = true
		start := e.clock.Now()
		id, err := e.generator.Generate(ctx, huc, d)
		e.metrics.GenerationDuration.Observe(e.clock.Since(start).Seconds())
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			e.logger.Warn("artifact generation failed", "huc", huc, "date", d.Stamp(), "error", err)
		}
		src = e.Find(huc, d)
		result = domain.EventArtifactGenerated
		runID = id
	}

	if src == "" {
		e.metrics.Artifacts.WithLabelValues("missing").Inc()
		e.logger.Info("artifact missing", "huc", huc, "date", d.Stamp(), "generate", generate)
		if attempted {
			e.publish(ctx, domain.NewEvent(domain.EventArtifactMissing, huc, d.Stamp(), e.ExpectedPath(huc, d), e.clock.Now()), runID)
		}
		return "", nil
	}

	dst, err := copyPreserving(src, destDir)
	if err != nil {
		return "", fmt.Errorf("copy artifact for HUC %s: %w", huc, err)
	}
	if result == domain.EventArtifactGenerated {
		e.metrics.Artifacts.WithLabelValues("generated").Inc()
	} else {
		e.metrics.Artifacts.WithLabelValues("copied").Inc()
	}
	e.logger.Info("artifact ensured", "huc", huc, "date", d.Stamp(), "source", src, "path", dst, "result", result)
	e.publish(ctx, domain.NewEvent(result, huc, d.Stamp(), dst, e.clock.Now()), runID)
	return dst, nil
}

func (e *Ensurer) publish(ctx context.Context, ev domain.Event, runID string) {
	if e.events == nil {
		return
	}
	ev.RunID = runID
	if err := e.events.Publish(ctx, ev); err != nil {
		e.logger.Warn("publish lifecycle event", "type", ev.Type, "huc", ev.HUC, "error", err)
	}
}

// copyPreserving copies src into dir keeping its name, mode and mtime.
func copyPreserving(src, dir string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, filepath.Base(src))

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return "", err
	}
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return "", err
	}
	return dst, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
