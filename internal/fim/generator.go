package fim

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/fimserve-service/internal/domain"
	"github.com/couchcryptid/fimserve-service/internal/hand"
	"github.com/couchcryptid/fimserve-service/internal/inundation"
	"github.com/google/uuid"
	"github.com/ubuntu/decorate"
)

// InputPreparer makes the HAND inputs of a HUC available.
type InputPreparer interface {
	EnsureInputs(ctx context.Context, huc string, opts hand.Options) error
}

// DischargeWriter writes the discharge file of a HUC for one date spec.
type DischargeWriter interface {
	Generate(ctx context.Context, huc string, d domain.DateSpec) (string, error)
}

// Mapper turns discharge files into inundation rasters.
type Mapper interface {
	RunFiles(ctx context.Context, huc string, files []string, opts inundation.Options) (inundation.Result, error)
}

// Generator chains the three generation stages: HAND inputs, retrospective
// discharge for the exact timestamp, then the mapping run.
type Generator struct {
	inputs    InputPreparer
	discharge DischargeWriter
	mapper    Mapper
	handOpts  hand.Options
	logger    *slog.Logger
}

// NewGenerator creates a Generator with the given stages.
func NewGenerator(inputs InputPreparer, discharge DischargeWriter, mapper Mapper, handOpts hand.Options, logger *slog.Logger) *Generator {
	return &Generator{
		inputs:    inputs,
		discharge: discharge,
		mapper:    mapper,
		handOpts:  handOpts,
		logger:    logger,
	}
}

// Generate runs every stage for huc at d and returns the run ID. It does not
// check that the expected raster was produced; callers re-check the disk.
func (g *Generator) Generate(ctx context.Context, huc string, d domain.DateSpec) (runID string, err error) {
	runID = uuid.NewString()
	defer decorate.OnError(&err, "generate inundation raster for HUC %s at %s (run %s)", huc, d.Stamp(), runID)

	logger := g.logger.With("run_id", runID, "huc", huc, "date", d.Stamp())
	logger.Info("generation started")

	if err := g.inputs.EnsureInputs(ctx, huc, g.handOpts); err != nil {
		return runID, fmt.Errorf("inputs: %w", err)
	}
	csv, err := g.discharge.Generate(ctx, huc, d)
	if err != nil {
		return runID, fmt.Errorf("discharge: %w", err)
	}
	res, err := g.mapper.RunFiles(ctx, huc, []string{csv}, inundation.Options{})
	if err != nil {
		return runID, fmt.Errorf("mapping: %w", err)
	}

	logger.Info("generation finished", "discharge", csv, "produced", len(res.Produced), "skipped", len(res.Skipped))
	return runID, nil
}
