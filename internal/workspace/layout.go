// Package workspace resolves the on-disk layout shared by HAND inputs,
// discharge files and inundation outputs.
//
//	<root>/code/inundation-mapping     mapping program checkout
//	<root>/data/inputs                 discharge CSVs
//	<root>/output/flood_<huc>/<huc>    HAND tables for one HUC
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout is a workspace rooted at Root. OutputRoot overrides <root>/output
// when set.
type Layout struct {
	Root       string
	OutputRoot string
}

// New returns the layout rooted at root with the default output directory.
func New(root string) Layout {
	return Layout{Root: root}
}

// Ensure creates the code, data and output directories.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.CodeDir(), l.InputsDir(), l.OutputDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create workspace dir %s: %w", dir, err)
		}
	}
	return nil
}

func (l Layout) CodeDir() string   { return filepath.Join(l.Root, "code", "inundation-mapping") }
func (l Layout) InputsDir() string { return filepath.Join(l.Root, "data", "inputs") }
func (l Layout) ToolsDir() string  { return filepath.Join(l.CodeDir(), "tools") }
func (l Layout) EnvFile() string   { return filepath.Join(l.CodeDir(), ".env") }

// OutputDir is the root of all per-HUC outputs.
func (l Layout) OutputDir() string {
	if l.OutputRoot != "" {
		return l.OutputRoot
	}
	return filepath.Join(l.Root, "output")
}

// HUCDir is output/flood_<huc>.
func (l Layout) HUCDir(huc string) string {
	return filepath.Join(l.OutputDir(), "flood_"+huc)
}

// HANDDir holds the synced HAND tables for huc.
func (l Layout) HANDDir(huc string) string {
	return filepath.Join(l.HUCDir(huc), huc)
}

func (l Layout) Hydrotable(huc string) string {
	return filepath.Join(l.HANDDir(huc), "hydrotable.csv")
}

func (l Layout) BranchIDs(huc string) string {
	return filepath.Join(l.HANDDir(huc), "branch_ids.csv")
}

func (l Layout) FIMInputs(huc string) string {
	return filepath.Join(l.HUCDir(huc), "fim_inputs.csv")
}

// FeatureIDs is the unique feature_id list derived from the hydrotable.
func (l Layout) FeatureIDs(huc string) string {
	return filepath.Join(l.HUCDir(huc), "feature_IDs.csv")
}

// InundationDir holds finished rasters for huc.
func (l Layout) InundationDir(huc string) string {
	return filepath.Join(l.HUCDir(huc), huc+"_inundation")
}

// DischargeDir holds cached series of one source for huc.
func (l Layout) DischargeDir(huc, source string) string {
	return filepath.Join(l.HUCDir(huc), "discharge", source)
}

// BenchmarkDir is the per-event benchmark folder under root.
func BenchmarkDir(root, folder string) string {
	return filepath.Join(root, "FIM_evaluation", "FIM_inputs", folder)
}
