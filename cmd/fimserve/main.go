// Command fimserve downloads HAND inputs and streamflow, runs inundation
// mapping and serves benchmark FIM lookups.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/couchcryptid/fimserve-service/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// rootFlags override configuration loaded from the environment.
type rootFlags struct {
	workDir  string
	outRoot  string
	logLevel string
	workers  int
}

func newRootCmd() *cobra.Command {
	var (
		flags rootFlags
		a     *app
	)

	root := &cobra.Command{
		Use:           "fimserve",
		Short:         "Flood inundation mapping orchestration and benchmark lookup",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := flags.apply(cfg); err != nil {
				return err
			}
			a, err = newApp(cmd.Context(), cfg)
			return err
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a != nil {
				a.close()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.workDir, "work-dir", "", "workspace root (default $WORK_DIR or the current directory)")
	pf.StringVar(&flags.outRoot, "out-root", "", "root of per-HUC outputs (default $OWP_OUT_ROOT or <work-dir>/output)")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (default $LOG_LEVEL)")
	pf.IntVar(&flags.workers, "workers", 0, "concurrent downloads (default $WORKERS)")

	get := func() *app { return a }
	root.AddCommand(
		newLookupCmd(get),
		newProcessCmd(get),
		newAvailabilityCmd(get),
		newDownloadCmd(get),
		newRetrospectiveCmd(get),
		newForecastCmd(get),
		newGEOGLOWSCmd(get),
		newUSGSCmd(get),
		newRunCmd(get),
		newServeCmd(get),
	)
	return root
}

func (f rootFlags) apply(cfg *config.Config) error {
	if f.workDir != "" {
		abs, err := filepath.Abs(f.workDir)
		if err != nil {
			return err
		}
		if os.Getenv("OWP_OUT_ROOT") == "" {
			cfg.OWPOutRoot = filepath.Join(abs, "output")
		}
		cfg.WorkDir = abs
	}
	if f.outRoot != "" {
		cfg.OWPOutRoot = f.outRoot
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.workers < 0 || f.workers > 256 {
		return errors.New("--workers must be between 1 and 256")
	}
	if f.workers > 0 {
		cfg.Workers = f.workers
	}
	return nil
}
