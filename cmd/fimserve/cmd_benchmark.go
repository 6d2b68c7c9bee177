package main

import (
	"encoding/json"
	"fmt"

	"github.com/couchcryptid/fimserve-service/internal/domain"
	"github.com/couchcryptid/fimserve-service/internal/fim"
	"github.com/spf13/cobra"
)

type appFunc func() *app

func addQueryFlags(cmd *cobra.Command, q *domain.Query) {
	f := cmd.Flags()
	f.StringVar(&q.HUC, "huc", "", "8-digit hydrologic unit code")
	f.StringVar(&q.Date, "date", "", "event date or datetime, e.g. 2019-09-19 or \"2019-09-19 16:00\"")
	f.StringVar(&q.FileName, "file-name", "", "benchmark raster file name")
	f.StringVar(&q.Start, "start", "", "first day of a date range (listing only)")
	f.StringVar(&q.End, "end", "", "last day of a date range (listing only)")
	_ = cmd.MarkFlagRequired("huc")
}

func newLookupCmd(get appFunc) *cobra.Command {
	var req fim.LookupRequest
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "List benchmark FIMs for a HUC, or process them with --run",
		Long: `List the benchmark FIMs of a HUC that match the given date, file name or
date range. With --run the matches are downloaded into
FIM_evaluation/FIM_inputs and the model output raster is copied or generated.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			msg, err := get().service.Lookup(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	addQueryFlags(cmd, &req.Query)
	cmd.Flags().BoolVar(&req.Run, "run", false, "download matches and ensure the model output raster")
	cmd.Flags().StringVar(&req.OutDir, "out-dir", "", "root of FIM_evaluation (default the work dir)")
	return cmd
}

func newProcessCmd(get appFunc) *cobra.Command {
	var (
		req    fim.ProcessRequest
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Download strictly matched benchmarks and ensure the model output raster",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := get().service.Process(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprintf(out, "[%s] %s\n", res.Status, res.Message)
			for _, f := range res.Folders {
				fmt.Fprintf(out, "  %s\n", f.Path)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.HUC, "huc", "", "8-digit hydrologic unit code")
	f.StringVar(&req.Date, "date", "", "event date or datetime")
	f.StringVar(&req.FileName, "file-name", "", "benchmark raster file name, used as fallback reference")
	f.StringVar(&req.OutDir, "out-dir", "", "root of FIM_evaluation (default the work dir)")
	f.BoolVar(&req.EnsureArtifact, "ensure-owp", true, "copy the model output raster for --date into the folder")
	f.BoolVar(&req.GenerateMissing, "generate", true, "generate the model output raster when it does not exist")
	f.BoolVar(&asJSON, "json", false, "print the full result as JSON")
	_ = cmd.MarkFlagRequired("huc")
	return cmd
}

func newAvailabilityCmd(get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "availability HUC",
		Short: "Summarize the benchmark dates of a HUC",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := get().service.Availability(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}
