package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/couchcryptid/fimserve-service/internal/domain"
	"github.com/couchcryptid/fimserve-service/internal/inundation"
	"github.com/couchcryptid/fimserve-service/internal/streamflow"
	"github.com/spf13/cobra"
)

func newDownloadCmd(get appFunc) *cobra.Command {
	var version, streamOrder string
	cmd := &cobra.Command{
		Use:   "download HUC",
		Short: "Download the HAND inputs of a HUC and prepare the mapping program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if version == "" {
				version = a.cfg.HANDVersion
			}
			opts, err := handOptions(version, streamOrder)
			if err != nil {
				return err
			}
			if err := a.downloader.Download(cmd.Context(), args[0], opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "HAND inputs for HUC %s are in %s\n", args[0], a.layout.HUCDir(args[0]))
			return nil
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "HAND version, 4.8 or 4.5 (default $HAND_VERSION)")
	cmd.Flags().StringVar(&streamOrder, "stream-order", "", `keep reaches by stream order, e.g. ">=3" or "4,5,6"`)
	return cmd
}

func newRetrospectiveCmd(get appFunc) *cobra.Command {
	var (
		hucs        []string
		dates       []string
		fromCatalog bool
		start, end  string
		valueTimes  []string
	)
	cmd := &cobra.Command{
		Use:   "retrospective",
		Short: "Write NWM retrospective discharge files",
		Long: `Write NWM 3.0 retrospective discharge files into data/inputs.

Event mode writes one file per --huc and --date (or per catalog benchmark date
with --from-catalog). Range mode (--start, --end, --value-time) caches the
hourly series of one HUC and writes a file for each value time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			ctx := cmd.Context()

			if start != "" || end != "" {
				if len(hucs) != 1 || start == "" || end == "" || len(valueTimes) == 0 {
					return errors.New("range mode needs exactly one --huc plus --start, --end and --value-time")
				}
				s, err := domain.ParseDateSpec(start)
				if err != nil {
					return err
				}
				e, err := domain.ParseDateSpec(end)
				if err != nil {
					return err
				}
				vts := make([]domain.DateSpec, 0, len(valueTimes))
				for _, v := range valueTimes {
					d, err := domain.ParseDateSpec(v)
					if err != nil {
						return err
					}
					vts = append(vts, d)
				}
				written, err := a.retrospective.RunRange(ctx, hucs[0], s, e, vts)
				printPaths(cmd.OutOrStdout(), written)
				return err
			}

			events := make(map[string][]string)
			if fromCatalog {
				recs, err := a.catalog.Records(ctx)
				if err != nil {
					return err
				}
				all := domain.BuildHUCEventMap(recs)
				for _, huc := range hucs {
					events[huc] = all[huc]
				}
			} else {
				if len(hucs) == 0 || len(dates) == 0 {
					return errors.New("event mode needs --huc and --date, or --from-catalog")
				}
				for _, huc := range hucs {
					events[huc] = append(events[huc], dates...)
				}
			}
			written, err := a.retrospective.RunEventMap(ctx, events)
			printPaths(cmd.OutOrStdout(), written)
			return err
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&hucs, "huc", nil, "hydrologic unit code (repeatable)")
	f.StringArrayVar(&dates, "date", nil, "event date or datetime (repeatable)")
	f.BoolVar(&fromCatalog, "from-catalog", false, "use every benchmark date of the HUCs")
	f.StringVar(&start, "start", "", "range start")
	f.StringVar(&end, "end", "", "range end")
	f.StringArrayVar(&valueTimes, "value-time", nil, "time to extract within the range (repeatable)")
	return cmd
}

func newForecastCmd(get appFunc) *cobra.Command {
	var (
		huc, rng, date, agg string
		hour                int
	)
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Write NWM short, medium or long range forecast discharge files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			r, err := streamflow.ParseForecastRange(rng)
			if err != nil {
				return err
			}
			ag, err := streamflow.ParseAggregation(agg)
			if err != nil {
				return err
			}
			req := streamflow.ForecastRequest{HUC: huc, Range: r, Aggregate: ag}
			if date != "" {
				d, err := domain.ParseDateSpec(date)
				if err != nil {
					return err
				}
				req.Date = d.Day
				if d.HasHour && hour < 0 {
					hour = d.Hour
				}
			}
			if hour >= 0 {
				req.Hour = &hour
			}

			fc, closeFn, err := a.forecast(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			written, err := fc.Fetch(cmd.Context(), req)
			printPaths(cmd.OutOrStdout(), written)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&huc, "huc", "", "hydrologic unit code")
	f.StringVar(&rng, "range", "short_range", "short_range, medium_range or long_range")
	f.StringVar(&date, "date", "", "forecast day (default today, UTC)")
	f.IntVar(&hour, "hour", -1, "forecast cycle hour (default the latest)")
	f.StringVar(&agg, "aggregate", "maximum", "daily aggregate for medium and long range: minimum, median or maximum")
	_ = cmd.MarkFlagRequired("huc")
	return cmd
}

func newGEOGLOWSCmd(get appFunc) *cobra.Command {
	var huc, date, hydrotable, start, end string
	cmd := &cobra.Command{
		Use:   "geoglows",
		Short: "Write GEOGLOWS retrospective discharge files for an event",
		RunE: func(cmd *cobra.Command, _ []string) error {
			event, err := domain.ParseDateSpec(date)
			if err != nil {
				return err
			}
			req := streamflow.GEOGLOWSRequest{HUC: huc, EventTime: event, Hydrotable: hydrotable}
			if start != "" {
				if req.Start, err = windowStart(start); err != nil {
					return err
				}
			}
			if end != "" {
				if req.End, err = windowEnd(end); err != nil {
					return err
				}
			}
			res, err := get().geoglows().Fetch(cmd.Context(), req)
			if err != nil {
				return err
			}
			printPaths(cmd.OutOrStdout(), []string{res.WindowPath, res.ValuePath})
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&huc, "huc", "", "hydrologic unit code")
	f.StringVar(&date, "date", "", "event date or datetime")
	f.StringVar(&hydrotable, "hydrotable", "", "CSV mapping GEOGLOWS LINKNO to NWM feature_id")
	f.StringVar(&start, "start", "", "window start (default one day before the event)")
	f.StringVar(&end, "end", "", "window end (default one day after the event, capped at now)")
	for _, name := range []string{"huc", "date", "hydrotable"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newUSGSCmd(get appFunc) *cobra.Command {
	var (
		huc, start, end string
		sites           []string
	)
	cmd := &cobra.Command{
		Use:   "usgs",
		Short: "Cache USGS gauge discharge for a HUC as parquet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := windowStart(start)
			if err != nil {
				return err
			}
			e, err := windowEnd(end)
			if err != nil {
				return err
			}
			path, err := get().usgs().Fetch(cmd.Context(), huc, sites, s, e)
			if err != nil {
				return err
			}
			printPaths(cmd.OutOrStdout(), []string{path})
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&huc, "huc", "", "hydrologic unit code")
	f.StringSliceVar(&sites, "site", nil, "USGS site number (repeatable)")
	f.StringVar(&start, "start", "", "window start")
	f.StringVar(&end, "end", "", "window end, inclusive of a day-only date")
	for _, name := range []string{"huc", "site", "start", "end"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newRunCmd(get appFunc) *cobra.Command {
	var (
		huc  string
		opts inundation.Options
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run inundation mapping for every discharge file of a HUC",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := get().runner.Run(cmd.Context(), huc, opts)
			printPaths(cmd.OutOrStdout(), res.Produced)
			if len(res.Skipped) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "skipped %d discharge file(s) with existing rasters\n", len(res.Skipped))
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&huc, "huc", "", "hydrologic unit code")
	f.BoolVar(&opts.Depth, "depth", false, "also write depth rasters")
	f.BoolVar(&opts.Force, "force", false, "rerun discharge files whose raster exists")
	_ = cmd.MarkFlagRequired("huc")
	return cmd
}

// windowStart parses s as the first instant of a window.
func windowStart(s string) (time.Time, error) {
	d, err := domain.ParseDateSpec(s)
	if err != nil {
		return time.Time{}, err
	}
	return d.Time(), nil
}

// windowEnd parses s as the last instant of a window. A day-only date
// covers the whole day.
func windowEnd(s string) (time.Time, error) {
	d, err := domain.ParseDateSpec(s)
	if err != nil {
		return time.Time{}, err
	}
	if !d.HasHour {
		return d.Day.Add(24*time.Hour - time.Second), nil
	}
	return d.Time(), nil
}

func printPaths(w io.Writer, paths []string) {
	for _, p := range paths {
		fmt.Fprintln(w, p)
	}
}
