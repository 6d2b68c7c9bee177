package domain

import (
	"fmt"
	"sort"
	"strings"
)

// SummarizeAvailability describes which benchmark dates exist for huc.
func SummarizeAvailability(records []Record, huc string) string {
	huc = strings.TrimSpace(huc)
	recs := RecordsForHUC(records, huc)
	if len(recs) == 0 {
		return fmt.Sprintf("No benchmark FIMs on HUC %s.", huc)
	}

	var dated []Record
	for _, r := range recs {
		raw := r.RawDate()
		if len(raw) == 8 || (strings.Contains(raw, "T") && len(raw) >= 11) {
			dated = append(dated, r)
		}
	}

	if len(dated) == 0 {
		periods := uniqueSorted(recs, func(r Record) string {
			return strings.TrimSpace(string(r.ReturnPeriod))
		})
		if len(periods) > 0 {
			return fmt.Sprintf("No real flood-based benchmarks on HUC %s. Only synthetic return periods available: %s.",
				huc, strings.Join(periods, ", "))
		}
		return fmt.Sprintf("No real flood-based benchmarks on HUC %s.", huc)
	}

	days := uniqueSorted(dated, func(r Record) string {
		if d, ok := r.Day(); ok {
			return d.Format("2006-01-02")
		}
		return ""
	})
	hours := uniqueSorted(dated, func(r Record) string {
		d, ok := r.Day()
		if !ok {
			return ""
		}
		if h, ok := r.Hour(); ok {
			return fmt.Sprintf("%sT%02d", d.Format("2006-01-02"), h)
		}
		return ""
	})

	var parts []string
	if len(days) > 0 {
		parts = append(parts, "days: "+strings.Join(days, ", "))
	}
	if len(hours) > 0 {
		parts = append(parts, "hourly: "+strings.Join(hours, ", "))
	}
	return fmt.Sprintf("Available benchmark dates on HUC %s: %s", huc, strings.Join(parts, " | "))
}

// FormatRecords renders records as blank-line separated blocks, preceded by
// a header naming context when context is non-empty. It returns "" when
// there are no records.
func FormatRecords(records []Record, context string) string {
	if len(records) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(records))
	for _, r := range records {
		name := r.FileName
		if name == "" {
			name = "NA"
		}
		blocks = append(blocks, fmt.Sprintf(
			"Data Tier: %s\nBenchmark FIM date: %s\nSpatial Resolution: %s\nRaster Filename in DB: %s",
			r.TierLabel(), r.PrettyDate(), r.ResolutionM, name))
	}
	var header string
	if context != "" {
		header = fmt.Sprintf("Following are the available benchmark data for %s:\n", context)
	}
	return strings.TrimSpace(header + strings.Join(blocks, "\n\n"))
}

// BuildHUCEventMap groups dated records by HUC. Each HUC maps to its sorted,
// unique timestamps: "YYYY-MM-DD" for day-only records and
// "YYYY-MM-DD HH:00:00" for hourly ones. Undated records are skipped.
func BuildHUCEventMap(records []Record) map[string][]string {
	sets := make(map[string]map[string]struct{})
	for _, r := range records {
		spec, ok := r.DateSpec()
		if !ok {
			continue
		}
		huc := r.HUC()
		if sets[huc] == nil {
			sets[huc] = make(map[string]struct{})
		}
		sets[huc][spec.Stamp()] = struct{}{}
	}
	out := make(map[string][]string, len(sets))
	for huc, set := range sets {
		stamps := make([]string, 0, len(set))
		for s := range set {
			stamps = append(stamps, s)
		}
		sort.Strings(stamps)
		out[huc] = stamps
	}
	return out
}

func uniqueSorted(recs []Record, key func(Record) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range recs {
		k := key(r)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
