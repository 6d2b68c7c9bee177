package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Query selects benchmark records. HUC is required; the remaining fields are
// optional filters. Start/End bound a date range and are only honored by
// relaxed matching.
type Query struct {
	HUC      string
	Date     string
	FileName string
	Start    string
	End      string
}

// HasFilters reports whether any filter besides the HUC is set.
func (q Query) HasFilters() bool {
	return q.Date != "" || q.FileName != "" || q.Start != "" || q.End != ""
}

// Context renders the query for listing headers, e.g.
// "HUC 12090301, date '2017-08-30', file 'x.tif'".
func (q Query) Context() string {
	var parts []string
	if q.HUC != "" {
		parts = append(parts, "HUC "+q.HUC)
	}
	if q.Date != "" {
		parts = append(parts, fmt.Sprintf("date '%s'", q.Date))
	}
	if q.Start != "" || q.End != "" {
		parts = append(parts, "range "+q.Range())
	}
	if q.FileName != "" {
		parts = append(parts, fmt.Sprintf("file '%s'", q.FileName))
	}
	if len(parts) == 0 {
		return "your filters"
	}
	return strings.Join(parts, ", ")
}

// Range renders the date range with open ends shown as infinities.
func (q Query) Range() string {
	start, end := q.Start, q.End
	if start == "" {
		start = "-∞"
	}
	if end == "" {
		end = "∞"
	}
	return fmt.Sprintf("[%s , %s]", start, end)
}

// MatchStrict returns the records of q.HUC that satisfy the file name and
// date filters exactly. A day-only date matches only day-only records and an
// hourly date matches only records of the same hour. The date range is
// ignored. Results keep catalog order.
func MatchStrict(records []Record, q Query) ([]Record, error) {
	recs := filterHUCAndName(records, q)
	if q.Date == "" {
		return recs, nil
	}
	target, err := ParseDateSpec(q.Date)
	if err != nil {
		return nil, err
	}
	return matchDateSpec(recs, target), nil
}

// MatchRelaxed is the listing variant of MatchStrict. With a range it returns
// every record whose day lies within [Start, End]; with a day-only date it
// returns every record of that day, hourly or not. Both are sorted by raw
// date then file name. Any other query falls back to strict matching.
func MatchRelaxed(records []Record, q Query) ([]Record, error) {
	recs := filterHUCAndName(records, q)

	if q.Start != "" || q.End != "" {
		var from, to time.Time
		if q.Start != "" {
			d, err := ParseDateSpec(q.Start)
			if err != nil {
				return nil, err
			}
			from = d.Day
		}
		if q.End != "" {
			d, err := ParseDateSpec(q.End)
			if err != nil {
				return nil, err
			}
			to = d.Day
		}
		var out []Record
		for _, r := range recs {
			day, ok := r.Day()
			if !ok {
				continue
			}
			if !from.IsZero() && day.Before(from) {
				continue
			}
			if !to.IsZero() && day.After(to) {
				continue
			}
			out = append(out, r)
		}
		sortForListing(out)
		return out, nil
	}

	if q.Date != "" {
		target, err := ParseDateSpec(q.Date)
		if err != nil {
			return nil, err
		}
		if !target.HasHour {
			var out []Record
			for _, r := range recs {
				if day, ok := r.Day(); ok && day.Equal(target.Day) {
					out = append(out, r)
				}
			}
			sortForListing(out)
			return out, nil
		}
		return matchDateSpec(recs, target), nil
	}

	return recs, nil
}

// FindByFileName returns the first record named name, preferring records of
// huc over records of any other HUC.
func FindByFileName(records []Record, huc, name string) (Record, bool) {
	huc = strings.TrimSpace(huc)
	name = strings.TrimSpace(name)
	if name == "" {
		return Record{}, false
	}
	var fallback *Record
	for i := range records {
		if strings.TrimSpace(records[i].FileName) != name {
			continue
		}
		if records[i].HUC() == huc {
			return records[i], true
		}
		if fallback == nil {
			fallback = &records[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return Record{}, false
}

// RecordsForHUC returns the records of huc in catalog order.
func RecordsForHUC(records []Record, huc string) []Record {
	huc = strings.TrimSpace(huc)
	var out []Record
	for _, r := range records {
		if r.HUC() == huc {
			out = append(out, r)
		}
	}
	return out
}

func filterHUCAndName(records []Record, q Query) []Record {
	recs := RecordsForHUC(records, q.HUC)
	name := strings.TrimSpace(q.FileName)
	if name == "" {
		return recs
	}
	out := recs[:0:0]
	for _, r := range recs {
		if strings.TrimSpace(r.FileName) == name {
			out = append(out, r)
		}
	}
	return out
}

func matchDateSpec(recs []Record, target DateSpec) []Record {
	var out []Record
	for _, r := range recs {
		day, ok := r.Day()
		if !ok || !day.Equal(target.Day) {
			continue
		}
		hour, hasHour := r.Hour()
		if target.HasHour {
			if hasHour && hour == target.Hour {
				out = append(out, r)
			}
			continue
		}
		if !hasHour {
			out = append(out, r)
		}
	}
	return out
}

func sortForListing(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if a, b := recs[i].RawDate(), recs[j].RawDate(); a != b {
			return a < b
		}
		return recs[i].FileName < recs[j].FileName
	})
}
