package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ymdRe        = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	ymdCompactRe = regexp.MustCompile(`^\d{8}$`)
	ymdHourRe    = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})[ T](\d{2})$`)
)

// dateTimeLayouts are tried in order for inputs carrying a time of day.
var dateTimeLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04Z07:00",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05-0700",
	"20060102 15:04",
	"20060102T150405",
	"20060102T1504",
	"20060102T15",
}

// DateSpec is a calendar day with an optional hour.
type DateSpec struct {
	Day     time.Time // midnight UTC
	Hour    int
	HasHour bool
}

// ParseDateSpec parses a loosely formatted user date or datetime.
func ParseDateSpec(s string) (DateSpec, error) {
	norm := normalizeUserDate(s)

	switch {
	case ymdCompactRe.MatchString(norm):
		day, err := time.Parse("20060102", norm)
		if err != nil {
			return DateSpec{}, fmt.Errorf("%w: %q", ErrBadDate, s)
		}
		return DateSpec{Day: day}, nil
	case ymdRe.MatchString(norm):
		day, err := time.Parse(time.DateOnly, norm)
		if err != nil {
			return DateSpec{}, fmt.Errorf("%w: %q", ErrBadDate, s)
		}
		return DateSpec{Day: day}, nil
	}

	if m := ymdHourRe.FindStringSubmatch(norm); m != nil {
		day, err := time.Parse(time.DateOnly, m[1])
		hour, herr := strconv.Atoi(m[2])
		if err != nil || herr != nil || hour > 23 {
			return DateSpec{}, fmt.Errorf("%w: %q", ErrBadDate, s)
		}
		return DateSpec{Day: day, Hour: hour, HasHour: true}, nil
	}

	for _, layout := range dateTimeLayouts {
		t, err := time.Parse(layout, norm)
		if err != nil {
			continue
		}
		// Wall clock of the given zone, as written by the user.
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return DateSpec{Day: day, Hour: t.Hour(), HasHour: true}, nil
	}

	return DateSpec{}, fmt.Errorf("%w: %q", ErrBadDate, s)
}

// MustParseDateSpec is ParseDateSpec for constants in tests and tables.
func MustParseDateSpec(s string) DateSpec {
	d, err := ParseDateSpec(s)
	if err != nil {
		panic(err)
	}
	return d
}

func normalizeUserDate(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "/", "-")
	return strings.Join(strings.Fields(s), " ")
}

// YMD returns the day as YYYYMMDD.
func (d DateSpec) YMD() string {
	return d.Day.Format("20060102")
}

// Label returns YYYYMMDD for day-only specs and YYYYMMDDHH0000 otherwise.
func (d DateSpec) Label() string {
	if !d.HasHour {
		return d.YMD()
	}
	return fmt.Sprintf("%s%02d0000", d.YMD(), d.Hour)
}

// Stamp returns "YYYY-MM-DD" or "YYYY-MM-DD HH:00:00".
func (d DateSpec) Stamp() string {
	if !d.HasHour {
		return d.Day.Format(time.DateOnly)
	}
	return fmt.Sprintf("%s %02d:00:00", d.Day.Format(time.DateOnly), d.Hour)
}

// Time returns the designated instant: midnight for day-only dates.
func (d DateSpec) Time() time.Time {
	return d.Day.Add(time.Duration(d.Hour) * time.Hour)
}

// SameDay reports whether t falls on d.Day (UTC).
func (d DateSpec) SameDay(t time.Time) bool {
	y1, m1, d1 := d.Day.Date()
	y2, m2, d2 := t.UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func (d DateSpec) String() string {
	return d.Stamp()
}
