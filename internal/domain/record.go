package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Catalog is the decoded benchmark catalog document.
type Catalog struct {
	Records []Record `json:"records"`
}

// Record is one benchmark FIM entry of the catalog.
type Record struct {
	HUC8         Text       `json:"huc8"`
	DateYMD      string     `json:"date_ymd,omitempty"`
	DateRaw      Text       `json:"date_raw,omitempty"`
	DateOfFlood  Text       `json:"date_of_flood,omitempty"`
	FileName     string     `json:"file_name,omitempty"`
	ResolutionM  Resolution `json:"resolution_m"`
	Tier         string     `json:"tier,omitempty"`
	Quality      string     `json:"quality,omitempty"`
	Site         string     `json:"site,omitempty"`
	Event        string     `json:"event,omitempty"`
	S3Key        string     `json:"s3_key,omitempty"`
	TIFURL       string     `json:"tif_url,omitempty"`
	ReturnPeriod Text       `json:"return_period,omitempty"`
}

// HUC returns the trimmed hydrologic unit code.
func (r Record) HUC() string {
	return strings.TrimSpace(string(r.HUC8))
}

// RawDate returns date_raw, or date_of_flood when date_raw is absent.
func (r Record) RawDate() string {
	if r.DateRaw != "" {
		return strings.TrimSpace(string(r.DateRaw))
	}
	return strings.TrimSpace(string(r.DateOfFlood))
}

// Day returns the record's calendar day at midnight UTC.
func (r Record) Day() (time.Time, bool) {
	if r.DateYMD != "" {
		if d, err := time.Parse(time.DateOnly, r.DateYMD); err == nil {
			return d, true
		}
	}
	raw := r.RawDate()
	if len(raw) >= 8 {
		if d, err := time.Parse("20060102", raw[:8]); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// Hour returns the hour encoded after the "T" of the raw date, if any.
func (r Record) Hour() (int, bool) {
	raw := r.RawDate()
	if len(raw) < 11 {
		return 0, false
	}
	_, after, ok := strings.Cut(raw, "T")
	if !ok || len(after) < 2 {
		return 0, false
	}
	h, err := strconv.Atoi(after[:2])
	if err != nil {
		return 0, false
	}
	return h, true
}

// DateSpec returns the record's day and optional hour as a DateSpec.
func (r Record) DateSpec() (DateSpec, bool) {
	day, ok := r.Day()
	if !ok {
		return DateSpec{}, false
	}
	spec := DateSpec{Day: day}
	if h, ok := r.Hour(); ok {
		spec.Hour = h
		spec.HasHour = true
	}
	return spec, true
}

// TierLabel returns tier, quality or "Unknown", in that order.
func (r Record) TierLabel() string {
	switch {
	case r.Tier != "":
		return r.Tier
	case r.Quality != "":
		return r.Quality
	default:
		return "Unknown"
	}
}

// PrettyDate renders the record date for listings: "YYYY-MM-DDTHH" for
// hourly records, "YYYY-MM-DD" otherwise.
func (r Record) PrettyDate() string {
	raw := r.RawDate()
	if h, ok := r.Hour(); ok && len(raw) >= 8 {
		return fmt.Sprintf("%s-%s-%sT%02d", raw[:4], raw[4:6], raw[6:8], h)
	}
	if _, err := time.Parse(time.DateOnly, r.DateYMD); err == nil {
		return r.DateYMD
	}
	if len(raw) >= 8 {
		return fmt.Sprintf("%s-%s-%s", raw[:4], raw[4:6], raw[6:8])
	}
	return "unknown"
}

// DateLabel returns YYYYMMDD or YYYYMMDDHH0000 for the record. Records
// without a parsable day fall back to the raw date prefix or "unknown".
func (r Record) DateLabel() string {
	if spec, ok := r.DateSpec(); ok {
		return spec.Label()
	}
	raw := r.RawDate()
	if len(raw) >= 8 {
		return raw[:8]
	}
	if raw != "" {
		return raw
	}
	return "unknown"
}

// FolderLabel names the per-event input folder for a record: "flood" plus
// the date label when the record is dated, otherwise the site label.
func (r Record) FolderLabel() string {
	if _, ok := r.Day(); ok {
		return "flood" + r.DateLabel()
	}
	if site := sanitizeLabel(r.Site); site != "" {
		return site
	}
	return "flood" + r.DateLabel()
}

// Text is a catalog string that may be encoded as a JSON string, a number or
// null.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("decode catalog text %s: %w", b, err)
	}
	*t = Text(n.String())
	return nil
}

// Resolution is the spatial resolution of a benchmark raster in meters.
type Resolution struct {
	Meters float64
	Valid  bool
}

// UnmarshalJSON accepts numbers, numeric strings and null.
func (r *Resolution) UnmarshalJSON(b []byte) error {
	var t Text
	if err := t.UnmarshalJSON(b); err != nil {
		return err
	}
	s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(string(t)), "m"))
	if s == "" {
		*r = Resolution{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*r = Resolution{}
		return nil
	}
	*r = Resolution{Meters: v, Valid: true}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r Resolution) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.Meters)
}

// String renders "3m" or "NA".
func (r Resolution) String() string {
	if !r.Valid {
		return "NA"
	}
	return strconv.FormatFloat(r.Meters, 'f', -1, 64) + "m"
}

func sanitizeLabel(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
			b.WriteRune(c)
		case c == ' ' || c == '/' || c == '\\':
			b.WriteRune('_')
		}
	}
	return b.String()
}
