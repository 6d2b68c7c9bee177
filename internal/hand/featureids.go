package hand

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// WriteFeatureIDs writes the unique feature_id values of hydrotable rows that
// pass filter to dest, in first-seen order, under a "feature_id" header.
// It returns the number of IDs written.
func WriteFeatureIDs(hydrotable, dest string, filter StreamOrderFilter) (int, error) {
	f, err := os.Open(hydrotable)
	if err != nil {
		return 0, fmt.Errorf("open hydrotable: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return 0, fmt.Errorf("read hydrotable header: %w", err)
	}
	fidCol := columnIndex(header, "feature_id")
	if fidCol < 0 {
		return 0, fmt.Errorf("hydrotable %s has no feature_id column", hydrotable)
	}
	orderCol := columnIndex(header, "order_")
	if filter.Active() && orderCol < 0 {
		return 0, fmt.Errorf("hydrotable %s has no order_ column", hydrotable)
	}

	seen := make(map[string]struct{})
	var ids []string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read hydrotable: %w", err)
		}
		if fidCol >= len(row) {
			continue
		}
		if filter.Active() && (orderCol >= len(row) || !filter.Keep(row[orderCol])) {
			continue
		}
		id := normalizeID(row[fidCol])
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, err
	}
	out, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	w := csv.NewWriter(out)
	_ = w.Write([]string{"feature_id"})
	for _, id := range ids {
		_ = w.Write([]string{id})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		out.Close()
		return 0, err
	}
	return len(ids), out.Close()
}

// ReadFeatureIDs reads the feature_id column of a CSV file.
func ReadFeatureIDs(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", path, err)
	}
	col := columnIndex(header, "feature_id")
	if col < 0 {
		return nil, fmt.Errorf("%s has no feature_id column", path)
	}

	var ids []int64
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return ids, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if col >= len(row) {
			continue
		}
		id, err := strconv.ParseInt(normalizeID(row[col]), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == name {
			return i
		}
	}
	return -1
}

// normalizeID turns "123.0" into "123".
func normalizeID(s string) string {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil && v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return s
}
