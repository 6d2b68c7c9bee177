package hand

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/fimserve-service/internal/domain"
)

// StreamOrderFilter selects hydrotable rows by Strahler stream order. The
// zero value keeps every row.
type StreamOrderFilter struct {
	op     string // ">=", "<=", ">", "<" or "" for a list
	value  int
	orders map[string]struct{}
}

// ParseStreamOrder parses ">=N", "<=N", ">N", "<N", a single order "N" or a
// list "N,M" (brackets allowed). An empty string means no filter.
func ParseStreamOrder(s string) (StreamOrderFilter, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return StreamOrderFilter{}, nil
	}
	for _, op := range []string{">=", "<=", ">", "<"} {
		if rest, ok := strings.CutPrefix(s, op); ok {
			n, err := strconv.Atoi(strings.TrimSpace(rest))
			if err != nil {
				return StreamOrderFilter{}, fmt.Errorf("%w: %q", domain.ErrInvalidStreamOrder, s)
			}
			return StreamOrderFilter{op: op, value: n}, nil
		}
	}

	list := strings.Trim(s, "[]")
	orders := make(map[string]struct{})
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return StreamOrderFilter{}, fmt.Errorf("%w: %q", domain.ErrInvalidStreamOrder, s)
		}
		orders[strconv.Itoa(n)] = struct{}{}
	}
	if len(orders) == 0 {
		return StreamOrderFilter{}, fmt.Errorf("%w: %q", domain.ErrInvalidStreamOrder, s)
	}
	return StreamOrderFilter{orders: orders}, nil
}

// Active reports whether the filter drops anything.
func (f StreamOrderFilter) Active() bool {
	return f.op != "" || len(f.orders) > 0
}

// Keep reports whether a row with the given order_ value passes.
func (f StreamOrderFilter) Keep(order string) bool {
	if !f.Active() {
		return true
	}
	// Hydrotables sometimes store orders as "3.0".
	v, err := strconv.ParseFloat(strings.TrimSpace(order), 64)
	if err != nil {
		return false
	}
	n := int(v)
	switch f.op {
	case ">=":
		return n >= f.value
	case "<=":
		return n <= f.value
	case ">":
		return n > f.value
	case "<":
		return n < f.value
	}
	_, ok := f.orders[strconv.Itoa(n)]
	return ok
}

func (f StreamOrderFilter) String() string {
	if f.op != "" {
		return f.op + strconv.Itoa(f.value)
	}
	if len(f.orders) == 0 {
		return "all"
	}
	keys := make([]string, 0, len(f.orders))
	for k := range f.orders {
		keys = append(keys, k)
	}
	return strings.Join(sortedNumeric(keys), ",")
}

func sortedNumeric(keys []string) []string {
	slices.SortFunc(keys, func(a, b string) int {
		x, _ := strconv.Atoi(a)
		y, _ := strconv.Atoi(b)
		return cmp.Compare(x, y)
	})
	return keys
}
