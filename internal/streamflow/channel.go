package streamflow

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// ChannelReader returns the streamflow of the wanted reaches from one NWM
// channel file. Reaches that are absent or hold a fill value are omitted.
type ChannelReader func(path string, want map[int64]struct{}) (map[int64]float64, error)

// ReadChannelFile reads the feature_id and streamflow variables of an NWM
// CHRTOUT or channel_rt NetCDF file, applying scale_factor and add_offset.
func ReadChannelFile(path string, want map[int64]struct{}) (map[int64]float64, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer nc.Close()

	idVar, err := nc.GetVarGetter("feature_id")
	if err != nil {
		return nil, fmt.Errorf("%s: feature_id: %w", filepath.Base(path), err)
	}
	rawIDs, err := idVar.Values()
	if err != nil {
		return nil, fmt.Errorf("%s: feature_id values: %w", filepath.Base(path), err)
	}
	ids, err := toInt64s(rawIDs)
	if err != nil {
		return nil, fmt.Errorf("%s: feature_id: %w", filepath.Base(path), err)
	}

	flowVar, err := nc.GetVarGetter("streamflow")
	if err != nil {
		return nil, fmt.Errorf("%s: streamflow: %w", filepath.Base(path), err)
	}
	rawFlows, err := flowVar.Values()
	if err != nil {
		return nil, fmt.Errorf("%s: streamflow values: %w", filepath.Base(path), err)
	}
	flows, err := toFloat64s(rawFlows)
	if err != nil {
		return nil, fmt.Errorf("%s: streamflow: %w", filepath.Base(path), err)
	}
	if len(ids) != len(flows) {
		return nil, fmt.Errorf("%s: %d feature ids but %d streamflow values", filepath.Base(path), len(ids), len(flows))
	}

	p := packingOf(flowVar.Attributes())
	out := make(map[int64]float64, len(want))
	for i, id := range ids {
		if _, ok := want[id]; !ok {
			continue
		}
		if v, ok := p.unpack(flows[i]); ok {
			out[id] = v
		}
	}
	return out, nil
}

type packing struct {
	scale, offset float64
	fill          float64
	hasFill       bool
}

func packingOf(attrs api.AttributeMap) packing {
	p := packing{scale: 1}
	if attrs == nil {
		return p
	}
	if v, ok := attrs.Get("scale_factor"); ok {
		if f, ok := attrFloat(v); ok {
			p.scale = f
		}
	}
	if v, ok := attrs.Get("add_offset"); ok {
		if f, ok := attrFloat(v); ok {
			p.offset = f
		}
	}
	if v, ok := attrs.Get("_FillValue"); ok {
		p.fill, p.hasFill = attrFloat(v)
	}
	return p
}

func (p packing) unpack(raw float64) (float64, bool) {
	if math.IsNaN(raw) || (p.hasFill && raw == p.fill) {
		return 0, false
	}
	return raw*p.scale + p.offset, true
}

func attrFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int16:
		return float64(x), true
	case []float64:
		if len(x) > 0 {
			return x[0], true
		}
	case []float32:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case []int32:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	}
	return 0, false
}

func toInt64s(v any) ([]int64, error) {
	switch x := v.(type) {
	case []int64:
		return x, nil
	case []int32:
		out := make([]int64, len(x))
		for i, n := range x {
			out[i] = int64(n)
		}
		return out, nil
	case []float64:
		out := make([]int64, len(x))
		for i, n := range x {
			out[i] = int64(n)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported type %T", v)
}

func toFloat64s(v any) ([]float64, error) {
	switch x := v.(type) {
	case []float64:
		return x, nil
	case []float32:
		out := make([]float64, len(x))
		for i, n := range x {
			out[i] = float64(n)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(x))
		for i, n := range x {
			out[i] = float64(n)
		}
		return out, nil
	case []int64:
		out := make([]float64, len(x))
		for i, n := range x {
			out[i] = float64(n)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported type %T", v)
}
