package dataset

import (
	"errors"
	"fmt"
	"math"
	"os"
	"reflect"
	"sort"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

var ErrMissingVariable = errors.New("variable not found")

// Names of the variables a bathymetry grid is built from.
const (
	LatName   = "lat"
	LonName   = "lon"
	DepthName = "z"
)

// Open reads a NetCDF (classic or HDF5-backed) file into a Grid. The file
// handle is released before Open returns; the Grid holds plain slices.
func Open(path string) (*Grid, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open netcdf %s: %w", path, err)
	}
	defer nc.Close()

	g := &Grid{Path: path}
	names := nc.ListVariables()
	sort.Strings(names)
	vars := map[string]*api.Variable{}
	for _, name := range names {
		v, err := nc.GetVariable(name)
		if err != nil {
			return nil, fmt.Errorf("read variable %s: %w", name, err)
		}
		vars[name] = v
		if len(v.Dimensions) == 1 && v.Dimensions[0] == name {
			g.Coords = append(g.Coords, name)
		} else {
			g.DataVars = append(g.DataVars, name)
		}
	}

	lat, err := axis(vars, LatName)
	if err != nil {
		return nil, err
	}
	lon, err := axis(vars, LonName)
	if err != nil {
		return nil, err
	}
	g.Lat, g.Lon = lat, lon

	zv, ok := vars[DepthName]
	if !ok {
		return nil, fmt.Errorf("%s: %w", DepthName, ErrMissingVariable)
	}
	z, err := flatten(zv.Values)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", DepthName, err)
	}
	if len(z) != len(lat)*len(lon) {
		return nil, fmt.Errorf("%s has %d values, want %d", DepthName, len(z), len(lat)*len(lon))
	}
	if len(zv.Dimensions) == 2 && zv.Dimensions[0] == LonName && zv.Dimensions[1] == LatName {
		z = transpose(z, len(lon), len(lat))
	}
	maskFill(z, zv.Attributes)
	g.Z = z
	return g, nil
}

func axis(vars map[string]*api.Variable, name string) ([]float64, error) {
	v, ok := vars[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrMissingVariable)
	}
	out, err := flatten(v.Values)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return out, nil
}

// flatten converts any (nested) slice of numbers into a flat []float64.
func flatten(values any) ([]float64, error) {
	var out []float64
	var walk func(v reflect.Value) error
	walk = func(v reflect.Value) error {
		switch v.Kind() {
		case reflect.Slice, reflect.Array:
			for i := 0; i < v.Len(); i++ {
				if err := walk(v.Index(i)); err != nil {
					return err
				}
			}
		case reflect.Float32, reflect.Float64:
			out = append(out, v.Float())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out = append(out, float64(v.Int()))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			out = append(out, float64(v.Uint()))
		case reflect.Interface:
			return walk(v.Elem())
		default:
			return fmt.Errorf("unsupported value type %s", v.Type())
		}
		return nil
	}
	if values == nil {
		return nil, errors.New("no values")
	}
	if err := walk(reflect.ValueOf(values)); err != nil {
		return nil, err
	}
	return out, nil
}

func transpose(z []float64, rows, cols int) []float64 {
	out := make([]float64, len(z))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out[c*rows+r] = z[r*cols+c]
		}
	}
	return out
}

func maskFill(z []float64, attrs api.AttributeMap) {
	if attrs == nil {
		return
	}
	raw, ok := attrs.Get("_FillValue")
	if !ok {
		return
	}
	fill, err := flatten(raw)
	if err != nil || len(fill) == 0 {
		return
	}
	for i, v := range z {
		if v == fill[0] {
			z[i] = math.NaN()
		}
	}
}
