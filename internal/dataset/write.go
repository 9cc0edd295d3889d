package dataset

import (
	"fmt"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
)

// WriteCDF stores g as a classic NetCDF file with lat/lon coordinates and a
// (lat, lon) depth variable. Used to scaffold demo projects and fixtures.
func WriteCDF(path string, g *Grid) error {
	if len(g.Z) != len(g.Lat)*len(g.Lon) {
		return fmt.Errorf("z has %d values, want %d", len(g.Z), len(g.Lat)*len(g.Lon))
	}
	w, err := cdf.OpenWriter(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	rows := make([][]float64, len(g.Lat))
	for i := range g.Lat {
		rows[i] = append([]float64(nil), g.Z[i*len(g.Lon):(i+1)*len(g.Lon)]...)
	}
	vars := []struct {
		name string
		v    api.Variable
	}{
		{LatName, api.Variable{Values: g.Lat, Dimensions: []string{LatName}, Attributes: attrs("degrees_north")}},
		{LonName, api.Variable{Values: g.Lon, Dimensions: []string{LonName}, Attributes: attrs("degrees_east")}},
		{DepthName, api.Variable{Values: rows, Dimensions: []string{LatName, LonName}, Attributes: attrs("m")}},
	}
	for _, v := range vars {
		if err := w.AddVar(v.name, v.v); err != nil {
			_ = w.Close()
			return fmt.Errorf("add %s: %w", v.name, err)
		}
	}
	return w.Close()
}

func attrs(units string) api.AttributeMap {
	m, err := util.NewOrderedMap([]string{"units"}, map[string]interface{}{"units": units})
	if err != nil {
		return nil
	}
	return m
}
