package dataset

import (
	"fmt"
	"math"
)

// Grid is a read-only gridded bathymetry field. Z is stored row-major with
// one row per latitude.
type Grid struct {
	Path     string
	Lat      []float64
	Lon      []float64
	Z        []float64
	Coords   []string
	DataVars []string

	closed bool
}

type Stats struct {
	Min   float64
	Max   float64
	Count int
	NaN   int
}

// FromArrays builds a grid from in-memory axes. z must hold len(lat)*len(lon)
// values, latitude-major.
func FromArrays(lat, lon, z []float64) (*Grid, error) {
	if len(z) != len(lat)*len(lon) {
		return nil, fmt.Errorf("z has %d values, want %d (%d lat x %d lon)", len(z), len(lat)*len(lon), len(lat), len(lon))
	}
	return &Grid{
		Lat:      lat,
		Lon:      lon,
		Z:        z,
		Coords:   []string{"lat", "lon"},
		DataVars: []string{"z"},
	}, nil
}

func (g *Grid) HasCoord(name string) bool { return contains(g.Coords, name) }
func (g *Grid) HasVar(name string) bool   { return contains(g.DataVars, name) }

// Has reports whether name is a coordinate or a data variable.
func (g *Grid) Has(name string) bool { return g.HasCoord(name) || g.HasVar(name) }

func (g *Grid) Stats() Stats {
	s := Stats{Min: math.NaN(), Max: math.NaN()}
	for _, v := range g.Z {
		if math.IsNaN(v) {
			s.NaN++
			continue
		}
		if s.Count == 0 || v < s.Min {
			s.Min = v
		}
		if s.Count == 0 || v > s.Max {
			s.Max = v
		}
		s.Count++
	}
	return s
}

func (g *Grid) At(i, j int) float64 {
	return g.Z[i*len(g.Lon)+j]
}

// Nearest returns the depth at the grid point nearest to (lat, lon), choosing
// the closest index on each axis independently. Points outside the domain
// clamp to the edge.
func (g *Grid) Nearest(lat, lon float64) (depth, gridLat, gridLon float64, err error) {
	if g.closed {
		return 0, 0, 0, fmt.Errorf("dataset %s is closed", g.Path)
	}
	if len(g.Lat) == 0 || len(g.Lon) == 0 {
		return 0, 0, 0, fmt.Errorf("dataset has empty coordinates")
	}
	i := nearestIndex(g.Lat, lat)
	j := nearestIndex(g.Lon, lon)
	return g.At(i, j), g.Lat[i], g.Lon[j], nil
}

func (g *Grid) Close() error {
	g.closed = true
	return nil
}

func nearestIndex(axis []float64, v float64) int {
	best := 0
	bestDist := math.Inf(1)
	for i, a := range axis {
		if d := math.Abs(a - v); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
