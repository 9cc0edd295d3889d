package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var depthFlags struct {
	lat     float64
	lon     float64
	dataset string
	json    bool
}

var depthCmd = &cobra.Command{
	Use:   "depth",
	Short: "Look up the reference depth nearest to a coordinate",
	Args:  cobra.NoArgs,
	RunE:  runDepth,
}

func init() {
	f := depthCmd.Flags()
	f.Float64Var(&depthFlags.lat, "lat", 0, "Latitude in degrees north")
	f.Float64Var(&depthFlags.lon, "lon", 0, "Longitude in degrees east")
	f.StringVar(&depthFlags.dataset, "dataset", "", "NetCDF file (default: the project dataset)")
	f.BoolVar(&depthFlags.json, "json", false, "Print the answer as JSON")
	_ = depthCmd.MarkFlagRequired("lat")
	_ = depthCmd.MarkFlagRequired("lon")
	rootCmd.AddCommand(depthCmd)
}

func runDepth(cmd *cobra.Command, _ []string) error {
	a, _, err := newApp(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ans, err := a.Depth(depthFlags.lat, depthFlags.lon, depthFlags.dataset)
	if err != nil {
		return &exitError{code: exitHarness, err: err}
	}
	if depthFlags.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"dataset":  ans.Dataset,
			"lat":      ans.Lat,
			"lon":      ans.Lon,
			"grid_lat": ans.GridLat,
			"grid_lon": ans.GridLon,
			"depth":    ans.Depth,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%.1f m at (%.4f, %.4f), nearest grid point (%.4f, %.4f)\n",
		ans.Depth, ans.Lat, ans.Lon, ans.GridLat, ans.GridLon)
	return nil
}
