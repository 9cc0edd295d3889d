package devtools

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"bathygrade/internal/dataset"
	"bathygrade/internal/notebook"
	"bathygrade/internal/probe"
)

// Scenario shapes a scaffolded demo project.
type Scenario struct {
	Name           string
	SkipDataset    bool
	NotImplemented bool
	Placeholders   bool
	RuntimeError   bool
	SleepSeconds   int
	UnpersonalFigs bool
	BlankFigure    int
	MissingFigure  int
}

func Resolve(name string) Scenario {
	switch name {
	case "missing_dataset":
		return Scenario{Name: name, SkipDataset: true}
	case "not_implemented":
		return Scenario{Name: name, NotImplemented: true}
	case "placeholders":
		return Scenario{Name: name, Placeholders: true, UnpersonalFigs: true}
	case "runtime_error":
		return Scenario{Name: name, RuntimeError: true}
	case "timeout":
		return Scenario{Name: name, SleepSeconds: 600}
	case "blank_figure":
		return Scenario{Name: name, BlankFigure: 2}
	case "missing_figure":
		return Scenario{Name: name, MissingFigure: 3}
	default:
		return Scenario{Name: "pass"}
	}
}

func ScenarioNames() []string {
	return []string{"pass", "missing_dataset", "not_implemented", "placeholders", "runtime_error", "timeout", "blank_figure", "missing_figure"}
}

// Scaffold writes a complete exercise project into dir.
func Scaffold(dir string, sc Scenario) error {
	for _, sub := range []string{"src", "data", "modules", "figures"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return err
		}
	}
	if !sc.SkipDataset {
		if err := dataset.WriteCDF(filepath.Join(dir, "data", "bathymetry_subset.nc"), DemoGrid()); err != nil {
			return fmt.Errorf("write demo dataset: %w", err)
		}
	}
	modules := map[string]string{
		"__init__.py":   "",
		"bathymetry.py": "\"\"\"Helpers for the bathymetry exercise.\"\"\"\n\nDS2_LAT = 66.0128\nDS2_LON = -27.2702\n",
	}
	for name, body := range modules {
		if err := os.WriteFile(filepath.Join(dir, "modules", name), []byte(body), 0o644); err != nil {
			return err
		}
	}
	if err := DemoNotebook(sc).Write(filepath.Join(dir, "src", "assignment.ipynb")); err != nil {
		return err
	}
	author := "anna"
	if sc.UnpersonalFigs {
		author = "YourName"
	}
	for i := 1; i <= 3; i++ {
		if i == sc.MissingFigure {
			continue
		}
		name := fmt.Sprintf("ex2fig%d-%s-Messfern.png", i, author)
		if err := writeDemoFigure(filepath.Join(dir, "figures", name), int64(i), i == sc.BlankFigure); err != nil {
			return err
		}
	}
	return nil
}

// DemoGrid is a 0.25 degree grid over 60..70N, 40..20W whose nearest
// samples reproduce the reference probe depths.
func DemoGrid() *dataset.Grid {
	var lat, lon []float64
	for v := 60.0; v <= 70.0+1e-9; v += 0.25 {
		lat = append(lat, math.Round(v*100)/100)
	}
	for v := -40.0; v <= -20.0+1e-9; v += 0.25 {
		lon = append(lon, math.Round(v*100)/100)
	}
	z := make([]float64, len(lat)*len(lon))
	for i, la := range lat {
		for j, lo := range lon {
			z[i*len(lon)+j] = -(1500 + 1000*math.Sin(la*0.7)*math.Cos(lo*0.3))
		}
	}
	g, _ := dataset.FromArrays(lat, lon, z)
	for _, loc := range probe.Locations() {
		i := nearest(lat, loc.Lat)
		j := nearest(lon, loc.Lon)
		g.Z[i*len(lon)+j] = loc.Expected
	}
	return g
}

func nearest(axis []float64, v float64) int {
	best := 0
	for i := range axis {
		if math.Abs(axis[i]-v) < math.Abs(axis[best]-v) {
			best = i
		}
	}
	return best
}

// DemoNotebook builds the student notebook for sc.
func DemoNotebook(sc Scenario) *notebook.Notebook {
	author, date := "Anna Example", "2025-10-01"
	if sc.Placeholders {
		author, date = "[YOUR NAME HERE]", "[TODAY'S DATE]"
	}
	body := `    point = dataset.sel(lat=target_lat, lon=target_lon, method="nearest")
    return float(point["z"].values)`
	if sc.NotImplemented {
		body = `    raise NotImplementedError("get_depth_at_location is not implemented yet")`
	}
	cells := []string{
		"import numpy as np\nimport xarray as xr\nimport matplotlib.pyplot as plt\n\nbathymetry_subset = xr.open_dataset(\"data/bathymetry_subset.nc\")\nprint(\"dataset loaded\")",
		"def get_depth_at_location(dataset, target_lat, target_lon):\n    \"\"\"Return the depth of the grid point nearest to the target.\"\"\"\n" + body,
		"ds2_lat, ds2_lon = 66.0128, -27.2702\nds2_depth = get_depth_at_location(bathymetry_subset, ds2_lat, ds2_lon)",
		"fig, ax = plt.subplots()\nbathymetry_subset.z.plot.contourf(ax=ax)\nfig.savefig(\"figures/ex2fig1-anna-Messfern.png\")",
	}
	if sc.RuntimeError {
		cells = append(cells, "raise ValueError('contour levels must be increasing')")
	}
	if sc.SleepSeconds > 0 {
		cells = append(cells, fmt.Sprintf("import time\ntime.sleep(%d)", sc.SleepSeconds))
	}
	nb := &notebook.Notebook{
		Metadata: map[string]any{
			"kernelspec": map[string]any{"name": "python3", "display_name": "Python 3", "language": "python"},
		},
		NBFormat:      4,
		NBFormatMinor: 5,
	}
	nb.Cells = append(nb.Cells, notebook.Cell{
		ID:       "info",
		CellType: notebook.CellMarkdown,
		Metadata: map[string]any{},
		Source: notebook.Text(strings.Join([]string{
			"# Exercise 2: Bathymetry of the Denmark Strait",
			"",
			"## Your Information",
			"Author: " + author,
			"Date: " + date,
		}, "\n")),
	})
	for _, src := range cells {
		nb.AppendCode(src)
	}
	return nb
}

func writeDemoFigure(path string, seed int64, blank bool) error {
	const w, h = 480, 360
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	r := rand.New(rand.NewPCG(uint64(seed), 7))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if blank {
				img.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
				continue
			}
			depth := uint8(40 + (x*120)/w + r.IntN(60))
			img.Set(x, y, color.RGBA{R: depth / 3, G: depth / 2, B: depth, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
