package probe

import (
	"fmt"
	"strconv"
	"strings"
)

// Header precedes the result lines printed by the probe cell.
const Header = "Function test results:"

const (
	DefaultFunction = "get_depth_at_location"
	DefaultDataset  = "bathymetry_subset"
)

// Location is a coordinate with a known reference depth.
type Location struct {
	Lat         float64 `json:"lat" yaml:"lat"`
	Lon         float64 `json:"lon" yaml:"lon"`
	Expected    float64 `json:"expected" yaml:"expected"`
	Tolerance   float64 `json:"tolerance" yaml:"tolerance"`
	Description string  `json:"description" yaml:"description"`
}

func (l Location) Within(actual float64) bool {
	d := actual - l.Expected
	if d < 0 {
		d = -d
	}
	return d <= l.Tolerance
}

// Locations are the reference points inside the exercise domain.
func Locations() []Location {
	return []Location{
		{Lat: 64.51, Lon: -30.00, Expected: -2246.5, Tolerance: 50, Description: "Center of domain"},
		{Lat: 65.79, Lon: -25.01, Expected: -68.1, Tolerance: 20, Description: "Shallowest area"},
		{Lat: 63.06, Lon: -32.84, Expected: -2893.3, Tolerance: 50, Description: "Deepest area"},
		{Lat: 66.00, Lon: -35.00, Expected: -326.6, Tolerance: 50, Description: "Northwest region"},
		{Lat: 63.01, Lon: -25.01, Expected: -546.1, Tolerance: 50, Description: "Southeast region"},
	}
}

// EdgeLocations lie outside the domain; a nearest-neighbour lookup must
// still return an ocean depth in (-5000, 0).
func EdgeLocations() []Location {
	return []Location{
		{Lat: 70.0, Lon: -30.0, Description: "Far north"},
		{Lat: 60.0, Lon: -30.0, Description: "Far south"},
		{Lat: 64.0, Lon: -40.0, Description: "Far west"},
		{Lat: 64.0, Lon: -20.0, Description: "Far east"},
	}
}

// Script renders the Python cell appended to the notebook. It calls fn with
// the dataset variable and each location, printing one PASS/FAIL/ERROR line
// per location after Header.
func Script(fn, datasetVar string, locs []Location) string {
	if fn == "" {
		fn = DefaultFunction
	}
	if datasetVar == "" {
		datasetVar = DefaultDataset
	}
	var b strings.Builder
	b.WriteString("_probe_locations = [\n")
	for _, l := range locs {
		fmt.Fprintf(&b, "    (%s, %s, %s, %s, %s),\n",
			pyFloat(l.Lat), pyFloat(l.Lon), pyFloat(l.Expected), pyFloat(l.Tolerance), strconv.Quote(l.Description))
	}
	b.WriteString("]\n")
	fmt.Fprintf(&b, "_probe_fn = globals().get(%q)\n", fn)
	fmt.Fprintf(&b, "_probe_ds = globals().get(%q)\n", datasetVar)
	fmt.Fprintf(&b, "print(%q)\n", Header)
	fmt.Fprintf(&b, `if _probe_fn is None or not callable(_probe_fn):
    print(%s)
else:
    for _lat, _lon, _expected, _tol, _desc in _probe_locations:
        try:
            _actual = float(_probe_fn(_probe_ds, _lat, _lon))
            if abs(_actual - _expected) <= _tol:
                print(f"PASS: {_desc}")
            else:
                print(f"FAIL: {_desc} - expected {_expected:.1f}m, got {_actual:.1f}m")
        except Exception as _e:
            print(f"ERROR: {_desc} - {_e}")
`, strconv.Quote("ERROR: "+fn+" function not found or not callable"))
	return b.String()
}

func pyFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// Line is one parsed result line.
type Line struct {
	Status string
	Text   string
}

// Report is the parsed output of the probe cell.
type Report struct {
	Found bool
	Lines []Line
}

// Parse scans output text for the probe header and the result lines that
// follow it.
func Parse(output string) Report {
	var r Report
	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimSpace(raw)
		if !r.Found {
			if strings.HasPrefix(line, Header) {
				r.Found = true
			}
			continue
		}
		for _, status := range []string{"PASS", "FAIL", "ERROR"} {
			if rest, ok := strings.CutPrefix(line, status+":"); ok {
				r.Lines = append(r.Lines, Line{Status: status, Text: strings.TrimSpace(rest)})
				break
			}
		}
	}
	return r
}

func (r Report) Count(status string) int {
	n := 0
	for _, l := range r.Lines {
		if l.Status == status {
			n++
		}
	}
	return n
}

// Passed reports whether the header was seen, at least want PASS lines were
// printed, and nothing failed.
func (r Report) Passed(want int) bool {
	return r.Found && r.Count("FAIL") == 0 && r.Count("ERROR") == 0 && r.Count("PASS") >= want
}

// Problems returns the non-PASS lines formatted for a diagnosis.
func (r Report) Problems() []string {
	var out []string
	for _, l := range r.Lines {
		if l.Status != "PASS" {
			out = append(out, l.Status+": "+l.Text)
		}
	}
	return out
}
