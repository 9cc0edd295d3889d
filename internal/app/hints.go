package app

import (
	"regexp"
	"strings"

	"bathygrade/internal/grading"
)

// raisedPattern matches execution diagnoses such as
// "cell 6 raised ValueError: bad latitude".
var raisedPattern = regexp.MustCompile(`raised ([A-Za-z_][A-Za-z0-9_.]*)`)

// Hints suggests a next step for every failed check.
func Hints(res grading.Result) []Hint {
	var out []Hint
	for _, c := range res.Checks {
		if c.Status != grading.StatusFail {
			continue
		}
		if text := hintFor(c); text != "" {
			out = append(out, Hint{CheckID: c.ID, Text: text})
		}
	}
	return out
}

func hintFor(c grading.CheckResult) string {
	msg := c.Message + " " + c.Summary
	if m := raisedPattern.FindStringSubmatch(msg); m != nil {
		if desc := describeException(m[1]); desc != "" {
			return desc
		}
	}
	switch {
	case strings.Contains(msg, "NotImplementedError"):
		return describeException("NotImplementedError")
	case strings.Contains(msg, "timed out"):
		return "A cell ran past the time limit. Look for loops over the whole grid, or raise --timeout."
	case strings.HasPrefix(c.Message, "cannot read"):
		return "The file exists but cannot be read. Regenerate it from the notebook."
	case strings.HasPrefix(c.Message, "cannot import"):
		return "Install the package into the kernel environment, or grade inside a container with --sandbox docker."
	}
	if desc := describeCheckType(c.Type); desc != "" {
		return desc
	}
	switch c.Kind {
	case grading.KindMissingArtifact:
		return "Create the artifact at the expected path. Paths resolve from the project root or its parent."
	case grading.KindMalformedData:
		return "The file exists but cannot be read. Regenerate it from the notebook."
	case grading.KindExecutionFailure:
		return "Restart the kernel and run all cells from the top to reproduce the error."
	}
	return ""
}

func describeException(name string) string {
	switch name {
	case "NotImplementedError":
		return "Replace the NotImplementedError placeholder with your implementation."
	case "ModuleNotFoundError", "ImportError":
		return "A package is missing from the kernel. Install it or check the modules/ directory is next to src/."
	case "FileNotFoundError":
		return "The notebook opens a path that does not exist in the scratch copy. Use paths relative to the notebook, such as ../data/."
	case "KeyError":
		return "A dataset variable or coordinate name is wrong. Print ds to see the available names."
	case "NameError":
		return "A name is used before the cell defining it ran. Run all cells from the top."
	case "IndexError":
		return "An index is out of range. Nearest-neighbour lookups should clamp to the grid edges."
	case "ValueError", "TypeError":
		return "A value has the wrong type or shape. Check the arguments passed to the failing call."
	default:
		return ""
	}
}

func describeCheckType(typ string) string {
	switch typ {
	case "function_probe", "dataset_lookup":
		return "Select the nearest grid point on each axis independently. Depths below sea level are negative."
	case "markdown_placeholders":
		return "Fill in your name and the date in the information cell."
	case "dataset_schema", "dataset_expr":
		return "The dataset violates its expected shape or depth range. Subset the grid again and keep depths at or below zero."
	case "figures_present":
		return "Save each figure with plt.savefig, using your own name in the file name."
	case "figure_image":
		return "The figure looks empty. Call plt.savefig before plt.show."
	case "figure_sizes":
		return "Save figures as PNG at a moderate dpi."
	case "notebook_no_marker":
		return "Remove the placeholder raise statements once the code is implemented."
	case "function_body":
		return "Implement the function body and add a docstring or a comment."
	default:
		return ""
	}
}
